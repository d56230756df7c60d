package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/MRAlirad/ccip-rebase-token/core/events"
	"github.com/MRAlirad/ccip-rebase-token/core/state"
	"github.com/MRAlirad/ccip-rebase-token/crypto"
	nativecommon "github.com/MRAlirad/ccip-rebase-token/native/common"
	"github.com/MRAlirad/ccip-rebase-token/native/rebase"
	"github.com/MRAlirad/ccip-rebase-token/observability/metrics"
	"github.com/MRAlirad/ccip-rebase-token/storage"
)

const maxIdempotencyKeyLength = 128

var (
	// ErrIdempotencyConflict is returned when a key is replayed with a
	// different operation or different arguments.
	ErrIdempotencyConflict = errors.New("ledger: idempotency key reused with different request")
	// ErrInvalidIdempotencyKey is returned for keys that are too long.
	ErrInvalidIdempotencyKey = errors.New("ledger: invalid idempotency key")

	idempotencyPrefix = []byte("rebase/idempotency/")
	capabilityLockKey = "rebase/capability"
)

// Receipt is the outcome of a mutating call.
type Receipt struct {
	Amount    *big.Int
	Accruals  []rebase.Accrual
	Timestamp uint64
	// Replayed is set when the receipt was served from a stored idempotency
	// record instead of executing the operation again.
	Replayed bool
}

type idempotencyRecord struct {
	Op          string
	Fingerprint []byte
	Amount      *big.Int
	Timestamp   uint64
	Accruals    []accrualRecord `rlp:"optional"`
}

type accrualRecord struct {
	Account  [crypto.AddressLength]byte
	Interest *big.Int
}

func accrualRecords(accruals []rebase.Accrual) []accrualRecord {
	if len(accruals) == 0 {
		return nil
	}
	out := make([]accrualRecord, 0, len(accruals))
	for _, a := range accruals {
		out = append(out, accrualRecord{Account: a.Account.Array(), Interest: a.Interest})
	}
	return out
}

func (r idempotencyRecord) receipt() *Receipt {
	receipt := &Receipt{Amount: r.Amount, Timestamp: r.Timestamp, Replayed: true}
	for _, a := range r.Accruals {
		receipt.Accruals = append(receipt.Accruals, rebase.Accrual{
			Account:  crypto.AddressFromArray(a.Account),
			Interest: a.Interest,
		})
	}
	return receipt
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithSink sets where committed events are published.
func WithSink(sink events.Emitter) Option {
	return func(l *Ledger) {
		if sink != nil {
			l.sink = sink
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder. Nil disables metrics.
func WithMetrics(m *metrics.LedgerMetrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithClock overrides the unix clock used for accrual.
func WithClock(now func() int64) Option {
	return func(l *Ledger) { l.engine.SetNowFunc(now) }
}

// WithAuthorizer replaces the state backed capability checks.
func WithAuthorizer(auth rebase.Authorizer) Option {
	return func(l *Ledger) { l.engine.SetAuthorizer(auth) }
}

// WithPauses installs an operator pause view.
func WithPauses(p nativecommon.PauseView) Option {
	return func(l *Ledger) { l.engine.SetPauses(p) }
}

// Ledger runs engine operations against a database. Each call gets its own
// staged state transaction; the transaction is committed as one batch and
// its events are published only after the commit. Calls touching the same
// records are serialised.
type Ledger struct {
	db      storage.Database
	engine  *rebase.Engine
	locks   *keyedLocker
	sink    events.Emitter
	logger  *slog.Logger
	metrics *metrics.LedgerMetrics
}

// New constructs a ledger over db.
func New(db storage.Database, opts ...Option) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("ledger: database required")
	}
	l := &Ledger{
		db:     db,
		engine: rebase.NewEngine(),
		locks:  newKeyedLocker(),
		sink:   events.NoopEmitter{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.refreshGauges()
	return l, nil
}

func (l *Ledger) refreshGauges() {
	if l.metrics == nil {
		return
	}
	protocol, err := l.Protocol(context.Background())
	if err != nil {
		return
	}
	l.metrics.SetGlobalRate(protocol.GlobalRate)
	l.metrics.SetPrincipalSupply(protocol.PrincipalSupply)
}

type operation struct {
	name        string
	keys        [][]byte
	idemKey     string
	fingerprint []byte
	run         func(*rebase.Engine) (*rebase.Receipt, error)
}

func fingerprint(parts ...string) []byte {
	return crypto.Keccak256([]byte(strings.Join(parts, "|")))
}

func idempotencyKey(key string) []byte {
	buf := make([]byte, 0, len(idempotencyPrefix)+len(key))
	buf = append(buf, idempotencyPrefix...)
	return append(buf, key...)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, rebase.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, rebase.ErrPaused):
		return "paused"
	case errors.Is(err, rebase.ErrInsufficientPrincipal), errors.Is(err, rebase.ErrInsufficientAllowance):
		return "insufficient"
	case errors.Is(err, rebase.ErrRateDirectionViolation):
		return "rate_direction"
	case errors.Is(err, rebase.ErrInvalidAmount), errors.Is(err, rebase.ErrInvalidAddress):
		return "invalid"
	default:
		return "error"
	}
}

func (l *Ledger) execute(ctx context.Context, op operation) (receipt *Receipt, err error) {
	start := time.Now()
	defer func() {
		l.metrics.ObserveOperation(op.name, outcomeOf(err), time.Since(start))
		if err != nil {
			l.logger.Debug("ledger operation rejected", slog.String("op", op.name), slog.String("error", err.Error()))
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idemKey := strings.TrimSpace(op.idemKey)
	if len(idemKey) > maxIdempotencyKeyLength {
		return nil, ErrInvalidIdempotencyKey
	}

	lockKeys := make([]string, 0, len(op.keys)+1)
	for _, key := range op.keys {
		lockKeys = append(lockKeys, string(key))
	}
	if idemKey != "" {
		lockKeys = append(lockKeys, string(idempotencyKey(idemKey)))
	}
	unlock := l.locks.lock(lockKeys...)
	defer unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mgr := state.NewManager(l.db)
	defer mgr.Discard()

	if idemKey != "" {
		var record idempotencyRecord
		found, err := mgr.KVGet(idempotencyKey(idemKey), &record)
		if err != nil {
			return nil, fmt.Errorf("ledger: load idempotency record: %w", err)
		}
		if found {
			if record.Op != op.name || !bytes.Equal(record.Fingerprint, op.fingerprint) {
				return nil, ErrIdempotencyConflict
			}
			l.metrics.IncReplay()
			return record.receipt(), nil
		}
	}

	buf := &events.Buffer{}
	result, err := op.run(l.engine.Fork(mgr, buf))
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &rebase.Receipt{Amount: big.NewInt(0)}
	}
	if idemKey != "" {
		record := idempotencyRecord{
			Op:          op.name,
			Fingerprint: op.fingerprint,
			Amount:      result.Amount,
			Timestamp:   result.Timestamp,
			Accruals:    accrualRecords(result.Accruals),
		}
		if err := mgr.KVPut(idempotencyKey(idemKey), record); err != nil {
			return nil, fmt.Errorf("ledger: store idempotency record: %w", err)
		}
	}
	if err := mgr.Commit(); err != nil {
		return nil, err
	}

	committed := buf.Events()
	buf.Flush(l.sink)
	l.observeEvents(committed)
	l.logger.Debug("ledger operation committed", slog.String("op", op.name), slog.Int("events", len(committed)))
	return &Receipt{Amount: result.Amount, Accruals: result.Accruals, Timestamp: result.Timestamp}, nil
}

func (l *Ledger) observeEvents(evs []events.Event) {
	if l.metrics == nil {
		return
	}
	for _, ev := range evs {
		switch e := ev.(type) {
		case events.InterestRealized:
			l.metrics.AddRealizedInterest(e.Interest)
		case events.PrincipalSupply:
			l.metrics.SetPrincipalSupply(e.Total)
		case events.RateChanged:
			l.metrics.SetGlobalRate(e.Current)
		}
	}
}

func accountLock(addr crypto.Address) []byte {
	return rebase.AccountKey(addr.Array())
}

// Genesis initialises the ledger once.
func (l *Ledger) Genesis(ctx context.Context, g rebase.Genesis) error {
	_, err := l.execute(ctx, operation{
		name: "genesis",
		keys: [][]byte{rebase.ProtocolKey(), []byte(capabilityLockKey)},
		run: func(e *rebase.Engine) (*rebase.Receipt, error) {
			return nil, e.InitGenesis(g)
		},
	})
	return err
}

// Mint credits amount to to.
func (l *Ledger) Mint(ctx context.Context, caller, to crypto.Address, amount *big.Int, idemKey string) (*Receipt, error) {
	return l.execute(ctx, operation{
		name:        "mint",
		keys:        [][]byte{accountLock(to), rebase.ProtocolKey()},
		idemKey:     idemKey,
		fingerprint: fingerprint(caller.String(), to.String(), amount.String()),
		run: func(e *rebase.Engine) (*rebase.Receipt, error) {
			return e.Mint(caller, to, amount)
		},
	})
}

// Burn debits amount (or the whole balance for the sentinel) from from.
func (l *Ledger) Burn(ctx context.Context, caller, from crypto.Address, amount *big.Int, idemKey string) (*Receipt, error) {
	return l.execute(ctx, operation{
		name:        "burn",
		keys:        [][]byte{accountLock(from), rebase.ProtocolKey()},
		idemKey:     idemKey,
		fingerprint: fingerprint(caller.String(), from.String(), amount.String()),
		run: func(e *rebase.Engine) (*rebase.Receipt, error) {
			return e.Burn(caller, from, amount)
		},
	})
}

// Transfer moves amount from caller to to.
func (l *Ledger) Transfer(ctx context.Context, caller, to crypto.Address, amount *big.Int, idemKey string) (*Receipt, error) {
	return l.execute(ctx, operation{
		name:        "transfer",
		keys:        [][]byte{accountLock(caller), accountLock(to), rebase.ProtocolKey()},
		idemKey:     idemKey,
		fingerprint: fingerprint(caller.String(), to.String(), amount.String()),
		run: func(e *rebase.Engine) (*rebase.Receipt, error) {
			return e.Transfer(caller, to, amount)
		},
	})
}

// TransferFrom moves amount from from to to using the allowance granted to
// spender.
func (l *Ledger) TransferFrom(ctx context.Context, spender, from, to crypto.Address, amount *big.Int, idemKey string) (*Receipt, error) {
	return l.execute(ctx, operation{
		name: "transfer_from",
		keys: [][]byte{
			accountLock(from),
			accountLock(to),
			rebase.AllowanceKey(from.Array(), spender.Array()),
			rebase.ProtocolKey(),
		},
		idemKey:     idemKey,
		fingerprint: fingerprint(spender.String(), from.String(), to.String(), amount.String()),
		run: func(e *rebase.Engine) (*rebase.Receipt, error) {
			return e.TransferFrom(spender, from, to, amount)
		},
	})
}

// Approve sets the allowance owner grants spender.
func (l *Ledger) Approve(ctx context.Context, owner, spender crypto.Address, amount *big.Int, idemKey string) error {
	_, err := l.execute(ctx, operation{
		name:        "approve",
		keys:        [][]byte{rebase.AllowanceKey(owner.Array(), spender.Array())},
		idemKey:     idemKey,
		fingerprint: fingerprint(owner.String(), spender.String(), amount.String()),
		run: func(e *rebase.Engine) (*rebase.Receipt, error) {
			return nil, e.Approve(owner, spender, amount)
		},
	})
	return err
}

// Realize crystallises the interest owed to account.
func (l *Ledger) Realize(ctx context.Context, account crypto.Address, idemKey string) (*Receipt, error) {
	return l.execute(ctx, operation{
		name:        "realize",
		keys:        [][]byte{accountLock(account), rebase.ProtocolKey()},
		idemKey:     idemKey,
		fingerprint: fingerprint(account.String()),
		run: func(e *rebase.Engine) (*rebase.Receipt, error) {
			return e.Realize(account)
		},
	})
}

// SetGlobalRate moves the global rate.
func (l *Ledger) SetGlobalRate(ctx context.Context, caller crypto.Address, rate *big.Int, idemKey string) error {
	_, err := l.execute(ctx, operation{
		name:        "set_global_rate",
		keys:        [][]byte{rebase.ProtocolKey()},
		idemKey:     idemKey,
		fingerprint: fingerprint(caller.String(), rate.String()),
		run: func(e *rebase.Engine) (*rebase.Receipt, error) {
			return nil, e.SetGlobalRate(caller, rate)
		},
	})
	return err
}

// Grant adds a capability to account.
func (l *Ledger) Grant(ctx context.Context, caller, account crypto.Address, capability rebase.Capability, idemKey string) error {
	return l.setCapability(ctx, "grant", caller, account, capability, idemKey, func(e *rebase.Engine) error {
		return e.Grant(caller, account, capability)
	})
}

// Revoke removes a capability from account.
func (l *Ledger) Revoke(ctx context.Context, caller, account crypto.Address, capability rebase.Capability, idemKey string) error {
	return l.setCapability(ctx, "revoke", caller, account, capability, idemKey, func(e *rebase.Engine) error {
		return e.Revoke(caller, account, capability)
	})
}

func (l *Ledger) setCapability(ctx context.Context, name string, caller, account crypto.Address, capability rebase.Capability, idemKey string, run func(*rebase.Engine) error) error {
	_, err := l.execute(ctx, operation{
		name:        name,
		keys:        [][]byte{rebase.ProtocolKey(), []byte(capabilityLockKey)},
		idemKey:     idemKey,
		fingerprint: fingerprint(caller.String(), account.String(), string(capability)),
		run: func(e *rebase.Engine) (*rebase.Receipt, error) {
			return nil, run(e)
		},
	})
	return err
}

// SetPaused pauses or resumes balance-changing operations.
func (l *Ledger) SetPaused(ctx context.Context, caller crypto.Address, paused bool, idemKey string) error {
	_, err := l.execute(ctx, operation{
		name:        "set_paused",
		keys:        [][]byte{rebase.ProtocolKey()},
		idemKey:     idemKey,
		fingerprint: fingerprint(caller.String(), fmt.Sprint(paused)),
		run: func(e *rebase.Engine) (*rebase.Receipt, error) {
			return nil, e.SetPaused(caller, paused)
		},
	})
	return err
}

// view runs a read-only engine call against committed state.
func (l *Ledger) view(ctx context.Context, fn func(*rebase.Engine) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mgr := state.NewManager(l.db)
	defer mgr.Discard()
	return fn(l.engine.Fork(mgr, nil))
}

// Account returns the read model of addr.
func (l *Ledger) Account(ctx context.Context, addr crypto.Address) (*rebase.AccountView, error) {
	var view *rebase.AccountView
	err := l.view(ctx, func(e *rebase.Engine) error {
		var err error
		view, err = e.Account(addr)
		return err
	})
	return view, err
}

// Protocol returns the protocol singleton.
func (l *Ledger) Protocol(ctx context.Context) (*rebase.ProtocolState, error) {
	var protocol *rebase.ProtocolState
	err := l.view(ctx, func(e *rebase.Engine) error {
		var err error
		protocol, err = e.Protocol()
		return err
	})
	return protocol, err
}

// Allowance returns what spender may still move for owner.
func (l *Ledger) Allowance(ctx context.Context, owner, spender crypto.Address) (*big.Int, error) {
	var amount *big.Int
	err := l.view(ctx, func(e *rebase.Engine) error {
		var err error
		amount, err = e.Allowance(owner, spender)
		return err
	})
	return amount, err
}

// Capabilities lists the capabilities account holds.
func (l *Ledger) Capabilities(ctx context.Context, account crypto.Address) ([]rebase.Capability, error) {
	var held []rebase.Capability
	err := l.view(ctx, func(e *rebase.Engine) error {
		for _, capability := range rebase.Capabilities {
			if e.HasCapability(account, capability) {
				held = append(held, capability)
			}
		}
		return nil
	})
	return held, err
}
