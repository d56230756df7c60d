package rebase

import (
	"fmt"
	"math/big"
	"time"

	"github.com/MRAlirad/ccip-rebase-token/core/events"
	"github.com/MRAlirad/ccip-rebase-token/crypto"
	nativecommon "github.com/MRAlirad/ccip-rebase-token/native/common"
)

const moduleName = "rebase"

// engineState abstracts the subset of state manager functionality required by
// the ledger engine.
type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	SetRole(role string, addr []byte) error
	RemoveRole(role string, addr []byte) error
	RoleMembers(role string) ([][]byte, error)
	HasRole(role string, addr []byte) bool
}

// Engine implements the rebasing ledger: every balance-affecting operation
// realizes accrued interest for the accounts it touches before applying its
// own principal change.
//
// An operation loads the records it needs, mutates copies in memory and only
// writes once every check passed, so a failed call leaves state untouched.
// Events are emitted after the writes.
type Engine struct {
	state      engineState
	emitter    events.Emitter
	authorizer Authorizer
	pauses     nativecommon.PauseView
	nowFn      func() int64
}

// NewEngine constructs an engine. State must be wired with SetState before
// use.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures where events are published.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetAuthorizer injects the capability predicate. Nil restores the default,
// which reads capability sets from state.
func (e *Engine) SetAuthorizer(auth Authorizer) {
	if e == nil {
		return
	}
	e.authorizer = auth
}

// SetPauses installs an operator pause view consulted in addition to the
// ledger's own pause flag.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetNowFunc overrides the wall clock. Primarily leveraged in tests to
// provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if e == nil {
		return
	}
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Fork returns a copy of the engine bound to another state and emitter. Hosts
// use it to run each call against its own staged transaction.
func (e *Engine) Fork(state engineState, emitter events.Emitter) *Engine {
	clone := *e
	clone.state = state
	clone.SetEmitter(emitter)
	return &clone
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	ts := e.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	return nil
}

func (e *Engine) can(caller crypto.Address, capability Capability) bool {
	if e.authorizer != nil {
		return e.authorizer.Can(caller, capability)
	}
	return stateAuthorizer{state: e.state}.Can(caller, capability)
}

func (e *Engine) require(caller crypto.Address, capability Capability) error {
	if !e.can(caller, capability) {
		return fmt.Errorf("%w: %s requires %s", ErrUnauthorized, caller, capability)
	}
	return nil
}

func (e *Engine) guard(protocol *ProtocolState) error {
	return nativecommon.Guard(moduleName, protocol, e.pauses)
}

func (e *Engine) emit(ev events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(ev)
	}
}

// --- Account Store ---

func (e *Engine) loadProtocol() (*ProtocolState, error) {
	var protocol ProtocolState
	ok, err := e.state.KVGet(protocolKey, &protocol)
	if err != nil {
		return nil, fmt.Errorf("rebase: load protocol: %w", err)
	}
	if !ok {
		return nil, ErrNotInitialised
	}
	protocol.ensureDefaults()
	return &protocol, nil
}

func (e *Engine) storeProtocol(protocol *ProtocolState) error {
	if err := e.state.KVPut(protocolKey, protocol); err != nil {
		return fmt.Errorf("rebase: store protocol: %w", err)
	}
	return nil
}

// loadAccount returns the stored record or a zero record for unseen holders.
func (e *Engine) loadAccount(addr [20]byte) (*Account, error) {
	var acc Account
	ok, err := e.state.KVGet(accountKey(addr), &acc)
	if err != nil {
		return nil, fmt.Errorf("rebase: load account: %w", err)
	}
	if !ok {
		acc = Account{}
	}
	acc.Address = addr
	acc.ensureDefaults()
	return &acc, nil
}

func (e *Engine) storeAccount(acc *Account) error {
	if _, err := toUint256(acc.Principal); err != nil {
		return ErrOverflow
	}
	if err := e.state.KVPut(accountKey(acc.Address), acc); err != nil {
		return fmt.Errorf("rebase: store account: %w", err)
	}
	return nil
}

func holder(addr crypto.Address) ([20]byte, error) {
	if len(addr.Bytes()) != crypto.AddressLength || addr.IsZero() {
		return [20]byte{}, ErrInvalidAddress
	}
	return addr.Array(), nil
}

// --- Genesis ---

// InitGenesis stores the protocol singleton and grants the owner its
// capabilities. It fails if the ledger was already initialised.
func (e *Engine) InitGenesis(g Genesis) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := holder(g.Owner); err != nil {
		return fmt.Errorf("rebase: genesis owner: %w", err)
	}
	ok, err := e.state.KVGet(protocolKey, nil)
	if err != nil {
		return err
	}
	if ok {
		return ErrAlreadyInitialised
	}
	rate := g.GlobalRate
	if rate == nil {
		rate = DefaultGlobalRate
	}
	if _, err := toUint256(rate); err != nil {
		return ErrInvalidRate
	}
	if g.Direction != DirectionDecrease && g.Direction != DirectionIncrease {
		return fmt.Errorf("rebase: genesis direction %s", g.Direction)
	}
	protocol := &ProtocolState{
		GlobalRate:      new(big.Int).Set(rate),
		Direction:       g.Direction,
		PrincipalSupply: big.NewInt(0),
	}
	if err := e.storeProtocol(protocol); err != nil {
		return err
	}
	for _, capability := range []Capability{CapabilityOwner, CapabilityRateAdmin} {
		if err := e.state.SetRole(capability.role(), g.Owner.Bytes()); err != nil {
			return err
		}
	}
	for _, minter := range g.MintBurners {
		if _, err := holder(minter); err != nil {
			return fmt.Errorf("rebase: genesis mint_burn: %w", err)
		}
		if err := e.state.SetRole(CapabilityMintBurn.role(), minter.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// --- Operation Surface ---

// SetGlobalRate moves the protocol-wide rate. The move must respect the
// direction fixed at genesis. No account is touched.
func (e *Engine) SetGlobalRate(caller crypto.Address, rate *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.require(caller, CapabilityRateAdmin); err != nil {
		return err
	}
	if _, err := toUint256(rate); err != nil {
		return ErrInvalidRate
	}
	protocol, err := e.loadProtocol()
	if err != nil {
		return err
	}
	if !protocol.Direction.Allows(protocol.GlobalRate, rate) {
		return &RateDirectionError{
			Direction: protocol.Direction,
			Current:   new(big.Int).Set(protocol.GlobalRate),
			Attempted: new(big.Int).Set(rate),
		}
	}
	previous := protocol.GlobalRate
	protocol.GlobalRate = new(big.Int).Set(rate)
	if err := e.storeProtocol(protocol); err != nil {
		return err
	}
	e.emit(events.RateChanged{
		Previous:  previous,
		Current:   new(big.Int).Set(rate),
		Caller:    caller.Array(),
		Timestamp: e.now(),
	})
	return nil
}

// Mint realizes the recipient, stamps the global rate on a recipient that
// held no principal, and adds amount to its principal.
func (e *Engine) Mint(caller, to crypto.Address, amount *big.Int) (*Receipt, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.require(caller, CapabilityMintBurn); err != nil {
		return nil, err
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if IsMax(amount) {
		return nil, fmt.Errorf("%w: sentinel is not a mint amount", ErrInvalidAmount)
	}
	toAddr, err := holder(to)
	if err != nil {
		return nil, err
	}
	protocol, err := e.loadProtocol()
	if err != nil {
		return nil, err
	}
	if err := e.guard(protocol); err != nil {
		return nil, err
	}
	acc, err := e.loadAccount(toAddr)
	if err != nil {
		return nil, err
	}

	now := e.now()
	wasActive := acc.Active()
	interest := Realize(acc, now)
	if !wasActive {
		acc.Rate = new(big.Int).Set(protocol.GlobalRate)
		acc.LastAccrual = now
	}
	if acc.Principal, err = checkedAdd(acc.Principal, amount); err != nil {
		return nil, err
	}
	supplyDelta := new(big.Int).Add(interest, amount)
	if protocol.PrincipalSupply, err = checkedAdd(protocol.PrincipalSupply, supplyDelta); err != nil {
		return nil, err
	}

	if err := e.storeAccount(acc); err != nil {
		return nil, err
	}
	if err := e.storeProtocol(protocol); err != nil {
		return nil, err
	}

	receipt := &Receipt{Amount: new(big.Int).Set(amount), Timestamp: now}
	e.emitRealized(receipt, acc, interest, now)
	e.emit(events.Mint{
		To:        toAddr,
		Amount:    new(big.Int).Set(amount),
		Rate:      new(big.Int).Set(acc.Rate),
		Caller:    caller.Array(),
		Timestamp: now,
	})
	e.emitSupply(protocol, supplyDelta, events.SupplyReasonMint, now)
	return receipt, nil
}

// Burn realizes the holder and removes amount from its principal. MaxAmount
// burns the whole effective balance.
func (e *Engine) Burn(caller, from crypto.Address, amount *big.Int) (*Receipt, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.require(caller, CapabilityMintBurn); err != nil {
		return nil, err
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	fromAddr, err := holder(from)
	if err != nil {
		return nil, err
	}
	protocol, err := e.loadProtocol()
	if err != nil {
		return nil, err
	}
	if err := e.guard(protocol); err != nil {
		return nil, err
	}
	acc, err := e.loadAccount(fromAddr)
	if err != nil {
		return nil, err
	}

	now := e.now()
	interest := Realize(acc, now)
	resolved := new(big.Int).Set(amount)
	if IsMax(amount) {
		resolved = new(big.Int).Set(acc.Principal)
	}
	if resolved.Sign() == 0 {
		return nil, fmt.Errorf("%w: nothing to burn", ErrInvalidAmount)
	}
	if resolved.Cmp(acc.Principal) > 0 {
		return nil, insufficientPrincipal(acc.Principal, resolved)
	}
	acc.Principal = new(big.Int).Sub(acc.Principal, resolved)
	supplyDelta := new(big.Int).Sub(interest, resolved)
	protocol.PrincipalSupply = new(big.Int).Add(protocol.PrincipalSupply, supplyDelta)
	if protocol.PrincipalSupply.Sign() < 0 {
		return nil, fmt.Errorf("rebase: principal supply underflow")
	}

	if err := e.storeAccount(acc); err != nil {
		return nil, err
	}
	if err := e.storeProtocol(protocol); err != nil {
		return nil, err
	}

	receipt := &Receipt{Amount: resolved, Timestamp: now}
	e.emitRealized(receipt, acc, interest, now)
	e.emit(events.Burn{
		From:      fromAddr,
		Amount:    new(big.Int).Set(resolved),
		Caller:    caller.Array(),
		Timestamp: now,
	})
	e.emitSupply(protocol, supplyDelta, events.SupplyReasonBurn, now)
	return receipt, nil
}

// Transfer moves amount of the caller's balance to to.
func (e *Engine) Transfer(caller, to crypto.Address, amount *big.Int) (*Receipt, error) {
	return e.transfer(crypto.Address{}, caller, to, amount)
}

// TransferFrom moves amount from from to to on behalf of spender, consuming
// the allowance from granted to spender.
func (e *Engine) TransferFrom(spender, from, to crypto.Address, amount *big.Int) (*Receipt, error) {
	if _, err := holder(spender); err != nil {
		return nil, err
	}
	return e.transfer(spender, from, to, amount)
}

func (e *Engine) transfer(spender, from, to crypto.Address, amount *big.Int) (*Receipt, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	fromAddr, err := holder(from)
	if err != nil {
		return nil, err
	}
	toAddr, err := holder(to)
	if err != nil {
		return nil, err
	}
	protocol, err := e.loadProtocol()
	if err != nil {
		return nil, err
	}
	if err := e.guard(protocol); err != nil {
		return nil, err
	}

	now := e.now()
	sender, err := e.loadAccount(fromAddr)
	if err != nil {
		return nil, err
	}
	recipient := sender
	if toAddr != fromAddr {
		if recipient, err = e.loadAccount(toAddr); err != nil {
			return nil, err
		}
	}
	// A recipient is new when it held no principal before this call.
	recipientWasActive := recipient.Active()

	senderInterest := Realize(sender, now)
	recipientInterest := big.NewInt(0)
	if recipient != sender {
		recipientInterest = Realize(recipient, now)
	}

	resolved := new(big.Int).Set(amount)
	if IsMax(amount) {
		resolved = new(big.Int).Set(sender.Principal)
	}
	if resolved.Sign() == 0 {
		return nil, fmt.Errorf("%w: nothing to transfer", ErrInvalidAmount)
	}
	if resolved.Cmp(sender.Principal) > 0 {
		return nil, insufficientPrincipal(sender.Principal, resolved)
	}

	delegated := len(spender.Bytes()) > 0
	// A delegated self transfer is authorised by the allowance but moves
	// nothing, so it leaves the allowance intact.
	consume := delegated && toAddr != fromAddr
	var allowance *big.Int
	if delegated {
		if allowance, err = e.loadAllowance(fromAddr, spender.Array()); err != nil {
			return nil, err
		}
		if allowance.Cmp(resolved) < 0 {
			return nil, insufficientAllowance(allowance, resolved)
		}
		if consume && !IsMax(allowance) {
			allowance = new(big.Int).Sub(allowance, resolved)
		}
	}

	if recipient != sender {
		if !recipientWasActive {
			recipient.Rate = new(big.Int).Set(sender.Rate)
			recipient.LastAccrual = now
		}
		sender.Principal = new(big.Int).Sub(sender.Principal, resolved)
		if recipient.Principal, err = checkedAdd(recipient.Principal, resolved); err != nil {
			return nil, err
		}
	}

	supplyDelta := new(big.Int).Add(senderInterest, recipientInterest)
	if supplyDelta.Sign() > 0 {
		if protocol.PrincipalSupply, err = checkedAdd(protocol.PrincipalSupply, supplyDelta); err != nil {
			return nil, err
		}
	}

	if err := e.storeAccount(sender); err != nil {
		return nil, err
	}
	if recipient != sender {
		if err := e.storeAccount(recipient); err != nil {
			return nil, err
		}
	}
	if supplyDelta.Sign() > 0 {
		if err := e.storeProtocol(protocol); err != nil {
			return nil, err
		}
	}
	if consume {
		if err := e.storeAllowance(fromAddr, spender.Array(), allowance); err != nil {
			return nil, err
		}
	}

	receipt := &Receipt{Amount: resolved, Timestamp: now}
	e.emitRealized(receipt, sender, senderInterest, now)
	if recipient != sender {
		e.emitRealized(receipt, recipient, recipientInterest, now)
	}
	transferEvent := events.Transfer{
		From:      fromAddr,
		To:        toAddr,
		Amount:    new(big.Int).Set(resolved),
		Timestamp: now,
	}
	if delegated {
		transferEvent.Spender = spender.Array()
	}
	e.emit(transferEvent)
	if supplyDelta.Sign() > 0 {
		e.emitSupply(protocol, supplyDelta, events.SupplyReasonInterest, now)
	}
	return receipt, nil
}

// Realize crystallizes the interest owed to addr without any other effect.
// Anyone may call it; it never changes the holder's effective balance.
func (e *Engine) Realize(addr crypto.Address) (*Receipt, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	target, err := holder(addr)
	if err != nil {
		return nil, err
	}
	protocol, err := e.loadProtocol()
	if err != nil {
		return nil, err
	}
	acc, err := e.loadAccount(target)
	if err != nil {
		return nil, err
	}
	now := e.now()
	interest := Realize(acc, now)
	if protocol.PrincipalSupply, err = checkedAdd(protocol.PrincipalSupply, interest); err != nil {
		return nil, err
	}
	if acc.Active() || acc.Rate.Sign() > 0 {
		if err := e.storeAccount(acc); err != nil {
			return nil, err
		}
	}
	receipt := &Receipt{Amount: new(big.Int).Set(interest), Timestamp: now}
	if interest.Sign() > 0 {
		if err := e.storeProtocol(protocol); err != nil {
			return nil, err
		}
	}
	e.emitRealized(receipt, acc, interest, now)
	if interest.Sign() > 0 {
		e.emitSupply(protocol, interest, events.SupplyReasonInterest, now)
	}
	return receipt, nil
}

func (e *Engine) emitRealized(receipt *Receipt, acc *Account, interest *big.Int, now uint64) {
	if interest == nil || interest.Sign() == 0 {
		return
	}
	receipt.Accruals = append(receipt.Accruals, Accrual{
		Account:  crypto.AddressFromArray(acc.Address),
		Interest: new(big.Int).Set(interest),
	})
	e.emit(events.InterestRealized{
		Account:   acc.Address,
		Interest:  new(big.Int).Set(interest),
		Principal: new(big.Int).Set(acc.Principal),
		Timestamp: now,
	})
}

func (e *Engine) emitSupply(protocol *ProtocolState, delta *big.Int, reason string, now uint64) {
	if delta == nil || delta.Sign() == 0 {
		return
	}
	e.emit(events.PrincipalSupply{
		Total:     new(big.Int).Set(protocol.PrincipalSupply),
		Delta:     new(big.Int).Set(delta),
		Reason:    reason,
		Timestamp: now,
	})
}
