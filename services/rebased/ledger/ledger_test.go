package ledger

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MRAlirad/ccip-rebase-token/core/events"
	"github.com/MRAlirad/ccip-rebase-token/crypto"
	"github.com/MRAlirad/ccip-rebase-token/native/rebase"
	"github.com/MRAlirad/ccip-rebase-token/observability/metrics"
	"github.com/MRAlirad/ccip-rebase-token/storage"
)

type recordingSink struct {
	mu      sync.Mutex
	events  []events.Event
	batches []int
}

func (s *recordingSink) Emit(ev events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	s.batches = append(s.batches, 1)
}

func (s *recordingSink) EmitBatch(evs []events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evs...)
	s.batches = append(s.batches, len(evs))
}

func (s *recordingSink) batchSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.batches...)
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.EventType())
	}
	return out
}

func addr(b byte) crypto.Address {
	return crypto.MustNewAddress(crypto.HolderPrefix, bytes.Repeat([]byte{b}, crypto.AddressLength))
}

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), rebase.Precision)
}

type fixture struct {
	ledger *Ledger
	db     storage.Database
	sink   *recordingSink
	clock  *atomic.Int64
	owner  crypto.Address
	minter crypto.Address
}

func newFixture(t *testing.T, db storage.Database) *fixture {
	t.Helper()
	f := &fixture{
		db:     db,
		sink:   &recordingSink{},
		clock:  &atomic.Int64{},
		owner:  addr(0xA0),
		minter: addr(0xB0),
	}
	f.clock.Store(1_700_000_000)
	l, err := New(db,
		WithSink(f.sink),
		WithMetrics(metrics.Ledger()),
		WithClock(func() int64 { return f.clock.Load() }),
	)
	require.NoError(t, err)
	f.ledger = l
	return f
}

func (f *fixture) genesis(t *testing.T) {
	t.Helper()
	require.NoError(t, f.ledger.Genesis(context.Background(), rebase.Genesis{
		Owner:       f.owner,
		GlobalRate:  rebase.DefaultGlobalRate,
		MintBurners: []crypto.Address{f.minter},
	}))
}

func TestMintTransferPublishesAfterCommit(t *testing.T) {
	f := newFixture(t, storage.NewMemDB())
	f.genesis(t)
	ctx := context.Background()
	alice, bob := addr(0x01), addr(0x02)

	_, err := f.ledger.Mint(ctx, f.minter, alice, tokens(1_000_000), "")
	require.NoError(t, err)
	f.clock.Add(1000)

	receipt, err := f.ledger.Transfer(ctx, alice, bob, tokens(100), "")
	require.NoError(t, err)
	require.Equal(t, tokens(100), receipt.Amount)
	require.False(t, receipt.Replayed)

	view, err := f.ledger.Account(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, tokens(999_950).String(), view.Principal.String())

	bobView, err := f.ledger.Account(ctx, bob)
	require.NoError(t, err)
	require.Equal(t, rebase.DefaultGlobalRate.String(), bobView.Rate.String())

	require.Equal(t, []string{
		events.TypeMint,
		events.TypePrincipalSupply,
		events.TypeInterestRealized,
		events.TypeTransfer,
		events.TypePrincipalSupply,
	}, f.sink.types())
	require.Equal(t, []int{2, 3}, f.sink.batchSizes())
}

func TestRejectedOperationPublishesAndPersistsNothing(t *testing.T) {
	f := newFixture(t, storage.NewMemDB())
	f.genesis(t)
	ctx := context.Background()
	alice := addr(0x01)

	_, err := f.ledger.Mint(ctx, f.minter, alice, tokens(1), "")
	require.NoError(t, err)
	published := len(f.sink.types())
	f.clock.Add(5000)

	_, err = f.ledger.Burn(ctx, f.minter, alice, tokens(2), "")
	require.ErrorIs(t, err, rebase.ErrInsufficientPrincipal)
	require.Len(t, f.sink.types(), published)

	view, err := f.ledger.Account(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, tokens(1).String(), view.Principal.String())
	require.Equal(t, uint64(1_700_000_000), view.LastAccrual)
}

func TestIdempotentReplay(t *testing.T) {
	f := newFixture(t, storage.NewMemDB())
	f.genesis(t)
	ctx := context.Background()
	alice := addr(0x01)

	first, err := f.ledger.Mint(ctx, f.minter, alice, tokens(5), "deposit-42")
	require.NoError(t, err)
	require.False(t, first.Replayed)

	f.clock.Add(10)
	second, err := f.ledger.Mint(ctx, f.minter, alice, tokens(5), "deposit-42")
	require.NoError(t, err)
	require.True(t, second.Replayed)
	require.Equal(t, first.Amount.String(), second.Amount.String())
	require.Equal(t, first.Timestamp, second.Timestamp)

	view, err := f.ledger.Account(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, tokens(5).String(), view.Principal.String())

	_, err = f.ledger.Mint(ctx, f.minter, alice, tokens(6), "deposit-42")
	require.ErrorIs(t, err, ErrIdempotencyConflict)
	_, err = f.ledger.Burn(ctx, f.minter, alice, tokens(5), "deposit-42")
	require.ErrorIs(t, err, ErrIdempotencyConflict)

	long := string(bytes.Repeat([]byte("k"), maxIdempotencyKeyLength+1))
	_, err = f.ledger.Mint(ctx, f.minter, alice, tokens(1), long)
	require.ErrorIs(t, err, ErrInvalidIdempotencyKey)
}

func TestIdempotentReplayReturnsAccruals(t *testing.T) {
	f := newFixture(t, storage.NewMemDB())
	f.genesis(t)
	ctx := context.Background()
	alice, bob := addr(0x01), addr(0x02)

	_, err := f.ledger.Mint(ctx, f.minter, alice, tokens(1_000_000), "")
	require.NoError(t, err)
	f.clock.Add(1000)

	first, err := f.ledger.Transfer(ctx, alice, bob, tokens(100), "pay-7")
	require.NoError(t, err)
	require.Len(t, first.Accruals, 1)

	f.clock.Add(1000)
	replay, err := f.ledger.Transfer(ctx, alice, bob, tokens(100), "pay-7")
	require.NoError(t, err)
	require.True(t, replay.Replayed)
	require.Len(t, replay.Accruals, 1)
	require.True(t, replay.Accruals[0].Account.Equal(alice))
	require.Equal(t, first.Accruals[0].Interest.String(), replay.Accruals[0].Interest.String())
	require.Equal(t, tokens(50).String(), replay.Accruals[0].Interest.String())
}

func TestConcurrentTransfersConserveSupply(t *testing.T) {
	f := newFixture(t, storage.NewMemDB())
	f.genesis(t)
	ctx := context.Background()
	holders := []crypto.Address{addr(0x01), addr(0x02), addr(0x03), addr(0x04)}
	for _, h := range holders {
		_, err := f.ledger.Mint(ctx, f.minter, h, tokens(1000), "")
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from := holders[i%len(holders)]
			to := holders[(i+1)%len(holders)]
			if i%8 == 0 {
				f.clock.Add(7)
			}
			if _, err := f.ledger.Transfer(ctx, from, to, tokens(3), ""); err != nil {
				failures.Add(1)
			}
		}(i)
	}
	wg.Wait()
	require.Zero(t, failures.Load())

	sum := new(big.Int)
	for _, h := range holders {
		view, err := f.ledger.Account(ctx, h)
		require.NoError(t, err)
		sum.Add(sum, view.Principal)
	}
	protocol, err := f.ledger.Protocol(ctx)
	require.NoError(t, err)
	require.Equal(t, sum.String(), protocol.PrincipalSupply.String())
	require.Zero(t, f.ledger.locks.size())
}

func TestLedgerStatePersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger")
	db, err := storage.NewLevelDB(path)
	require.NoError(t, err)
	f := newFixture(t, db)
	f.genesis(t)
	ctx := context.Background()
	alice, spender := addr(0x01), addr(0x05)
	_, err = f.ledger.Mint(ctx, f.minter, alice, tokens(7), "")
	require.NoError(t, err)
	require.NoError(t, f.ledger.Approve(ctx, alice, spender, tokens(2), ""))
	require.NoError(t, db.Close())

	reopened, err := storage.NewLevelDB(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	restarted := newFixture(t, reopened)

	view, err := restarted.ledger.Account(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, tokens(7).String(), view.Principal.String())
	allowance, err := restarted.ledger.Allowance(ctx, alice, spender)
	require.NoError(t, err)
	require.Equal(t, tokens(2).String(), allowance.String())

	err = restarted.ledger.Genesis(ctx, rebase.Genesis{Owner: restarted.owner})
	require.ErrorIs(t, err, rebase.ErrAlreadyInitialised)
}

func TestCapabilitiesAndPause(t *testing.T) {
	f := newFixture(t, storage.NewMemDB())
	f.genesis(t)
	ctx := context.Background()
	bridge := addr(0x0B)

	held, err := f.ledger.Capabilities(ctx, f.owner)
	require.NoError(t, err)
	require.ElementsMatch(t, []rebase.Capability{rebase.CapabilityOwner, rebase.CapabilityRateAdmin}, held)

	require.NoError(t, f.ledger.Grant(ctx, f.owner, bridge, rebase.CapabilityMintBurn, ""))
	held, err = f.ledger.Capabilities(ctx, bridge)
	require.NoError(t, err)
	require.Equal(t, []rebase.Capability{rebase.CapabilityMintBurn}, held)

	require.NoError(t, f.ledger.SetPaused(ctx, f.owner, true, ""))
	_, err = f.ledger.Mint(ctx, bridge, bridge, tokens(1), "")
	require.True(t, errors.Is(err, rebase.ErrPaused))

	require.NoError(t, f.ledger.SetPaused(ctx, f.owner, false, ""))
	_, err = f.ledger.Mint(ctx, bridge, bridge, tokens(1), "")
	require.NoError(t, err)

	require.NoError(t, f.ledger.SetGlobalRate(ctx, f.owner, big.NewInt(1), ""))
	err = f.ledger.SetGlobalRate(ctx, f.owner, big.NewInt(2), "")
	require.ErrorIs(t, err, rebase.ErrRateDirectionViolation)
}

func TestCancelledContextSkipsOperation(t *testing.T) {
	f := newFixture(t, storage.NewMemDB())
	f.genesis(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.ledger.Mint(ctx, f.minter, addr(0x01), tokens(1), "")
	require.ErrorIs(t, err, context.Canceled)
}

func TestKeyedLockerReleasesEntries(t *testing.T) {
	locks := newKeyedLocker()
	unlock := locks.lock("b", "a", "b")
	require.Equal(t, 2, locks.size())
	unlock()
	require.Zero(t, locks.size())
}
