package journal

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/MRAlirad/ccip-rebase-token/core/events"
	"github.com/MRAlirad/ccip-rebase-token/crypto"
)

func setupJournal(t *testing.T) *Journal {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := Open("sqlite", dsn)
	require.NoError(t, err)
	j, err := New(db, nil)
	require.NoError(t, err)
	return j
}

func raw(b byte) [20]byte {
	var out [20]byte
	copy(out[:], bytes.Repeat([]byte{b}, 20))
	return out
}

func TestAppendAndFilterByAccount(t *testing.T) {
	j := setupJournal(t)
	ctx := context.Background()
	alice, bob, minter := raw(0x01), raw(0x02), raw(0x0B)

	require.NoError(t, j.Append(ctx,
		events.Mint{To: alice, Amount: big.NewInt(100), Rate: big.NewInt(5), Caller: minter, Timestamp: 10},
		events.Transfer{From: alice, To: bob, Amount: big.NewInt(40), Timestamp: 20},
		events.PrincipalSupply{Total: big.NewInt(100), Delta: big.NewInt(100), Reason: events.SupplyReasonMint, Timestamp: 10},
	))

	all, err := j.List(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, events.TypeMint, all[0].Type)
	require.Less(t, all[0].Seq, all[1].Seq)

	bobAddr := crypto.AddressFromArray(bob).String()
	forBob, err := j.List(ctx, Query{Account: bobAddr})
	require.NoError(t, err)
	require.Len(t, forBob, 1)
	require.Equal(t, events.TypeTransfer, forBob[0].Type)
	require.Equal(t, "40", forBob[0].Attributes["amount"])

	forAlice, err := j.List(ctx, Query{Account: crypto.AddressFromArray(alice).String(), Limit: 1})
	require.NoError(t, err)
	require.Len(t, forAlice, 1)

	after, err := j.List(ctx, Query{AfterSeq: all[1].Seq})
	require.NoError(t, err)
	require.Len(t, after, 1)
	require.Equal(t, events.TypePrincipalSupply, after[0].Type)

	byType, err := j.List(ctx, Query{Type: events.TypeTransfer})
	require.NoError(t, err)
	require.Len(t, byType, 1)
}

func TestEmitAppendsThroughEmitterInterface(t *testing.T) {
	j := setupJournal(t)
	var sink events.Emitter = j
	sink.Emit(events.PauseChanged{Paused: true, Caller: raw(0xA0), Timestamp: 5})

	entries, err := j.List(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "true", entries[0].Attributes["paused"])
	_, err = uuid.Parse(entries[0].ID)
	require.NoError(t, err)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "x")
	require.Error(t, err)
	_, err = Open("postgres", "")
	require.Error(t, err)
}

func TestEmitBatchStoresOperationTogether(t *testing.T) {
	j := setupJournal(t)
	var sink events.Emitter = events.NewFanout(j)
	events.EmitAll(sink, []events.Event{
		events.Mint{To: raw(0x01), Amount: big.NewInt(7), Rate: big.NewInt(1), Caller: raw(0x0B), Timestamp: 3},
		events.PrincipalSupply{Total: big.NewInt(7), Delta: big.NewInt(7), Reason: events.SupplyReasonMint, Timestamp: 3},
	})

	entries, err := j.List(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, events.TypeMint, entries[0].Type)
	require.Equal(t, events.TypePrincipalSupply, entries[1].Type)
}
