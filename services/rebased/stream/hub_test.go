package stream

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MRAlirad/ccip-rebase-token/core/events"
	"github.com/MRAlirad/ccip-rebase-token/crypto"
)

func raw(b byte) [20]byte {
	var out [20]byte
	copy(out[:], bytes.Repeat([]byte{b}, 20))
	return out
}

func TestHubFiltersByAccount(t *testing.T) {
	hub := NewHub(4, nil)
	alice, bob := raw(0x01), raw(0x02)
	aliceCh, cancelAlice := hub.Subscribe(crypto.AddressFromArray(alice).String())
	defer cancelAlice()
	allCh, cancelAll := hub.Subscribe("")
	defer cancelAll()

	hub.Emit(events.Mint{To: bob, Amount: big.NewInt(1), Rate: big.NewInt(1), Timestamp: 1})
	hub.Emit(events.Transfer{From: bob, To: alice, Amount: big.NewInt(1), Timestamp: 2})

	got := <-aliceCh
	require.Equal(t, events.TypeTransfer, got.Type)
	require.Len(t, allCh, 2)
	require.Len(t, aliceCh, 0)
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	drops := 0
	hub := NewHub(1, func() { drops++ })
	ch, cancel := hub.Subscribe("")
	hub.Emit(events.PauseChanged{Paused: true})
	hub.Emit(events.PauseChanged{Paused: false})
	require.Equal(t, 1, drops)
	require.Len(t, ch, 1)

	cancel()
	cancel()
	require.Zero(t, hub.Subscribers())
	_, open := <-ch
	require.True(t, open)
	_, open = <-ch
	require.False(t, open)
}
