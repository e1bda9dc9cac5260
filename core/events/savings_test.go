package events

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"savingsgame/crypto"
)

func TestSavingsEventsFlatten(t *testing.T) {
	var player [20]byte
	player[19] = 0x01
	addr := crypto.AddressFromArray(player).String()

	joined := SavingsJoined{Player: player, Amount: big.NewInt(10)}.Event()
	require.Equal(t, TypeSavingsJoined, joined.Type)
	require.Equal(t, addr, joined.Attributes["player"])
	require.Equal(t, "10", joined.Attributes["amount"])
	require.Equal(t, "false", joined.Attributes["rejoin"])

	deposit := SavingsDeposit{Player: player, Segment: 2}.Event()
	require.Equal(t, "2", deposit.Attributes["segment"])
	require.Equal(t, "0", deposit.Attributes["amount"])

	redeemed := SavingsRedeemed{TotalReceived: big.NewInt(5), Winners: 3}.Event()
	require.Equal(t, "5", redeemed.Attributes["totalReceived"])
	require.Equal(t, "3", redeemed.Attributes["winners"])

	require.Equal(t, TypeSavingsPaused, SavingsPauseToggled{Paused: true}.EventType())
	require.Equal(t, TypeSavingsUnpaused, SavingsPauseToggled{}.Event().Type)
}

type bareEvent struct{}

func (bareEvent) EventType() string { return "bare" }

func TestBufferRetainsMostRecent(t *testing.T) {
	buf := NewBuffer(2)
	var sink []string
	fan := Fanout{buf, nil, emitterFunc(func(e Event) { sink = append(sink, e.EventType()) })}

	fan.Emit(SavingsJoined{Amount: big.NewInt(1)})
	fan.Emit(bareEvent{})
	fan.Emit(SavingsDeposit{Segment: 1})

	got := buf.Events()
	require.Len(t, got, 2)
	require.Equal(t, "bare", got[0].Type)
	require.Empty(t, got[0].Attributes)
	require.Equal(t, TypeSavingsDeposit, got[1].Type)
	require.Equal(t, uint64(3), buf.Total())
	require.Equal(t, []string{TypeSavingsJoined, "bare", TypeSavingsDeposit}, sink)
}

type emitterFunc func(Event)

func (f emitterFunc) Emit(e Event) { f(e) }
