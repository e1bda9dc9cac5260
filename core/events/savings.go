package events

import (
	"math/big"
	"strconv"

	"savingsgame/core/types"
	"savingsgame/crypto"
)

const (
	// TypeSavingsJoined is emitted when a player joins (or rejoins) the game.
	TypeSavingsJoined = "savings.joined"
	// TypeSavingsDeposit is emitted for every segment payment, including the
	// segment-zero payment made while joining.
	TypeSavingsDeposit = "savings.deposit"
	// TypeSavingsEarlyWithdrawal is emitted when a player leaves before the
	// game completes.
	TypeSavingsEarlyWithdrawal = "savings.early_withdrawal"
	// TypeSavingsRedeemed is emitted once, when the pool pulls its funds back
	// from the yield source.
	TypeSavingsRedeemed = "savings.redeemed"
	// TypeSavingsWithdrawal is emitted when a player settles after the game.
	TypeSavingsWithdrawal = "savings.withdrawal"
	// TypeSavingsAdminWithdrawal is emitted when the operator collects fees.
	TypeSavingsAdminWithdrawal = "savings.admin_withdrawal"
	// TypeSavingsPaused is emitted when the owner trips the circuit breaker.
	TypeSavingsPaused = "savings.paused"
	// TypeSavingsUnpaused is emitted when the owner lifts the circuit breaker.
	TypeSavingsUnpaused = "savings.unpaused"
)

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func addressString(addr [20]byte) string {
	return crypto.AddressFromArray(addr).String()
}

// SavingsJoined records a successful join.
type SavingsJoined struct {
	Player [20]byte
	Amount *big.Int
	Rejoin bool
}

// EventType implements the Event interface.
func (SavingsJoined) EventType() string { return TypeSavingsJoined }

// Event converts the join into the generic event payload.
func (e SavingsJoined) Event() *types.Event {
	return &types.Event{
		Type: TypeSavingsJoined,
		Attributes: map[string]string{
			types.AttrPlayer: addressString(e.Player),
			"amount":         amountString(e.Amount),
			"rejoin":         strconv.FormatBool(e.Rejoin),
		},
	}
}

// SavingsDeposit records a segment payment.
type SavingsDeposit struct {
	Player    [20]byte
	Segment   uint64
	Amount    *big.Int
	NetAmount *big.Int
}

// EventType implements the Event interface.
func (SavingsDeposit) EventType() string { return TypeSavingsDeposit }

// Event converts the deposit into the generic event payload.
func (e SavingsDeposit) Event() *types.Event {
	return &types.Event{
		Type: TypeSavingsDeposit,
		Attributes: map[string]string{
			types.AttrPlayer: addressString(e.Player),
			"segment":        strconv.FormatUint(e.Segment, 10),
			"amount":         amountString(e.Amount),
			"netAmount":      amountString(e.NetAmount),
		},
	}
}

// SavingsEarlyWithdrawal records an early exit payout. RemainingPrincipal is the
// game's gross principal after the exit.
type SavingsEarlyWithdrawal struct {
	Player             [20]byte
	Payout             *big.Int
	Penalty            *big.Int
	RemainingPrincipal *big.Int
}

// EventType implements the Event interface.
func (SavingsEarlyWithdrawal) EventType() string { return TypeSavingsEarlyWithdrawal }

// Event converts the early exit into the generic event payload.
func (e SavingsEarlyWithdrawal) Event() *types.Event {
	return &types.Event{
		Type: TypeSavingsEarlyWithdrawal,
		Attributes: map[string]string{
			types.AttrPlayer:     addressString(e.Player),
			"payout":             amountString(e.Payout),
			"penalty":            amountString(e.Penalty),
			"remainingPrincipal": amountString(e.RemainingPrincipal),
		},
	}
}

// SavingsRedeemed captures the final economics fixed at redemption.
type SavingsRedeemed struct {
	TotalReceived    *big.Int
	Principal        *big.Int
	Interest         *big.Int
	AdminFee         *big.Int
	RewardBalance    *big.Int
	IncentiveBalance *big.Int
	Winners          uint64
}

// EventType implements the Event interface.
func (SavingsRedeemed) EventType() string { return TypeSavingsRedeemed }

// Event converts the redemption into the generic event payload.
func (e SavingsRedeemed) Event() *types.Event {
	return &types.Event{
		Type: TypeSavingsRedeemed,
		Attributes: map[string]string{
			"totalReceived":    amountString(e.TotalReceived),
			"principal":        amountString(e.Principal),
			"interest":         amountString(e.Interest),
			"adminFee":         amountString(e.AdminFee),
			"rewardBalance":    amountString(e.RewardBalance),
			"incentiveBalance": amountString(e.IncentiveBalance),
			"winners":          strconv.FormatUint(e.Winners, 10),
		},
	}
}

// SavingsWithdrawal records a final player settlement.
type SavingsWithdrawal struct {
	Player          [20]byte
	Payout          *big.Int
	Interest        *big.Int
	RewardAmount    *big.Int
	IncentiveAmount *big.Int
	Winner          bool
}

// EventType implements the Event interface.
func (SavingsWithdrawal) EventType() string { return TypeSavingsWithdrawal }

// Event converts the settlement into the generic event payload.
func (e SavingsWithdrawal) Event() *types.Event {
	return &types.Event{
		Type: TypeSavingsWithdrawal,
		Attributes: map[string]string{
			types.AttrPlayer:  addressString(e.Player),
			"payout":          amountString(e.Payout),
			"interest":        amountString(e.Interest),
			"rewardAmount":    amountString(e.RewardAmount),
			"incentiveAmount": amountString(e.IncentiveAmount),
			"winner":          strconv.FormatBool(e.Winner),
		},
	}
}

// SavingsAdminWithdrawal records the operator's fee collection.
type SavingsAdminWithdrawal struct {
	Admin            [20]byte
	InterestPortion  *big.Int
	TotalAdminFee    *big.Int
	RewardBalance    *big.Int
	IncentiveBalance *big.Int
}

// EventType implements the Event interface.
func (SavingsAdminWithdrawal) EventType() string { return TypeSavingsAdminWithdrawal }

// Event converts the fee collection into the generic event payload.
func (e SavingsAdminWithdrawal) Event() *types.Event {
	return &types.Event{
		Type: TypeSavingsAdminWithdrawal,
		Attributes: map[string]string{
			"admin":            addressString(e.Admin),
			"interestPortion":  amountString(e.InterestPortion),
			"totalAdminFee":    amountString(e.TotalAdminFee),
			"rewardBalance":    amountString(e.RewardBalance),
			"incentiveBalance": amountString(e.IncentiveBalance),
		},
	}
}

// SavingsPauseToggled records a circuit breaker change.
type SavingsPauseToggled struct {
	By     [20]byte
	Paused bool
}

// EventType implements the Event interface.
func (e SavingsPauseToggled) EventType() string {
	if e.Paused {
		return TypeSavingsPaused
	}
	return TypeSavingsUnpaused
}

// Event converts the toggle into the generic event payload.
func (e SavingsPauseToggled) Event() *types.Event {
	return &types.Event{
		Type:       e.EventType(),
		Attributes: map[string]string{"by": addressString(e.By)},
	}
}
