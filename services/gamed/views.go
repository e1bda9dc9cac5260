package gamed

import (
	"math/big"
	"time"

	"savingsgame/core/types"
	"savingsgame/crypto"
	"savingsgame/native/savings"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatAmounts(col []*big.Int) []string {
	out := make([]string, len(col))
	for i, v := range col {
		out[i] = formatAmount(v)
	}
	return out
}

type paramsView struct {
	Token                    string `json:"token"`
	IncentiveToken           string `json:"incentive_token,omitempty"`
	Owner                    string `json:"owner"`
	DepositCount             uint64 `json:"deposit_count"`
	SegmentLength            uint64 `json:"segment_length_seconds"`
	WaitingRoundLength       uint64 `json:"waiting_round_seconds"`
	SegmentPayment           string `json:"segment_payment"`
	FlexibleSegmentPayment   bool   `json:"flexible_segment_payment"`
	MaxFlexiblePayment       string `json:"max_flexible_payment,omitempty"`
	EarlyExitFeePercent      uint64 `json:"early_exit_fee_percent"`
	AdminFeePercent          uint64 `json:"admin_fee_percent"`
	MaxPlayers               uint64 `json:"max_players"`
	DepositRoundSharePercent string `json:"deposit_round_share_percent"`
	Whitelisted              bool   `json:"whitelisted"`
	WhitelistRoot            string `json:"whitelist_root,omitempty"`
}

type gameView struct {
	Params         paramsView `json:"params"`
	StartTime      uint64     `json:"start_time"`
	CurrentSegment uint64     `json:"current_segment"`
	CompletesAt    uint64     `json:"completes_at"`
	Completed      bool       `json:"completed"`
	Redeemed       bool       `json:"redeemed"`
	Paused         bool       `json:"paused"`
	AdminWithdrawn bool       `json:"admin_withdrawn"`
	ActivePlayers  uint64     `json:"active_players"`
	WinnerCount    uint64     `json:"winner_count"`

	TotalGamePrincipal    string `json:"total_game_principal"`
	NetTotalGamePrincipal string `json:"net_total_game_principal"`
	TotalEarlyExitFees    string `json:"total_early_exit_fees"`
	PoolBalance           string `json:"pool_balance"`
	ManagedAmount         string `json:"managed_amount"`
	PendingRewards        string `json:"pending_rewards"`

	RedeemedAmount       string `json:"redeemed_amount"`
	PrincipalPool        string `json:"principal_pool"`
	GrossInterest        string `json:"gross_interest"`
	TotalGameInterest    string `json:"total_game_interest"`
	AdminFeeAmount       string `json:"admin_fee_amount"`
	RewardAmount         string `json:"reward_amount"`
	AdminRewardAmount    string `json:"admin_reward_amount"`
	TotalIncentiveAmount string `json:"total_incentive_amount"`

	CumulativePlayerIndexSum []string `json:"cumulative_player_index_sum"`
	SegmentWinnerDeposits    []string `json:"segment_winner_deposits"`
}

func newGameView(snap *Snapshot) gameView {
	p := snap.Params
	g := snap.Game
	view := gameView{
		Params: paramsView{
			Token:                    p.Token,
			IncentiveToken:           p.IncentiveToken,
			Owner:                    p.Owner,
			DepositCount:             p.DepositCount,
			SegmentLength:            p.SegmentLength,
			WaitingRoundLength:       p.WaitingRoundLength,
			SegmentPayment:           formatAmount(p.SegmentPayment),
			FlexibleSegmentPayment:   p.FlexibleSegmentPayment,
			EarlyExitFeePercent:      p.EarlyExitFeePercent,
			AdminFeePercent:          p.AdminFeePercent,
			MaxPlayers:               p.MaxPlayers,
			DepositRoundSharePercent: formatAmount(p.DepositRoundSharePercent),
			Whitelisted:              p.WhitelistEnabled(),
		},
		StartTime:      g.StartTime,
		CurrentSegment: snap.Segment,
		CompletesAt:    snap.Clock.CompletesAt(),
		Completed:      snap.Completed,
		Redeemed:       g.Redeemed,
		Paused:         g.Paused,
		AdminWithdrawn: g.AdminWithdrawn,
		ActivePlayers:  g.ActivePlayers,
		WinnerCount:    g.WinnerCount,

		TotalGamePrincipal:    formatAmount(g.TotalGamePrincipal),
		NetTotalGamePrincipal: formatAmount(g.NetTotalGamePrincipal),
		TotalEarlyExitFees:    formatAmount(g.TotalEarlyExitFees),
		PoolBalance:           formatAmount(snap.Pool),
		ManagedAmount:         formatAmount(snap.Managed),
		PendingRewards:        formatAmount(snap.PendingRewards),

		RedeemedAmount:       formatAmount(g.RedeemedAmount),
		PrincipalPool:        formatAmount(g.PrincipalPool),
		GrossInterest:        formatAmount(g.GrossInterest),
		TotalGameInterest:    formatAmount(g.TotalGameInterest),
		AdminFeeAmount:       formatAmount(g.AdminFeeAmount),
		RewardAmount:         formatAmount(g.RewardAmount),
		AdminRewardAmount:    formatAmount(g.AdminRewardAmount),
		TotalIncentiveAmount: formatAmount(g.TotalIncentiveAmount),

		CumulativePlayerIndexSum: formatAmounts(g.CumulativePlayerIndexSum),
		SegmentWinnerDeposits:    formatAmounts(g.SegmentWinnerDeposits),
	}
	if p.FlexibleSegmentPayment {
		view.Params.MaxFlexiblePayment = formatAmount(p.MaxFlexiblePayment)
	}
	if p.WhitelistEnabled() {
		view.Params.WhitelistRoot = p.WhitelistRoot.Hex()
	}
	return view
}

type playerView struct {
	Address               string   `json:"address"`
	Status                string   `json:"status"`
	Balance               string   `json:"balance"`
	AmountPaid            string   `json:"amount_paid"`
	NetAmountPaid         string   `json:"net_amount_paid"`
	SegmentPayment        string   `json:"segment_payment"`
	MostRecentSegmentPaid uint64   `json:"most_recent_segment_paid"`
	PaidSegments          uint64   `json:"paid_segments"`
	Winner                bool     `json:"winner"`
	Withdrawn             bool     `json:"withdrawn"`
	CanRejoin             bool     `json:"can_rejoin"`
	Index                 []string `json:"index"`
	Deposits              []string `json:"deposits"`
}

func newPlayerView(v *PlayerView) playerView {
	p := v.Player
	return playerView{
		Address:               crypto.AddressFromArray(p.Address).String(),
		Status:                p.Status.String(),
		Balance:               formatAmount(v.Balance),
		AmountPaid:            formatAmount(p.AmountPaid),
		NetAmountPaid:         formatAmount(p.NetAmountPaid),
		SegmentPayment:        formatAmount(p.SegmentPayment),
		MostRecentSegmentPaid: p.MostRecentSegmentPaid,
		PaidSegments:          p.PaidSegments(),
		Winner:                v.Winner,
		Withdrawn:             p.Withdrawn,
		CanRejoin:             p.CanRejoin,
		Index:                 formatAmounts(p.Index),
		Deposits:              formatAmounts(p.Deposits),
	}
}

type settlementView struct {
	Player          string `json:"player"`
	Payout          string `json:"payout"`
	Principal       string `json:"principal"`
	Interest        string `json:"interest"`
	RewardAmount    string `json:"reward_amount"`
	IncentiveAmount string `json:"incentive_amount"`
	Winner          bool   `json:"winner"`
}

func newSettlementView(s *savings.Settlement) settlementView {
	return settlementView{
		Player:          crypto.AddressFromArray(s.Player).String(),
		Payout:          s.Payout().String(),
		Principal:       formatAmount(s.Principal),
		Interest:        formatAmount(s.Interest),
		RewardAmount:    formatAmount(s.RewardAmount),
		IncentiveAmount: formatAmount(s.IncentiveAmount),
		Winner:          s.Winner,
	}
}

type adminPayoutView struct {
	InterestPortion string `json:"interest_portion"`
	AdminFee        string `json:"admin_fee"`
	Total           string `json:"total"`
	RewardAmount    string `json:"reward_amount"`
	IncentiveAmount string `json:"incentive_amount"`
}

type archivedEventView struct {
	*types.Event
	ID         uint64    `json:"id"`
	Digest     string    `json:"digest"`
	RecordedAt time.Time `json:"recorded_at"`
}
