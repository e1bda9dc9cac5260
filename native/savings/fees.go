package savings

import "math/big"

var hundred = big.NewInt(100)

func percentOf(amount *big.Int, percent uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || percent == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(percent))
	return out.Quo(out, hundred)
}

// earlyExitPayout returns what a leaving player receives and the penalty the
// pool keeps. The payout never exceeds what the yield source credited for the
// player.
func earlyExitPayout(p *Player, feePercent uint64) (payout, penalty *big.Int) {
	penalty = percentOf(p.AmountPaid, feePercent)
	payout = new(big.Int).Sub(p.AmountPaid, penalty)
	if payout.Cmp(p.NetAmountPaid) > 0 {
		payout = new(big.Int).Set(p.NetAmountPaid)
	}
	return payout, penalty
}

// adminFee is the operator's cut of gross interest.
func adminFee(grossInterest *big.Int, feePercent uint64) *big.Int {
	return percentOf(grossInterest, feePercent)
}

// adminShare reports what the operator collects. Without winners the
// operator also takes the winner interest, every reward and the incentive
// balance.
func (g *Game) adminShare() *AdminPayout {
	out := &AdminPayout{
		InterestPortion: big.NewInt(0),
		AdminFee:        bigOrZero(g.AdminFeeAmount),
		RewardAmount:    bigOrZero(g.AdminRewardAmount),
		IncentiveAmount: big.NewInt(0),
	}
	if g.WinnerCount == 0 {
		out.InterestPortion = bigOrZero(g.TotalGameInterest)
		out.IncentiveAmount = bigOrZero(g.TotalIncentiveAmount)
	}
	return out
}
