package savings

import (
	"fmt"
	"math/big"
)

// indexContribution weights a net deposit by the seconds left until the
// deposit window closes, so earlier deposits weigh more.
func indexContribution(net *big.Int, clock SegmentClock, now uint64) *big.Int {
	closes := clock.SegmentStart(clock.DepositCount)
	if net == nil || net.Sign() <= 0 || now >= closes {
		return big.NewInt(0)
	}
	remaining := new(big.Int).SetUint64(closes - now)
	return remaining.Mul(remaining, net)
}

// recordDeposit applies a segment payment made at now to the player and the
// game aggregates. Payments must arrive in segment order.
func (g *Game) recordDeposit(p *Player, segment uint64, amount, net *big.Int, clock SegmentClock, now uint64) error {
	depositCount := clock.DepositCount
	if segment >= depositCount {
		return fmt.Errorf("savings: segment %d outside deposit window", segment)
	}
	if p.PaidSegments() != segment {
		return fmt.Errorf("savings: player has %d paid segments, cannot record segment %d", p.PaidSegments(), segment)
	}
	prevIndex := big.NewInt(0)
	prevDeposit := big.NewInt(0)
	if segment > 0 {
		prevIndex = p.Index[segment-1]
		prevDeposit = p.Deposits[segment-1]
	}
	index := new(big.Int).Add(prevIndex, indexContribution(net, clock, now))
	deposit := new(big.Int).Add(prevDeposit, net)

	p.Index = append(p.Index, index)
	p.Deposits = append(p.Deposits, deposit)
	p.AmountPaid = new(big.Int).Add(p.AmountPaid, amount)
	p.NetAmountPaid = new(big.Int).Add(p.NetAmountPaid, net)
	p.MostRecentSegmentPaid = segment

	g.CumulativePlayerIndexSum[segment] = new(big.Int).Add(g.CumulativePlayerIndexSum[segment], index)
	g.SegmentWinnerDeposits[segment] = new(big.Int).Add(g.SegmentWinnerDeposits[segment], deposit)
	g.TotalGamePrincipal = new(big.Int).Add(g.TotalGamePrincipal, amount)
	g.NetTotalGamePrincipal = new(big.Int).Add(g.NetTotalGamePrincipal, net)
	if segment == depositCount-1 {
		g.WinnerCount++
	}
	return nil
}

// removePlayer strips every contribution the player made from the aggregates
// and zeroes the player's paid amounts.
func (g *Game) removePlayer(p *Player, depositCount uint64) {
	for s := range p.Index {
		if s >= len(g.CumulativePlayerIndexSum) {
			break
		}
		g.CumulativePlayerIndexSum[s] = new(big.Int).Sub(g.CumulativePlayerIndexSum[s], p.Index[s])
		g.SegmentWinnerDeposits[s] = new(big.Int).Sub(g.SegmentWinnerDeposits[s], p.Deposits[s])
	}
	if p.PaidSegments() == depositCount && g.WinnerCount > 0 {
		g.WinnerCount--
	}
	g.TotalGamePrincipal = new(big.Int).Sub(g.TotalGamePrincipal, p.AmountPaid)
	g.NetTotalGamePrincipal = new(big.Int).Sub(g.NetTotalGamePrincipal, p.NetAmountPaid)
	p.AmountPaid = big.NewInt(0)
	p.NetAmountPaid = big.NewInt(0)
	p.Index = nil
	p.Deposits = nil
}

// winnerDeposits is the total net deposit of every player that paid the last
// deposit segment.
func (g *Game) winnerDeposits() *big.Int {
	if len(g.SegmentWinnerDeposits) == 0 {
		return big.NewInt(0)
	}
	return g.SegmentWinnerDeposits[len(g.SegmentWinnerDeposits)-1]
}

func (g *Game) winnerIndexSum() *big.Int {
	if len(g.CumulativePlayerIndexSum) == 0 {
		return big.NewInt(0)
	}
	return g.CumulativePlayerIndexSum[len(g.CumulativePlayerIndexSum)-1]
}

// playerInterest splits interest between the deposit-weighted and the
// index-weighted pools. Division truncates and the dust stays in the pool.
func playerInterest(interest, playerIndex, indexSum, playerDeposit, depositSum, depositRoundShare *big.Int) *big.Int {
	if interest == nil || interest.Sign() <= 0 {
		return big.NewInt(0)
	}
	if indexSum == nil || indexSum.Sign() <= 0 || depositSum == nil || depositSum.Sign() <= 0 {
		return big.NewInt(0)
	}
	waitingRoundShare := new(big.Int).Sub(PrecisionScalar, depositRoundShare)

	indexShare := new(big.Int).Mul(playerIndex, PrecisionScalar)
	indexShare.Quo(indexShare, indexSum)
	depositShare := new(big.Int).Mul(playerDeposit, PrecisionScalar)
	depositShare.Quo(depositShare, depositSum)

	weighted := new(big.Int).Mul(depositShare, depositRoundShare)
	weighted.Add(weighted, new(big.Int).Mul(indexShare, waitingRoundShare))

	out := new(big.Int).Mul(interest, weighted)
	denominator := new(big.Int).Mul(PrecisionScalar, PrecisionScalar)
	return out.Quo(out, denominator)
}

// proRata returns total * part / whole, truncated.
func proRata(total, part, whole *big.Int) *big.Int {
	if total == nil || part == nil || whole == nil || whole.Sign() <= 0 || total.Sign() <= 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(total, part)
	return out.Quo(out, whole)
}

// settle computes the final payout owed to p. The game must be redeemed.
func (g *Game) settle(p *Player, params Params) *Settlement {
	out := &Settlement{
		Player:          p.Address,
		Principal:       big.NewInt(0),
		Interest:        big.NewInt(0),
		RewardAmount:    big.NewInt(0),
		IncentiveAmount: big.NewInt(0),
	}
	net := p.NetAmountPaid
	if g.PrincipalPool.Cmp(g.NetTotalGamePrincipal) >= 0 {
		out.Principal = new(big.Int).Set(net)
	} else {
		// The yield source returned less than it was given.
		out.Principal = proRata(g.PrincipalPool, net, g.NetTotalGamePrincipal)
	}
	if g.WinnerCount == 0 || !p.IsWinner(params.DepositCount) {
		return out
	}
	out.Winner = true
	last := params.DepositCount - 1
	depositSum := g.winnerDeposits()
	out.Interest = playerInterest(
		g.TotalGameInterest,
		p.Index[last], g.winnerIndexSum(),
		p.Deposits[last], depositSum,
		params.DepositRoundSharePercent,
	)
	winnerRewards := new(big.Int).Sub(g.RewardAmount, g.AdminRewardAmount)
	out.RewardAmount = proRata(winnerRewards, p.Deposits[last], depositSum)
	out.IncentiveAmount = proRata(g.TotalIncentiveAmount, p.Deposits[last], depositSum)
	return out
}
