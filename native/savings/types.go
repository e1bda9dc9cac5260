package savings

import "math/big"

// PlayerStatus is the lifecycle state of a player record.
type PlayerStatus uint8

const (
	PlayerUnjoined PlayerStatus = iota
	PlayerActive
	PlayerExited
	PlayerSettled
)

func (s PlayerStatus) String() string {
	switch s {
	case PlayerActive:
		return "active"
	case PlayerExited:
		return "exited"
	case PlayerSettled:
		return "settled"
	default:
		return "unjoined"
	}
}

// Game is the singleton aggregate holding every game-wide figure. Per-segment
// columns are indexed by segment number.
type Game struct {
	StartTime      uint64
	Redeemed       bool
	Paused         bool
	AdminWithdrawn bool

	ActivePlayers uint64
	WinnerCount   uint64

	TotalGamePrincipal    *big.Int
	NetTotalGamePrincipal *big.Int
	TotalEarlyExitFees    *big.Int

	// Figures fixed at redemption.
	RedeemedAmount       *big.Int
	PrincipalPool        *big.Int
	GrossInterest        *big.Int
	TotalGameInterest    *big.Int
	AdminFeeAmount       *big.Int
	RewardAmount         *big.Int
	AdminRewardAmount    *big.Int
	TotalIncentiveAmount *big.Int

	CumulativePlayerIndexSum []*big.Int
	SegmentWinnerDeposits    []*big.Int
}

func newGame(start, depositCount uint64) *Game {
	g := &Game{StartTime: start}
	g.normalize(depositCount)
	return g
}

// normalize fills nil amounts and sizes the per-segment columns. RLP decodes
// empty big integers as zero values, but records built in code may carry nils.
func (g *Game) normalize(depositCount uint64) {
	for _, field := range []**big.Int{
		&g.TotalGamePrincipal, &g.NetTotalGamePrincipal, &g.TotalEarlyExitFees,
		&g.RedeemedAmount, &g.PrincipalPool, &g.GrossInterest, &g.TotalGameInterest,
		&g.AdminFeeAmount, &g.RewardAmount, &g.AdminRewardAmount, &g.TotalIncentiveAmount,
	} {
		if *field == nil {
			*field = big.NewInt(0)
		}
	}
	g.CumulativePlayerIndexSum = sizeColumn(g.CumulativePlayerIndexSum, depositCount)
	g.SegmentWinnerDeposits = sizeColumn(g.SegmentWinnerDeposits, depositCount)
}

func sizeColumn(col []*big.Int, n uint64) []*big.Int {
	for uint64(len(col)) < n {
		col = append(col, big.NewInt(0))
	}
	for i := range col {
		if col[i] == nil {
			col[i] = big.NewInt(0)
		}
	}
	return col
}

// Clone returns a deep copy of the game.
func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}
	clone := *g
	clone.TotalGamePrincipal = bigOrZero(g.TotalGamePrincipal)
	clone.NetTotalGamePrincipal = bigOrZero(g.NetTotalGamePrincipal)
	clone.TotalEarlyExitFees = bigOrZero(g.TotalEarlyExitFees)
	clone.RedeemedAmount = bigOrZero(g.RedeemedAmount)
	clone.PrincipalPool = bigOrZero(g.PrincipalPool)
	clone.GrossInterest = bigOrZero(g.GrossInterest)
	clone.TotalGameInterest = bigOrZero(g.TotalGameInterest)
	clone.AdminFeeAmount = bigOrZero(g.AdminFeeAmount)
	clone.RewardAmount = bigOrZero(g.RewardAmount)
	clone.AdminRewardAmount = bigOrZero(g.AdminRewardAmount)
	clone.TotalIncentiveAmount = bigOrZero(g.TotalIncentiveAmount)
	clone.CumulativePlayerIndexSum = cloneColumn(g.CumulativePlayerIndexSum)
	clone.SegmentWinnerDeposits = cloneColumn(g.SegmentWinnerDeposits)
	return &clone
}

// Player is the per-address record. Index and Deposits hold running totals for
// every segment the player paid, so len(Index) == MostRecentSegmentPaid+1 for
// an active player.
type Player struct {
	Address               [20]byte
	Status                PlayerStatus
	AmountPaid            *big.Int
	NetAmountPaid         *big.Int
	SegmentPayment        *big.Int
	MostRecentSegmentPaid uint64
	Withdrawn             bool
	CanRejoin             bool
	WhitelistIndex        uint64
	Index                 []*big.Int
	Deposits              []*big.Int
}

func newPlayer(addr [20]byte) *Player {
	p := &Player{Address: addr}
	p.normalize()
	return p
}

func (p *Player) normalize() {
	if p.AmountPaid == nil {
		p.AmountPaid = big.NewInt(0)
	}
	if p.NetAmountPaid == nil {
		p.NetAmountPaid = big.NewInt(0)
	}
	if p.SegmentPayment == nil {
		p.SegmentPayment = big.NewInt(0)
	}
}

// Clone returns a deep copy of the player.
func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	clone := *p
	clone.AmountPaid = bigOrZero(p.AmountPaid)
	clone.NetAmountPaid = bigOrZero(p.NetAmountPaid)
	clone.SegmentPayment = bigOrZero(p.SegmentPayment)
	clone.Index = cloneColumn(p.Index)
	clone.Deposits = cloneColumn(p.Deposits)
	return &clone
}

// PaidSegments reports how many segments the player has paid since joining.
func (p *Player) PaidSegments() uint64 {
	if p == nil {
		return 0
	}
	return uint64(len(p.Index))
}

// IsWinner reports whether the player paid every deposit segment and never
// exited.
func (p *Player) IsWinner(depositCount uint64) bool {
	if p == nil || depositCount == 0 {
		return false
	}
	if p.Status != PlayerActive && p.Status != PlayerSettled {
		return false
	}
	return p.PaidSegments() == depositCount
}

func cloneColumn(col []*big.Int) []*big.Int {
	if col == nil {
		return nil
	}
	out := make([]*big.Int, len(col))
	for i, v := range col {
		out[i] = bigOrZero(v)
	}
	return out
}

// Settlement describes a player's final payout.
type Settlement struct {
	Player          [20]byte
	Principal       *big.Int
	Interest        *big.Int
	RewardAmount    *big.Int
	IncentiveAmount *big.Int
	Winner          bool
}

// Payout is the base asset amount paid to the player.
func (s *Settlement) Payout() *big.Int {
	if s == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Add(bigOrZero(s.Principal), bigOrZero(s.Interest))
}

// AdminPayout describes the operator's fee collection.
type AdminPayout struct {
	InterestPortion *big.Int
	AdminFee        *big.Int
	RewardAmount    *big.Int
	IncentiveAmount *big.Int
}

// Total is the base asset amount paid to the operator.
func (a *AdminPayout) Total() *big.Int {
	if a == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Add(bigOrZero(a.InterestPortion), bigOrZero(a.AdminFee))
}
