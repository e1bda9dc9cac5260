package strategy

import (
	"context"
	"math/big"
	"strings"
	"time"
)

// MoneyMarket simulates a supply-side money market: deposits are converted to
// scaled balances against a supply index that compounds every time the market
// is touched, and an optional reward token is emitted per second while funds
// are supplied.
type MoneyMarket struct {
	scaled          *big.Int
	index           *big.Int
	rate            *big.Int
	lastAccrual     time.Time
	rewardToken     string
	rewardPerSecond *big.Int
	rewards         *big.Int
	now             func() time.Time
}

// NewMoneyMarket constructs a market paying aprBps annually.
func NewMoneyMarket(aprBps uint64, rewardToken string, rewardPerSecond *big.Int, now func() time.Time) *MoneyMarket {
	if now == nil {
		now = time.Now
	}
	token := strings.ToUpper(strings.TrimSpace(rewardToken))
	perSecond := cloneBigInt(rewardPerSecond)
	if token == "" {
		perSecond = big.NewInt(0)
	}
	return &MoneyMarket{
		scaled:          big.NewInt(0),
		index:           new(big.Int).Set(ray),
		rate:            ratePerSecond(aprBps),
		lastAccrual:     now(),
		rewardToken:     token,
		rewardPerSecond: perSecond,
		rewards:         big.NewInt(0),
		now:             now,
	}
}

func (m *MoneyMarket) Name() string { return string(KindMoneyMarket) }

func (m *MoneyMarket) accrue() {
	now := m.now()
	elapsed := now.Sub(m.lastAccrual)
	if elapsed <= 0 {
		return
	}
	seconds := big.NewInt(int64(elapsed / time.Second))
	if seconds.Sign() == 0 {
		return
	}
	m.lastAccrual = m.lastAccrual.Add(time.Duration(seconds.Int64()) * time.Second)
	if m.scaled.Sign() == 0 {
		return
	}
	if m.rate.Sign() > 0 {
		growth := new(big.Int).Mul(m.rate, seconds)
		m.index = new(big.Int).Add(m.index, rayMul(m.index, growth))
	}
	if m.rewardPerSecond.Sign() > 0 {
		m.rewards = new(big.Int).Add(m.rewards, new(big.Int).Mul(m.rewardPerSecond, seconds))
	}
}

func (m *MoneyMarket) balance() *big.Int {
	return rayMul(m.scaled, m.index)
}

func (m *MoneyMarket) Deposit(_ context.Context, amount *big.Int) (*big.Int, error) {
	if !validAmount(amount) {
		return nil, ErrInvalidAmount
	}
	m.accrue()
	before := m.balance()
	m.scaled = new(big.Int).Add(m.scaled, rayDiv(amount, m.index))
	// Truncation can shave a unit off the credited value.
	return new(big.Int).Sub(m.balance(), before), nil
}

func (m *MoneyMarket) Withdraw(_ context.Context, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	m.accrue()
	available := m.balance()
	if amount.Cmp(available) > 0 {
		return nil, ErrInsufficientLiquidity
	}
	if amount.Cmp(available) == 0 {
		m.scaled = big.NewInt(0)
		return new(big.Int).Set(amount), nil
	}
	burn := rayDiv(amount, m.index)
	if rayMul(burn, m.index).Cmp(amount) < 0 {
		burn.Add(burn, big.NewInt(1))
	}
	if burn.Cmp(m.scaled) > 0 {
		burn = new(big.Int).Set(m.scaled)
	}
	m.scaled = new(big.Int).Sub(m.scaled, burn)
	return new(big.Int).Set(amount), nil
}

func (m *MoneyMarket) TotalManagedAmount(context.Context) (*big.Int, error) {
	m.accrue()
	return m.balance(), nil
}

func (m *MoneyMarket) RewardToken() string { return m.rewardToken }

func (m *MoneyMarket) RewardBalance(context.Context) (*big.Int, error) {
	m.accrue()
	return cloneBigInt(m.rewards), nil
}

func (m *MoneyMarket) ClaimRewards(context.Context) (*big.Int, error) {
	m.accrue()
	claimed := cloneBigInt(m.rewards)
	m.rewards = big.NewInt(0)
	return claimed, nil
}
