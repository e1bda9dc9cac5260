package strategy

import (
	"context"
	"math/big"
)

// Noop is a pass-through adapter that custodies funds without generating
// yield or rewards.
type Noop struct {
	balance *big.Int
}

// NewNoop returns an empty pass-through adapter.
func NewNoop() *Noop {
	return &Noop{balance: big.NewInt(0)}
}

func (n *Noop) Name() string { return string(KindNoop) }

func (n *Noop) Deposit(_ context.Context, amount *big.Int) (*big.Int, error) {
	if !validAmount(amount) {
		return nil, ErrInvalidAmount
	}
	n.balance = new(big.Int).Add(n.balance, amount)
	return new(big.Int).Set(amount), nil
}

func (n *Noop) Withdraw(_ context.Context, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if amount.Cmp(n.balance) > 0 {
		return nil, ErrInsufficientLiquidity
	}
	n.balance = new(big.Int).Sub(n.balance, amount)
	return new(big.Int).Set(amount), nil
}

func (n *Noop) TotalManagedAmount(context.Context) (*big.Int, error) {
	return cloneBigInt(n.balance), nil
}

func (n *Noop) RewardToken() string { return "" }

func (n *Noop) RewardBalance(context.Context) (*big.Int, error) { return big.NewInt(0), nil }

func (n *Noop) ClaimRewards(context.Context) (*big.Int, error) { return big.NewInt(0), nil }
