package mock

import (
	"context"
	"math/big"

	"github.com/stretchr/testify/mock"
)

// Adapter implements strategy.Adapter for testing.
type Adapter struct {
	mock.Mock
}

func amountAt(args mock.Arguments, i int) *big.Int {
	v := args.Get(i)
	if v == nil {
		return nil
	}
	return v.(*big.Int)
}

func (m *Adapter) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *Adapter) Deposit(ctx context.Context, amount *big.Int) (*big.Int, error) {
	args := m.Called(ctx, amount)
	return amountAt(args, 0), args.Error(1)
}

func (m *Adapter) Withdraw(ctx context.Context, amount *big.Int) (*big.Int, error) {
	args := m.Called(ctx, amount)
	return amountAt(args, 0), args.Error(1)
}

func (m *Adapter) TotalManagedAmount(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	return amountAt(args, 0), args.Error(1)
}

func (m *Adapter) RewardToken() string {
	args := m.Called()
	return args.String(0)
}

func (m *Adapter) RewardBalance(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	return amountAt(args, 0), args.Error(1)
}

func (m *Adapter) ClaimRewards(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	return amountAt(args, 0), args.Error(1)
}
