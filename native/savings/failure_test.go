package savings

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"savingsgame/core/state"
	"savingsgame/native/savings/strategy"
	strategymock "savingsgame/native/savings/strategy/mock"
)

func newMockAdapter() *strategymock.Adapter {
	adapter := new(strategymock.Adapter)
	adapter.On("Name").Return("mock").Maybe()
	adapter.On("RewardToken").Return("").Maybe()
	return adapter
}

func TestStrategyDepositFailureLeavesNoTrace(t *testing.T) {
	adapter := newMockAdapter()
	adapter.On("Deposit", mock.Anything, mock.Anything).Return(nil, errors.New("market frozen")).Once()
	h := newHarness(t, adapter, nil)
	alice := makeAddr(1)
	h.fund(alice, "DAI", units(10))

	err := h.engine.Join(context.Background(), alice, nil)
	require.ErrorIs(t, err, ErrStrategyDeposit)
	require.True(t, IsKind(err, KindExternalCall))
	require.ErrorContains(t, err, "market frozen")

	require.Equal(t, 0, units(10).Cmp(h.balance(alice, "DAI")))
	require.Equal(t, PlayerUnjoined, h.player(alice).Status)
	game := h.game()
	require.Zero(t, game.ActivePlayers)
	require.Zero(t, game.TotalGamePrincipal.Sign())
	players, err := h.engine.Players()
	require.NoError(t, err)
	require.Empty(t, players)
	require.Empty(t, h.events.Events())
	adapter.AssertExpectations(t)
}

func TestStrategyWithdrawFailureRevertsEarlyExit(t *testing.T) {
	adapter := newMockAdapter()
	adapter.On("Deposit", mock.Anything, mock.Anything).Return(units(10), nil).Once()
	adapter.On("Withdraw", mock.Anything, mock.Anything).Return(nil, strategy.ErrInsufficientLiquidity).Once()
	h := newHarness(t, adapter, nil)
	alice := makeAddr(1)
	h.mustJoin(alice, nil)

	_, err := h.engine.EarlyExit(context.Background(), alice)
	require.ErrorIs(t, err, ErrStrategyWithdraw)
	require.ErrorIs(t, err, strategy.ErrInsufficientLiquidity)

	p := h.player(alice)
	require.Equal(t, PlayerActive, p.Status)
	require.Zero(t, p.AmountPaid.Cmp(units(10)))
	require.Zero(t, h.balance(alice, "DAI").Sign())
	require.Equal(t, uint64(1), h.game().ActivePlayers)
	h.checkInvariants()
	adapter.AssertExpectations(t)
}

func TestLossIsSocialisedAcrossPrincipal(t *testing.T) {
	adapter := newMockAdapter()
	adapter.On("Deposit", mock.Anything, mock.Anything).Return(big.NewInt(10), nil).Once()
	adapter.On("Deposit", mock.Anything, mock.Anything).Return(big.NewInt(30), nil).Once()
	adapter.On("TotalManagedAmount", mock.Anything).Return(big.NewInt(20), nil).Once()
	adapter.On("Withdraw", mock.Anything, mock.Anything).Return(big.NewInt(20), nil).Once()
	h := newHarness(t, adapter, func(p *Params) {
		p.DepositCount = 1
		p.FlexibleSegmentPayment = true
		p.MaxFlexiblePayment = big.NewInt(100)
	})
	ctx := context.Background()
	alice, bob := makeAddr(1), makeAddr(2)
	h.mustJoin(alice, big.NewInt(10))
	h.mustJoin(bob, big.NewInt(30))
	require.Equal(t, uint64(2), h.game().WinnerCount)
	h.complete()

	aliceOut, err := h.engine.Withdraw(ctx, alice)
	require.NoError(t, err)
	bobOut, err := h.engine.Withdraw(ctx, bob)
	require.NoError(t, err)
	require.Equal(t, int64(5), aliceOut.Principal.Int64())
	require.Equal(t, int64(15), bobOut.Principal.Int64())
	require.Zero(t, aliceOut.Interest.Sign())

	game := h.game()
	require.Zero(t, game.GrossInterest.Sign())
	require.Equal(t, int64(20), game.PrincipalPool.Int64())

	admin, err := h.engine.AdminFeeWithdraw(ctx, h.owner)
	require.NoError(t, err)
	require.Zero(t, admin.Total().Sign())
	adapter.AssertExpectations(t)
}

type reentrantAdapter struct {
	*strategy.Noop
	engine *Engine
	target [20]byte
	err    error
}

func (r *reentrantAdapter) Deposit(ctx context.Context, amount *big.Int) (*big.Int, error) {
	if r.engine != nil {
		r.err = r.engine.Join(ctx, r.target, nil)
	}
	return r.Noop.Deposit(ctx, amount)
}

func TestReentrantCallIsRejected(t *testing.T) {
	adapter := &reentrantAdapter{Noop: strategy.NewNoop()}
	h := newHarness(t, adapter, nil)
	alice, bob := makeAddr(1), makeAddr(2)
	h.fund(bob, "DAI", units(10))
	adapter.engine = h.engine
	adapter.target = bob

	h.mustJoin(alice, nil)
	require.ErrorIs(t, adapter.err, ErrReentrantCall)
	require.Equal(t, PlayerUnjoined, h.player(bob).Status)
	require.Equal(t, PlayerActive, h.player(alice).Status)
	h.checkInvariants()
}

type flakyState struct {
	*state.Manager
	failCommits int
}

func (f *flakyState) Commit() error {
	if f.failCommits > 0 {
		f.failCommits--
		return errors.New("disk full")
	}
	return f.Manager.Commit()
}

func TestCommitFailureCompensatesStrategy(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	alice := makeAddr(1)
	h.fund(alice, "DAI", units(10))

	flaky := &flakyState{Manager: h.state, failCommits: 1}
	h.engine.SetState(flaky)
	err := h.engine.Join(ctx, alice, nil)
	require.ErrorContains(t, err, "disk full")

	managed, err := h.adapter.TotalManagedAmount(ctx)
	require.NoError(t, err)
	require.Zero(t, managed.Sign(), "deposit should have been withdrawn again")
	require.Zero(t, h.balance(alice, "DAI").Cmp(units(10)))
	require.Equal(t, PlayerUnjoined, h.player(alice).Status)

	require.NoError(t, h.engine.Join(ctx, alice, nil))
	managed, err = h.adapter.TotalManagedAmount(ctx)
	require.NoError(t, err)
	require.Zero(t, managed.Cmp(units(10)))
	h.checkInvariants()
}
