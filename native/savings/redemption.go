package savings

import (
	"context"
	"log/slog"
	"math/big"

	"savingsgame/core/events"
	"savingsgame/crypto"
	nativecommon "savingsgame/native/common"
)

// RedeemFromExternalPool pulls every fund back from the yield source and
// fixes the final interest and fee figures. It succeeds once per game.
func (e *Engine) RedeemFromExternalPool(ctx context.Context) error {
	return e.execute(ctx, "redeem", func(tx *txn) error {
		game, err := e.loadGame()
		if err != nil {
			return err
		}
		if game.Redeemed {
			return ErrAlreadyRedeemed
		}
		if !e.clockFor(game).IsCompleted(e.now()) {
			return ErrGameNotCompleted
		}
		if err := e.redeem(tx, game); err != nil {
			return err
		}
		return e.storeGame(tx, game)
	})
}

// redeem runs inside an open transaction. The caller stores the game.
func (e *Engine) redeem(tx *txn, game *Game) error {
	total, err := e.adapterCall("total_managed", func() (*big.Int, error) {
		return e.adapter.TotalManagedAmount(tx.ctx)
	})
	if err != nil {
		return wrap(ErrStrategyQuery, err)
	}
	received := big.NewInt(0)
	if total.Sign() > 0 {
		received, err = e.adapterCall("withdraw", func() (*big.Int, error) {
			return e.adapter.Withdraw(tx.ctx, total)
		})
		if err != nil {
			return wrap(ErrStrategyWithdraw, err)
		}
		released := received
		tx.onRollback("deposit", func(ctx context.Context) error {
			_, err := e.adapter.Deposit(ctx, released)
			return err
		})
	}

	rewardToken := e.adapter.RewardToken()
	rewards := big.NewInt(0)
	if rewardToken != "" {
		rewards, err = e.adapterCall("claim_rewards", func() (*big.Int, error) {
			return e.adapter.ClaimRewards(tx.ctx)
		})
		if err != nil {
			return wrap(ErrStrategyRewards, err)
		}
	}
	if err := e.credit(e.pool, e.params.Token, received); err != nil {
		return err
	}
	if err := e.credit(e.pool, rewardToken, rewards); err != nil {
		return err
	}
	incentive := big.NewInt(0)
	if e.params.IncentiveToken != "" {
		incentive, err = e.state.Balance(e.pool[:], e.params.IncentiveToken)
		if err != nil {
			return err
		}
	}

	principalPool := new(big.Int).Set(received)
	if principalPool.Cmp(game.NetTotalGamePrincipal) > 0 {
		principalPool.Set(game.NetTotalGamePrincipal)
	}
	gross := new(big.Int).Sub(received, principalPool)
	fee := adminFee(gross, e.params.AdminFeePercent)

	game.RedeemedAmount = new(big.Int).Set(received)
	game.PrincipalPool = principalPool
	game.GrossInterest = gross
	game.AdminFeeAmount = fee
	game.TotalGameInterest = new(big.Int).Sub(gross, fee)
	game.RewardAmount = new(big.Int).Set(rewards)
	if game.WinnerCount == 0 {
		game.AdminRewardAmount = new(big.Int).Set(rewards)
	} else {
		game.AdminRewardAmount = percentOf(rewards, e.params.AdminFeePercent)
	}
	game.TotalIncentiveAmount = new(big.Int).Set(incentive)
	game.Redeemed = true

	tx.emit(events.SavingsRedeemed{
		TotalReceived:    new(big.Int).Set(received),
		Principal:        new(big.Int).Set(game.NetTotalGamePrincipal),
		Interest:         new(big.Int).Set(game.TotalGameInterest),
		AdminFee:         new(big.Int).Set(fee),
		RewardBalance:    new(big.Int).Set(rewards),
		IncentiveBalance: new(big.Int).Set(incentive),
		Winners:          game.WinnerCount,
	})
	e.logger.Info("savings funds redeemed",
		slog.String("received", received.String()),
		slog.String("grossInterest", gross.String()),
		slog.String("adminFee", fee.String()),
		slog.Uint64("winners", game.WinnerCount))
	return nil
}

// Withdraw settles a player after the game completes, redeeming from the
// yield source first when nobody has done so yet.
func (e *Engine) Withdraw(ctx context.Context, addr [20]byte) (*Settlement, error) {
	var settlement *Settlement
	err := e.execute(ctx, "withdraw", func(tx *txn) error {
		game, err := e.loadGame()
		if err != nil {
			return err
		}
		if err := e.guardPaused(game, nativecommon.ActionWithdraw); err != nil {
			return err
		}
		player, _, err := e.loadPlayer(addr)
		if err != nil {
			return err
		}
		switch player.Status {
		case PlayerUnjoined:
			return ErrNotActive
		case PlayerExited, PlayerSettled:
			return ErrAlreadyWithdrawn
		}
		if !e.clockFor(game).IsCompleted(e.now()) {
			return ErrGameNotCompleted
		}
		if !game.Redeemed {
			if err := e.redeem(tx, game); err != nil {
				return err
			}
		}

		out := game.settle(player, e.params)
		if err := e.payFromPool(addr, e.params.Token, out.Payout()); err != nil {
			return err
		}
		if err := e.payFromPool(addr, e.adapter.RewardToken(), out.RewardAmount); err != nil {
			return err
		}
		if err := e.payFromPool(addr, e.params.IncentiveToken, out.IncentiveAmount); err != nil {
			return err
		}
		player.Status = PlayerSettled
		player.Withdrawn = true
		if err := e.storePlayer(player, false); err != nil {
			return err
		}
		if err := e.storeGame(tx, game); err != nil {
			return err
		}
		tx.emit(events.SavingsWithdrawal{
			Player:          addr,
			Payout:          out.Payout(),
			Interest:        new(big.Int).Set(out.Interest),
			RewardAmount:    new(big.Int).Set(out.RewardAmount),
			IncentiveAmount: new(big.Int).Set(out.IncentiveAmount),
			Winner:          out.Winner,
		})
		e.logger.Info("savings player withdrew",
			slog.String("player", crypto.AddressFromArray(addr).String()),
			slog.String("payout", out.Payout().String()),
			slog.Bool("winner", out.Winner))
		settlement = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settlement, nil
}

// AdminFeeWithdraw pays the operator its fee. Without winners the operator
// also collects the winner interest, the strategy rewards and the incentive
// balance.
func (e *Engine) AdminFeeWithdraw(ctx context.Context, caller [20]byte) (*AdminPayout, error) {
	var payout *AdminPayout
	err := e.execute(ctx, "admin_withdraw", func(tx *txn) error {
		if caller != e.owner {
			return ErrNotOwner
		}
		game, err := e.loadGame()
		if err != nil {
			return err
		}
		if !game.Redeemed {
			return ErrNotRedeemed
		}
		if game.AdminWithdrawn {
			return ErrAdminAlreadyWithdrawn
		}
		share := game.adminShare()
		if err := e.payFromPool(caller, e.params.Token, share.Total()); err != nil {
			return err
		}
		if err := e.payFromPool(caller, e.adapter.RewardToken(), share.RewardAmount); err != nil {
			return err
		}
		if err := e.payFromPool(caller, e.params.IncentiveToken, share.IncentiveAmount); err != nil {
			return err
		}
		game.AdminWithdrawn = true
		if err := e.storeGame(tx, game); err != nil {
			return err
		}
		tx.emit(events.SavingsAdminWithdrawal{
			Admin:            caller,
			InterestPortion:  new(big.Int).Set(share.InterestPortion),
			TotalAdminFee:    share.Total(),
			RewardBalance:    new(big.Int).Set(share.RewardAmount),
			IncentiveBalance: new(big.Int).Set(share.IncentiveAmount),
		})
		e.logger.Info("savings admin fee withdrawn",
			slog.String("amount", share.Total().String()),
			slog.String("rewards", share.RewardAmount.String()))
		payout = share
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payout, nil
}
