package savings

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"savingsgame/core/events"
	"savingsgame/crypto"
	nativecommon "savingsgame/native/common"
)

type whitelistClaim struct {
	index uint64
	proof []common.Hash
}

// Join enrols player with the segment-zero payment. In fixed mode amount may
// be nil, in which case the configured segment payment is used.
func (e *Engine) Join(ctx context.Context, player [20]byte, amount *big.Int) error {
	return e.join(ctx, "join", player, amount, nil)
}

// JoinWhitelisted enrols player after verifying its whitelist proof.
func (e *Engine) JoinWhitelisted(ctx context.Context, player [20]byte, index uint64, proof []common.Hash, amount *big.Int) error {
	return e.join(ctx, "join_whitelisted", player, amount, &whitelistClaim{index: index, proof: proof})
}

func (e *Engine) join(ctx context.Context, op string, addr [20]byte, amount *big.Int, claim *whitelistClaim) error {
	return e.execute(ctx, op, func(tx *txn) error {
		if addr == ([20]byte{}) {
			return ErrInvalidAddress
		}
		game, err := e.loadGame()
		if err != nil {
			return err
		}
		if err := e.guardPaused(game, nativecommon.ActionJoin); err != nil {
			return err
		}
		if claim == nil && e.params.WhitelistEnabled() {
			return ErrWhitelistOnly
		}
		clock := e.clockFor(game)
		now := e.now()
		if clock.CurrentSegment(now) > 0 {
			return ErrGameStarted
		}
		player, existed, err := e.loadPlayer(addr)
		if err != nil {
			return err
		}
		switch player.Status {
		case PlayerActive, PlayerSettled:
			return ErrAlreadyJoined
		case PlayerExited:
			if !player.CanRejoin {
				return ErrAlreadyJoined
			}
		}
		if claim != nil {
			if err := e.checkWhitelistSlot(player, claim.index, claim.proof); err != nil {
				return err
			}
		}
		if game.ActivePlayers >= e.params.MaxPlayers {
			return ErrMaxPlayers
		}
		payment, err := e.joinPayment(amount)
		if err != nil {
			return err
		}
		if err := e.debit(addr, payment); err != nil {
			return err
		}

		rejoin := player.Status == PlayerExited
		player.Status = PlayerActive
		player.CanRejoin = false
		player.Withdrawn = false
		player.SegmentPayment = new(big.Int).Set(payment)
		if claim != nil {
			player.WhitelistIndex = claim.index
			if err := e.claimWhitelistSlot(claim.index, addr); err != nil {
				return err
			}
		}
		game.ActivePlayers++

		net, err := e.depositToStrategy(tx, payment)
		if err != nil {
			return err
		}
		if err := game.recordDeposit(player, 0, payment, net, clock, now); err != nil {
			return err
		}
		if err := e.storePlayer(player, !existed); err != nil {
			return err
		}
		if err := e.storeGame(tx, game); err != nil {
			return err
		}
		tx.emit(events.SavingsJoined{Player: addr, Amount: payment, Rejoin: rejoin})
		tx.emit(events.SavingsDeposit{Player: addr, Segment: 0, Amount: payment, NetAmount: net})
		e.logger.Info("savings player joined",
			slog.String("player", crypto.AddressFromArray(addr).String()),
			slog.String("amount", payment.String()),
			slog.Bool("rejoin", rejoin))
		return nil
	})
}

// joinPayment resolves the amount a joining player commits to per segment.
func (e *Engine) joinPayment(amount *big.Int) (*big.Int, error) {
	if e.params.FlexibleSegmentPayment {
		if amount == nil || amount.Sign() <= 0 || amount.Cmp(e.params.MaxFlexiblePayment) > 0 {
			return nil, ErrInvalidAmount
		}
		return new(big.Int).Set(amount), nil
	}
	if amount == nil {
		return new(big.Int).Set(e.params.SegmentPayment), nil
	}
	if amount.Cmp(e.params.SegmentPayment) != 0 {
		return nil, ErrInvalidAmount
	}
	return new(big.Int).Set(amount), nil
}

// MakeDeposit records the payment for the current segment. Payments are
// accepted strictly after the join segment and before the waiting round, and
// must not skip a segment. A nil amount pays the player's committed amount.
func (e *Engine) MakeDeposit(ctx context.Context, addr [20]byte, amount *big.Int) error {
	return e.execute(ctx, "deposit", func(tx *txn) error {
		game, err := e.loadGame()
		if err != nil {
			return err
		}
		if err := e.guardPaused(game, nativecommon.ActionDeposit); err != nil {
			return err
		}
		player, _, err := e.loadPlayer(addr)
		if err != nil {
			return err
		}
		if player.Status != PlayerActive {
			return ErrNotActive
		}
		clock := e.clockFor(game)
		now := e.now()
		segment := clock.CurrentSegment(now)
		if segment == 0 || segment > clock.LastDepositSegment() {
			return ErrDepositNotAllowed
		}
		switch paid := player.PaidSegments(); {
		case paid > segment:
			return ErrSegmentAlreadyPaid
		case paid < segment:
			return ErrMissedSegment
		}
		if amount == nil {
			amount = player.SegmentPayment
		}
		if amount.Sign() <= 0 || amount.Cmp(player.SegmentPayment) != 0 {
			return ErrInvalidAmount
		}
		payment := new(big.Int).Set(amount)
		if err := e.debit(addr, payment); err != nil {
			return err
		}
		net, err := e.depositToStrategy(tx, payment)
		if err != nil {
			return err
		}
		if err := game.recordDeposit(player, segment, payment, net, clock, now); err != nil {
			return err
		}
		if err := e.storePlayer(player, false); err != nil {
			return err
		}
		if err := e.storeGame(tx, game); err != nil {
			return err
		}
		tx.emit(events.SavingsDeposit{Player: addr, Segment: segment, Amount: payment, NetAmount: net})
		e.logger.Info("savings deposit",
			slog.String("player", crypto.AddressFromArray(addr).String()),
			slog.Uint64("segment", segment),
			slog.String("amount", payment.String()))
		return nil
	})
}

// EarlyExit pays the player back immediately, minus the early exit penalty,
// and removes every contribution the player made. Players leaving during the
// join segment may rejoin.
func (e *Engine) EarlyExit(ctx context.Context, addr [20]byte) (*big.Int, error) {
	var payout *big.Int
	err := e.execute(ctx, "early_exit", func(tx *txn) error {
		game, err := e.loadGame()
		if err != nil {
			return err
		}
		if err := e.guardPaused(game, nativecommon.ActionEarlyExit); err != nil {
			return err
		}
		clock := e.clockFor(game)
		now := e.now()
		if clock.IsCompleted(now) {
			return ErrGameCompleted
		}
		player, _, err := e.loadPlayer(addr)
		if err != nil {
			return err
		}
		switch player.Status {
		case PlayerSettled:
			return ErrAlreadyWithdrawn
		case PlayerActive:
		default:
			return ErrNotActive
		}

		amount, penalty := earlyExitPayout(player, e.params.EarlyExitFeePercent)
		game.removePlayer(player, e.params.DepositCount)
		game.ActivePlayers--
		game.TotalEarlyExitFees = new(big.Int).Add(game.TotalEarlyExitFees, penalty)
		player.Status = PlayerExited
		player.Withdrawn = true
		player.CanRejoin = clock.CurrentSegment(now) == 0

		if err := e.credit(addr, e.params.Token, amount); err != nil {
			return err
		}
		if err := e.storePlayer(player, false); err != nil {
			return err
		}
		if err := e.storeGame(tx, game); err != nil {
			return err
		}
		if err := e.withdrawFromStrategy(tx, amount); err != nil {
			return err
		}
		tx.emit(events.SavingsEarlyWithdrawal{
			Player:             addr,
			Payout:             amount,
			Penalty:            penalty,
			RemainingPrincipal: new(big.Int).Set(game.TotalGamePrincipal),
		})
		e.logger.Info("savings early exit",
			slog.String("player", crypto.AddressFromArray(addr).String()),
			slog.String("payout", amount.String()),
			slog.String("penalty", penalty.String()))
		payout = amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payout, nil
}
