package savings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"savingsgame/core/events"
	"savingsgame/crypto"
	nativecommon "savingsgame/native/common"
	"savingsgame/native/savings/strategy"
	"savingsgame/observability/metrics"
)

// ModuleName is the pause key consulted on the node-wide PauseView.
const ModuleName = "savings"

var (
	errNilState = errors.New("savings engine: state not configured")

	gameKey         = []byte("savings/game")
	playerPrefix    = []byte("savings/player/")
	playerListKey   = []byte("savings/players")
	whitelistPrefix = []byte("savings/whitelist/")
)

type engineState interface {
	Snapshot() int
	RevertToSnapshot(id int)
	Commit() error
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte) ([][]byte, error)
	Balance(addr []byte, symbol string) (*big.Int, error)
	SetBalance(addr []byte, symbol string, amount *big.Int) error
	Transfer(from, to []byte, symbol string, amount *big.Int) error
	HasToken(symbol string) (bool, error)
}

// PoolAddress is the module account that receives redeemed funds until they
// are paid out.
func PoolAddress() crypto.Address {
	return crypto.ModuleAddress(ModuleName)
}

// Engine runs a single savings game. Every mutating operation executes as one
// unit: state writes are staged on a snapshot, the yield source is called,
// and the snapshot is committed only when everything succeeded.
//
// Engine is not safe for concurrent use; callers serialise access.
type Engine struct {
	params    Params
	owner     [20]byte
	pool      [20]byte
	adapter   strategy.Adapter
	state     engineState
	pauses    nativecommon.PauseView
	emitter   events.Emitter
	logger    *slog.Logger
	telemetry *metrics.SavingsMetrics
	nowFn     func() time.Time
	entered   bool
}

// NewEngine validates params and binds the game to its yield source.
func NewEngine(params Params, adapter strategy.Adapter) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if adapter == nil {
		return nil, invalidParam("strategy adapter must be set")
	}
	owner, err := params.OwnerAddress()
	if err != nil {
		return nil, err
	}
	normalized := params.Clone()
	normalized.Token = strings.ToUpper(strings.TrimSpace(params.Token))
	normalized.IncentiveToken = strings.ToUpper(strings.TrimSpace(params.IncentiveToken))
	return &Engine{
		params:    normalized,
		owner:     owner.Array(),
		pool:      PoolAddress().Array(),
		adapter:   adapter,
		emitter:   events.NoopEmitter{},
		logger:    slog.Default().With("component", ModuleName),
		telemetry: metrics.Savings(),
		nowFn:     time.Now,
	}, nil
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPauses wires the node-wide pause switches.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter. Passing nil resets the emitter to a
// no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetLogger overrides the engine logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger.With("component", ModuleName)
}

// SetNowFunc overrides the time source, primarily for tests.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	e.nowFn = now
}

// Params returns a copy of the game parameters.
func (e *Engine) Params() Params { return e.params.Clone() }

// Owner returns the operator address.
func (e *Engine) Owner() crypto.Address { return crypto.AddressFromArray(e.owner) }

// Adapter exposes the yield source bound to the game.
func (e *Engine) Adapter() strategy.Adapter { return e.adapter }

func (e *Engine) now() uint64 {
	ts := e.nowFn().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

// Initialize creates the game record on first use, starting the clock at the
// current time. Calling it again on an existing game is a no-op.
func (e *Engine) Initialize() error {
	if e.state == nil {
		return errNilState
	}
	if _, ok, err := e.loadGameIfExists(); err != nil {
		return err
	} else if ok {
		return nil
	}
	reward := strings.ToUpper(strings.TrimSpace(e.adapter.RewardToken()))
	if reward != "" && (reward == e.params.Token || reward == e.params.IncentiveToken) {
		return invalidParam("reward token %s must differ from the deposit and incentive tokens", reward)
	}
	for _, symbol := range []string{e.params.Token, e.params.IncentiveToken, reward} {
		if symbol == "" {
			continue
		}
		ok, err := e.state.HasToken(symbol)
		if err != nil {
			return err
		}
		if !ok {
			return invalidParam("token %s is not registered", symbol)
		}
	}
	game := newGame(e.now(), e.params.DepositCount)
	if err := e.state.KVPut(gameKey, game); err != nil {
		return err
	}
	if err := e.state.Commit(); err != nil {
		return err
	}
	e.logger.Info("savings game initialised",
		slog.Uint64("start", game.StartTime),
		slog.Uint64("depositCount", e.params.DepositCount),
		slog.String("strategy", e.adapter.Name()))
	return nil
}

// txn collects the side effects of one operation. Events are published and
// rollbacks discarded only after the state commit succeeds.
type txn struct {
	ctx    context.Context
	game   *Game
	events []events.Event
	undo   []rollback
}

type rollback struct {
	call string
	fn   func(context.Context) error
}

func (t *txn) emit(evt events.Event) { t.events = append(t.events, evt) }

// onRollback registers a compensating yield source call for when the
// operation fails after the source was already touched.
func (t *txn) onRollback(call string, fn func(context.Context) error) {
	t.undo = append(t.undo, rollback{call: call, fn: fn})
}

func (e *Engine) execute(ctx context.Context, op string, fn func(tx *txn) error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.entered {
		return ErrReentrantCall
	}
	e.entered = true
	defer func() { e.entered = false }()
	if ctx == nil {
		ctx = context.Background()
	}

	tx := &txn{ctx: ctx}
	snap := e.state.Snapshot()
	err := fn(tx)
	if err == nil {
		if commitErr := e.state.Commit(); commitErr != nil {
			err = fmt.Errorf("savings: %s: commit: %w", op, commitErr)
		}
	}
	if err != nil {
		e.state.RevertToSnapshot(snap)
		e.compensate(ctx, op, tx.undo)
		e.telemetry.ObserveOperation(op, outcome(err))
		e.logger.Warn("savings operation rejected", slog.String("op", op), slog.Any("error", err))
		return err
	}

	for _, evt := range tx.events {
		e.emitter.Emit(evt)
	}
	e.telemetry.ObserveOperation(op, "ok")
	if g := tx.game; g != nil {
		e.telemetry.ObserveGame(g.ActivePlayers, g.WinnerCount, g.TotalGamePrincipal, g.NetTotalGamePrincipal, g.TotalGameInterest)
	}
	return nil
}

func (e *Engine) compensate(ctx context.Context, op string, undo []rollback) {
	for i := len(undo) - 1; i >= 0; i-- {
		step := undo[i]
		if err := step.fn(ctx); err != nil {
			e.logger.Error("savings compensation failed",
				slog.String("op", op), slog.String("call", step.call), slog.Any("error", err))
			continue
		}
		e.telemetry.ObserveCompensation(step.call)
		e.logger.Warn("savings compensation applied", slog.String("op", op), slog.String("call", step.call))
	}
}

func outcome(err error) string {
	if kind := KindOf(err); kind != "" {
		return string(kind)
	}
	return "internal"
}

func (e *Engine) adapterCall(call string, fn func() (*big.Int, error)) (*big.Int, error) {
	start := time.Now()
	out, err := fn()
	e.telemetry.ObserveAdapterCall(call, time.Since(start), err != nil)
	if err == nil && (out == nil || out.Sign() < 0) {
		err = fmt.Errorf("strategy %s returned invalid amount %v", call, out)
	}
	return out, err
}

// depositToStrategy forwards amount to the yield source and returns the net
// amount it credited.
func (e *Engine) depositToStrategy(tx *txn, amount *big.Int) (*big.Int, error) {
	credited, err := e.adapterCall("deposit", func() (*big.Int, error) {
		return e.adapter.Deposit(tx.ctx, amount)
	})
	if err != nil {
		return nil, wrap(ErrStrategyDeposit, err)
	}
	tx.onRollback("withdraw", func(ctx context.Context) error {
		_, err := e.adapter.Withdraw(ctx, credited)
		return err
	})
	if credited.Cmp(amount) > 0 {
		return nil, wrap(ErrStrategyDeposit, fmt.Errorf("credited %s exceeds deposit %s", credited, amount))
	}
	return credited, nil
}

// withdrawFromStrategy releases exactly amount from the yield source.
func (e *Engine) withdrawFromStrategy(tx *txn, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	released, err := e.adapterCall("withdraw", func() (*big.Int, error) {
		return e.adapter.Withdraw(tx.ctx, amount)
	})
	if err != nil {
		return wrap(ErrStrategyWithdraw, err)
	}
	tx.onRollback("deposit", func(ctx context.Context) error {
		_, err := e.adapter.Deposit(ctx, released)
		return err
	})
	if released.Cmp(amount) != 0 {
		return wrap(ErrStrategyWithdraw, fmt.Errorf("released %s, requested %s", released, amount))
	}
	return nil
}

func (e *Engine) guardPaused(game *Game, action nativecommon.Action) error {
	if err := nativecommon.Guard(e.pauses, ModuleName, action); err != nil {
		return wrap(ErrPaused, err)
	}
	if game.Paused {
		return ErrPaused
	}
	return nil
}

func (e *Engine) clockFor(game *Game) SegmentClock {
	return SegmentClock{
		Start:         game.StartTime,
		SegmentLength: e.params.SegmentLength,
		DepositCount:  e.params.DepositCount,
		WaitingRound:  e.params.WaitingRoundLength,
	}
}

func (e *Engine) loadGameIfExists() (*Game, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	game := new(Game)
	ok, err := e.state.KVGet(gameKey, game)
	if err != nil {
		return nil, false, fmt.Errorf("savings: load game: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	game.normalize(e.params.DepositCount)
	return game, true, nil
}

func (e *Engine) loadGame() (*Game, error) {
	game, ok, err := e.loadGameIfExists()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return game, nil
}

func (e *Engine) storeGame(tx *txn, game *Game) error {
	if err := e.state.KVPut(gameKey, game); err != nil {
		return fmt.Errorf("savings: store game: %w", err)
	}
	tx.game = game
	return nil
}

func playerKey(addr [20]byte) []byte {
	key := make([]byte, len(playerPrefix)+len(addr))
	copy(key, playerPrefix)
	copy(key[len(playerPrefix):], addr[:])
	return key
}

// loadPlayer returns the stored record, or a fresh unjoined record when the
// address never joined.
func (e *Engine) loadPlayer(addr [20]byte) (*Player, bool, error) {
	player := new(Player)
	ok, err := e.state.KVGet(playerKey(addr), player)
	if err != nil {
		return nil, false, fmt.Errorf("savings: load player: %w", err)
	}
	if !ok {
		return newPlayer(addr), false, nil
	}
	player.normalize()
	return player, true, nil
}

func (e *Engine) storePlayer(player *Player, created bool) error {
	if err := e.state.KVPut(playerKey(player.Address), player); err != nil {
		return fmt.Errorf("savings: store player: %w", err)
	}
	if created {
		return e.state.KVAppend(playerListKey, player.Address[:])
	}
	return nil
}

// debit takes amount of the deposit token from addr. The funds leave the
// bank and are custodied by the yield source.
func (e *Engine) debit(addr [20]byte, amount *big.Int) error {
	balance, err := e.state.Balance(addr[:], e.params.Token)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	return e.state.SetBalance(addr[:], e.params.Token, new(big.Int).Sub(balance, amount))
}

// credit adds amount of symbol to addr.
func (e *Engine) credit(addr [20]byte, symbol string, amount *big.Int) error {
	if symbol == "" || amount == nil || amount.Sign() == 0 {
		return nil
	}
	balance, err := e.state.Balance(addr[:], symbol)
	if err != nil {
		return err
	}
	return e.state.SetBalance(addr[:], symbol, new(big.Int).Add(balance, amount))
}

// payFromPool moves amount of symbol from the pool account to addr.
func (e *Engine) payFromPool(addr [20]byte, symbol string, amount *big.Int) error {
	if symbol == "" || amount == nil || amount.Sign() == 0 {
		return nil
	}
	if err := e.state.Transfer(e.pool[:], addr[:], symbol, amount); err != nil {
		return fmt.Errorf("savings: pay %s %s: %w", amount, symbol, err)
	}
	return nil
}

// Game returns a copy of the game aggregate.
func (e *Engine) Game() (*Game, error) {
	game, err := e.loadGame()
	if err != nil {
		return nil, err
	}
	return game.Clone(), nil
}

// Player returns the record for addr. Addresses that never joined report an
// unjoined record.
func (e *Engine) Player(addr [20]byte) (*Player, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	player, _, err := e.loadPlayer(addr)
	if err != nil {
		return nil, err
	}
	return player, nil
}

// Players lists every address that ever joined, in join order.
func (e *Engine) Players() ([][20]byte, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	raw, err := e.state.KVGetList(playerListKey)
	if err != nil {
		return nil, err
	}
	out := make([][20]byte, 0, len(raw))
	for _, entry := range raw {
		var addr [20]byte
		copy(addr[:], entry)
		out = append(out, addr)
	}
	return out, nil
}

// Clock returns the segment clock anchored at the game start.
func (e *Engine) Clock() (SegmentClock, error) {
	game, err := e.loadGame()
	if err != nil {
		return SegmentClock{}, err
	}
	return e.clockFor(game), nil
}

// CurrentSegment reports the segment active now.
func (e *Engine) CurrentSegment() (uint64, error) {
	clock, err := e.Clock()
	if err != nil {
		return 0, err
	}
	return clock.CurrentSegment(e.now()), nil
}

// IsGameCompleted reports whether the waiting round has elapsed.
func (e *Engine) IsGameCompleted() (bool, error) {
	clock, err := e.Clock()
	if err != nil {
		return false, err
	}
	return clock.IsCompleted(e.now()), nil
}

// Pause trips the owner circuit breaker, blocking joins, deposits, early exits
// and withdrawals.
func (e *Engine) Pause(ctx context.Context, caller [20]byte) error {
	return e.setPaused(ctx, caller, true)
}

// Unpause lifts the owner circuit breaker.
func (e *Engine) Unpause(ctx context.Context, caller [20]byte) error {
	return e.setPaused(ctx, caller, false)
}

func (e *Engine) setPaused(ctx context.Context, caller [20]byte, paused bool) error {
	op := "unpause"
	if paused {
		op = "pause"
	}
	return e.execute(ctx, op, func(tx *txn) error {
		if caller != e.owner {
			return ErrNotOwner
		}
		game, err := e.loadGame()
		if err != nil {
			return err
		}
		if game.Paused == paused {
			if paused {
				return ErrPaused
			}
			return ErrNotPaused
		}
		game.Paused = paused
		if err := e.storeGame(tx, game); err != nil {
			return err
		}
		tx.emit(events.SavingsPauseToggled{By: caller, Paused: paused})
		e.logger.Info("savings pause toggled", slog.Bool("paused", paused))
		return nil
	})
}
