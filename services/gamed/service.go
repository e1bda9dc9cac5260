package gamed

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"savingsgame/config"
	"savingsgame/core/events"
	"savingsgame/core/state"
	"savingsgame/core/types"
	nativecommon "savingsgame/native/common"
	"savingsgame/native/savings"
	"savingsgame/native/savings/strategy"
	"savingsgame/observability"
	"savingsgame/services/gamed/archive"
	"savingsgame/storage"
)

// Service serialises access to a single game engine and its state bank.
type Service struct {
	mu      sync.Mutex
	engine  *savings.Engine
	state   *state.Manager
	buffer  *events.Buffer
	hub     *Hub
	archive *archive.Archive
	quota   nativecommon.Quota
	usage   map[[20]byte]nativecommon.QuotaNow
	mintCap *big.Int
	devMint bool
	nowFn   func() time.Time
	logger  *slog.Logger
}

// Option customises a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	now         func() time.Time
	logger      *slog.Logger
	adapter     strategy.Adapter
	eventBuffer int
	devMint     bool
	mintCap     *big.Int
	archive     *archive.Archive
}

// WithClock overrides the wall clock used by the engine and the adapter.
func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAdapter replaces the adapter built from the game config.
func WithAdapter(adapter strategy.Adapter) Option {
	return func(o *serviceOptions) { o.adapter = adapter }
}

// WithEventBuffer sets how many recent events are retained for /v1/events.
func WithEventBuffer(n int) Option {
	return func(o *serviceOptions) { o.eventBuffer = n }
}

// WithArchive records every committed event in a.
func WithArchive(a *archive.Archive) Option {
	return func(o *serviceOptions) { o.archive = a }
}

// WithDevMint enables the base asset faucet. A nil cap leaves requests
// unbounded.
func WithDevMint(limit *big.Int) Option {
	return func(o *serviceOptions) {
		o.devMint = true
		o.mintCap = limit
	}
}

// NewService registers the configured tokens, builds the yield source and
// initialises the game on db.
func NewService(ctx context.Context, cfg *config.Config, db storage.Database, opts ...Option) (*Service, error) {
	o := serviceOptions{now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg == nil {
		return nil, fmt.Errorf("gamed: nil game config")
	}
	quota, err := cfg.QuotaLimits()
	if err != nil {
		return nil, err
	}

	st := state.NewManager(db)
	for _, token := range cfg.Tokens {
		if err := st.RegisterToken(token.Symbol, token.Name, token.Decimals); err != nil {
			return nil, fmt.Errorf("register token %s: %w", token.Symbol, err)
		}
	}
	if err := st.Commit(); err != nil {
		return nil, err
	}

	adapter := o.adapter
	if adapter == nil {
		adapter, err = strategy.New(cfg.Strategy, strategy.WithClock(o.now))
		if err != nil {
			return nil, err
		}
	}
	engine, err := savings.NewEngine(cfg.Game, adapter)
	if err != nil {
		return nil, err
	}
	buffer := events.NewBuffer(o.eventBuffer)
	hub := NewHub()
	emitters := events.Fanout{buffer, observability.Events(), hub}
	if o.archive != nil {
		emitters = append(emitters, o.archive)
	}
	engine.SetState(st)
	engine.SetPauses(cfg.Pauses)
	engine.SetEmitter(emitters)
	engine.SetLogger(o.logger)
	engine.SetNowFunc(o.now)
	if err := engine.Initialize(); err != nil {
		return nil, err
	}

	game, err := engine.Game()
	if err != nil {
		return nil, err
	}
	if !game.Redeemed && game.NetTotalGamePrincipal.Sign() > 0 {
		managed, err := adapter.TotalManagedAmount(ctx)
		if err != nil {
			return nil, err
		}
		if managed.Sign() == 0 {
			return nil, ErrYieldSourceLost
		}
	}

	return &Service{
		engine:  engine,
		state:   st,
		buffer:  buffer,
		hub:     hub,
		archive: o.archive,
		quota:   quota,
		usage:   make(map[[20]byte]nativecommon.QuotaNow),
		mintCap: o.mintCap,
		devMint: o.devMint,
		nowFn:   o.now,
		logger:  o.logger.With("component", "gamed"),
	}, nil
}

// Engine exposes the wrapped engine. Callers must not use it concurrently
// with the service.
func (s *Service) Engine() *savings.Engine { return s.engine }

// charge applies the per-address quota. Callers hold s.mu.
func (s *Service) charge(addr [20]byte, amount *big.Int) error {
	epoch := s.quota.Epoch(s.nowFn().Unix())
	next, err := nativecommon.CheckQuota(s.quota, epoch, s.usage[addr], 1, amount)
	if err != nil {
		return err
	}
	s.usage[addr] = next
	return nil
}

// Join enrols the caller. A nil amount pays the fixed segment payment.
func (s *Service) Join(ctx context.Context, caller [20]byte, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.charge(caller, s.expected(amount)); err != nil {
		return err
	}
	return s.engine.Join(ctx, caller, amount)
}

// JoinWhitelisted enrols the caller against a whitelist slot.
func (s *Service) JoinWhitelisted(ctx context.Context, caller [20]byte, index uint64, proof []common.Hash, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.charge(caller, s.expected(amount)); err != nil {
		return err
	}
	return s.engine.JoinWhitelisted(ctx, caller, index, proof, amount)
}

// Deposit pays the caller's current segment.
func (s *Service) Deposit(ctx context.Context, caller [20]byte, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	charged := amount
	if charged == nil {
		if p, err := s.engine.Player(caller); err == nil {
			charged = p.SegmentPayment
		}
	}
	if err := s.charge(caller, charged); err != nil {
		return err
	}
	return s.engine.MakeDeposit(ctx, caller, amount)
}

func (s *Service) expected(amount *big.Int) *big.Int {
	if amount != nil {
		return amount
	}
	return s.engine.Params().SegmentPayment
}

// EarlyExit withdraws the caller before completion.
func (s *Service) EarlyExit(ctx context.Context, caller [20]byte) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.EarlyExit(ctx, caller)
}

// Withdraw settles the caller after completion.
func (s *Service) Withdraw(ctx context.Context, caller [20]byte) (*savings.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Withdraw(ctx, caller)
}

// Redeem pulls the pool back from the yield source.
func (s *Service) Redeem(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.RedeemFromExternalPool(ctx)
}

// AdminWithdraw pays the operator.
func (s *Service) AdminWithdraw(ctx context.Context, caller [20]byte) (*savings.AdminPayout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.AdminFeeWithdraw(ctx, caller)
}

// SetPaused toggles the owner pause.
func (s *Service) SetPaused(ctx context.Context, caller [20]byte, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if paused {
		return s.engine.Pause(ctx, caller)
	}
	return s.engine.Unpause(ctx, caller)
}

// Snapshot is a consistent view of the game and its clock.
type Snapshot struct {
	Game      *savings.Game
	Params    savings.Params
	Clock     savings.SegmentClock
	Segment   uint64
	Completed bool
	Pool      *big.Int
	// Managed is what the yield source holds for the game; PendingRewards
	// are reward tokens it has accrued but not yet released.
	Managed        *big.Int
	PendingRewards *big.Int
}

// Snapshot returns the current game view.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, err := s.engine.Game()
	if err != nil {
		return nil, err
	}
	clock, err := s.engine.Clock()
	if err != nil {
		return nil, err
	}
	params := s.engine.Params()
	pool, err := s.state.Balance(savings.PoolAddress().Bytes(), params.Token)
	if err != nil {
		return nil, err
	}
	adapter := s.engine.Adapter()
	managed, err := adapter.TotalManagedAmount(ctx)
	if err != nil {
		return nil, fmt.Errorf("yield source managed amount: %w", err)
	}
	rewards, err := adapter.RewardBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("yield source reward balance: %w", err)
	}
	now := uint64(s.nowFn().Unix())
	return &Snapshot{
		Game:           game,
		Params:         params,
		Clock:          clock,
		Segment:        clock.CurrentSegment(now),
		Completed:      clock.IsCompleted(now),
		Pool:           pool,
		Managed:        managed,
		PendingRewards: rewards,
	}, nil
}

// PlayerView bundles a player record with its wallet balance.
type PlayerView struct {
	Player  *savings.Player
	Balance *big.Int
	Winner  bool
}

// Player returns the record and base asset balance for addr.
func (s *Service) Player(addr [20]byte) (*PlayerView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	player, err := s.engine.Player(addr)
	if err != nil {
		return nil, err
	}
	balance, err := s.state.Balance(addr[:], s.engine.Params().Token)
	if err != nil {
		return nil, err
	}
	return &PlayerView{
		Player:  player,
		Balance: balance,
		Winner:  player.IsWinner(s.engine.Params().DepositCount),
	}, nil
}

// Events returns up to limit of the most recent events, oldest first.
func (s *Service) Events(limit int) []*types.Event {
	all := s.buffer.Events()
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all
}

// Subscribe streams events committed from now on.
func (s *Service) Subscribe() (<-chan *types.Event, func()) {
	return s.hub.Subscribe()
}

// History queries the event archive.
func (s *Service) History(ctx context.Context, f archive.Filter) ([]archive.Record, error) {
	if s.archive == nil {
		return nil, errArchiveDisabled
	}
	return s.archive.Query(ctx, f)
}

// Audit verifies the archive digest chain.
func (s *Service) Audit(ctx context.Context) (int, error) {
	if s.archive == nil {
		return 0, errArchiveDisabled
	}
	return s.archive.Verify(ctx)
}

// Mint credits amount of the base asset to addr when the faucet is enabled.
func (s *Service) Mint(addr [20]byte, amount *big.Int) (*big.Int, error) {
	if !s.devMint {
		return nil, errDevMintDisabled
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", errBadRequest)
	}
	if s.mintCap != nil && amount.Cmp(s.mintCap) > 0 {
		return nil, errMintCapExceeded
	}
	next, err := s.credit(addr, amount)
	if err != nil {
		return nil, err
	}
	s.logger.Info("dev mint", slog.String("amount", amount.String()))
	return next, nil
}

// credit adds amount of the game token to addr and commits.
func (s *Service) credit(addr [20]byte, amount *big.Int) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := s.engine.Params().Token
	current, err := s.state.Balance(addr[:], token)
	if err != nil {
		return nil, err
	}
	next := new(big.Int).Add(current, amount)
	if err := s.state.SetBalance(addr[:], token, next); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := s.state.Commit(); err != nil {
		return nil, err
	}
	return next, nil
}

// HasArchive reports whether events are archived.
func (s *Service) HasArchive() bool { return s.archive != nil }
