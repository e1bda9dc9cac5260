package strategy

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

var (
	ErrInvalidAmount         = errors.New("strategy: amount must be positive")
	ErrInsufficientLiquidity = errors.New("strategy: insufficient liquidity")
	ErrUnknownKind           = errors.New("strategy: unknown adapter kind")
)

// Adapter is the capability set the savings engine needs from an external
// yield source. Implementations custody the pooled funds between Deposit and
// Withdraw; amounts are in base-asset units.
type Adapter interface {
	Name() string
	// Deposit moves amount into the yield source and returns the value that
	// was actually credited, which may be lower when the source charges an
	// entry fee or slippage.
	Deposit(ctx context.Context, amount *big.Int) (*big.Int, error)
	// Withdraw releases amount from the yield source and returns what was
	// released.
	Withdraw(ctx context.Context, amount *big.Int) (*big.Int, error)
	TotalManagedAmount(ctx context.Context) (*big.Int, error)
	// RewardToken is the symbol of the secondary token emitted by the source,
	// or empty when the source emits none.
	RewardToken() string
	RewardBalance(ctx context.Context) (*big.Int, error)
	// ClaimRewards releases every accrued reward token and returns the amount.
	ClaimRewards(ctx context.Context) (*big.Int, error)
}

// Kind selects an adapter variant.
type Kind string

const (
	KindNoop        Kind = "noop"
	KindMoneyMarket Kind = "moneymarket"
	KindVault       Kind = "vault"
)

// Config captures the construction parameters for every adapter variant.
type Config struct {
	Kind Kind `toml:"Kind"`
	// APRBps is the money market's annual supply rate in basis points.
	APRBps uint64 `toml:"APRBps"`
	// EntryFeeBps is the vault's deposit fee in basis points.
	EntryFeeBps     uint64   `toml:"EntryFeeBps"`
	RewardToken     string   `toml:"RewardToken"`
	RewardPerSecond *big.Int `toml:"RewardPerSecond"`
}

// Option customises adapter construction.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock sets the time source used for accrual.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// New builds the adapter selected by cfg.Kind.
func New(cfg Config, opts ...Option) (Adapter, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	switch Kind(strings.ToLower(strings.TrimSpace(string(cfg.Kind)))) {
	case KindNoop, "":
		return NewNoop(), nil
	case KindMoneyMarket:
		return NewMoneyMarket(cfg.APRBps, cfg.RewardToken, cfg.RewardPerSecond, o.now), nil
	case KindVault:
		if cfg.EntryFeeBps >= basisPointsUnit {
			return nil, fmt.Errorf("strategy: vault entry fee %d bps out of range", cfg.EntryFeeBps)
		}
		return NewVault(cfg.EntryFeeBps, cfg.RewardToken), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

func validAmount(amount *big.Int) bool {
	return amount != nil && amount.Sign() > 0
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
