package savings

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"savingsgame/crypto"
)

const (
	// MaxAdminFeePercent caps the share of gross interest the operator keeps.
	MaxAdminFeePercent = 20
	// MinEarlyExitFeePercent and MaxEarlyExitFeePercent bound the early exit
	// penalty.
	MinEarlyExitFeePercent = 1
	MaxEarlyExitFeePercent = 99
)

// PrecisionScalar is the fixed-point base used by the interest split.
var PrecisionScalar = big.NewInt(1_000_000_000_000_000_000)

// Params captures the immutable configuration of a single game.
type Params struct {
	// Token is the base asset symbol players deposit.
	Token string `toml:"Token"`
	// IncentiveToken optionally names a token donated to the pool and shared
	// by winners.
	IncentiveToken string `toml:"IncentiveToken"`
	// Owner is the bech32 address allowed to pause the game and collect fees.
	Owner string `toml:"Owner"`

	DepositCount       uint64 `toml:"DepositCount"`
	SegmentLength      uint64 `toml:"SegmentLengthSeconds"`
	WaitingRoundLength uint64 `toml:"WaitingRoundSeconds"`

	// SegmentPayment is the fixed per-segment deposit.
	SegmentPayment *big.Int `toml:"SegmentPayment"`
	// FlexibleSegmentPayment lets every player choose their own per-segment
	// amount at join time, bounded by MaxFlexiblePayment.
	FlexibleSegmentPayment bool     `toml:"FlexibleSegmentPayment"`
	MaxFlexiblePayment     *big.Int `toml:"MaxFlexiblePayment"`

	EarlyExitFeePercent uint64 `toml:"EarlyExitFeePercent"`
	AdminFeePercent     uint64 `toml:"AdminFeePercent"`
	MaxPlayers          uint64 `toml:"MaxPlayers"`

	// DepositRoundSharePercent is the share of winner interest allocated by
	// net deposit, scaled by PrecisionScalar. The remainder is allocated by
	// player index.
	DepositRoundSharePercent *big.Int `toml:"DepositRoundSharePercent"`

	// WhitelistRoot enables the whitelist gate when non-zero.
	WhitelistRoot common.Hash `toml:"WhitelistRoot"`
}

// Clone returns a deep copy of the parameters.
func (p Params) Clone() Params {
	clone := p
	clone.SegmentPayment = copyBig(p.SegmentPayment)
	clone.MaxFlexiblePayment = copyBig(p.MaxFlexiblePayment)
	clone.DepositRoundSharePercent = copyBig(p.DepositRoundSharePercent)
	return clone
}

// WhitelistEnabled reports whether joins must present a whitelist proof.
func (p Params) WhitelistEnabled() bool {
	return p.WhitelistRoot != (common.Hash{})
}

// OwnerAddress decodes the configured owner.
func (p Params) OwnerAddress() (crypto.Address, error) {
	owner := strings.TrimSpace(p.Owner)
	if owner == "" {
		return crypto.Address{}, invalidParam("owner must be set")
	}
	addr, err := crypto.DecodeAddress(owner)
	if err != nil {
		return crypto.Address{}, wrap(ErrInvalidParams, err)
	}
	if addr.IsZero() {
		return crypto.Address{}, invalidParam("owner must not be the zero address")
	}
	return addr, nil
}

// Validate checks the parameters before an engine is constructed.
func (p Params) Validate() error {
	if strings.TrimSpace(p.Token) == "" {
		return invalidParam("token must be set")
	}
	if strings.EqualFold(strings.TrimSpace(p.Token), strings.TrimSpace(p.IncentiveToken)) {
		return invalidParam("incentive token must differ from the deposit token")
	}
	if _, err := p.OwnerAddress(); err != nil {
		return err
	}
	if p.DepositCount == 0 {
		return invalidParam("deposit count must be positive")
	}
	if p.SegmentLength == 0 {
		return invalidParam("segment length must be positive")
	}
	if p.FlexibleSegmentPayment {
		if p.MaxFlexiblePayment == nil || p.MaxFlexiblePayment.Sign() <= 0 {
			return invalidParam("max flexible payment must be positive")
		}
	} else if p.SegmentPayment == nil || p.SegmentPayment.Sign() <= 0 {
		return invalidParam("segment payment must be positive")
	}
	if p.EarlyExitFeePercent < MinEarlyExitFeePercent || p.EarlyExitFeePercent > MaxEarlyExitFeePercent {
		return invalidParam("early exit fee %d%% outside [%d, %d]", p.EarlyExitFeePercent, MinEarlyExitFeePercent, MaxEarlyExitFeePercent)
	}
	if p.AdminFeePercent > MaxAdminFeePercent {
		return invalidParam("admin fee %d%% exceeds %d%%", p.AdminFeePercent, MaxAdminFeePercent)
	}
	if p.MaxPlayers == 0 {
		return invalidParam("max players must be positive")
	}
	share := p.DepositRoundSharePercent
	if share == nil || share.Sign() < 0 || share.Cmp(PrecisionScalar) > 0 {
		return invalidParam("deposit round share must be within [0, %s]", PrecisionScalar)
	}
	return nil
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
