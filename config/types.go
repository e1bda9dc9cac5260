package config

import (
	"strings"

	nativecommon "savingsgame/native/common"
)

// Token registers an asset in the state bank before the game starts.
type Token struct {
	Symbol   string `toml:"Symbol"`
	Name     string `toml:"Name"`
	Decimals uint8  `toml:"Decimals"`
}

// Pauses lists modules halted by the operator independently of the in-game
// pause flag.
type Pauses struct {
	Savings bool `toml:"Savings"`
	// Actions halts single player operations, keyed by action name such as
	// "join" or "early_exit". Withdrawals can be halted too, which freezes
	// settled funds until the operator lifts it.
	Actions []string `toml:"Actions"`
}

// IsPaused implements common.PauseView.
func (p Pauses) IsPaused(module string) bool {
	switch strings.ToLower(strings.TrimSpace(module)) {
	case "savings":
		return p.Savings
	default:
		return false
	}
}

// IsActionPaused implements common.ActionPauseView.
func (p Pauses) IsActionPaused(module string, action nativecommon.Action) bool {
	if strings.ToLower(strings.TrimSpace(module)) != "savings" {
		return false
	}
	for _, name := range p.Actions {
		if nativecommon.Action(strings.ToLower(strings.TrimSpace(name))) == action {
			return true
		}
	}
	return false
}

// Quota defines per-address limits on state-changing requests.
type Quota struct {
	MaxRequestsPerMin uint32 `toml:"MaxRequestsPerMin"`
	// MaxAmountPerEpoch bounds the base asset a single address may move per
	// epoch, as a decimal string in base units. Empty disables the cap.
	MaxAmountPerEpoch string `toml:"MaxAmountPerEpoch"`
	EpochSeconds      uint32 `toml:"EpochSeconds"`
}
