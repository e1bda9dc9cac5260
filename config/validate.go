package config

import (
	"fmt"
	"strings"

	nativecommon "savingsgame/native/common"
	"savingsgame/native/savings/strategy"
)

// MaxEpochSeconds bounds the quota epoch to a day.
var MaxEpochSeconds = uint32(24 * 3600)

// Validate checks cross-section consistency: every token the game or the
// strategy touches must be registered exactly once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	if err := cfg.Game.Validate(); err != nil {
		return fmt.Errorf("game: %w", err)
	}
	if _, err := strategy.New(cfg.Strategy); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}

	seen := make(map[string]struct{}, len(cfg.Tokens))
	for _, token := range cfg.Tokens {
		if token.Symbol == "" {
			return fmt.Errorf("tokens: symbol must not be empty")
		}
		if strings.TrimSpace(token.Name) == "" {
			return fmt.Errorf("tokens: %s: name must not be empty", token.Symbol)
		}
		if _, dup := seen[token.Symbol]; dup {
			return fmt.Errorf("tokens: %s listed twice", token.Symbol)
		}
		seen[token.Symbol] = struct{}{}
	}
	for section, symbol := range map[string]string{
		"game.Token":           cfg.Game.Token,
		"game.IncentiveToken":  cfg.Game.IncentiveToken,
		"strategy.RewardToken": cfg.Strategy.RewardToken,
	} {
		if symbol == "" {
			continue
		}
		if _, ok := seen[strings.ToUpper(symbol)]; !ok {
			return fmt.Errorf("%s: token %s is not registered", section, symbol)
		}
	}
	if reward := cfg.Strategy.RewardToken; reward != "" &&
		(strings.EqualFold(reward, cfg.Game.Token) || strings.EqualFold(reward, cfg.Game.IncentiveToken)) {
		return fmt.Errorf("strategy: reward token %s clashes with a game token", reward)
	}

	for _, name := range cfg.Pauses.Actions {
		switch nativecommon.Action(strings.ToLower(strings.TrimSpace(name))) {
		case nativecommon.ActionJoin, nativecommon.ActionDeposit, nativecommon.ActionEarlyExit, nativecommon.ActionWithdraw:
		default:
			return fmt.Errorf("pauses: unknown action %q", name)
		}
	}

	if cfg.Quota.EpochSeconds > MaxEpochSeconds {
		return fmt.Errorf("quota: epoch_seconds above %d", MaxEpochSeconds)
	}
	if cfg.Quota.MaxAmountPerEpoch != "" && cfg.Quota.EpochSeconds == 0 {
		return fmt.Errorf("quota: amount cap needs epoch_seconds")
	}
	if _, err := cfg.QuotaLimits(); err != nil {
		return err
	}
	return nil
}
