package config

import (
	"fmt"
	"math/big"
	"strings"

	nativecommon "savingsgame/native/common"
)

// QuotaLimits parses the configured quota into runtime values.
func (c *Config) QuotaLimits() (nativecommon.Quota, error) {
	limits := nativecommon.Quota{
		MaxRequestsPerMin: c.Quota.MaxRequestsPerMin,
		EpochSeconds:      c.Quota.EpochSeconds,
	}
	amount, err := parseUintAmount(c.Quota.MaxAmountPerEpoch)
	if err != nil {
		return limits, fmt.Errorf("invalid quota.MaxAmountPerEpoch: %w", err)
	}
	limits.MaxAmountPerEpoch = amount
	return limits, nil
}

func parseUintAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%q is not a base-10 integer", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("%q must not be negative", value)
	}
	return amount, nil
}
