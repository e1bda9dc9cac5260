package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"savingsgame/crypto"
	nativecommon "savingsgame/native/common"
	"savingsgame/native/savings/strategy"
)

const testKeystorePassphrase = "test-passphrase"

var testOwner = func() string {
	var addr [20]byte
	addr[0] = 0x42
	addr[len(addr)-1] = 0x24
	return crypto.AddressFromArray(addr).String()
}()

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "savings.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validGame = `
DataDir = "./data"

[game]
Token = "dai"
IncentiveToken = "inc"
Owner = "%OWNER%"
DepositCount = 4
SegmentLengthSeconds = 600
WaitingRoundSeconds = 300
FlexibleSegmentPayment = true
MaxFlexiblePayment = "50000000000000000000"
EarlyExitFeePercent = 2
AdminFeePercent = 5
MaxPlayers = 25
DepositRoundSharePercent = "250000000000000000"
WhitelistRoot = "0x1111111111111111111111111111111111111111111111111111111111111111"

[strategy]
Kind = "vault"
EntryFeeBps = 25
RewardToken = "gov"

[[tokens]]
Symbol = "DAI"
Name = "Dai Stablecoin"

[[tokens]]
Symbol = "GOV"
Name = "Governance"

[[tokens]]
Symbol = "INC"
Name = "Incentive"
Decimals = 6

[pauses]
Savings = true
Actions = ["Join"]

[quota]
MaxRequestsPerMin = 30
MaxAmountPerEpoch = "1000000000000000000000"
EpochSeconds = 3600
`

func gameConfig(mutate func(string) string) string {
	contents := strings.ReplaceAll(validGame, "%OWNER%", testOwner)
	if mutate != nil {
		contents = mutate(contents)
	}
	return contents
}

func TestLoadParsesGameConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, gameConfig(nil)))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Game.Token != "DAI" || cfg.Game.IncentiveToken != "INC" {
		t.Fatalf("tokens not normalised: %q %q", cfg.Game.Token, cfg.Game.IncentiveToken)
	}
	if cfg.Game.DepositCount != 4 || cfg.Game.SegmentLength != 600 || cfg.Game.WaitingRoundLength != 300 {
		t.Fatalf("unexpected schedule: %+v", cfg.Game)
	}
	if !cfg.Game.FlexibleSegmentPayment || cfg.Game.MaxFlexiblePayment.String() != "50000000000000000000" {
		t.Fatalf("unexpected flexible payment: %v", cfg.Game.MaxFlexiblePayment)
	}
	if cfg.Game.DepositRoundSharePercent.String() != "250000000000000000" {
		t.Fatalf("unexpected deposit round share: %s", cfg.Game.DepositRoundSharePercent)
	}
	if !cfg.Game.WhitelistEnabled() {
		t.Fatalf("expected whitelist root to be decoded")
	}
	if cfg.Strategy.Kind != strategy.KindVault || cfg.Strategy.EntryFeeBps != 25 || cfg.Strategy.RewardToken != "GOV" {
		t.Fatalf("unexpected strategy: %+v", cfg.Strategy)
	}
	if len(cfg.Tokens) != 3 || cfg.Tokens[0].Decimals != 18 || cfg.Tokens[2].Decimals != 6 {
		t.Fatalf("unexpected tokens: %+v", cfg.Tokens)
	}
	if !cfg.Pauses.IsPaused("savings") || cfg.Pauses.IsPaused("swap") {
		t.Fatalf("unexpected pauses: %+v", cfg.Pauses)
	}
	if !cfg.Pauses.IsActionPaused("savings", nativecommon.ActionJoin) || cfg.Pauses.IsActionPaused("savings", nativecommon.ActionWithdraw) {
		t.Fatalf("unexpected action pauses: %+v", cfg.Pauses.Actions)
	}
	limits, err := cfg.QuotaLimits()
	if err != nil {
		t.Fatalf("quota limits: %v", err)
	}
	if limits.MaxRequestsPerMin != 30 || limits.MaxAmountPerEpoch.String() != "1000000000000000000000" {
		t.Fatalf("unexpected quota: %+v", limits)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(string) string
		want   string
	}{
		{
			name:   "unknown key",
			mutate: func(s string) string { return s + "\nBogus = 1\n" },
			want:   "unknown keys",
		},
		{
			name:   "admin fee too high",
			mutate: func(s string) string { return strings.Replace(s, "AdminFeePercent = 5", "AdminFeePercent = 21", 1) },
			want:   "admin fee",
		},
		{
			name:   "unregistered incentive token",
			mutate: func(s string) string { return strings.Replace(s, `IncentiveToken = "inc"`, `IncentiveToken = "usdc"`, 1) },
			want:   "game.IncentiveToken",
		},
		{
			name:   "reward token clashes",
			mutate: func(s string) string { return strings.Replace(s, `RewardToken = "gov"`, `RewardToken = "dai"`, 1) },
			want:   "clashes",
		},
		{
			name:   "unknown strategy",
			mutate: func(s string) string { return strings.Replace(s, `Kind = "vault"`, `Kind = "casino"`, 1) },
			want:   "unknown adapter kind",
		},
		{
			name:   "vault fee out of range",
			mutate: func(s string) string { return strings.Replace(s, "EntryFeeBps = 25", "EntryFeeBps = 10000", 1) },
			want:   "entry fee",
		},
		{
			name: "duplicate token",
			mutate: func(s string) string {
				return s + "\n[[tokens]]\nSymbol = \"dai\"\nName = \"Again\"\n"
			},
			want: "listed twice",
		},
		{
			name:   "bad quota amount",
			mutate: func(s string) string { return strings.Replace(s, `MaxAmountPerEpoch = "1000000000000000000000"`, `MaxAmountPerEpoch = "lots"`, 1) },
			want:   "MaxAmountPerEpoch",
		},
		{
			name:   "unknown paused action",
			mutate: func(s string) string { return strings.Replace(s, `Actions = ["Join"]`, `Actions = ["swap"]`, 1) },
			want:   "unknown action",
		},
		{
			name:   "missing owner",
			mutate: func(s string) string { return strings.Replace(s, `Owner = "`+testOwner+`"`, `Owner = ""`, 1) },
			want:   "owner",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, gameConfig(tc.mutate)))
			if err == nil {
				t.Fatalf("expected error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "savings.toml")

	cfg, err := Load(path, WithKeystorePassphrase(testKeystorePassphrase))
	if err != nil {
		t.Fatalf("create default: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config to be written: %v", err)
	}
	if err := cfg.VerifyOperator(testKeystorePassphrase); err != nil {
		t.Fatalf("operator key does not own the game: %v", err)
	}
	if err := cfg.VerifyOperator("wrong"); err == nil {
		t.Fatalf("expected a wrong passphrase to fail")
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload default: %v", err)
	}
	if reloaded.Game.Owner != cfg.Game.Owner || reloaded.Strategy.Kind != strategy.KindMoneyMarket {
		t.Fatalf("reloaded config differs: %+v", reloaded)
	}
	if reloaded.Game.SegmentPayment.Cmp(cfg.Game.SegmentPayment) != 0 {
		t.Fatalf("segment payment lost in round trip: %s", reloaded.Game.SegmentPayment)
	}
}
