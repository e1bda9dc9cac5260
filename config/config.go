package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"savingsgame/crypto"
	"savingsgame/native/savings"
	"savingsgame/native/savings/strategy"
)

// Config is the on-disk description of a single savings game deployment.
type Config struct {
	DataDir string `toml:"DataDir"`
	// OperatorKeystorePath holds the key whose address owns the game.
	OperatorKeystorePath string `toml:"OperatorKeystorePath"`

	Game     savings.Params  `toml:"game"`
	Strategy strategy.Config `toml:"strategy"`
	Tokens   []Token         `toml:"tokens"`
	Pauses   Pauses          `toml:"pauses"`
	Quota    Quota           `toml:"quota"`
}

// Option customises Load.
type Option func(*loadOptions)

type loadOptions struct {
	passphrase string
}

// WithKeystorePassphrase sets the passphrase protecting a generated operator
// keystore.
func WithKeystorePassphrase(passphrase string) Option {
	return func(o *loadOptions) { o.passphrase = passphrase }
}

// Load reads the configuration at path. A missing file is replaced with a
// default single-operator game whose owner key is written next to it.
func Load(path string, opts ...Option) (*Config, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path, o.passphrase)
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./savings-data"
	}
	c.Game.Token = strings.ToUpper(strings.TrimSpace(c.Game.Token))
	c.Game.IncentiveToken = strings.ToUpper(strings.TrimSpace(c.Game.IncentiveToken))
	if c.Game.DepositRoundSharePercent == nil {
		c.Game.DepositRoundSharePercent = new(big.Int).Set(savings.PrecisionScalar)
	}
	if c.Strategy.Kind == "" {
		c.Strategy.Kind = strategy.KindNoop
	}
	c.Strategy.RewardToken = strings.ToUpper(strings.TrimSpace(c.Strategy.RewardToken))
	for i := range c.Tokens {
		c.Tokens[i].Symbol = strings.ToUpper(strings.TrimSpace(c.Tokens[i].Symbol))
		if c.Tokens[i].Decimals == 0 {
			c.Tokens[i].Decimals = 18
		}
	}
}

// VerifyOperator decrypts the operator keystore and checks that it owns the
// configured game.
func (c *Config) VerifyOperator(passphrase string) error {
	if strings.TrimSpace(c.OperatorKeystorePath) == "" {
		return fmt.Errorf("OperatorKeystorePath is not set")
	}
	op, err := crypto.LoadOperatorKey(c.OperatorKeystorePath, passphrase)
	if err != nil {
		return err
	}
	return op.Owns(c.Game.Owner)
}

// createDefault creates and saves a default configuration file.
func createDefault(path, passphrase string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	keystorePath := defaultKeystorePath(path)
	if _, err := crypto.SaveOperatorKey(keystorePath, key, passphrase); err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:              "./savings-data",
		OperatorKeystorePath: keystorePath,
		Game:                 DefaultGame(key.PubKey().Address().String()),
		Strategy:             strategy.Config{Kind: strategy.KindMoneyMarket, APRBps: 500},
		Tokens: []Token{
			{Symbol: "DAI", Name: "Dai Stablecoin", Decimals: 18},
		},
		Quota: Quota{MaxRequestsPerMin: 60, EpochSeconds: 3600},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultGame returns a weekly three-deposit game owned by owner.
func DefaultGame(owner string) savings.Params {
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return savings.Params{
		Token:                    "DAI",
		Owner:                    owner,
		DepositCount:             3,
		SegmentLength:            7 * 24 * 3600,
		WaitingRoundLength:       7 * 24 * 3600,
		SegmentPayment:           new(big.Int).Mul(big.NewInt(10), unit),
		EarlyExitFeePercent:      1,
		AdminFeePercent:          1,
		MaxPlayers:               100,
		DepositRoundSharePercent: new(big.Int).Div(savings.PrecisionScalar, big.NewInt(2)),
	}
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "operator.keystore")
}
