package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"savingsgame/cmd/internal/passphrase"
	"savingsgame/config"
	"savingsgame/observability/logging"
	telemetry "savingsgame/observability/otel"
	"savingsgame/services/gamed"
	"savingsgame/services/gamed/archive"
	"savingsgame/services/gamed/middleware"
	"savingsgame/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to gamed YAML configuration")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "gamed: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := gamed.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup("gamed", cfg.Environment,
		logging.WithLevel(cfg.Log.Level),
		logging.WithFile(cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups, cfg.Log.MaxAgeDays))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gameCfg, err := loadGame(cfg)
	if err != nil {
		return err
	}
	if cfg.Operator.VerifyOnStart {
		logger.Info("operator keystore verified", "owner", gameCfg.Game.Owner)
	}

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry, telemetry.Game{
		Owner:        gameCfg.Game.Owner,
		Token:        gameCfg.Game.Token,
		Strategy:     string(gameCfg.Strategy.Kind),
		DepositCount: gameCfg.Game.DepositCount,
	})
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	db, err := openDatabase(cfg, gameCfg.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	opts := []gamed.Option{
		gamed.WithLogger(logger),
		gamed.WithEventBuffer(cfg.EventBuffer),
	}
	if dsn := strings.TrimSpace(cfg.Archive.DSN); dsn != "" {
		store, err := archive.Open(dsn, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, gamed.WithArchive(store))
		if every := cfg.Archive.ExportEvery.Duration; every > 0 {
			stop, err := store.ScheduleExports(cfg.Archive.ExportDir, every)
			if err != nil {
				return fmt.Errorf("schedule archive exports: %w", err)
			}
			defer func() {
				if err := stop(); err != nil {
					logger.Warn("stop archive exports", "error", err)
				}
			}()
		}
	}
	if cfg.Dev.Mint {
		var limit *big.Int
		if raw := strings.TrimSpace(cfg.Dev.MintCap); raw != "" {
			parsed, ok := new(big.Int).SetString(raw, 10)
			if !ok || parsed.Sign() <= 0 {
				return fmt.Errorf("dev.mint_cap %q must be a positive integer", raw)
			}
			limit = parsed
		}
		opts = append(opts, gamed.WithDevMint(limit))
		logger.Warn("dev faucet enabled")
	}
	svc, err := gamed.NewService(ctx, gameCfg, db, opts...)
	if err != nil {
		return fmt.Errorf("start game: %w", err)
	}

	srv, err := gamed.NewServer(svc, gamed.ServerConfig{
		Auth: middleware.AuthConfig{
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ScopeClaim: cfg.Auth.ScopeClaim,
			ClockSkew:  cfg.Auth.ClockSkew.Duration,
		},
		AdminScope: cfg.Auth.AdminScope,
		RateLimit: middleware.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("configure server: %w", err)
	}

	server := &http.Server{Addr: cfg.ListenAddress, Handler: srv}
	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("gamed listening", "address", listener.Addr().String(), "owner", gameCfg.Game.Owner)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	return nil
}

// loadGame reads the game definition, writing a default one with a fresh
// operator key when none exists. The operator passphrase is only resolved
// when a keystore must be written or verified.
func loadGame(cfg gamed.Config) (*config.Config, error) {
	source := passphrase.New(passphrase.Config{
		EnvVar: cfg.Operator.PassphraseEnv,
		File:   cfg.Operator.PassphraseFile,
	})
	var loadOpts []config.Option
	if _, err := os.Stat(cfg.GameConfig); errors.Is(err, os.ErrNotExist) {
		source = passphrase.New(passphrase.Config{
			EnvVar:  cfg.Operator.PassphraseEnv,
			File:    cfg.Operator.PassphraseFile,
			Confirm: true,
		})
		pass, err := source.Get()
		if err != nil {
			return nil, err
		}
		loadOpts = append(loadOpts, config.WithKeystorePassphrase(pass))
	}
	gameCfg, err := config.Load(cfg.GameConfig, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load game config: %w", err)
	}
	if !cfg.Operator.VerifyOnStart {
		return gameCfg, nil
	}
	pass, err := source.Get()
	if err != nil {
		return nil, err
	}
	if err := gameCfg.VerifyOperator(pass); err != nil {
		return nil, fmt.Errorf("verify operator: %w", err)
	}
	return gameCfg, nil
}

func openDatabase(cfg gamed.Config, dataDir string) (storage.Database, error) {
	if !cfg.Persist {
		return storage.NewMemDB(), nil
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	switch cfg.StorageBackend {
	case gamed.BackendBolt:
		db, err := storage.NewBoltDB(filepath.Join(dataDir, "ledger.db"))
		if err != nil {
			return nil, fmt.Errorf("open bolt ledger: %w", err)
		}
		return db, nil
	default:
		db, err := storage.NewLevelDB(dataDir)
		if err != nil {
			return nil, fmt.Errorf("open leveldb ledger: %w", err)
		}
		return db, nil
	}
}
