package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"savingsgame/services/gamed"
)

func TestLoadGameVerifiesOperator(t *testing.T) {
	dir := t.TempDir()
	passFile := filepath.Join(dir, "operator.pass")
	require.NoError(t, os.WriteFile(passFile, []byte("correct horse\n"), 0o600))

	cfg := gamed.Config{
		GameConfig: filepath.Join(dir, "savings.toml"),
		Operator: gamed.OperatorConfig{
			PassphraseEnv:  "GAMED_TEST_UNSET_PASS",
			PassphraseFile: passFile,
			VerifyOnStart:  true,
		},
	}
	gameCfg, err := loadGame(cfg)
	require.NoError(t, err)
	require.FileExists(t, cfg.GameConfig)
	require.FileExists(t, gameCfg.OperatorKeystorePath)

	require.NoError(t, os.WriteFile(passFile, []byte("wrong horse\n"), 0o600))
	_, err = loadGame(cfg)
	require.ErrorContains(t, err, "verify operator")

	cfg.Operator.VerifyOnStart = false
	_, err = loadGame(cfg)
	require.NoError(t, err)
}
