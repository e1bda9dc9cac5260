package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupRenamesCoreKeys(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := Setup("gamed", "test", WithOutput(&buf), WithLevel("warn"))
	logger.Info("dropped")
	logger.Warn("kept", MaskField("token", "secret"), MaskField("player", "sav1xyz"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "kept", line["message"])
	require.Equal(t, "WARN", line["severity"])
	require.Equal(t, "gamed", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, RedactedValue, line["token"])
	require.Equal(t, "sav1xyz", line["player"])
	require.Contains(t, line, "timestamp")
}

func TestSetupMasksSensitiveKeys(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := Setup("gamed", "", WithOutput(&buf))
	logger.Info("request",
		"authorization", "Bearer abc.def",
		"passphrase", "hunter2",
		"hmac_secret", "",
		"player", "sav1xyz",
		"route", "/v1/deposit")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "Bearer "+RedactedValue, line["authorization"])
	require.Equal(t, RedactedValue, line["passphrase"])
	require.Equal(t, "", line["hmac_secret"])
	require.Equal(t, "sav1xyz", line["player"])
	require.Equal(t, "/v1/deposit", line["route"])
	require.NotContains(t, line, "env")
}

func TestMaskAuthorization(t *testing.T) {
	require.Equal(t, "Bearer "+RedactedValue, MaskAuthorization("Bearer abc.def.ghi"))
	require.Equal(t, RedactedValue, MaskAuthorization("opaque"))
	require.Equal(t, "", MaskAuthorization(""))
	require.Contains(t, RedactionAllowlist(), "request_id")
}
