package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range EnvKV(C{}) {
		prior, had := os.LookupEnv(kv.Key)
		require.NoError(t, os.Unsetenv(kv.Key))
		if had {
			t.Cleanup(func() { _ = os.Setenv(kv.Key, prior) })
		}
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, "orly", cfg.AppName)
	require.Equal(t, "0.0.0.0", cfg.Listen)
	require.Equal(t, 3334, cfg.Port)
	require.Equal(t, 60, cfg.EventsPerWindow)
	require.Equal(t, 120, cfg.QueriesPerWindow)
	require.Equal(t, 10, cfg.MaxConnections)
	require.NotEmpty(t, cfg.Config)
	require.NotEmpty(t, cfg.DataDir)
}

func TestNewReadsProcessEnv(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.Setenv("ORLY_PORT", "4000"))
	require.NoError(t, os.Setenv("ORLY_AUTH_REQUIRED", "true"))
	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, 4000, cfg.Port)
	require.True(t, cfg.AuthRequired)
}

func TestNewOverlaysDotEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(
		t, os.WriteFile(
			filepath.Join(dir, ".env"), []byte("ORLY_RELAY_NAME=from-dotenv\n"), 0o600,
		),
	)
	require.NoError(t, os.Setenv("ORLY_CONFIG_DIR", dir))
	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, "from-dotenv", cfg.RelayName)
}

func TestPrintEnvRoundTrips(t *testing.T) {
	cfg := &C{AppName: "orly", Port: 3334, Listen: "0.0.0.0"}
	var buf bytes.Buffer
	PrintEnv(cfg, &buf)
	require.Contains(t, buf.String(), "ORLY_PORT=3334")
	require.Contains(t, buf.String(), "ORLY_LISTEN=0.0.0.0")
}
