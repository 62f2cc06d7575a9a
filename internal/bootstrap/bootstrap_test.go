package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xapi/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_PreFlight(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "xapi:\n  account_type: demo\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account_id")

	cfg, err := LoadConfig(writeConfig(t, "xapi:\n  account_id: \"1\"\n  password: pw\n"))
	require.NoError(t, err)
	assert.Equal(t, "1", cfg.XAPI.AccountID)
}

func TestCheckPreFlight_LiveTradingDebug(t *testing.T) {
	off := false
	cfg := config.DefaultConfig()
	cfg.XAPI.AccountID = "1"
	cfg.XAPI.Password = "pw"
	cfg.XAPI.AccountType = "real"
	cfg.XAPI.SafeMode = &off
	cfg.System.LogLevel = "DEBUG"

	assert.Error(t, CheckPreFlight(cfg))

	cfg.System.LogLevel = "INFO"
	assert.NoError(t, CheckPreFlight(cfg))
}

func TestInitLogger(t *testing.T) {
	cfg := config.DefaultConfig()
	logger, err := InitLogger(cfg)
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestInitTelemetry_Disabled(t *testing.T) {
	shutdown, err := InitTelemetry(config.DefaultConfig())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
