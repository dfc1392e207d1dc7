package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slimefarm/ledger-engine/internal/fault"
	"github.com/slimefarm/ledger-engine/internal/units"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "@every 3s", cfg.Chain.BlockInterval)
	assert.Equal(t, uint32(500), *cfg.Tax.BuyFeeBps)
	assert.Equal(t, uint32(1000), *cfg.Tax.SellFeeBps)
	assert.Equal(t, uint32(2000), *cfg.Tax.LaunchSellFeeBps)
	assert.Len(t, cfg.Tax.Destinations, 3)
	assert.Len(t, cfg.Positions.APRBps, len(cfg.Positions.LevelThresholds)+1)
	assert.Equal(t, []string{"deployer"}, cfg.Owners)

	g, err := cfg.Tokenomics()
	require.NoError(t, err)
	assert.Equal(t, units.Tokens(1_000_000_000), g.InitialSupply)
	assert.Equal(t, int64(24*60*60), g.Tax.LaunchWindow)
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
  rate_limit: 5
storage:
  sqlite_path: /tmp/ledger.db
  cache_ttl: 1m
tax:
  buy_fee_bps: 0
  sell_fee_bps: 300
  launch_window: 30m
  destinations:
    - account: rewards
      weight_bps: 10000
positions:
  base_principal: "25.5"
  level_thresholds: ["100", "200"]
  apr_bps: [1000, 2000, 3000]
owners: [deployer, ops]
log:
  level: debug
  format: text
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 5.0, cfg.Server.RateLimit)
	assert.Equal(t, time.Minute, cfg.Storage.CacheTTL)
	assert.Equal(t, uint32(0), *cfg.Tax.BuyFeeBps, "explicit zero survives defaults")
	assert.Equal(t, 30*time.Minute, cfg.Tax.LaunchWindow)

	g, err := cfg.Tokenomics()
	require.NoError(t, err)
	assert.Equal(t, units.MustParse("25.5"), g.Params.BasePrincipal)
	assert.Len(t, g.Params.Thresholds, 2)
	assert.Equal(t, int64(1800), g.Tax.LaunchWindow)
	assert.Len(t, g.Owners, 2)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: \"9090\"\n")
	t.Setenv("PORT", "7000")
	t.Setenv("DATABASE_URL", "postgres://localhost/ledger")
	t.Setenv("BLOCK_INTERVAL", "@every 1s")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "postgres://localhost/ledger", cfg.Storage.DatabaseURL)
	assert.Equal(t, "@every 1s", cfg.Chain.BlockInterval)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unclosed"))
	require.Error(t, err)
}

func TestTokenomics_RejectsBadValues(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Tax.Destinations = []DestinationConfig{{Account: "rewards", WeightBps: 9000}}
	_, err = cfg.Tokenomics()
	assert.ErrorIs(t, err, fault.ErrInvalidPolicy)

	cfg, err = Load("")
	require.NoError(t, err)
	cfg.Positions.LevelThresholds = []string{"10", "abc"}
	_, err = cfg.Tokenomics()
	assert.ErrorIs(t, err, fault.ErrInvalidPolicy)
	assert.Contains(t, err.Error(), "level_thresholds[1]")

	cfg, err = Load("")
	require.NoError(t, err)
	cfg.Token.Escrow = cfg.Token.Contract
	_, err = cfg.Tokenomics()
	assert.ErrorIs(t, err, fault.ErrInvalidPolicy)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"k":"v"`)
}
