package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"creatoros-backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
server:
  port: 8080
store:
  type: memory
jwt:
  secret: "0123456789abcdef0123456789abcdef"
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := config.Parse([]byte(baseYAML))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Ledger.MaxAttempts)
	assert.Equal(t, 10, cfg.Ledger.RetryInitialIntervalMs)
	assert.Equal(t, 100, cfg.Ledger.RetryMaxIntervalMs)
	assert.Equal(t, 20, cfg.Ledger.HistoryDefaultLimit)
	assert.Equal(t, 100, cfg.Ledger.HistoryMaxLimit)
	assert.Equal(t, config.DefaultSignupGrants(), cfg.Ledger.SignupGrants)
	assert.Equal(t, "ledger.entries", cfg.Events.Topic)
	assert.Equal(t, 4, cfg.Events.Workers)
	assert.Equal(t, 1024, cfg.Events.QueueSize)
	assert.Equal(t, 5000, cfg.Events.PublishTimeoutMs)
	assert.Equal(t, "0 */15 * * * *", cfg.Scheduler.ReconcileBalances)
	assert.Equal(t, "creatoros-auth", cfg.JWT.Issuer)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.GetServerAddress())
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Parse([]byte(baseYAML))
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.KafkaBrokers)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"ShortSecret", "server:\n  port: 8080\nstore:\n  type: memory\njwt:\n  secret: short\n"},
		{"BadPort", "server:\n  port: 0\nstore:\n  type: memory\njwt:\n  secret: 0123456789abcdef0123456789abcdef\n"},
		{"PostgresWithoutHost", "server:\n  port: 8080\njwt:\n  secret: 0123456789abcdef0123456789abcdef\n"},
		{"UnknownStore", "server:\n  port: 8080\nstore:\n  type: sqlite\njwt:\n  secret: 0123456789abcdef0123456789abcdef\n"},
		{"NegativeGrant", baseYAML + "ledger:\n  signup_grants:\n    free: -1\n"},
		{"DefaultAboveMax", baseYAML + "ledger:\n  history_default_limit: 50\n  history_max_limit: 10\n"},
		{"NegativeQueue", baseYAML + "events:\n  queue_size: -1\n"},
		{"Malformed", "server: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad_PostgresConnectionString(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
server:
  port: 8080
database:
  host: db
  user: creatoros
  password: secret
  database: ledger
jwt:
  secret: "0123456789abcdef0123456789abcdef"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.StoreTypePostgres, cfg.Store.Type)
	assert.Equal(t, "postgres://creatoros:secret@db:5432/ledger?sslmode=disable", cfg.GetDatabaseConnectionString())

	_, err = config.Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestGetSecurityLevel(t *testing.T) {
	assert.Equal(t, config.SecurityPublic, config.GetSecurityLevel(config.RouteHealth))
	assert.Equal(t, config.SecurityMember, config.GetSecurityLevel(config.RouteConsume))
	assert.Equal(t, config.SecurityAdmin, config.GetSecurityLevel(config.RouteAdjust))
	assert.Equal(t, config.SecuritySystem, config.GetSecurityLevel(config.RoutePurchase))
	assert.Equal(t, config.SecuritySystem, config.GetSecurityLevel("unknown.route"))
}
