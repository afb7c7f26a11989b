package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: memory
  seed:
    members: [1, 2]
    items: [10]
    points:
      1: 1000
trade:
  lock_backend: local
auth:
  jwt_secret: secret
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Trade.CommitTimeout)
	assert.Equal(t, "trade_executed", cfg.Kafka.Topic.TradeExecuted)
	assert.Equal(t, []int64{1, 2}, cfg.Storage.Seed.Members)
	assert.Equal(t, int64(1000), cfg.Storage.Seed.Points["1"])
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: memory
trade:
  lock_backend: local
  commit_timeout: 3s
auth:
  jwt_secret: from-file
`)
	t.Setenv("STOCKLEDGER_AUTH_JWT_SECRET", "from-env")
	t.Setenv("STOCKLEDGER_SERVER_PORT", "9090")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Trade.CommitTimeout)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown driver": `
storage: {driver: sqlite}
auth: {jwt_secret: s}
`,
		"memory with redis lock": `
storage: {driver: memory}
trade: {lock_backend: redis}
auth: {jwt_secret: s}
`,
		"missing secret": `
storage: {driver: mysql}
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	c := MySQLConfig{Host: "db", Port: 3306, User: "u", Password: "p", Database: "ledger"}
	assert.Equal(t, "u:p@tcp(db:3306)/ledger?charset=utf8mb4&parseTime=True&loc=Local", c.DSN())
}
