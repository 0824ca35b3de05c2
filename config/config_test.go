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

func TestLoadFile_Defaults(t *testing.T) {
	path := writeConfig(t, `
http:
  addr: ":8080"
grpc:
  addr: ":9090"
postgres:
  dsn: "postgres://localhost/wp"
auth:
  mode: trust
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage)
	assert.Equal(t, "watchparty", cfg.Logging.Service)
	assert.Equal(t, "std", cfg.Logging.Backend)
	assert.Equal(t, 30*time.Second, cfg.Party.PingInterval)
	assert.Equal(t, 2*time.Second, cfg.Party.PersistTimeout)
	assert.Equal(t, 1, cfg.Party.PersistRetries)
	assert.Equal(t, 10, cfg.Party.DefaultMaxParticipants)
	assert.Equal(t, 50, cfg.Party.MaxParticipantsLimit)
	assert.Equal(t, time.Minute, cfg.Party.SweepInterval)
	assert.Equal(t, 10*time.Minute, cfg.Party.EndedRoomTTL)
	assert.Equal(t, 30*time.Minute, cfg.Party.IdleRoomTTL)
	assert.Equal(t, "wp:", cfg.Redis.KeyPrefix)
	assert.Equal(t, 24*time.Hour, cfg.Redis.TTL)
	assert.Equal(t, 15*time.Second, cfg.HTTP.WriteTimeout)
}

func TestLoadFile_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
http:
  addr: ":8080"
grpc:
  addr: ":9090"
postgres:
  dsn: "postgres://localhost/wp"
auth:
  mode: trust
`)
	t.Setenv("POSTGRES_DSN", "postgres://db.internal/wp")
	t.Setenv("REDIS_ADDR", "redis.internal:6379")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://db.internal/wp", cfg.Postgres.DSN)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
}

func TestLoadFile_Validation(t *testing.T) {
	cases := map[string]string{
		"missing http addr": `
grpc: {addr: ":9090"}
postgres: {dsn: "x"}
auth: {mode: trust}
`,
		"jwt without key": `
http: {addr: ":8080"}
grpc: {addr: ":9090"}
postgres: {dsn: "x"}
auth: {mode: jwt, issuer: "iss"}
`,
		"unknown auth mode": `
http: {addr: ":8080"}
grpc: {addr: ":9090"}
postgres: {dsn: "x"}
auth: {mode: ldap}
`,
		"postgres without dsn": `
http: {addr: ":8080"}
grpc: {addr: ":9090"}
auth: {mode: trust}
`,
		"unknown storage": `
storage: sqlite
http: {addr: ":8080"}
grpc: {addr: ":9090"}
auth: {mode: trust}
`,
		"default above limit": `
http: {addr: ":8080"}
grpc: {addr: ":9090"}
postgres: {dsn: "x"}
auth: {mode: trust}
party: {defaultMaxParticipants: 20, maxParticipantsLimit: 5}
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("POSTGRES_DSN", "")
			_, err := LoadFile(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile_MemoryStorage(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	cfg, err := LoadFile(writeConfig(t, `
storage: memory
http: {addr: ":8080"}
grpc: {addr: ":9090"}
auth: {mode: trust}
`))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage)
	assert.Empty(t, cfg.Postgres.DSN)
}
