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

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "service:\n  name: rp-allocations\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8086, cfg.Server.Port)
	assert.Equal(t, 9086, cfg.Server.GRPCPort)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 5, cfg.Database.MaxRetries)
	assert.False(t, cfg.NATS.Enabled)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
service:
  environment: production
server:
  port: 9000
database:
  host: db.internal
  max_conns: 25
store:
  driver: memory
  seed_file: seed.yaml
`)
	t.Setenv("RPA_DATABASE_HOST", "db.override")
	t.Setenv("RPA_SERVER_SHUTDOWN_TIMEOUT", "3s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Service.Environment)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "db.override", cfg.Database.Host)
	assert.Equal(t, int32(25), cfg.Database.MaxConns)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "seed.yaml", cfg.Store.SeedFile)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Server: ServerConfig{Port: 1, GRPCPort: 2},
			Store:  StoreConfig{Driver: "memory", SeedFile: "seed.yaml"},
		}
	}

	c := base()
	assert.NoError(t, c.Validate())

	c = base()
	c.Store.Driver = "sqlite"
	assert.Error(t, c.Validate())

	c = base()
	c.NATS = NATSConfig{Enabled: true}
	assert.Error(t, c.Validate())

	c = base()
	c.Store.SeedFile = ""
	assert.ErrorContains(t, c.Validate(), "store.seed_file")

	c = base()
	c.Store = StoreConfig{Driver: "postgres"}
	assert.NoError(t, c.Validate())
}
