package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(Flags())
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "0.0.0.0:3000", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "data/static", cfg.Content.StaticDir)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadLayering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
env: staging
server:
  addr: "127.0.0.1:8080"
storage:
  driver: json
  runtime_dir: /var/lib/accelerator
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	t.Setenv("ACCEL_LOG__LEVEL", "warn")
	t.Setenv("ACCEL_SOURCES__REPOS_DIR", "/tmp/repos")

	flags := Flags()
	require.NoError(t, flags.Parse([]string{"--config", path, "--addr", "127.0.0.1:9090"}))

	cfg, err := Load(flags)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Env, "file overrides defaults")
	assert.Equal(t, "json", cfg.Storage.Driver)
	assert.Equal(t, "/var/lib/accelerator", cfg.Storage.RuntimeDir)
	assert.Equal(t, "warn", cfg.Log.Level, "environment overrides file")
	assert.Equal(t, "/tmp/repos", cfg.Sources.ReposDir)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr, "flags override everything")
}

func TestLoadHonoursPortAndNodeEnv(t *testing.T) {
	t.Setenv("PORT", "4321")
	t.Setenv("NODE_ENV", "production")

	cfg, err := Load(Flags())
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:4321", cfg.Server.Addr)
	assert.True(t, cfg.IsProduction())
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("ACCEL_STORAGE__DRIVER", "mongo")

	_, err := Load(Flags())
	assert.Error(t, err)
}

func TestLoadMissingFileIsIgnored(t *testing.T) {
	flags := Flags()
	require.NoError(t, flags.Parse([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")}))

	_, err := Load(flags)
	assert.NoError(t, err)
}
