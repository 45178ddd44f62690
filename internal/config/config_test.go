package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progenxxx/hris-sub006/internal/config"
)

// TestLoadConfigFromFile 测试从配置文件加载配置
func TestLoadConfigFromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
database:
  driver: sqlite
  path: ":memory:"
workflow:
  debounce: 400ms
  refresh_interval: 1m
  timezone: Asia/Manila
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	cfg, err := config.Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 400*time.Millisecond, cfg.Workflow.Debounce)
	assert.Equal(t, time.Minute, cfg.Workflow.RefreshInterval)

	loc, err := cfg.Workflow.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Manila", loc.String())
}

// TestLoadConfigFromEnv 测试从环境变量加载配置
func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("APP_SERVER_PORT", "9090")
	t.Setenv("APP_CLIENT_BASE_URL", "http://hris.internal")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "http://hris.internal", cfg.Client.BaseURL)
}

func TestDefaults(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 300*time.Millisecond, cfg.Workflow.Debounce)
	assert.Equal(t, 3, cfg.Client.MaxRetries)
	assert.Equal(t, "hris", cfg.Tracing.ServiceName)
	assert.False(t, config.IsProduction(cfg))
}

func TestValidate(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = "mysql"
	assert.Error(t, cfg.Validate())

	cfg = config.Default()
	cfg.Env = "production"
	assert.ErrorContains(t, cfg.Validate(), "auth.secret")

	cfg = config.Default()
	cfg.Workflow.Timezone = "Mars/Olympus"
	assert.Error(t, cfg.Validate())
}

func TestConfigWatcherReload(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("workflow:\n  refresh_interval: 30s\n"), 0o644))

	cfg, err := config.Load(configPath)
	require.NoError(t, err)

	watcher := config.NewConfigWatcher(cfg, configPath, nil)
	var mu sync.Mutex
	var got *config.Config
	watcher.OnConfigChange(func(c *config.Config) {
		mu.Lock()
		defer mu.Unlock()
		got = c
	})
	require.NoError(t, watcher.Start())
	defer watcher.Stop()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(configPath, []byte("workflow:\n  refresh_interval: 45s\n"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil && got.Workflow.RefreshInterval == 45*time.Second
	}, 3*time.Second, 50*time.Millisecond)
	require.Eventually(t, func() bool {
		return watcher.GetConfig().Workflow.RefreshInterval == 45*time.Second
	}, time.Second, 10*time.Millisecond)
}
