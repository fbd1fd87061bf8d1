package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, "asynq", cfg.Queue.Driver)
	assert.Equal(t, "offline", cfg.Automation.Engine)
	assert.Equal(t, 3, cfg.Automation.StepRetries)
	assert.Equal(t, "videos", cfg.Video.Dir)
	assert.False(t, cfg.Auth.Enabled)
}

func TestLoadFromEnv(t *testing.T) {
	viper.Reset()
	chdir(t, t.TempDir())
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("AUTOMATION_ENGINE", "chromedp")
	t.Setenv("AUTH_ENABLED", "true")
	t.Setenv("VIDEO_FPS", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "chromedp", cfg.Automation.Engine)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, 5, cfg.Video.FPS)
}

func TestLoadReadsSecretFiles(t *testing.T) {
	viper.Reset()
	dir := t.TempDir()
	chdir(t, dir)

	secret := filepath.Join(dir, "groq_key")
	require.NoError(t, os.WriteFile(secret, []byte("gsk_test\n"), 0o600))
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("GROQ_API_KEY_FILE", secret)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gsk_test", cfg.Groq.APIKey)
}

func TestLoadClient(t *testing.T) {
	t.Setenv("VIDEOCTL_API_URL", "http://api.example.com/api")

	cfg := LoadClient(viper.New())
	assert.Equal(t, "http://api.example.com/api", cfg.APIURL)
	assert.Empty(t, cfg.Token)
}

// chdir changes the working directory for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
