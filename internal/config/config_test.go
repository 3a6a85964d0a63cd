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

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: sqlite\n  dsn: file::memory:\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.Queue.WindowMinutes)
	assert.Equal(t, 15*time.Minute, cfg.Queue.WindowDuration())
	assert.Equal(t, 1, cfg.Queue.WindowSize)
	assert.Equal(t, 100, cfg.Queue.MaxQueueSize)
	assert.Equal(t, 30*time.Second, cfg.Queue.LockTTL)
	assert.Equal(t, 3, cfg.Notification.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Notification.RetryInterval)
	assert.Equal(t, time.Hour, cfg.Metrics.CacheTTL)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: sqlite\n  dsn: file::memory:\nqueue:\n  window_minutes: 5\n")
	t.Setenv("SHIFTQ_QUEUE_WINDOW_MINUTES", "20")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Queue.WindowMinutes)
}

func TestValidate_RejectsBadPayloadKey(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: sqlite\n  dsn: x\nnotification:\n  payload_key: abcd\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_EmailRequiresPayloadKey(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: sqlite\n  dsn: x\nemail:\n  smtp_host: smtp.example.com\n")

	_, err := Load(path)
	assert.ErrorContains(t, err, "payload_key")
}
