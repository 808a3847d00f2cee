package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	// Run from a directory with no config file; defaults must carry.
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(cwd) })

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000/api", cfg.API.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.API.Timeout())
	assert.Equal(t, "ws://localhost:8000/ws", cfg.Transport.URL)
	assert.True(t, cfg.Transport.Reconnect)
	assert.Equal(t, 60*time.Second, cfg.Sync.RepullInterval())
	assert.Equal(t, "127.0.0.1:9180", cfg.Status.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
}
