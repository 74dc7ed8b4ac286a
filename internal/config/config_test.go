package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// unsetenv clears a variable for the test and restores it afterwards.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, os.Getenv(key))
	require.NoError(t, os.Unsetenv(key))
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PARLEY_BASE_URL", "PARLEY_STATE_DIR", "PARLEY_STATE_SECRET", "PARLEY_HTTP_TIMEOUT"} {
		unsetenv(t, key)
	}

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8000", cfg.BaseURL)
	require.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	require.NotEmpty(t, cfg.StateDir)
	require.NotEmpty(t, cfg.StateSecret)
}

func TestLoadEmptyBaseURLFails(t *testing.T) {
	t.Setenv("PARLEY_BASE_URL", "")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PARLEY_BASE_URL", "http://chat.example.com:9000")
	t.Setenv("PARLEY_STATE_DIR", "/tmp/parley-test")
	t.Setenv("PARLEY_STATE_SECRET", "hunter2")
	t.Setenv("PARLEY_HTTP_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://chat.example.com:9000", cfg.BaseURL)
	require.Equal(t, "/tmp/parley-test", cfg.StateDir)
	require.Equal(t, "hunter2", cfg.StateSecret)
	require.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	require.Equal(t, filepath.Join("/tmp/parley-test", "session.db"), cfg.StateFile())
	require.Equal(t, filepath.Join("/tmp/parley-test", "avatars"), cfg.AvatarDir)
}

func TestLoadDefaultSecret(t *testing.T) {
	t.Setenv("PARLEY_STATE_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.NotEmpty(t, cfg.StateSecret)
}

func TestLoadInvalidTimeout(t *testing.T) {
	t.Setenv("PARLEY_HTTP_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
}

func TestValidateRejectsZeroTimeout(t *testing.T) {
	cfg := &Config{BaseURL: "http://localhost:8000"}
	require.Error(t, cfg.Validate())
}
