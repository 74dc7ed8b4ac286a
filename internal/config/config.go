package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	BaseURL     string
	StateDir    string
	StateSecret string
	HTTPTimeout time.Duration
	AvatarDir   string
}

func Load() (*Config, error) {
	timeout, err := time.ParseDuration(getEnv("PARLEY_HTTP_TIMEOUT", "30s"))
	if err != nil {
		return nil, err
	}

	// The session file defaults to the OS temp directory: it does not
	// survive a reboot, which is what scopes a credential to one
	// "browsing session" instead of making it durable.
	stateDir := getEnv("PARLEY_STATE_DIR", filepath.Join(os.TempDir(), "parley"))

	cfg := &Config{
		BaseURL:     getEnv("PARLEY_BASE_URL", "http://localhost:8000"),
		StateDir:    stateDir,
		StateSecret: os.Getenv("PARLEY_STATE_SECRET"),
		HTTPTimeout: timeout,
		AvatarDir:   getEnv("PARLEY_AVATAR_DIR", filepath.Join(stateDir, "avatars")),
	}

	if cfg.StateSecret == "" {
		// Best-effort machine-local default. The seal guards the token
		// file against casual reads, not against an attacker with the
		// same local access the client has.
		hostname, _ := os.Hostname()
		cfg.StateSecret = "parley:" + hostname
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("PARLEY_BASE_URL is required")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("PARLEY_HTTP_TIMEOUT must be greater than 0")
	}
	return nil
}

// StateFile returns the session state file path inside StateDir.
func (c *Config) StateFile() string {
	return filepath.Join(c.StateDir, "session.db")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
