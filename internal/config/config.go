package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries everything the board needs at runtime. Values come from an
// optional YAML file with environment variables taking precedence.
type Config struct {
	Port         int    `yaml:"port"`
	DBPath       string `yaml:"db_path"`
	SnapshotPath string `yaml:"snapshot_path"`
	LogLevel     string `yaml:"log_level"`

	// Bearer token for the board's own HTTP API. Empty disables auth.
	APIToken string `yaml:"api_token"`

	// Jules automation. An empty key means sessions are never created and
	// moves to doing stay manual.
	JulesAPIKey  string `yaml:"jules_api_key"`
	JulesBaseURL string `yaml:"jules_base_url"`

	// Per-call timeout for remote session requests.
	SessionTimeout time.Duration `yaml:"session_timeout"`

	// Optional timer-driven session refresh. Zero means refresh only on
	// explicit user action.
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// UnmarshalYAML decodes the config, accepting Go duration strings ("30s",
// "5m") for the duration fields. Fields absent from the document keep their
// current values, so defaults survive a partial file.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		Port            int    `yaml:"port"`
		DBPath          string `yaml:"db_path"`
		SnapshotPath    string `yaml:"snapshot_path"`
		LogLevel        string `yaml:"log_level"`
		APIToken        string `yaml:"api_token"`
		JulesAPIKey     string `yaml:"jules_api_key"`
		JulesBaseURL    string `yaml:"jules_base_url"`
		SessionTimeout  string `yaml:"session_timeout"`
		RefreshInterval string `yaml:"refresh_interval"`
	}{
		Port:            c.Port,
		DBPath:          c.DBPath,
		SnapshotPath:    c.SnapshotPath,
		LogLevel:        c.LogLevel,
		APIToken:        c.APIToken,
		JulesAPIKey:     c.JulesAPIKey,
		JulesBaseURL:    c.JulesBaseURL,
		SessionTimeout:  c.SessionTimeout.String(),
		RefreshInterval: c.RefreshInterval.String(),
	}

	if err := value.Decode(&raw); err != nil {
		return err
	}

	sessionTimeout, err := time.ParseDuration(raw.SessionTimeout)
	if err != nil {
		return fmt.Errorf("invalid session_timeout: %w", err)
	}
	refreshInterval, err := time.ParseDuration(raw.RefreshInterval)
	if err != nil {
		return fmt.Errorf("invalid refresh_interval: %w", err)
	}

	c.Port = raw.Port
	c.DBPath = raw.DBPath
	c.SnapshotPath = raw.SnapshotPath
	c.LogLevel = raw.LogLevel
	c.APIToken = raw.APIToken
	c.JulesAPIKey = raw.JulesAPIKey
	c.JulesBaseURL = raw.JulesBaseURL
	c.SessionTimeout = sessionTimeout
	c.RefreshInterval = refreshInterval
	return nil
}

const DefaultJulesBaseURL = "https://jules.googleapis.com/v1alpha"

// Load reads the config file at path (missing file is fine, defaults apply)
// and then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Port:           8990,
		DBPath:         ".julesboard/board.db",
		SnapshotPath:   ".julesboard/snapshot.jsonl",
		LogLevel:       "info",
		JulesBaseURL:   DefaultJulesBaseURL,
		SessionTimeout: 30 * time.Second,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	cfg.Port = envInt("JULESBOARD_PORT", cfg.Port)
	cfg.DBPath = envStr("JULESBOARD_DB_PATH", cfg.DBPath)
	cfg.SnapshotPath = envStr("JULESBOARD_SNAPSHOT_PATH", cfg.SnapshotPath)
	cfg.LogLevel = envStr("JULESBOARD_LOG_LEVEL", cfg.LogLevel)
	cfg.APIToken = envStr("JULESBOARD_API_TOKEN", cfg.APIToken)
	cfg.JulesAPIKey = envStr("JULES_API_KEY", cfg.JulesAPIKey)
	cfg.JulesBaseURL = envStr("JULES_BASE_URL", cfg.JulesBaseURL)
	cfg.SessionTimeout = envDuration("JULESBOARD_SESSION_TIMEOUT", cfg.SessionTimeout)
	cfg.RefreshInterval = envDuration("JULESBOARD_REFRESH_INTERVAL", cfg.RefreshInterval)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.JulesBaseURL == "" {
		return fmt.Errorf("jules_base_url must not be empty")
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("session_timeout must be positive, got %s", c.SessionTimeout)
	}
	if c.RefreshInterval < 0 {
		return fmt.Errorf("refresh_interval must not be negative, got %s", c.RefreshInterval)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
