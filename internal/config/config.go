package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/docweaver/docweaver/internal/genai"
	"github.com/docweaver/docweaver/internal/ratelimit"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr                string `yaml:"addr"`
	DrainTimeoutSeconds int    `yaml:"drain_timeout_seconds"`
}

// ModelConfig holds the upstream model settings. The API key is never
// stored in the file; APIKeyEnv names the environment variable holding
// it.
type ModelConfig struct {
	Name            string  `yaml:"name"`
	APIKeyEnv       string  `yaml:"api_key_env"`
	BaseURL         string  `yaml:"base_url,omitempty"`
	Temperature     float64 `yaml:"temperature,omitempty"`
	TopP            float64 `yaml:"top_p,omitempty"`
	TopK            int     `yaml:"top_k,omitempty"`
	MaxOutputTokens int     `yaml:"max_output_tokens,omitempty"`
	TimeoutSeconds  int     `yaml:"timeout_seconds,omitempty"`
}

// QuotaConfig overrides the admission window. Zero values mean derive
// the window from the model's published rate limit.
type QuotaConfig struct {
	MaxCalls      int `yaml:"max_calls,omitempty"`
	WindowSeconds int `yaml:"window_seconds,omitempty"`
}

// Config is the top-level YAML configuration.
type Config struct {
	Server   ServerConfig `yaml:"server"`
	Model    ModelConfig  `yaml:"model"`
	Quota    QuotaConfig  `yaml:"quota,omitempty"`
	LogLevel string       `yaml:"log_level,omitempty"`
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML bytes into a Config.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{Addr: ":8080", DrainTimeoutSeconds: 10},
		Model:  ModelConfig{Name: "gemini-2.5-flash", APIKeyEnv: "GEMINI_API_KEY"},
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks that the config is semantically valid.
func validate(cfg *Config) error {
	if cfg.Server.Addr == "" {
		return fmt.Errorf("server addr cannot be empty")
	}
	if cfg.Server.DrainTimeoutSeconds < 0 {
		return fmt.Errorf("drain timeout cannot be negative")
	}
	if cfg.Model.Name == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if cfg.Model.APIKeyEnv == "" {
		return fmt.Errorf("model api_key_env cannot be empty")
	}
	if cfg.Model.Temperature < 0 || cfg.Model.Temperature > 2 {
		return fmt.Errorf("model temperature must be in [0, 2], got %v", cfg.Model.Temperature)
	}
	if cfg.Quota.MaxCalls < 0 || cfg.Quota.WindowSeconds < 0 {
		return fmt.Errorf("quota values cannot be negative")
	}
	if (cfg.Quota.MaxCalls == 0) != (cfg.Quota.WindowSeconds == 0) {
		return fmt.Errorf("quota max_calls and window_seconds must be set together")
	}
	return nil
}

// APIKey resolves the upstream credential from the environment.
func (c *Config) APIKey() (string, error) {
	key := os.Getenv(c.Model.APIKeyEnv)
	if key == "" {
		return "", fmt.Errorf("environment variable %s is not set", c.Model.APIKeyEnv)
	}
	return key, nil
}

// QuotaLimits returns the admission window, either the explicit
// override or the conservative limit derived from the model name.
func (c *Config) QuotaLimits() ratelimit.Config {
	if c.Quota.MaxCalls > 0 {
		return ratelimit.Config{
			MaxCalls: c.Quota.MaxCalls,
			Window:   time.Duration(c.Quota.WindowSeconds) * time.Second,
		}
	}
	return genai.RecommendedQuota(c.Model.Name)
}

// DrainTimeout returns the shutdown drain window as a duration.
func (c *Config) DrainTimeout() time.Duration {
	return time.Duration(c.Server.DrainTimeoutSeconds) * time.Second
}
