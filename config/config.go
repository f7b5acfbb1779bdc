// Package config loads the client configuration from a YAML file with
// ${VAR} environment interpolation and sensible defaults.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full client configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Store   StoreConfig   `yaml:"store"`
	Limits  LimitsConfig  `yaml:"limits"`
	Reveal  RevealConfig  `yaml:"reveal"`
}

// ServiceConfig points at the orchestrator.
type ServiceConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend string `yaml:"backend"` // "json" or "sqlite"
	Path    string `yaml:"path"`
}

// LimitsConfig carries client-side quota settings.
type LimitsConfig struct {
	DailyQuestions int `yaml:"daily_questions"`
}

// RevealConfig tunes paced disclosure of final answers.
type RevealConfig struct {
	Enabled    bool          `yaml:"enabled"`
	ChunkWords int           `yaml:"chunk_words"`
	Interval   time.Duration `yaml:"interval"`
	ChartDelay time.Duration `yaml:"chart_delay"`
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from raw YAML.
func Parse(data []byte) (*Config, error) {
	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Service.Endpoint == "" {
		cfg.Service.Endpoint = "http://localhost:8080"
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "json"
	}
	if cfg.Store.Path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		cfg.Store.Path = home + "/.pulse/conversations"
	}
	if cfg.Limits.DailyQuestions == 0 {
		cfg.Limits.DailyQuestions = 50
	}
	if cfg.Reveal.ChunkWords == 0 {
		cfg.Reveal.ChunkWords = 3
	}
	if cfg.Reveal.Interval == 0 {
		cfg.Reveal.Interval = 40 * time.Millisecond
	}
	if cfg.Reveal.ChartDelay == 0 {
		cfg.Reveal.ChartDelay = 400 * time.Millisecond
	}
}

func validate(cfg *Config) error {
	switch cfg.Store.Backend {
	case "json", "sqlite":
	default:
		return fmt.Errorf("store.backend must be json or sqlite (got %q)", cfg.Store.Backend)
	}
	if cfg.Limits.DailyQuestions < 0 {
		return fmt.Errorf("limits.daily_questions must not be negative")
	}
	if envVarPattern.MatchString(cfg.Service.Token) {
		matches := envVarPattern.FindStringSubmatch(cfg.Service.Token)
		if len(matches) > 1 {
			return fmt.Errorf("service.token: environment variable ${%s} is not set", matches[1])
		}
	}
	return nil
}

// interpolateEnv replaces ${VAR} with environment variable values. Unset
// variables are left as-is so validation can name them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}
