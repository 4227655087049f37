// Package config loads service settings from vidyavahini.yml, an optional
// .env file and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/vidyavahini/vidyavahini/internal/llm"
	"github.com/vidyavahini/vidyavahini/internal/memory"
	"github.com/vidyavahini/vidyavahini/internal/orchestrator"
)

// Environment variables that override file settings.
const (
	EnvGoogleAPIKey = "GOOGLE_API_KEY"
	EnvAPIKey       = "VIDYAVAHINI_API_KEY"
	EnvAddr         = "VIDYAVAHINI_ADDR"
	EnvLogLevel     = "VIDYAVAHINI_LOG_LEVEL"
)

// Config holds every runtime setting.
type Config struct {
	Server       ServerConfig       `yaml:"server,omitempty"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator,omitempty"`
	LLM          llm.Config         `yaml:"llm,omitempty"`
	Memory       MemoryConfig       `yaml:"memory,omitempty"`
	Telemetry    TelemetryConfig    `yaml:"telemetry,omitempty"`

	// Access replaces the built-in access tiers when set.
	Access *orchestrator.Tiers `yaml:"access,omitempty"`

	// Workers lists the catalogue workers to register. Empty registers all.
	Workers []string `yaml:"workers,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `yaml:"addr,omitempty"`
	APIKey          string        `yaml:"apiKey,omitempty"`
	MaxPromptLength int           `yaml:"maxPromptLength,omitempty"`
	RateLimit       int           `yaml:"rateLimit,omitempty"`
	RateWindow      time.Duration `yaml:"rateWindow,omitempty"`
	RequestTimeout  time.Duration `yaml:"requestTimeout,omitempty"`
	AgentTimeout    time.Duration `yaml:"agentTimeout,omitempty"`
	RunHistory      int           `yaml:"runHistory,omitempty"`
}

// OrchestratorConfig configures dispatch.
type OrchestratorConfig struct {
	WorkerTimeout time.Duration `yaml:"workerTimeout,omitempty"`
	MaxParallel   int           `yaml:"maxParallel,omitempty"`
	DefaultMode   string        `yaml:"defaultMode,omitempty"`
	FilterInputs  bool          `yaml:"filterInputs,omitempty"`
}

// MemoryConfig selects the worker memory backend.
type MemoryConfig struct {
	Backend memory.Backend `yaml:"backend,omitempty"`
	// Location is a directory for the file backend and a database path for
	// sqlite.
	Location string `yaml:"location,omitempty"`
}

// TelemetryConfig configures logging and tracing.
type TelemetryConfig struct {
	LogLevel  string `yaml:"logLevel,omitempty"`
	LogFormat string `yaml:"logFormat,omitempty"`
	Tracing   bool   `yaml:"tracing,omitempty"`
}

// Defaults returns the settings used when nothing is configured.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8000",
			MaxPromptLength: 2000,
			RateLimit:       20,
			RateWindow:      60 * time.Second,
			RequestTimeout:  120 * time.Second,
			AgentTimeout:    60 * time.Second,
			RunHistory:      100,
		},
		Orchestrator: OrchestratorConfig{
			WorkerTimeout: 60 * time.Second,
			DefaultMode:   string(orchestrator.ModeSequential),
		},
		LLM: llm.Config{
			Model:       "gemini-2.5-pro",
			Temperature: 0.6,
			TopP:        0.9,
			TopK:        40,
			MaxTokens:   4096,
			Retries:     3,
			RetryDelay:  2 * time.Second,
		},
		Memory: MemoryConfig{
			Backend:  memory.BackendFile,
			Location: "memory",
		},
		Telemetry: TelemetryConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
	}
}

// Load reads vidyavahini.yml or vidyavahini.yaml from dir over the defaults,
// then applies .env and environment overrides. A missing file is not an
// error.
func Load(dir string) (*Config, error) {
	cfg := Defaults()

	for _, name := range []string{"vidyavahini.yml", "vidyavahini.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		break
	}

	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvGoogleAPIKey); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.Server.APIKey = v
	}
	if v := os.Getenv(EnvAddr); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Telemetry.LogLevel = v
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.MaxPromptLength <= 0 {
		return fmt.Errorf("server.maxPromptLength must be positive")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rateLimit must not be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow <= 0 {
		return fmt.Errorf("server.rateWindow must be positive when rateLimit is set")
	}
	if c.Server.RequestTimeout < 0 || c.Server.AgentTimeout < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}
	if c.Orchestrator.MaxParallel < 0 {
		return fmt.Errorf("orchestrator.maxParallel must not be negative")
	}
	if _, err := orchestrator.ParseMode(c.Orchestrator.DefaultMode, orchestrator.ModeSequential); err != nil {
		return fmt.Errorf("orchestrator.defaultMode: %w", err)
	}
	switch c.LLM.Provider {
	case "", llm.ProviderGemini, llm.ProviderOffline:
	default:
		return fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider)
	}
	if c.LLM.Provider == llm.ProviderGemini && c.LLM.APIKey == "" {
		return fmt.Errorf("llm.provider gemini needs %s", EnvGoogleAPIKey)
	}
	switch c.Memory.Backend {
	case memory.BackendNone, "":
	case memory.BackendFile, memory.BackendSQLite:
		if c.Memory.Location == "" {
			return fmt.Errorf("memory.location is required for the %s backend", c.Memory.Backend)
		}
	default:
		return fmt.Errorf("memory.backend %q is not supported", c.Memory.Backend)
	}
	if c.Access != nil && c.Access.LevelThreshold < 0 {
		return fmt.Errorf("access.level_threshold must not be negative")
	}
	switch c.Telemetry.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("telemetry.logFormat %q is not supported", c.Telemetry.LogFormat)
	}
	return nil
}

// Policy returns the access policy the configuration selects.
func (c *Config) Policy() orchestrator.AccessPolicy {
	if c.Access != nil {
		return orchestrator.TieredPolicy(*c.Access)
	}
	return orchestrator.DefaultPolicy()
}

// Mode returns the configured default run mode.
func (c *Config) Mode() orchestrator.Mode {
	m, err := orchestrator.ParseMode(c.Orchestrator.DefaultMode, orchestrator.ModeSequential)
	if err != nil {
		return orchestrator.ModeSequential
	}
	return m
}
