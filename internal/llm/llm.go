// Package llm wraps the hosted language model that agents prompt.
//
// Workers see only the Generator interface: a prompt goes in, raw text comes
// out. Provider selection, retries and JSON cleanup live here so that every
// worker treats the model as an opaque capability.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Generator produces a text completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Provider identifies a Generator implementation.
type Provider string

const (
	ProviderGemini  Provider = "gemini"
	ProviderOffline Provider = "offline"
)

// Config selects and tunes the Generator.
type Config struct {
	Provider    Provider      `yaml:"provider,omitempty"`
	APIKey      string        `yaml:"apiKey,omitempty"`
	Model       string        `yaml:"model,omitempty"`
	Temperature float64       `yaml:"temperature,omitempty"`
	TopP        float64       `yaml:"topP,omitempty"`
	TopK        int           `yaml:"topK,omitempty"`
	MaxTokens   int           `yaml:"maxTokens,omitempty"`
	Retries     int           `yaml:"retries,omitempty"`
	RetryDelay  time.Duration `yaml:"retryDelay,omitempty"`
}

// Detect picks the provider to use when none is configured: Gemini when an
// API key is available, the offline generator otherwise.
func Detect(cfg Config) Provider {
	if cfg.Provider != "" {
		return cfg.Provider
	}
	if strings.TrimSpace(cfg.APIKey) != "" {
		return ProviderGemini
	}
	return ProviderOffline
}

// New builds the Generator described by cfg, wrapped with retries.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Generator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var gen Generator
	provider := Detect(cfg)
	switch provider {
	case ProviderGemini:
		g, err := NewGemini(ctx, cfg)
		if err != nil {
			return nil, err
		}
		gen = g
	case ProviderOffline:
		gen = Offline{}
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", provider)
	}

	logger.Info("llm provider selected", "provider", provider, "model", cfg.Model)

	if cfg.Retries > 1 {
		gen = WithRetry(gen, cfg.Retries, cfg.RetryDelay, logger)
	}
	return gen, nil
}
