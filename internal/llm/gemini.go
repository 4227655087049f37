package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Compile-time interface check.
var _ Generator = (*Gemini)(nil)

const defaultGeminiModel = "gemini-2.5-pro"

// Gemini generates completions with the Google Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

// NewGemini creates a Gemini generator. An API key is required.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: gemini API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: create gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  model,
		config: buildGenerateConfig(cfg),
	}, nil
}

func buildGenerateConfig(cfg Config) *genai.GenerateContentConfig {
	gc := &genai.GenerateContentConfig{}
	if cfg.Temperature > 0 {
		gc.Temperature = genai.Ptr(float32(cfg.Temperature))
	}
	if cfg.TopP > 0 {
		gc.TopP = genai.Ptr(float32(cfg.TopP))
	}
	if cfg.TopK > 0 {
		gc.TopK = genai.Ptr(float32(cfg.TopK))
	}
	if cfg.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(cfg.MaxTokens)
	}
	return gc
}

// Model returns the model name.
func (g *Gemini) Model() string {
	return g.model
}

// Generate sends prompt as a single user turn and returns the response text.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("llm: empty prompt")
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), g.config)
	if err != nil {
		return "", fmt.Errorf("llm: gemini generation failed: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("llm: empty response from gemini")
	}
	return strings.TrimSpace(resp.Text()), nil
}
