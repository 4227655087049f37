package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Offline is a deterministic Generator used when no model is configured. It
// answers every prompt with a JSON object describing the request, which keeps
// the full pipeline exercisable without network access.
type Offline struct{}

// Generate returns a fenced JSON document echoing the prompt.
func (Offline) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := json.Marshal(map[string]any{
		"offline": true,
		"prompt":  prompt,
	})
	if err != nil {
		return "", fmt.Errorf("llm: offline marshal: %w", err)
	}
	return "```json\n" + string(data) + "\n```", nil
}
