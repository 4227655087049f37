package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeError reports model output that is not a JSON object.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("llm: invalid JSON in model output: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// CleanJSON strips Markdown code fences (```json ... ```) and surrounding
// whitespace from raw model output.
func CleanJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.HasPrefix(strings.TrimSpace(s[:nl]), "{") {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "json")
		}
		s = strings.TrimSpace(s)
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

// DecodeJSON cleans raw model output and decodes it as a JSON object.
func DecodeJSON(raw string) (map[string]any, error) {
	cleaned := CleanJSON(raw)
	var out map[string]any
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, &DecodeError{Raw: raw, Err: err}
	}
	if out == nil {
		return nil, &DecodeError{Raw: raw, Err: fmt.Errorf("not a JSON object")}
	}
	return out, nil
}
