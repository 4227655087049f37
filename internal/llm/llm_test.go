package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced json", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced bare", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced inline", "```json{\"a\":1}```", `{"a":1}`},
		{"padded", "  \n{\"a\":1}\n ", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSON(tt.raw))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	out, err := DecodeJSON("```json\n{\"quiz_json\": {\"questions\": []}}\n```")
	require.NoError(t, err)
	assert.Contains(t, out, "quiz_json")

	_, err = DecodeJSON("Sure! Here is your quiz.")
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "Sure! Here is your quiz.", de.Raw)

	_, err = DecodeJSON("null")
	assert.ErrorAs(t, err, &de)
}

func TestOffline_ProducesDecodableJSON(t *testing.T) {
	out, err := Offline{}.Generate(context.Background(), "teach plants")
	require.NoError(t, err)

	doc, err := DecodeJSON(out)
	require.NoError(t, err)
	assert.Equal(t, true, doc["offline"])
	assert.Equal(t, "teach plants", doc["prompt"])
}

func TestOffline_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Offline{}.Generate(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithRetry_SucceedsAfterFailures(t *testing.T) {
	var calls atomic.Int32
	gen := GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		if calls.Add(1) < 3 {
			return "", errors.New("503 overloaded")
		}
		return "ok", nil
	})

	out, err := WithRetry(gen, 3, time.Millisecond, nil).Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWithRetry_ReturnsLastError(t *testing.T) {
	var calls atomic.Int32
	gen := GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		calls.Add(1)
		return "", errors.New("quota exceeded")
	})

	_, err := WithRetry(gen, 2, time.Millisecond, nil).Generate(context.Background(), "p")
	assert.EqualError(t, err, "quota exceeded")
	assert.Equal(t, int32(2), calls.Load())
}

func TestWithRetry_StopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		cancel()
		return "", errors.New("fail")
	})

	start := time.Now()
	_, err := WithRetry(gen, 5, time.Hour, nil).Generate(ctx, "p")
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDetect(t *testing.T) {
	assert.Equal(t, ProviderOffline, Detect(Config{}))
	assert.Equal(t, ProviderGemini, Detect(Config{APIKey: "k"}))
	assert.Equal(t, ProviderOffline, Detect(Config{Provider: ProviderOffline, APIKey: "k"}))
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: "gpt"}, nil)
	assert.ErrorContains(t, err, "unknown provider")
}

func TestNew_GeminiRequiresKey(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: ProviderGemini}, nil)
	assert.ErrorContains(t, err, "API key")
}
