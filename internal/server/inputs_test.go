package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidyavahini/vidyavahini/internal/agent"
)

func TestTopicAndGrade(t *testing.T) {
	tests := []struct {
		prompt       string
		topic, grade string
	}{
		{"Explain photosynthesis for grade 7 students", "plants", "7"},
		{"Fractions in Math for Grade 4", "mathematics", "4"},
		{"A science experiment about plants", "science", "5"},
		{"Animals of the desert", "animals", "5"},
		{"Indian history, grade 10", "history", "10"},
		{"tell me a story", defaultTopic, defaultGrade},
	}
	for _, tt := range tests {
		t.Run(tt.prompt, func(t *testing.T) {
			topic, grade := topicAndGrade(tt.prompt)
			assert.Equal(t, tt.topic, topic)
			assert.Equal(t, tt.grade, grade)
		})
	}
}

func TestDefaultInputs_SatisfyEveryCatalogueContract(t *testing.T) {
	in := DefaultInputs("animals for grade 3")
	for k, v := range CallerInputs("animals for grade 3", nil) {
		in[k] = v
	}
	for _, spec := range agent.Catalogue() {
		assert.Empty(t, spec.Contract.Missing(in), spec.Name)
	}

	plan, ok := in["lesson_plan_json"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Introduction to Animals", plan["title"])
	assert.Equal(t, "3", in["level"])
	assert.Equal(t, "English", in["dialect"])
}

func TestCallerInputs_OnlyPromptAndContext(t *testing.T) {
	in := CallerInputs("plants", map[string]any{"topic": "volcanoes", "extra": 1})
	assert.Equal(t, agent.Inputs{"prompt": "plants", "topic": "volcanoes", "extra": 1}, in)
	assert.NotContains(t, DefaultInputs("plants"), "prompt")
}
