package server

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vidyavahini/vidyavahini/internal/agent"
)

const (
	defaultTopic   = "plants"
	defaultGrade   = "5"
	defaultDialect = "English"
)

var gradePattern = regexp.MustCompile(`grade (\d+)`)

// topicKeywords is checked in order; the first keyword found in the prompt
// selects the topic.
var topicKeywords = []struct{ keyword, topic string }{
	{"math", "mathematics"},
	{"science", "science"},
	{"plant", "plants"},
	{"animal", "animals"},
	{"history", "history"},
}

// topicAndGrade extracts a coarse topic and grade from a free-text prompt.
func topicAndGrade(prompt string) (string, string) {
	lower := strings.ToLower(prompt)
	topic := defaultTopic
	for _, k := range topicKeywords {
		if strings.Contains(lower, k.keyword) {
			topic = k.topic
			break
		}
	}
	grade := defaultGrade
	if m := gradePattern.FindStringSubmatch(lower); m != nil {
		grade = m[1]
	}
	return topic, grade
}

// CallerInputs returns the inputs a run treats as the caller's own: the
// request context plus the prompt. A prompt key in the context wins.
func CallerInputs(prompt string, reqContext map[string]any) agent.Inputs {
	in := make(agent.Inputs, len(reqContext)+1)
	in["prompt"] = prompt
	for k, v := range reqContext {
		in[k] = v
	}
	return in
}

// DefaultInputs derives fallback inputs for a run from the prompt. Together
// with CallerInputs every catalogue worker finds its required keys, so a bare
// prompt is enough to run the crew. Pass them with orchestrator.WithDefaults
// so that generated outputs replace them in sequential runs.
func DefaultInputs(prompt string) agent.Inputs {
	topic, grade := topicAndGrade(prompt)

	quizResults := make([]any, 0, 20)
	for i := 1; i <= 20; i++ {
		quizResults = append(quizResults, map[string]any{
			"student_id": fmt.Sprintf("student_%d", i),
			"score":      85 + i%15,
		})
	}
	levels := make(map[string]any, 25)
	for i := 1; i <= 25; i++ {
		levels[fmt.Sprintf("student_%d", i)] = 7 + i%4
	}

	return agent.Inputs{
		"topic":   topic,
		"level":   grade,
		"dialect": defaultDialect,
		"lesson_plan_json": map[string]any{
			"title":   "Introduction to " + titleCase(topic),
			"grade":   grade,
			"subject": topic,
			"sections": []any{
				section("Introduction", "Welcome to learning about "+topic+"!", "10 minutes"),
				section("Main Concepts", "Key concepts about "+topic+"...", "20 minutes"),
				section("Activities", "Fun activities related to "+topic+"...", "15 minutes"),
				section("Summary", "What we learned about "+topic+".", "5 minutes"),
			},
		},
		"story_body": "Once upon a time, there was a curious student who wanted to learn about " + topic + "...",
		"quiz_data": map[string]any{
			"total_students":    25,
			"completed_quizzes": 20,
			"results":           quizResults,
		},
		"student_levels": levels,
		"predictive_data": map[string]any{
			"engagement_scores": []any{0.8, 0.7, 0.9, 0.6, 0.8},
			"completion_rates":  []any{0.9, 0.8, 0.95, 0.7, 0.85},
		},
		"student_id": "demo_student_001",
		"quiz_results": []any{
			map[string]any{"quiz_id": "q1", "score": 85, "topic": topic},
			map[string]any{"quiz_id": "q2", "score": 78, "topic": topic},
		},
		"interaction_data": map[string]any{
			"time_spent":      45,
			"questions_asked": 3,
			"help_requests":   1,
		},
		"visual_prompts": []any{
			fmt.Sprintf("Illustration of %s for grade %s", topic, grade),
			fmt.Sprintf("Diagram showing %s concepts", topic),
			fmt.Sprintf("Interactive %s activity", topic),
		},
		"context_from_doc": map[string]any{
			"source":      "educational_standards",
			"grade_level": grade,
			"subject":     topic,
		},
		"story_text": fmt.Sprintf("Educational story about %s for grade %s students.", topic, grade),
	}
}

func section(heading, content, duration string) map[string]any {
	return map[string]any{"heading": heading, "content": content, "duration": duration}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
