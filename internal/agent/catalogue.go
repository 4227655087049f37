package agent

// Worker names of the built-in catalogue.
const (
	NameLessonPlanner         = "lesson_planner"
	NameStoryTeller           = "story_teller"
	NameQuiz                  = "quiz"
	NameSync                  = "sync"
	NameCoursePlanner         = "course_planner"
	NameAskMe                 = "ask_me"
	NameTeacherDashboard      = "teacher_dashboard"
	NameVoiceTutor            = "voice_tutor"
	NameStudentLevelAnalytics = "student_level_analytics"
	NameContentCreator        = "content_creator"
	NameMultimodalResearch    = "multimodal_research"
	NamePredictiveAnalytics   = "predictive_analytics"
	NameVisual                = "visual"
	NameGamification          = "gamification"
)

// Spec describes one prompt worker of the catalogue.
type Spec struct {
	Name     string
	Role     string
	Goal     string
	Task     string // text/template body, see prompt.go
	Contract Contract
	Fallback Outputs // per-key defaults used when model output is unusable
}

// catalogue lists the built-in workers in declaration order. Declaration
// order is the sequential execution order.
var catalogue = []Spec{
	{
		Name: NameLessonPlanner,
		Role: "an AI co-teacher that helps educators design structured, curriculum-aligned lessons",
		Goal: "produce a structured lesson tailored to the students' grade level, dialect and prior context",
		Task: `Design a lesson on "{{.Get "topic" "the topic"}}" for grade {{.Get "level" "5"}} students, taught in {{.Get "dialect" "English"}}.
Split it into timed sections, list the core concepts, and suggest visuals and story prompts that other assistants can build on.`,
		Contract: Contract{
			Accepts:  []string{"prompt", "topic", "level", "dialect", "context_from_doc"},
			Requires: []string{"topic"},
			Produces: []string{"lesson_plan_json", "core_concepts_list", "lesson_summary", "suggested_agents", "recommended_visuals", "linked_story_prompts", "quiz_questions"},
		},
		Fallback: Outputs{
			"lesson_plan_json":     map[string]any{"sections": []any{}},
			"core_concepts_list":   []any{},
			"lesson_summary":       "",
			"suggested_agents":     []any{},
			"recommended_visuals":  []any{},
			"linked_story_prompts": []any{},
			"quiz_questions":       []any{},
		},
	},
	{
		Name: NameStoryTeller,
		Role: "a storyteller who writes short, culturally grounded stories for Indian classrooms",
		Goal: "turn lesson content into a memorable story with a clear moral",
		Task: `Write a story for grade {{.Get "level" "5"}} students that teaches "{{.Get "topic" "the topic"}}" in {{.Get "dialect" "English"}}.
{{with .Value "lesson_plan_json"}}Base it on this lesson plan: {{json .}}
{{end}}Include a title, the story body, its moral, and prompts for illustrations.`,
		Contract: Contract{
			Accepts:  []string{"prompt", "topic", "level", "dialect", "lesson_plan_json"},
			Requires: []string{"topic"},
			Produces: []string{"story_title", "story_body", "moral", "visual_prompts"},
		},
		Fallback: Outputs{
			"story_title":    "",
			"story_body":     "",
			"moral":          "",
			"visual_prompts": []any{},
		},
	},
	{
		Name: NameQuiz,
		Role: "an adaptive quiz generator aligned to grade level and regional context",
		Goal: "assess understanding with varied, age-appropriate questions that explain their answers",
		Task: `Create a quiz on "{{.Get "topic" "the topic"}}" for grade {{.Get "level" "5"}}.
Mix multiple-choice, fill-in-the-blank, true/false and short-answer questions, each with the correct answer and an explanation.
{{with .Value "lesson_plan_json"}}Lesson plan: {{json .}}
{{end}}{{with .Value "story_body"}}Story used in class: {{json .}}
{{end}}`,
		Contract: Contract{
			Accepts:  []string{"prompt", "topic", "level", "lesson_plan_json", "story_body"},
			Requires: []string{"topic"},
			Produces: []string{"quiz_json", "adaptive_quiz_set", "retry_feedback_report"},
		},
		Fallback: Outputs{
			"quiz_json":             map[string]any{"questions": []any{}},
			"adaptive_quiz_set":     []any{},
			"retry_feedback_report": "",
		},
	},
	{
		Name: NameSync,
		Role: "an offline-first synchronisation planner for classroom devices",
		Goal: "decide which offline lesson updates and interaction records must be synchronised",
		Task: `Summarise the pending offline work and the synchronisation actions required.
{{with .Value "offline_lesson_updates"}}Offline lesson updates: {{json .}}
{{end}}{{with .Value "interaction_data"}}Student interaction data: {{json .}}
{{end}}`,
		Contract: Contract{
			Accepts:  []string{"offline_lesson_updates", "interaction_data", "student_id"},
			Produces: []string{"sync_status", "offline_updates_pending"},
		},
		Fallback: Outputs{
			"sync_status":             "unknown",
			"offline_updates_pending": []any{},
		},
	},
	{
		Name: NameCoursePlanner,
		Role: "a curriculum progression planner for educators",
		Goal: "recommend what to teach next and at what pace, based on class performance",
		Task: `The class has just studied "{{.Get "topic" "the topic"}}" at grade {{.Get "level" "5"}}.
{{with .Value "quiz_results"}}Quiz results: {{json .}}
{{end}}{{with .Value "student_levels"}}Student levels: {{json .}}
{{end}}Recommend the next topic, a pacing guide, the logical topic flow and an instruction plan for the teacher.`,
		Contract: Contract{
			Accepts:  []string{"prompt", "topic", "level", "quiz_json", "quiz_results", "student_levels"},
			Requires: []string{"topic"},
			Produces: []string{"next_topic_recommendation", "pacing_guide", "logical_topic_flow", "teacher_instruction_plan"},
		},
		Fallback: Outputs{
			"next_topic_recommendation": "",
			"pacing_guide":              []any{},
			"logical_topic_flow":        []any{},
			"teacher_instruction_plan":  "",
		},
	},
	{
		Name: NameAskMe,
		Role: "a contextual question-and-answer assistant for teachers and advanced learners",
		Goal: "answer the question clearly at the learner's level and suggest follow-up questions",
		Task: `Answer this question for a grade {{.Get "level" "5"}} learner: {{.Get "prompt" ""}}
{{with .Value "context_from_doc"}}Reference material: {{json .}}
{{end}}`,
		Contract: Contract{
			Accepts:  []string{"prompt", "topic", "level", "context_from_doc"},
			Requires: []string{"prompt"},
			Produces: []string{"answer", "explanation", "follow_up_questions"},
		},
		Fallback: Outputs{
			"answer":              "",
			"explanation":         "",
			"follow_up_questions": []any{},
		},
	},
	{
		Name: NameTeacherDashboard,
		Role: "a real-time analytics and alert generator for teachers",
		Goal: "surface weekly metrics, dropout risks and struggling students",
		Task: `Analyse this class data and build the teacher's dashboard.
Quiz data: {{json (.Value "quiz_data")}}
{{with .Value "student_levels"}}Student levels: {{json .}}
{{end}}{{with .Value "predictive_data"}}Engagement data: {{json .}}
{{end}}`,
		Contract: Contract{
			Accepts:  []string{"quiz_data", "student_levels", "predictive_data"},
			Requires: []string{"quiz_data"},
			Produces: []string{"weekly_metrics", "dropout_alerts", "struggle_flags", "engagement_report"},
		},
		Fallback: Outputs{
			"weekly_metrics":    map[string]any{},
			"dropout_alerts":    []any{},
			"struggle_flags":    []any{},
			"engagement_report": "",
		},
	},
	{
		Name: NameVoiceTutor,
		Role: "a voice tutor that prepares narration tailored to dialect and reading level",
		Goal: "produce a narration script and speech instructions a text-to-speech system can render",
		Task: `Prepare a spoken explanation of "{{.Get "topic" "the topic"}}" for grade {{.Get "level" "5"}} in {{.Get "dialect" "English"}}.
{{with .Value "story_body"}}Narrate from this story: {{json .}}
{{end}}Keep sentences short and mark pauses.`,
		Contract: Contract{
			Accepts:  []string{"prompt", "topic", "level", "dialect", "lesson_plan_json", "story_body"},
			Requires: []string{"topic"},
			Produces: []string{"narration_script", "speech_instructions"},
		},
		Fallback: Outputs{
			"narration_script":    "",
			"speech_instructions": map[string]any{},
		},
	},
	{
		Name: NameStudentLevelAnalytics,
		Role: "a per-student learning performance evaluator",
		Goal: "identify a student's strengths and weaknesses and recommend next steps",
		Task: `Evaluate student {{.Get "student_id" "unknown"}}.
Quiz results: {{json (.Value "quiz_results")}}
{{with .Value "interaction_data"}}Interaction data: {{json .}}
{{end}}Give a progress score from 0 to 100.`,
		Contract: Contract{
			Accepts:  []string{"student_id", "quiz_results", "interaction_data"},
			Requires: []string{"student_id", "quiz_results"},
			Produces: []string{"strengths", "weaknesses", "recommendations", "progress_score"},
		},
		Fallback: Outputs{
			"strengths":       []any{},
			"weaknesses":      []any{},
			"recommendations": []any{},
			"progress_score":  0,
		},
	},
	{
		Name: NameContentCreator,
		Role: "a content editor who combines lessons, stories and quizzes into a publishable module",
		Goal: "assemble a coherent lesson module with notes for the teacher",
		Task: `Combine the material on "{{.Get "topic" "the topic"}}" into one lesson module.
{{with .Value "lesson_plan_json"}}Lesson plan: {{json .}}
{{end}}{{with .Value "story_body"}}Story: {{json .}}
{{end}}{{with .Value "quiz_json"}}Quiz: {{json .}}
{{end}}{{with .Value "visual_prompts"}}Visual prompts: {{json .}}
{{end}}`,
		Contract: Contract{
			Accepts:  []string{"topic", "level", "lesson_plan_json", "story_body", "quiz_json", "visual_prompts"},
			Requires: []string{"topic"},
			Produces: []string{"lesson_draft", "combined_lesson_module", "teacher_notes"},
		},
		Fallback: Outputs{
			"lesson_draft":           "",
			"combined_lesson_module": map[string]any{},
			"teacher_notes":          "",
		},
	},
	{
		Name: NameMultimodalResearch,
		Role: "a resource aggregator for in-depth topic understanding",
		Goal: "collect explanations, references and media suggestions for a topic",
		Task: `Research "{{.Get "topic" "the topic"}}" for grade {{.Get "level" "5"}}.
{{with .Value "context_from_doc"}}Context: {{json .}}
{{end}}Summarise the key ideas and list useful resources and media.`,
		Contract: Contract{
			Accepts:  []string{"prompt", "topic", "level", "context_from_doc"},
			Requires: []string{"topic"},
			Produces: []string{"research_summary", "key_resources", "suggested_media"},
		},
		Fallback: Outputs{
			"research_summary": "",
			"key_resources":    []any{},
			"suggested_media":  []any{},
		},
	},
	{
		Name: NamePredictiveAnalytics,
		Role: "a class-level analytics generator for quiz results",
		Goal: "forecast class performance and flag students who need intervention",
		Task: `Forecast performance from this quiz data: {{json (.Value "quiz_data")}}
{{with .Value "predictive_data"}}Engagement and completion history: {{json .}}
{{end}}`,
		Contract: Contract{
			Accepts:  []string{"quiz_data", "predictive_data"},
			Requires: []string{"quiz_data"},
			Produces: []string{"performance_forecast", "at_risk_students", "interventions"},
		},
		Fallback: Outputs{
			"performance_forecast": map[string]any{},
			"at_risk_students":     []any{},
			"interventions":        []any{},
		},
	},
	{
		Name: NameVisual,
		Role: "a visual designer who describes classroom illustrations",
		Goal: "write image prompts and scene descriptions an image generator can render",
		Task: `Describe illustrations that explain "{{.Get "topic" "the topic"}}" to grade {{.Get "level" "5"}} students.
{{with .Value "story_text"}}Story: {{json .}}
{{end}}{{with .Value "lesson_plan_json"}}Lesson plan: {{json .}}
{{end}}`,
		Contract: Contract{
			Accepts:  []string{"topic", "level", "story_text", "lesson_plan_json"},
			Requires: []string{"topic"},
			Produces: []string{"image_prompts", "scene_descriptions"},
		},
		Fallback: Outputs{
			"image_prompts":      []any{},
			"scene_descriptions": []any{},
		},
	},
	{
		Name: NameGamification,
		Role: "a gamification designer for classroom progress",
		Goal: "award experience points and badges and build a leaderboard from results",
		Task: `Compute XP, badges and a leaderboard from these quiz results: {{json (.Value "quiz_results")}}
{{with .Value "student_levels"}}Student levels: {{json .}}
{{end}}`,
		Contract: Contract{
			Accepts:  []string{"quiz_results", "student_levels", "student_id"},
			Requires: []string{"quiz_results"},
			Produces: []string{"xp_status", "badge_status", "leaderboard", "gamification_summary"},
		},
		Fallback: Outputs{
			"xp_status":            map[string]any{},
			"badge_status":         []any{},
			"leaderboard":          []any{},
			"gamification_summary": "",
		},
	},
}

// Catalogue returns the built-in worker specs in declaration order.
func Catalogue() []Spec {
	out := make([]Spec, len(catalogue))
	copy(out, catalogue)
	return out
}

// Lookup returns the catalogue spec for name.
func Lookup(name string) (Spec, bool) {
	for _, s := range catalogue {
		if s.Name == name {
			return s, true
		}
	}
	return Spec{}, false
}

// Names returns the catalogue worker names in declaration order.
func Names() []string {
	names := make([]string, len(catalogue))
	for i, s := range catalogue {
		names[i] = s.Name
	}
	return names
}
