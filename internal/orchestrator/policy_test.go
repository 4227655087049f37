package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/vidyavahini/vidyavahini/internal/agent"
)

func TestDefaultPolicy(t *testing.T) {
	policy := DefaultPolicy()

	teacher := policy(Teacher())
	assert.Len(t, teacher, len(agent.Names())-1)
	assert.NotContains(t, teacher, agent.NameGamification)
	assert.Contains(t, teacher, agent.NameTeacherDashboard)

	basic := []string{agent.NameVoiceTutor, agent.NameStoryTeller, agent.NameQuiz}
	assert.ElementsMatch(t, basic, policy(Student(10)))
	assert.ElementsMatch(t, basic, policy(CallerProfile{Role: RoleStudent}))

	advanced := policy(Student(11))
	assert.ElementsMatch(t, append(basic, agent.NameAskMe, agent.NameLessonPlanner, agent.NameCoursePlanner, agent.NameSync), advanced)

	assert.Empty(t, policy(CallerProfile{Role: RoleUnknown}))
}

func TestTieredPolicy_ReturnsCopies(t *testing.T) {
	tiers := Tiers{Teacher: []string{"a"}}
	policy := TieredPolicy(tiers)

	got := policy(Teacher())
	got[0] = "mutated"
	assert.Equal(t, []string{"a"}, policy(Teacher()))
}

func TestTieredPolicy_AdvancedDeduplicated(t *testing.T) {
	policy := TieredPolicy(Tiers{
		StudentBasic:    []string{"quiz"},
		StudentAdvanced: []string{"quiz", "ask_me"},
		LevelThreshold:  3,
	})
	assert.Equal(t, []string{"quiz", "ask_me"}, policy(Student(4)))
	assert.Equal(t, []string{"quiz"}, policy(Student(3)))
}

func TestTiers_UnmarshalYAML(t *testing.T) {
	var tiers Tiers
	require.NoError(t, yaml.Unmarshal([]byte("teacher: [quiz]\nstudent_basic: [story_teller]\nstudent_advanced: [ask_me]\n"), &tiers))
	assert.Equal(t, Tiers{
		Teacher:         []string{"quiz"},
		StudentBasic:    []string{"story_teller"},
		StudentAdvanced: []string{"ask_me"},
		LevelThreshold:  DefaultLevelThreshold,
	}, tiers)

	require.NoError(t, yaml.Unmarshal([]byte("level_threshold: 0\n"), &tiers))
	assert.Equal(t, 0, tiers.LevelThreshold)

	assert.Error(t, yaml.Unmarshal([]byte("level_threshold: high\n"), &tiers))
}

func TestParseProfile(t *testing.T) {
	tests := []struct {
		name  string
		role  string
		level string
		want  CallerProfile
	}{
		{"teacher", "Teacher", "", Teacher()},
		{"student with level", "student", "7", Student(7)},
		{"student padded", " STUDENT ", " 12 ", Student(12)},
		{"invalid level ignored", "student", "seven", CallerProfile{Role: RoleStudent}},
		{"missing role", "", "4", CallerProfile{Role: RoleUnknown, Level: Student(4).Level}},
		{"unknown role", "principal", "", CallerProfile{Role: RoleUnknown}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseProfile(tt.role, tt.level, nil)
			require.Equal(t, tt.want.Role, got.Role)
			if tt.want.Level == nil {
				assert.Nil(t, got.Level)
			} else {
				require.NotNil(t, got.Level)
				assert.Equal(t, *tt.want.Level, *got.Level)
			}
		})
	}
}

func TestCallerProfile_LevelString(t *testing.T) {
	assert.Equal(t, "none", Teacher().LevelString())
	assert.Equal(t, "5", Student(5).LevelString())
}
