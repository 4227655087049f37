package orchestrator

import (
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vidyavahini/vidyavahini/internal/agent"
)

// Role is the caller's role.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleUnknown Role = "unknown"
)

// ParseRole maps a header value to a Role. Unrecognised values are
// RoleUnknown.
func ParseRole(s string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleTeacher, RoleStudent:
		return r
	default:
		return RoleUnknown
	}
}

// CallerProfile identifies who is asking for a run. It does not change during
// a run.
type CallerProfile struct {
	Role  Role `json:"role"`
	Level *int `json:"level,omitempty"`
}

// Teacher returns a teacher profile.
func Teacher() CallerProfile {
	return CallerProfile{Role: RoleTeacher}
}

// Student returns a student profile at level.
func Student(level int) CallerProfile {
	return CallerProfile{Role: RoleStudent, Level: &level}
}

// LevelString renders the level for logs.
func (p CallerProfile) LevelString() string {
	if p.Level == nil {
		return "none"
	}
	return strconv.Itoa(*p.Level)
}

// ParseProfile builds a profile from the x-user-role and x-user-level header
// values. An unparsable level is ignored with a warning.
func ParseProfile(role, level string, logger *slog.Logger) CallerProfile {
	p := CallerProfile{Role: ParseRole(role)}
	level = strings.TrimSpace(level)
	if level == "" {
		return p
	}
	n, err := strconv.Atoi(level)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("invalid user level ignored", "level", level)
		return p
	}
	p.Level = &n
	return p
}

// AccessPolicy returns the names of the workers a caller may invoke. It must
// be a total function: every profile maps to a (possibly empty) set.
type AccessPolicy func(CallerProfile) []string

// Tiers is a role and level based access table.
type Tiers struct {
	Teacher []string `yaml:"teacher" json:"teacher"`

	// StudentBasic is granted to every student.
	StudentBasic []string `yaml:"student_basic" json:"student_basic"`

	// StudentAdvanced is granted in addition to StudentBasic to students whose
	// level is above LevelThreshold.
	StudentAdvanced []string `yaml:"student_advanced" json:"student_advanced"`

	// LevelThreshold defaults to DefaultLevelThreshold when a YAML document
	// omits it.
	LevelThreshold int `yaml:"level_threshold" json:"level_threshold"`
}

// DefaultLevelThreshold is the level a student must exceed to reach the
// advanced tier.
const DefaultLevelThreshold = 10

// UnmarshalYAML decodes a Tiers block, keeping DefaultLevelThreshold when
// level_threshold is absent.
func (t *Tiers) UnmarshalYAML(node *yaml.Node) error {
	type plain Tiers
	p := plain{LevelThreshold: DefaultLevelThreshold}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*t = Tiers(p)
	return nil
}

// DefaultTiers returns the built-in access table: teachers get every
// catalogue worker except gamification, students get the basic tier, and
// students above level 10 also get the advanced tier.
func DefaultTiers() Tiers {
	var teacher []string
	for _, name := range agent.Names() {
		if name != agent.NameGamification {
			teacher = append(teacher, name)
		}
	}
	return Tiers{
		Teacher:         teacher,
		StudentBasic:    []string{agent.NameVoiceTutor, agent.NameStoryTeller, agent.NameQuiz},
		StudentAdvanced: []string{agent.NameAskMe, agent.NameLessonPlanner, agent.NameCoursePlanner, agent.NameSync},
		LevelThreshold:  DefaultLevelThreshold,
	}
}

// TieredPolicy builds an AccessPolicy from t. Unknown roles get nothing.
func TieredPolicy(t Tiers) AccessPolicy {
	return func(p CallerProfile) []string {
		switch p.Role {
		case RoleTeacher:
			return slices.Clone(t.Teacher)
		case RoleStudent:
			out := slices.Clone(t.StudentBasic)
			if p.Level != nil && *p.Level > t.LevelThreshold {
				for _, name := range t.StudentAdvanced {
					if !slices.Contains(out, name) {
						out = append(out, name)
					}
				}
			}
			return out
		default:
			return nil
		}
	}
}

// DefaultPolicy is TieredPolicy over DefaultTiers.
func DefaultPolicy() AccessPolicy {
	return TieredPolicy(DefaultTiers())
}

// AllowAll grants every profile, including unknown callers, the named
// workers. It is intended for local tools such as the CLI.
func AllowAll(names ...string) AccessPolicy {
	return func(CallerProfile) []string {
		return slices.Clone(names)
	}
}
