package coaching

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mycoach/server/pkg/types"
)

// TemplateVersion is the current prompt/schema version. Stored results
// always record the version they were validated against; bumping it
// starts a new, never silently mixed, schema generation.
const TemplateVersion = "v1"

// Readiness verdicts a daily briefing may return.
const (
	VerdictGoHard         = "go_hard"
	VerdictModerate       = "moderate"
	VerdictActiveRecovery = "active_recovery"
	VerdictRest           = "rest"
)

// DailyBriefing is the structured payload of a daily_briefing task.
type DailyBriefing struct {
	ReadinessVerdict string   `json:"readiness_verdict"`
	Summary          string   `json:"summary"`
	Recommendations  []string `json:"recommendations"`
	Cautions         []string `json:"cautions,omitempty"`
}

// PlannedSession is one scheduled session in a weekly plan.
type PlannedSession struct {
	Day             int    `json:"day"` // 0=Monday
	Sport           string `json:"sport"`
	Focus           string `json:"focus"`
	DurationMinutes int    `json:"duration_minutes"`
	Details         string `json:"details,omitempty"`
}

// WeeklyPlan is the structured payload of a weekly_plan task.
type WeeklyPlan struct {
	Overview  string           `json:"overview"`
	PhaseNote string           `json:"phase_note,omitempty"`
	Sessions  []PlannedSession `json:"sessions"`
}

// PostWorkout is the structured payload of a post_workout task.
type PostWorkout struct {
	Summary         string   `json:"summary"`
	WentWell        []string `json:"went_well"`
	ToImprove       []string `json:"to_improve"`
	NextSessionHint string   `json:"next_session_hint,omitempty"`
}

// SleepCoaching is the structured payload of a sleep_coaching task.
type SleepCoaching struct {
	Assessment      string   `json:"assessment"`
	Trends          []string `json:"trends,omitempty"`
	Recommendations []string `json:"recommendations"`
}

// Schema validates one task type at one template version.
type Schema struct {
	TaskType string
	Version  string
	Validate func(raw json.RawMessage) error
}

var schemas = map[string]*Schema{}

func schemaKey(taskType, version string) string {
	return taskType + "|" + version
}

// RegisterSchema adds a schema to the registry. Panics on duplicates.
func RegisterSchema(s *Schema) {
	key := schemaKey(s.TaskType, s.Version)
	if _, exists := schemas[key]; exists {
		panic(fmt.Sprintf("schema already registered: %s", key))
	}
	schemas[key] = s
}

// SchemaFor returns the schema registered for a task+version.
func SchemaFor(taskType, version string) (*Schema, bool) {
	s, ok := schemas[schemaKey(taskType, version)]
	return s, ok
}

func init() {
	RegisterSchema(&Schema{TaskType: types.TaskDailyBriefing, Version: TemplateVersion, Validate: validateDailyBriefing})
	RegisterSchema(&Schema{TaskType: types.TaskWeeklyPlan, Version: TemplateVersion, Validate: validateWeeklyPlan})
	RegisterSchema(&Schema{TaskType: types.TaskPostWorkout, Version: TemplateVersion, Validate: validatePostWorkout})
	RegisterSchema(&Schema{TaskType: types.TaskSleepCoaching, Version: TemplateVersion, Validate: validateSleepCoaching})
}

func validateDailyBriefing(raw json.RawMessage) error {
	var b DailyBriefing
	if err := json.Unmarshal(raw, &b); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	switch b.ReadinessVerdict {
	case VerdictGoHard, VerdictModerate, VerdictActiveRecovery, VerdictRest:
	default:
		return fmt.Errorf("readiness_verdict must be one of go_hard, moderate, active_recovery, rest; got %q", b.ReadinessVerdict)
	}
	if b.Summary == "" {
		return fmt.Errorf("summary is required")
	}
	if len(b.Recommendations) == 0 {
		return fmt.Errorf("at least one recommendation is required")
	}
	return nil
}

func validateWeeklyPlan(raw json.RawMessage) error {
	var p WeeklyPlan
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if p.Overview == "" {
		return fmt.Errorf("overview is required")
	}
	if len(p.Sessions) == 0 {
		return fmt.Errorf("at least one session is required")
	}
	for i, s := range p.Sessions {
		if s.Day < 0 || s.Day > 6 {
			return fmt.Errorf("sessions[%d].day must be 0-6, got %d", i, s.Day)
		}
		if s.Sport == "" {
			return fmt.Errorf("sessions[%d].sport is required", i)
		}
		if s.DurationMinutes <= 0 {
			return fmt.Errorf("sessions[%d].duration_minutes must be positive", i)
		}
	}
	return nil
}

func validatePostWorkout(raw json.RawMessage) error {
	var p PostWorkout
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if p.Summary == "" {
		return fmt.Errorf("summary is required")
	}
	if len(p.WentWell) == 0 && len(p.ToImprove) == 0 {
		return fmt.Errorf("went_well or to_improve must be non-empty")
	}
	return nil
}

func validateSleepCoaching(raw json.RawMessage) error {
	var s SleepCoaching
	if err := json.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if s.Assessment == "" {
		return fmt.Errorf("assessment is required")
	}
	if len(s.Recommendations) == 0 {
		return fmt.Errorf("at least one recommendation is required")
	}
	return nil
}

// ExtractJSON pulls the first JSON object out of model output, stripping
// markdown code fences and surrounding prose.
func ExtractJSON(text string) (json.RawMessage, error) {
	s := strings.TrimSpace(text)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object found in output")
	}
	raw := json.RawMessage(s[start : end+1])
	if !json.Valid(raw) {
		return nil, fmt.Errorf("output is not valid JSON")
	}
	return raw, nil
}
