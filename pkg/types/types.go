// Package types defines the domain model shared across the ingestion,
// merge, and coaching layers: raw source records, canonical activities,
// daily health snapshots, mesocycle state, and prompt audit records.
package types

import (
	"encoding/json"
	"time"
)

// DateLayout is the canonical calendar-date format used for timeline keys.
const DateLayout = "2006-01-02"

// Source identifiers. New adapters register under their own identifier;
// nothing outside pkg/sources should need to switch on these.
const (
	SourceGarmin  = "garmin"
	SourceHevyCSV = "hevy_csv"
	SourceFitFile = "fit_file"
)

// Provenance of a canonical activity.
const (
	ProvenanceSingleSource = "single_source"
	ProvenanceMerged       = "merged"
)

// Sport classifications. Garmin activity type names are collapsed into
// these buckets by the garmin adapter.
const (
	SportGym      = "gym"
	SportSwimming = "swimming"
	SportPadel    = "padel"
	SportCardio   = "cardio"
	SportOther    = "other"
)

// Coaching task types.
const (
	TaskDailyBriefing = "daily_briefing"
	TaskWeeklyPlan    = "weekly_plan"
	TaskPostWorkout   = "post_workout"
	TaskSleepCoaching = "sleep_coaching"
)

// Mesocycle phases. An empty phase means the block is uninitialized.
const (
	PhaseAccumulation    = "accumulation"
	PhaseIntensification = "intensification"
	PhaseDeload          = "deload"
)

// Validation status of a stored coaching result.
const (
	ValidationValid    = "valid"
	ValidationDegraded = "degraded"
)

// Prompt invocation outcomes.
const (
	OutcomeValid   = "valid"
	OutcomeInvalid = "invalid"
	OutcomeFailed  = "failed"
	OutcomeRefused = "refused"
)

// RawRecord is a source-tagged, unparsed unit handed from an adapter to
// the import deduplicator. Immutable once stored; a re-fetch with a newer
// FetchedAt and a different payload supersedes it.
type RawRecord struct {
	SourceID   string          `json:"source_id" firestore:"source_id"`
	ExternalID string          `json:"external_id" firestore:"external_id"`
	Kind       string          `json:"kind" firestore:"kind"` // "activity" or "health"
	Payload    json.RawMessage `json:"payload" firestore:"payload"`
	FetchedAt  time.Time       `json:"fetched_at" firestore:"fetched_at"`

	// Rows is the number of underlying source rows this record represents,
	// including rows that were rejected at parse time but attributed to it.
	// Tabular imports set this; API adapters leave it at the default of 1.
	Rows int `json:"rows,omitempty" firestore:"rows"`

	// CreatedAt is preserved across supersedes for audit.
	CreatedAt time.Time `json:"created_at" firestore:"created_at"`
}

// RowCount returns the number of source rows behind this record.
func (r *RawRecord) RowCount() int {
	if r.Rows <= 0 {
		return 1
	}
	return r.Rows
}

// Key returns the deterministic dedup key for this record.
func (r *RawRecord) Key() string {
	return DedupKey(r.SourceID, r.ExternalID)
}

// ExerciseSet is a single set within a resistance-training activity.
type ExerciseSet struct {
	ExerciseName    string   `json:"exercise_name" firestore:"exercise_name"`
	SetIndex        int      `json:"set_index" firestore:"set_index"`
	SetType         string   `json:"set_type" firestore:"set_type"` // normal, warmup, dropset, failure
	SupersetID      *int     `json:"superset_id,omitempty" firestore:"superset_id"`
	Notes           string   `json:"notes,omitempty" firestore:"notes"`
	WeightKg        *float64 `json:"weight_kg,omitempty" firestore:"weight_kg"`
	Reps            *int     `json:"reps,omitempty" firestore:"reps"`
	DistanceMeters  *float64 `json:"distance_meters,omitempty" firestore:"distance_meters"`
	DurationSeconds *int     `json:"duration_seconds,omitempty" firestore:"duration_seconds"`
	RPE             *float64 `json:"rpe,omitempty" firestore:"rpe"`
}

// Activity is a single completed training session on the canonical timeline.
type Activity struct {
	Key        string `json:"key" firestore:"key"`
	UserID     string `json:"user_id" firestore:"user_id"`
	Sport      string `json:"sport" firestore:"sport"`
	Title      string `json:"title" firestore:"title"`
	Source     string `json:"source" firestore:"source"`
	Provenance string `json:"provenance" firestore:"provenance"`
	ExternalID string `json:"external_id,omitempty" firestore:"external_id"`

	StartTime       time.Time  `json:"start_time" firestore:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty" firestore:"end_time"`
	DurationMinutes *int       `json:"duration_minutes,omitempty" firestore:"duration_minutes"`

	// Wearable-side metrics.
	AvgHR                   *int           `json:"avg_hr,omitempty" firestore:"avg_hr"`
	MaxHR                   *int           `json:"max_hr,omitempty" firestore:"max_hr"`
	Calories                *int           `json:"calories,omitempty" firestore:"calories"`
	HRZones                 map[string]int `json:"hr_zones,omitempty" firestore:"hr_zones"` // zone name -> minutes
	TrainingEffectAerobic   *float64       `json:"training_effect_aerobic,omitempty" firestore:"training_effect_aerobic"`
	TrainingEffectAnaerobic *float64       `json:"training_effect_anaerobic,omitempty" firestore:"training_effect_anaerobic"`

	// Log-side detail, present only for resistance training.
	Sets  []ExerciseSet `json:"sets,omitempty" firestore:"sets"`
	Notes string        `json:"notes,omitempty" firestore:"notes"`

	// Merge bookkeeping. Superseded activities are retained for audit and
	// excluded from queries by default.
	Superseded   bool     `json:"superseded,omitempty" firestore:"superseded"`
	SupersededBy string   `json:"superseded_by,omitempty" firestore:"superseded_by"`
	MergedFrom   []string `json:"merged_from,omitempty" firestore:"merged_from"`

	FetchedAt time.Time `json:"fetched_at" firestore:"fetched_at"`
	CreatedAt time.Time `json:"created_at" firestore:"created_at"`
	UpdatedAt time.Time `json:"updated_at" firestore:"updated_at"`
}

// Date returns the calendar date the activity starts on.
func (a *Activity) Date() string {
	return a.StartTime.Format(DateLayout)
}

// End returns the activity's end time, deriving it from the duration when
// the source did not report one. Activities with neither get a zero window.
func (a *Activity) End() time.Time {
	if a.EndTime != nil {
		return *a.EndTime
	}
	if a.DurationMinutes != nil {
		return a.StartTime.Add(time.Duration(*a.DurationMinutes) * time.Minute)
	}
	return a.StartTime
}

// HealthSnapshot is one calendar day's aggregated biometrics. At most one
// exists per (user, date); later fetches overwrite via explicit merge.
type HealthSnapshot struct {
	UserID string `json:"user_id" firestore:"user_id"`
	Date   string `json:"date" firestore:"date"` // YYYY-MM-DD

	RestingHR *int `json:"resting_hr,omitempty" firestore:"resting_hr"`
	MaxHR     *int `json:"max_hr,omitempty" firestore:"max_hr"`
	AvgHR     *int `json:"avg_hr,omitempty" firestore:"avg_hr"`

	HRVLastNight *float64 `json:"hrv_last_night,omitempty" firestore:"hrv_last_night"` // ms
	HRV7DayAvg   *float64 `json:"hrv_7day_avg,omitempty" firestore:"hrv_7day_avg"`

	SleepDurationMinutes *int `json:"sleep_duration_minutes,omitempty" firestore:"sleep_duration_minutes"`
	SleepScore           *int `json:"sleep_score,omitempty" firestore:"sleep_score"`
	SleepDeepMinutes     *int `json:"sleep_deep_minutes,omitempty" firestore:"sleep_deep_minutes"`
	SleepLightMinutes    *int `json:"sleep_light_minutes,omitempty" firestore:"sleep_light_minutes"`
	SleepRemMinutes      *int `json:"sleep_rem_minutes,omitempty" firestore:"sleep_rem_minutes"`
	SleepAwakeMinutes    *int `json:"sleep_awake_minutes,omitempty" firestore:"sleep_awake_minutes"`

	BodyBatteryHigh *int `json:"body_battery_high,omitempty" firestore:"body_battery_high"`
	BodyBatteryLow  *int `json:"body_battery_low,omitempty" firestore:"body_battery_low"`
	AvgStress       *int `json:"avg_stress,omitempty" firestore:"avg_stress"`

	TrainingReadiness *int     `json:"training_readiness,omitempty" firestore:"training_readiness"`
	TrainingLoad      *float64 `json:"training_load,omitempty" firestore:"training_load"`
	TrainingStatus    string   `json:"training_status,omitempty" firestore:"training_status"`
	VO2Max            *float64 `json:"vo2_max,omitempty" firestore:"vo2_max"`

	Steps            *int     `json:"steps,omitempty" firestore:"steps"`
	RespirationAvg   *float64 `json:"respiration_avg,omitempty" firestore:"respiration_avg"`
	SpO2Avg          *float64 `json:"spo2_avg,omitempty" firestore:"spo2_avg"`
	IntensityMinutes *int     `json:"intensity_minutes,omitempty" firestore:"intensity_minutes"`

	Source    string    `json:"source" firestore:"source"`
	FetchedAt time.Time `json:"fetched_at" firestore:"fetched_at"`
	CreatedAt time.Time `json:"created_at" firestore:"created_at"`
}

// MesocycleState is the current training block for a user. It is created
// on first plan generation and mutated only by the progression tracker.
type MesocycleState struct {
	UserID           string `json:"user_id" firestore:"user_id"`
	StartDate        string `json:"start_date" firestore:"start_date"` // Monday, YYYY-MM-DD
	BlockLengthWeeks int    `json:"block_length_weeks" firestore:"block_length_weeks"`
	CurrentWeek      int    `json:"current_week" firestore:"current_week"`
	Phase            string `json:"phase" firestore:"phase"`

	// CompletedWeeks counts weeks finished with adherence above the
	// configured threshold since the phase started.
	CompletedWeeks int `json:"completed_weeks" firestore:"completed_weeks"`

	// ProgressionCounters tracks per-sport progression steps within the block.
	ProgressionCounters map[string]int `json:"progression_counters,omitempty" firestore:"progression_counters"`

	CreatedAt time.Time `json:"created_at" firestore:"created_at"`
	UpdatedAt time.Time `json:"updated_at" firestore:"updated_at"`
}

// PromptInvocation is the append-only audit record of one model call.
type PromptInvocation struct {
	ID               string    `json:"id" firestore:"id"`
	TaskType         string    `json:"task_type" firestore:"task_type"`
	TemplateVersion  string    `json:"template_version" firestore:"template_version"`
	Model            string    `json:"model" firestore:"model"`
	InputTokens      int       `json:"input_tokens" firestore:"input_tokens"`
	OutputTokens     int       `json:"output_tokens" firestore:"output_tokens"`
	LatencyMS        int       `json:"latency_ms" firestore:"latency_ms"`
	EstimatedCostUSD float64   `json:"estimated_cost_usd" firestore:"estimated_cost_usd"`
	Prompt           string    `json:"prompt,omitempty" firestore:"prompt"`
	Response         string    `json:"response,omitempty" firestore:"response"`
	Outcome          string    `json:"outcome" firestore:"outcome"`
	Error            string    `json:"error,omitempty" firestore:"error"`
	CreatedAt        time.Time `json:"created_at" firestore:"created_at"`
}

// CoachingResult is the structured output of one coaching task, handed to
// delivery collaborators. Payload is schema-typed JSON unless validation
// degraded, in which case RawText carries the unstructured fallback.
type CoachingResult struct {
	ID               string          `json:"id" firestore:"id"`
	UserID           string          `json:"user_id" firestore:"user_id"`
	TaskType         string          `json:"task_type" firestore:"task_type"`
	TemplateVersion  string          `json:"template_version" firestore:"template_version"`
	ReferenceDate    string          `json:"reference_date" firestore:"reference_date"`
	GeneratedAt      time.Time       `json:"generated_at" firestore:"generated_at"`
	Payload          json.RawMessage `json:"payload,omitempty" firestore:"payload"`
	RawText          string          `json:"raw_text,omitempty" firestore:"raw_text"`
	ValidationStatus string          `json:"validation_status" firestore:"validation_status"`
	CostEstimateUSD  float64         `json:"cost_estimate_usd" firestore:"cost_estimate_usd"`
	InvocationIDs    []string        `json:"invocation_ids,omitempty" firestore:"invocation_ids"`
}

// UserProfile is the slice of user state the context assembler attaches.
type UserProfile struct {
	UserID       string `json:"user_id" firestore:"user_id"`
	Name         string `json:"name" firestore:"name"`
	FitnessLevel string `json:"fitness_level" firestore:"fitness_level"` // beginner, intermediate, advanced
	Goals        string `json:"goals,omitempty" firestore:"goals"`
}

// AvailabilitySlot is one training window in a user's week.
type AvailabilitySlot struct {
	DayOfWeek       int    `json:"day_of_week" firestore:"day_of_week"` // 0=Monday
	StartTime       string `json:"start_time" firestore:"start_time"`  // HH:MM
	DurationMinutes int    `json:"duration_minutes" firestore:"duration_minutes"`
	PreferredSport  string `json:"preferred_sport" firestore:"preferred_sport"`
}

// SourceState tracks sync status per source, including the permanent
// disabled state entered after repeated authentication failure.
type SourceState struct {
	SourceID   string    `json:"source_id" firestore:"source_id"`
	LastSyncAt time.Time `json:"last_sync_at" firestore:"last_sync_at"`
	Status     string    `json:"status" firestore:"status"` // never, ok, error, disabled
	Error      string    `json:"error,omitempty" firestore:"error"`
}

// Source sync statuses.
const (
	SyncStatusNever    = "never"
	SyncStatusOK       = "ok"
	SyncStatusError    = "error"
	SyncStatusDisabled = "disabled"
)

// ValidTaskType reports whether s names a known coaching task.
func ValidTaskType(s string) bool {
	switch s {
	case TaskDailyBriefing, TaskWeeklyPlan, TaskPostWorkout, TaskSleepCoaching:
		return true
	}
	return false
}
