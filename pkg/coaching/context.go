package coaching

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	shared "github.com/mycoach/server/pkg"
	"github.com/mycoach/server/pkg/types"
)

// Lookback windows per task type, in days including the reference date.
var lookbackDays = map[string]int{
	types.TaskDailyBriefing: 3,
	types.TaskPostWorkout:   3,
	types.TaskWeeklyPlan:    7,
	types.TaskSleepCoaching: 14,
}

// AssemblerConfig bounds the size of assembled context.
type AssemblerConfig struct {
	// TokenBudget caps the rendered context body. Oldest days are dropped
	// first when over budget. Zero means 6000.
	TokenBudget int
}

// TaskContext is the assembled, bounded model context for one task.
type TaskContext struct {
	TaskType      string
	ReferenceDate string
	LookbackDays  int
	DaysMissing   int
	Body          string
}

// Assembler summarizes the timeline into compact structured context.
// Read-only: it never mutates the store, and it never sees superseded
// records because the store filters them by default.
type Assembler struct {
	store  shared.Store
	cfg    AssemblerConfig
	logger *slog.Logger
}

func NewAssembler(store shared.Store, cfg AssemblerConfig, logger *slog.Logger) *Assembler {
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = 6000
	}
	return &Assembler{store: store, cfg: cfg, logger: logger}
}

// daySummary aggregates one calendar day. Raw per-sample series never
// appear here; the model gets totals and averages only.
type daySummary struct {
	Date       string            `json:"date"`
	Activities []activitySummary `json:"activities,omitempty"`
	Health     *healthSummary    `json:"health,omitempty"`
}

type activitySummary struct {
	Sport           string   `json:"sport"`
	Title           string   `json:"title,omitempty"`
	Provenance      string   `json:"provenance"`
	DurationMinutes *int     `json:"duration_minutes,omitempty"`
	AvgHR           *int     `json:"avg_hr,omitempty"`
	MaxHR           *int     `json:"max_hr,omitempty"`
	Calories        *int     `json:"calories,omitempty"`
	SetCount        int      `json:"set_count,omitempty"`
	VolumeKg        *float64 `json:"volume_kg,omitempty"`
	Exercises       []string `json:"exercises,omitempty"`
}

type healthSummary struct {
	RestingHR            *int     `json:"resting_hr,omitempty"`
	HRVLastNight         *float64 `json:"hrv_last_night,omitempty"`
	HRV7DayAvg           *float64 `json:"hrv_7day_avg,omitempty"`
	SleepDurationMinutes *int     `json:"sleep_duration_minutes,omitempty"`
	SleepScore           *int     `json:"sleep_score,omitempty"`
	TrainingReadiness    *int     `json:"training_readiness,omitempty"`
	TrainingLoad         *float64 `json:"training_load,omitempty"`
	AvgStress            *int     `json:"avg_stress,omitempty"`
	VO2Max               *float64 `json:"vo2_max,omitempty"`
}

// contextDoc is the rendered context body.
type contextDoc struct {
	TaskType         string                   `json:"task_type"`
	ReferenceDate    string                   `json:"reference_date"`
	LookbackDays     int                      `json:"lookback_days"`
	IncompleteWindow int                      `json:"incomplete_window_days_missing,omitempty"`
	Days             []daySummary             `json:"days"`
	Mesocycle        *types.MesocycleState    `json:"mesocycle,omitempty"`
	Profile          *types.UserProfile       `json:"profile,omitempty"`
	Availability     []types.AvailabilitySlot `json:"availability,omitempty"`
}

// Assemble builds the bounded context for one task and reference date.
// Missing days degrade to a flag in the output rather than an error.
func (a *Assembler) Assemble(ctx context.Context, userID, taskType, referenceDate string) (*TaskContext, error) {
	days, ok := lookbackDays[taskType]
	if !ok {
		return nil, fmt.Errorf("unknown task type: %s", taskType)
	}
	refDate, err := time.Parse(types.DateLayout, referenceDate)
	if err != nil {
		return nil, fmt.Errorf("invalid reference date %q: %w", referenceDate, err)
	}
	from := refDate.AddDate(0, 0, -(days - 1)).Format(types.DateLayout)

	activities, err := a.store.ActivitiesBetween(ctx, userID, from, referenceDate, shared.ActivityQuery{})
	if err != nil {
		return nil, fmt.Errorf("load activities: %w", err)
	}
	snapshots, err := a.store.SnapshotsBetween(ctx, userID, from, referenceDate)
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}

	byDate := make(map[string]*daySummary)
	for _, act := range activities {
		d := summaryFor(byDate, act.Date())
		d.Activities = append(d.Activities, summarizeActivity(act))
	}
	for _, snap := range snapshots {
		d := summaryFor(byDate, snap.Date)
		d.Health = summarizeHealth(snap)
	}

	doc := contextDoc{
		TaskType:      taskType,
		ReferenceDate: referenceDate,
		LookbackDays:  days,
	}
	for i := 0; i < days; i++ {
		date := refDate.AddDate(0, 0, -(days - 1 - i)).Format(types.DateLayout)
		if d, ok := byDate[date]; ok {
			doc.Days = append(doc.Days, *d)
		} else {
			doc.IncompleteWindow++
		}
	}

	doc.Mesocycle, err = a.store.GetMesocycleState(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load mesocycle state: %w", err)
	}
	doc.Profile, err = a.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if taskType == types.TaskWeeklyPlan {
		weekStart := mondayOf(refDate).Format(types.DateLayout)
		doc.Availability, err = a.store.AvailabilityForWeek(ctx, userID, weekStart)
		if err != nil {
			return nil, fmt.Errorf("load availability: %w", err)
		}
	}

	body, err := renderBounded(&doc, a.cfg.TokenBudget)
	if err != nil {
		return nil, err
	}
	if doc.IncompleteWindow > 0 {
		a.logger.Info("context window incomplete",
			"task_type", taskType, "reference_date", referenceDate,
			"days_missing", doc.IncompleteWindow)
	}

	return &TaskContext{
		TaskType:      taskType,
		ReferenceDate: referenceDate,
		LookbackDays:  days,
		DaysMissing:   doc.IncompleteWindow,
		Body:          body,
	}, nil
}

// renderBounded marshals the doc, dropping the oldest day while the
// rendered body exceeds the token budget.
func renderBounded(doc *contextDoc, budget int) (string, error) {
	for {
		body, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return "", fmt.Errorf("render context: %w", err)
		}
		if EstimateTokens(string(body)) <= budget || len(doc.Days) <= 1 {
			return string(body), nil
		}
		doc.Days = doc.Days[1:]
		doc.IncompleteWindow++
	}
}

func summaryFor(byDate map[string]*daySummary, date string) *daySummary {
	d, ok := byDate[date]
	if !ok {
		d = &daySummary{Date: date}
		byDate[date] = d
	}
	return d
}

func summarizeActivity(a *types.Activity) activitySummary {
	s := activitySummary{
		Sport:           a.Sport,
		Title:           a.Title,
		Provenance:      a.Provenance,
		DurationMinutes: a.DurationMinutes,
		AvgHR:           a.AvgHR,
		MaxHR:           a.MaxHR,
		Calories:        a.Calories,
		SetCount:        len(a.Sets),
	}
	if len(a.Sets) > 0 {
		var volume float64
		seen := make(map[string]bool)
		for _, set := range a.Sets {
			if set.WeightKg != nil && set.Reps != nil {
				volume += *set.WeightKg * float64(*set.Reps)
			}
			if !seen[set.ExerciseName] {
				seen[set.ExerciseName] = true
				s.Exercises = append(s.Exercises, set.ExerciseName)
			}
		}
		if volume > 0 {
			s.VolumeKg = &volume
		}
	}
	return s
}

func summarizeHealth(h *types.HealthSnapshot) *healthSummary {
	return &healthSummary{
		RestingHR:            h.RestingHR,
		HRVLastNight:         h.HRVLastNight,
		HRV7DayAvg:           h.HRV7DayAvg,
		SleepDurationMinutes: h.SleepDurationMinutes,
		SleepScore:           h.SleepScore,
		TrainingReadiness:    h.TrainingReadiness,
		TrainingLoad:         h.TrainingLoad,
		AvgStress:            h.AvgStress,
		VO2Max:               h.VO2Max,
	}
}

// mondayOf returns the Monday of the week containing t.
func mondayOf(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}
