// Package progression owns the mesocycle state machine. The tracker is
// the only writer of MesocycleState; the context assembler reads it to
// bias plan generation.
package progression

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	shared "github.com/mycoach/server/pkg"
	"github.com/mycoach/server/pkg/types"
)

// Config carries the product parameters of phase transitions. All of
// them are deliberately configuration, not constants.
type Config struct {
	// MinAccumulationWeeks is how many well-adhered weeks accumulation
	// needs before intensification. Zero means 3.
	MinAccumulationWeeks int
	// AdherenceThreshold is the fraction of planned training days that
	// must be hit for a week to count as completed. Zero means 0.7.
	AdherenceThreshold float64
	// BlockLengthWeeks forces a deload after this many weeks regardless
	// of phase. Zero means 5.
	BlockLengthWeeks int
	// ACRatioDeloadThreshold triggers an early deload when the acute to
	// chronic load ratio exceeds it. Zero means 1.5.
	ACRatioDeloadThreshold float64
}

func (c *Config) applyDefaults() {
	if c.MinAccumulationWeeks <= 0 {
		c.MinAccumulationWeeks = 3
	}
	if c.AdherenceThreshold <= 0 {
		c.AdherenceThreshold = 0.7
	}
	if c.BlockLengthWeeks <= 0 {
		c.BlockLengthWeeks = 5
	}
	if c.ACRatioDeloadThreshold <= 0 {
		c.ACRatioDeloadThreshold = 1.5
	}
}

// Tracker advances the mesocycle state machine once per training week:
// accumulation, intensification, deload, back to accumulation.
type Tracker struct {
	store  shared.Store
	logger *slog.Logger
	cfg    Config
	now    func() time.Time
}

func NewTracker(store shared.Store, logger *slog.Logger, cfg Config) *Tracker {
	cfg.applyDefaults()
	return &Tracker{store: store, logger: logger, cfg: cfg, now: time.Now}
}

// Advance moves the state machine to the week starting at weekStart
// (a Monday, YYYY-MM-DD). Re-invoking for the same week is a no-op.
// Called by the engine before weekly plan generation.
func (t *Tracker) Advance(ctx context.Context, userID, weekStart string) (*types.MesocycleState, error) {
	start, err := time.Parse(types.DateLayout, weekStart)
	if err != nil {
		return nil, fmt.Errorf("invalid week start %q: %w", weekStart, err)
	}
	now := t.now().UTC()

	state, err := t.store.GetMesocycleState(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load mesocycle state: %w", err)
	}
	if state == nil {
		state = &types.MesocycleState{
			UserID:              userID,
			StartDate:           weekStart,
			BlockLengthWeeks:    t.cfg.BlockLengthWeeks,
			CurrentWeek:         1,
			Phase:               types.PhaseAccumulation,
			ProgressionCounters: map[string]int{},
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := t.store.SetMesocycleState(ctx, userID, state); err != nil {
			return nil, fmt.Errorf("initialize mesocycle state: %w", err)
		}
		t.logger.Info("mesocycle initialized", "user_id", userID, "start_date", weekStart)
		return state, nil
	}

	// Already advanced to (or past) this week.
	blockStart, err := time.Parse(types.DateLayout, state.StartDate)
	if err != nil {
		return nil, fmt.Errorf("corrupt mesocycle start date %q: %w", state.StartDate, err)
	}
	currentWeekStart := blockStart.AddDate(0, 0, (state.CurrentWeek-1)*7)
	if !start.After(currentWeekStart) {
		return state, nil
	}

	adherence, err := t.weekAdherence(ctx, userID, start.AddDate(0, 0, -7))
	if err != nil {
		return nil, err
	}
	acRatio, err := t.acuteChronicRatio(ctx, userID, start)
	if err != nil {
		return nil, err
	}

	prevPhase := state.Phase
	switch {
	case state.Phase == types.PhaseDeload:
		// Deload week done: new block.
		state.Phase = types.PhaseAccumulation
		state.StartDate = weekStart
		state.CurrentWeek = 1
		state.CompletedWeeks = 0
		state.ProgressionCounters = map[string]int{}

	case acRatio > t.cfg.ACRatioDeloadThreshold:
		// Early deload overrides normal progression.
		state.Phase = types.PhaseDeload
		state.CurrentWeek++

	case state.CurrentWeek >= state.BlockLengthWeeks:
		state.Phase = types.PhaseDeload
		state.CurrentWeek++

	default:
		state.CurrentWeek++
		if adherence >= t.cfg.AdherenceThreshold {
			state.CompletedWeeks++
		}
		if state.Phase == types.PhaseAccumulation && state.CompletedWeeks >= t.cfg.MinAccumulationWeeks {
			state.Phase = types.PhaseIntensification
		}
	}
	state.UpdatedAt = now

	if err := t.store.SetMesocycleState(ctx, userID, state); err != nil {
		return nil, fmt.Errorf("store mesocycle state: %w", err)
	}
	if state.Phase != prevPhase {
		t.logger.Info("mesocycle phase transition",
			"user_id", userID, "from", prevPhase, "to", state.Phase,
			"week", state.CurrentWeek, "adherence", adherence, "ac_ratio", acRatio)
	}
	return state, nil
}

// weekAdherence compares training days against planned availability for
// the week starting at weekStart. No plan means full adherence.
func (t *Tracker) weekAdherence(ctx context.Context, userID string, weekStart time.Time) (float64, error) {
	from := weekStart.Format(types.DateLayout)
	to := weekStart.AddDate(0, 0, 6).Format(types.DateLayout)

	slots, err := t.store.AvailabilityForWeek(ctx, userID, from)
	if err != nil {
		return 0, fmt.Errorf("load availability: %w", err)
	}
	planned := make(map[int]bool)
	for _, s := range slots {
		planned[s.DayOfWeek] = true
	}
	if len(planned) == 0 {
		return 1, nil
	}

	activities, err := t.store.ActivitiesBetween(ctx, userID, from, to, shared.ActivityQuery{})
	if err != nil {
		return 0, fmt.Errorf("load activities: %w", err)
	}
	trained := make(map[string]bool)
	for _, a := range activities {
		trained[a.Date()] = true
	}
	return float64(len(trained)) / float64(len(planned)), nil
}

// acuteChronicRatio divides the last 7 days of training load by the
// average weekly load of the last 28. Loads come from daily snapshots
// when present, falling back to activity minutes.
func (t *Tracker) acuteChronicRatio(ctx context.Context, userID string, weekStart time.Time) (float64, error) {
	end := weekStart.AddDate(0, 0, -1)
	acute, err := t.loadBetween(ctx, userID, end.AddDate(0, 0, -6), end)
	if err != nil {
		return 0, err
	}
	chronic, err := t.loadBetween(ctx, userID, end.AddDate(0, 0, -27), end)
	if err != nil {
		return 0, err
	}
	weeklyChronic := chronic / 4
	if weeklyChronic == 0 {
		return 0, nil
	}
	return acute / weeklyChronic, nil
}

func (t *Tracker) loadBetween(ctx context.Context, userID string, from, to time.Time) (float64, error) {
	fromS := from.Format(types.DateLayout)
	toS := to.Format(types.DateLayout)

	snapshots, err := t.store.SnapshotsBetween(ctx, userID, fromS, toS)
	if err != nil {
		return 0, fmt.Errorf("load snapshots: %w", err)
	}
	var total float64
	haveLoad := false
	for _, s := range snapshots {
		if s.TrainingLoad != nil {
			total += *s.TrainingLoad
			haveLoad = true
		}
	}
	if haveLoad {
		return total, nil
	}

	activities, err := t.store.ActivitiesBetween(ctx, userID, fromS, toS, shared.ActivityQuery{})
	if err != nil {
		return 0, fmt.Errorf("load activities: %w", err)
	}
	for _, a := range activities {
		if a.DurationMinutes != nil {
			total += float64(*a.DurationMinutes)
		}
	}
	return total, nil
}
