package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	shared "github.com/mycoach/server/pkg"
	"github.com/mycoach/server/pkg/types"
)

// MergerConfig carries the product parameters of candidate selection.
// The overlap threshold is deliberately configuration, not a constant.
type MergerConfig struct {
	// MinOverlap is the minimum window overlap for two activities to be
	// merge candidates. Zero means any overlap qualifies.
	MinOverlap time.Duration

	// CompatibleSports are wearable sport classifications that can merge
	// with a gym log. Defaults to gym and cardio: watches often tag
	// strength sessions as generic cardio.
	CompatibleSports []string
}

func (c *MergerConfig) applyDefaults() {
	if c.CompatibleSports == nil {
		c.CompatibleSports = []string{types.SportGym, types.SportCardio}
	}
}

// MergeReport summarizes one merger run.
type MergeReport struct {
	Merged    int      `json:"merged"`
	Conflicts int      `json:"conflicts"`
	Dates     []string `json:"dates,omitempty"`
}

// Merger reconciles overlapping single-source activities into canonical
// merged ones. It is deterministic: the same timeline state always
// produces the same matching, and re-running over an already merged
// range is a no-op because superseded originals are filtered out of its
// input.
type Merger struct {
	store  shared.Store
	logger *slog.Logger
	cfg    MergerConfig
	now    func() time.Time
}

func NewMerger(store shared.Store, logger *slog.Logger, cfg MergerConfig) *Merger {
	cfg.applyDefaults()
	return &Merger{store: store, logger: logger, cfg: cfg, now: time.Now}
}

// MergeDates runs the merger over each touched date independently.
func (m *Merger) MergeDates(ctx context.Context, userID string, dates []string) (*MergeReport, error) {
	report := &MergeReport{}
	for _, date := range dates {
		merged, conflicts, err := m.mergeDate(ctx, userID, date)
		if err != nil {
			return nil, fmt.Errorf("merge %s: %w", date, err)
		}
		report.Merged += merged
		report.Conflicts += conflicts
		if merged > 0 || conflicts > 0 {
			report.Dates = append(report.Dates, date)
		}
	}
	return report, nil
}

func (m *Merger) mergeDate(ctx context.Context, userID, date string) (merged, conflicts int, err error) {
	activities, err := m.store.ActivitiesBetween(ctx, userID, date, date, shared.ActivityQuery{})
	if err != nil {
		return 0, 0, err
	}

	// Partition into the two sides of the bipartite graph. Only
	// single-source activities participate; merged ones are already the
	// product of an earlier run.
	var logs, wearables []*types.Activity
	for _, a := range activities {
		if a.Provenance != types.ProvenanceSingleSource {
			continue
		}
		switch a.Source {
		case types.SourceHevyCSV, types.SourceFitFile:
			if len(a.Sets) > 0 {
				logs = append(logs, a)
			}
		case types.SourceGarmin:
			if m.compatible(a.Sport) {
				wearables = append(wearables, a)
			}
		}
	}
	if len(logs) == 0 || len(wearables) == 0 {
		return 0, 0, nil
	}

	sortByStart(logs)
	sortByStart(wearables)

	claimed := make(map[string]string) // wearable key -> log key
	pairs := make(map[string]*types.Activity)

	for _, lg := range logs {
		var best *types.Activity
		for _, w := range wearables {
			if _, taken := claimed[w.Key]; taken {
				continue
			}
			if overlap(lg, w) <= m.cfg.MinOverlap {
				continue
			}
			if best == nil {
				best = w
			}
		}
		if best == nil {
			continue
		}
		// Two logs with identical start times competing for one wearable
		// window would make earliest-start-wins ambiguous. Leave both
		// unmerged rather than guess.
		if conflictsWith(logs, lg, best) {
			m.logger.Warn("merge conflict, leaving records unmerged",
				"user_id", userID, "date", date, "log_key", lg.Key, "wearable_key", best.Key)
			conflicts++
			continue
		}
		claimed[best.Key] = lg.Key
		pairs[lg.Key] = best
	}

	now := m.now().UTC()
	for _, lg := range logs {
		w, ok := pairs[lg.Key]
		if !ok {
			continue
		}
		ma := m.synthesize(lg, w, now)
		if err := m.store.SetActivity(ctx, userID, ma); err != nil {
			return merged, conflicts, fmt.Errorf("store merged activity: %w", err)
		}
		for _, orig := range []*types.Activity{lg, w} {
			orig.Superseded = true
			orig.SupersededBy = ma.Key
			orig.UpdatedAt = now
			if err := m.store.SetActivity(ctx, userID, orig); err != nil {
				return merged, conflicts, fmt.Errorf("supersede %s: %w", orig.Key, err)
			}
		}
		merged++
		m.logger.Info("merged activities",
			"user_id", userID, "date", date, "key", ma.Key,
			"log_source", lg.Source, "wearable_source", w.Source)
	}
	return merged, conflicts, nil
}

// synthesize builds the canonical merged activity: exercise detail from
// the gym log, sensor metrics from the wearable.
func (m *Merger) synthesize(lg, w *types.Activity, now time.Time) *types.Activity {
	extID := types.MergedExternalID(lg.Key, w.Key)
	start := lg.StartTime
	if w.StartTime.Before(start) {
		start = w.StartTime
	}
	end := lg.End()
	if wEnd := w.End(); wEnd.After(end) {
		end = wEnd
	}

	ma := &types.Activity{
		Key:        types.DedupKey(types.ProvenanceMerged, extID),
		UserID:     lg.UserID,
		Sport:      lg.Sport,
		Title:      lg.Title,
		Source:     lg.Source + "+" + w.Source,
		Provenance: types.ProvenanceMerged,
		ExternalID: extID,
		StartTime:  start,
		Sets:       lg.Sets,
		Notes:      lg.Notes,

		AvgHR:                   w.AvgHR,
		MaxHR:                   w.MaxHR,
		Calories:                w.Calories,
		HRZones:                 w.HRZones,
		TrainingEffectAerobic:   w.TrainingEffectAerobic,
		TrainingEffectAnaerobic: w.TrainingEffectAnaerobic,

		MergedFrom: []string{lg.Key, w.Key},
		FetchedAt:  now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if end.After(start) {
		e := end
		ma.EndTime = &e
		mins := int(end.Sub(start).Minutes())
		if mins > 0 {
			ma.DurationMinutes = &mins
		}
	}
	return ma
}

func (m *Merger) compatible(sport string) bool {
	for _, s := range m.cfg.CompatibleSports {
		if s == sport {
			return true
		}
	}
	return false
}

// conflictsWith reports whether another log with the same start time
// also overlaps the chosen wearable window.
func conflictsWith(logs []*types.Activity, chosen, wearable *types.Activity) bool {
	for _, other := range logs {
		if other.Key == chosen.Key {
			continue
		}
		if other.StartTime.Equal(chosen.StartTime) && overlap(other, wearable) > 0 {
			return true
		}
	}
	return false
}

// overlap returns the duration the two activity windows share.
func overlap(a, b *types.Activity) time.Duration {
	start := a.StartTime
	if b.StartTime.After(start) {
		start = b.StartTime
	}
	end := a.End()
	if bEnd := b.End(); bEnd.Before(end) {
		end = bEnd
	}
	return end.Sub(start)
}

func sortByStart(as []*types.Activity) {
	sort.Slice(as, func(i, j int) bool {
		if !as[i].StartTime.Equal(as[j].StartTime) {
			return as[i].StartTime.Before(as[j].StartTime)
		}
		return as[i].Key < as[j].Key
	})
}
