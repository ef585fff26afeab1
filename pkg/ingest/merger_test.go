package ingest

import (
	"context"
	"testing"
	"time"

	shared "github.com/mycoach/server/pkg"
	"github.com/mycoach/server/pkg/storage/memory"
	"github.com/mycoach/server/pkg/types"
)

func gymLog(key, title string, start time.Time, minutes int) *types.Activity {
	end := start.Add(time.Duration(minutes) * time.Minute)
	reps := 5
	weight := 100.0
	return &types.Activity{
		Key:        key,
		UserID:     "user-1",
		Sport:      types.SportGym,
		Title:      title,
		Source:     types.SourceHevyCSV,
		Provenance: types.ProvenanceSingleSource,
		StartTime:  start,
		EndTime:    &end,
		Sets: []types.ExerciseSet{
			{ExerciseName: "Squat (Barbell)", SetIndex: 0, SetType: "normal", WeightKg: &weight, Reps: &reps},
			{ExerciseName: "Leg Press", SetIndex: 0, SetType: "normal", WeightKg: &weight, Reps: &reps},
		},
		CreatedAt: start,
		UpdatedAt: start,
	}
}

func wearable(key, sport string, start time.Time, minutes int) *types.Activity {
	end := start.Add(time.Duration(minutes) * time.Minute)
	avg := 132
	max := 158
	cal := 410
	return &types.Activity{
		Key:        key,
		UserID:     "user-1",
		Sport:      sport,
		Title:      "Strength",
		Source:     types.SourceGarmin,
		Provenance: types.ProvenanceSingleSource,
		StartTime:  start,
		EndTime:    &end,
		AvgHR:      &avg,
		MaxHR:      &max,
		Calories:   &cal,
		HRZones:    map[string]int{"z2": 20, "z3": 15},
		CreatedAt:  start,
		UpdatedAt:  start,
	}
}

func TestMergeDates_PairsLogWithWearable(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	merger := NewMerger(store, testLogger(), MergerConfig{})

	start := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	lg := gymLog("log-1", "Leg Day", start, 45)
	w := wearable("wear-1", types.SportCardio, start, 50)
	if err := store.SetActivity(ctx, "user-1", lg); err != nil {
		t.Fatal(err)
	}
	if err := store.SetActivity(ctx, "user-1", w); err != nil {
		t.Fatal(err)
	}

	report, err := merger.MergeDates(ctx, "user-1", []string{"2026-02-10"})
	if err != nil {
		t.Fatalf("MergeDates failed: %v", err)
	}
	if report.Merged != 1 || report.Conflicts != 0 {
		t.Fatalf("Expected 1 merge, 0 conflicts; got %+v", report)
	}

	visible, err := store.ActivitiesBetween(ctx, "user-1", "2026-02-10", "2026-02-10", shared.ActivityQuery{})
	if err != nil {
		t.Fatalf("ActivitiesBetween failed: %v", err)
	}
	if len(visible) != 1 {
		t.Fatalf("Expected only the merged activity visible, got %d", len(visible))
	}
	merged := visible[0]
	if merged.Provenance != types.ProvenanceMerged {
		t.Errorf("Expected merged provenance, got %q", merged.Provenance)
	}
	if len(merged.Sets) != 2 {
		t.Errorf("Expected the log's 2 sets carried over, got %d", len(merged.Sets))
	}
	if merged.AvgHR == nil || *merged.AvgHR != 132 {
		t.Error("Expected the wearable's heart rate carried over")
	}
	if merged.Title != "Leg Day" {
		t.Errorf("Expected the log's title, got %q", merged.Title)
	}
	if !merged.StartTime.Equal(start) {
		t.Errorf("Expected earliest start %v, got %v", start, merged.StartTime)
	}
	if !merged.End().Equal(start.Add(50 * time.Minute)) {
		t.Errorf("Expected latest end, got %v", merged.End())
	}
	expectedKey := types.DedupKey(types.ProvenanceMerged, types.MergedExternalID("log-1", "wear-1"))
	if merged.Key != expectedKey {
		t.Errorf("Expected deterministic merged key %q, got %q", expectedKey, merged.Key)
	}

	for _, key := range []string{"log-1", "wear-1"} {
		a, err := store.GetActivity(ctx, "user-1", key)
		if err != nil || a == nil {
			t.Fatalf("Expected original %s retained: %v", key, err)
		}
		if !a.Superseded || a.SupersededBy != merged.Key {
			t.Errorf("Expected %s superseded by %s, got %+v", key, merged.Key, a)
		}
	}
}

func TestMergeDates_Rerun_NoOp(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	merger := NewMerger(store, testLogger(), MergerConfig{})

	start := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	store.SetActivity(ctx, "user-1", gymLog("log-1", "Leg Day", start, 45))
	store.SetActivity(ctx, "user-1", wearable("wear-1", types.SportCardio, start, 50))

	if _, err := merger.MergeDates(ctx, "user-1", []string{"2026-02-10"}); err != nil {
		t.Fatal(err)
	}
	report, err := merger.MergeDates(ctx, "user-1", []string{"2026-02-10"})
	if err != nil {
		t.Fatal(err)
	}
	if report.Merged != 0 {
		t.Errorf("Expected re-run to merge nothing, got %d", report.Merged)
	}
}

func TestMergeDates_NoOverlap_NoMerge(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	merger := NewMerger(store, testLogger(), MergerConfig{})

	store.SetActivity(ctx, "user-1", gymLog("log-1", "Leg Day",
		time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC), 45))
	store.SetActivity(ctx, "user-1", wearable("wear-1", types.SportCardio,
		time.Date(2026, 2, 10, 18, 0, 0, 0, time.UTC), 50))

	report, err := merger.MergeDates(ctx, "user-1", []string{"2026-02-10"})
	if err != nil {
		t.Fatal(err)
	}
	if report.Merged != 0 {
		t.Errorf("Expected no merge for disjoint windows, got %d", report.Merged)
	}
}

func TestMergeDates_IncompatibleSportExcluded(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	merger := NewMerger(store, testLogger(), MergerConfig{})

	start := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	store.SetActivity(ctx, "user-1", gymLog("log-1", "Leg Day", start, 45))
	store.SetActivity(ctx, "user-1", wearable("wear-1", types.SportSwimming, start, 50))

	report, err := merger.MergeDates(ctx, "user-1", []string{"2026-02-10"})
	if err != nil {
		t.Fatal(err)
	}
	if report.Merged != 0 {
		t.Errorf("Expected swimming wearable excluded from merging, got %d merges", report.Merged)
	}
}

func TestMergeDates_AmbiguousLogsConflict(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	merger := NewMerger(store, testLogger(), MergerConfig{})

	start := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	store.SetActivity(ctx, "user-1", gymLog("log-1", "Leg Day", start, 45))
	store.SetActivity(ctx, "user-1", gymLog("log-2", "Upper Body", start, 45))
	store.SetActivity(ctx, "user-1", wearable("wear-1", types.SportCardio, start, 50))

	report, err := merger.MergeDates(ctx, "user-1", []string{"2026-02-10"})
	if err != nil {
		t.Fatal(err)
	}
	if report.Merged != 0 {
		t.Errorf("Expected ambiguous pairing left unmerged, got %d merges", report.Merged)
	}
	if report.Conflicts == 0 {
		t.Error("Expected a conflict to be reported")
	}
	a, _ := store.GetActivity(ctx, "user-1", "wear-1")
	if a.Superseded {
		t.Error("Expected the contested wearable left untouched")
	}
}
