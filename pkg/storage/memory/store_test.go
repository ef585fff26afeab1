package memory

import (
	"context"
	"testing"
	"time"

	shared "github.com/mycoach/server/pkg"
	"github.com/mycoach/server/pkg/types"
)

func activityOn(key, date string, superseded bool, sport string) *types.Activity {
	start, _ := time.Parse(types.DateLayout, date)
	return &types.Activity{
		Key:        key,
		UserID:     "user-1",
		Sport:      sport,
		Source:     types.SourceGarmin,
		Provenance: types.ProvenanceSingleSource,
		StartTime:  start.Add(9 * time.Hour),
		Superseded: superseded,
	}
}

func TestStore_LookupsReturnNilForMissing(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	if rec, err := store.GetRawRecord(ctx, "nobody", "key"); err != nil || rec != nil {
		t.Errorf("Expected (nil, nil), got (%v, %v)", rec, err)
	}
	if a, err := store.GetActivity(ctx, "nobody", "key"); err != nil || a != nil {
		t.Errorf("Expected (nil, nil), got (%v, %v)", a, err)
	}
	if st, err := store.GetMesocycleState(ctx, "nobody"); err != nil || st != nil {
		t.Errorf("Expected (nil, nil), got (%v, %v)", st, err)
	}
	if r, err := store.GetResult(ctx, "nobody", types.TaskDailyBriefing, "2026-02-11"); err != nil || r != nil {
		t.Errorf("Expected (nil, nil), got (%v, %v)", r, err)
	}
}

func TestActivitiesBetween_Filters(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	store.SetActivity(ctx, "user-1", activityOn("a", "2026-02-09", false, types.SportGym))
	store.SetActivity(ctx, "user-1", activityOn("b", "2026-02-10", false, types.SportCardio))
	store.SetActivity(ctx, "user-1", activityOn("c", "2026-02-10", true, types.SportGym))
	store.SetActivity(ctx, "user-1", activityOn("d", "2026-02-12", false, types.SportGym))

	got, err := store.ActivitiesBetween(ctx, "user-1", "2026-02-09", "2026-02-10", shared.ActivityQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 activities in range, got %d", len(got))
	}
	if got[0].Key != "a" || got[1].Key != "b" {
		t.Errorf("Expected chronological order a, b; got %s, %s", got[0].Key, got[1].Key)
	}

	got, err = store.ActivitiesBetween(ctx, "user-1", "2026-02-09", "2026-02-12", shared.ActivityQuery{IncludeSuperseded: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Errorf("Expected superseded included, got %d", len(got))
	}

	got, err = store.ActivitiesBetween(ctx, "user-1", "2026-02-09", "2026-02-12", shared.ActivityQuery{Sport: types.SportGym})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("Expected 2 non-superseded gym activities, got %d", len(got))
	}
}

func TestStore_CopiesOnReadAndWrite(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	original := activityOn("a", "2026-02-09", false, types.SportGym)
	store.SetActivity(ctx, "user-1", original)
	original.Title = "mutated after write"

	got, _ := store.GetActivity(ctx, "user-1", "a")
	if got.Title != "" {
		t.Error("Expected the store isolated from caller mutation after write")
	}
	got.Title = "mutated after read"
	again, _ := store.GetActivity(ctx, "user-1", "a")
	if again.Title != "" {
		t.Error("Expected the store isolated from caller mutation after read")
	}
}

func TestSnapshotsBetween_OrderedByDate(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	for _, date := range []string{"2026-02-11", "2026-02-09", "2026-02-10"} {
		store.SetSnapshot(ctx, "user-1", &types.HealthSnapshot{UserID: "user-1", Date: date})
	}
	got, err := store.SnapshotsBetween(ctx, "user-1", "2026-02-09", "2026-02-10")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Date != "2026-02-09" || got[1].Date != "2026-02-10" {
		t.Errorf("Expected ordered snapshots for 09 and 10, got %+v", got)
	}
}

func TestResults_KeyedByTaskAndDate(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	store.SetResult(ctx, "user-1", &types.CoachingResult{
		ID: "r1", TaskType: types.TaskDailyBriefing, ReferenceDate: "2026-02-11",
	})
	store.SetResult(ctx, "user-1", &types.CoachingResult{
		ID: "r2", TaskType: types.TaskWeeklyPlan, ReferenceDate: "2026-02-11",
	})

	got, _ := store.GetResult(ctx, "user-1", types.TaskDailyBriefing, "2026-02-11")
	if got == nil || got.ID != "r1" {
		t.Errorf("Expected r1, got %+v", got)
	}
	got, _ = store.GetResult(ctx, "user-1", types.TaskWeeklyPlan, "2026-02-11")
	if got == nil || got.ID != "r2" {
		t.Errorf("Expected r2, got %+v", got)
	}
	got, _ = store.GetResult(ctx, "user-1", types.TaskDailyBriefing, "2026-02-12")
	if got != nil {
		t.Errorf("Expected no result for another date, got %+v", got)
	}
}

func TestMonthCost_FiltersByMonth(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	add := func(id string, created time.Time, cost float64) {
		store.AppendInvocation(ctx, "user-1", &types.PromptInvocation{
			ID: id, EstimatedCostUSD: cost, CreatedAt: created,
		})
	}
	add("jan", time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC), 3.5)
	add("feb1", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), 1.25)
	add("feb2", time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC), 0.75)

	got, err := store.MonthCost(ctx, "user-1", "2026-02")
	if err != nil {
		t.Fatal(err)
	}
	if got != 2.0 {
		t.Errorf("Expected February cost 2.0, got %v", got)
	}
	if got, _ := store.MonthCost(ctx, "user-1", "2026-03"); got != 0 {
		t.Errorf("Expected empty month cost 0, got %v", got)
	}
}
