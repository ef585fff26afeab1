package garmin

import (
	"testing"
	"time"

	"github.com/mycoach/server/pkg/types"
)

func TestClassifySport(t *testing.T) {
	tests := []struct {
		typeKey string
		want    string
	}{
		{"strength_training", types.SportGym},
		{"lap_swimming", types.SportSwimming},
		{"running", types.SportCardio},
		{"indoor_cardio", types.SportCardio},
		{"padel", types.SportPadel},
		{"Strength Training", types.SportGym},
		{"  cycling  ", types.SportCardio},
		{"snowboarding", types.SportOther},
		{"", types.SportOther},
	}
	for _, tt := range tests {
		if got := ClassifySport(tt.typeKey); got != tt.want {
			t.Errorf("ClassifySport(%q) = %q, want %q", tt.typeKey, got, tt.want)
		}
	}
}

func TestMapActivity(t *testing.T) {
	fetched := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	rec := types.RawRecord{
		SourceID:   types.SourceGarmin,
		ExternalID: "1234567",
		Kind:       types.KindActivity,
		FetchedAt:  fetched,
		Payload: []byte(`{
			"activityId": 1234567,
			"activityName": "Morning Strength",
			"activityType": {"typeKey": "strength_training"},
			"startTimeLocal": "2026-02-10 09:00:00",
			"duration": 3000.0,
			"averageHR": 132.0,
			"maxHR": 158.0,
			"calories": 410.0,
			"aerobicTrainingEffect": 2.1,
			"anaerobicTrainingEffect": 1.4,
			"hrTimeInZoneMinutes": {"zone2": 20.5, "zone3": 15.2}
		}`),
	}

	a, err := mapActivity(rec)
	if err != nil {
		t.Fatalf("mapActivity failed: %v", err)
	}
	if a.Sport != types.SportGym {
		t.Errorf("Expected sport gym, got %q", a.Sport)
	}
	if a.Title != "Morning Strength" {
		t.Errorf("Expected activity name as title, got %q", a.Title)
	}
	if a.Key != rec.Key() {
		t.Errorf("Expected key %q, got %q", rec.Key(), a.Key)
	}
	wantStart := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	if !a.StartTime.Equal(wantStart) {
		t.Errorf("Expected start %v, got %v", wantStart, a.StartTime)
	}
	if a.DurationMinutes == nil || *a.DurationMinutes != 50 {
		t.Errorf("Expected 50 minute duration, got %v", a.DurationMinutes)
	}
	if a.EndTime == nil || !a.EndTime.Equal(wantStart.Add(50*time.Minute)) {
		t.Errorf("Expected end time 50 minutes after start, got %v", a.EndTime)
	}
	if a.AvgHR == nil || *a.AvgHR != 132 {
		t.Errorf("Expected avg HR 132, got %v", a.AvgHR)
	}
	if a.Calories == nil || *a.Calories != 410 {
		t.Errorf("Expected 410 calories, got %v", a.Calories)
	}
	if a.HRZones["zone2"] != 20 || a.HRZones["zone3"] != 15 {
		t.Errorf("Expected truncated zone minutes, got %v", a.HRZones)
	}
	if a.TrainingEffectAerobic == nil || *a.TrainingEffectAerobic != 2.1 {
		t.Errorf("Expected aerobic TE 2.1, got %v", a.TrainingEffectAerobic)
	}
	if a.Provenance != types.ProvenanceSingleSource {
		t.Errorf("Expected single-source provenance, got %q", a.Provenance)
	}
}

func TestMapActivity_FallbackTitleAndMissingStart(t *testing.T) {
	rec := types.RawRecord{
		Payload: []byte(`{"activityType":{"typeKey":"running"},"startTimeGMT":"2026-02-10 06:30:00"}`),
	}
	a, err := mapActivity(rec)
	if err != nil {
		t.Fatalf("mapActivity failed: %v", err)
	}
	if a.Title != "running" {
		t.Errorf("Expected type key fallback title, got %q", a.Title)
	}
	if a.DurationMinutes != nil {
		t.Error("Expected no duration when the payload omits it")
	}

	rec.Payload = []byte(`{"activityType":{"typeKey":"running"}}`)
	if _, err := mapActivity(rec); err == nil {
		t.Fatal("Expected error for a payload with no start time")
	}
}

func TestMapHealthSnapshot(t *testing.T) {
	rec := types.RawRecord{
		Kind: types.KindHealth,
		Payload: []byte(`{
			"date": "2026-02-10",
			"summary": {"restingHeartRate": 46, "averageStressLevel": 28, "vo2MaxValue": 52.0, "moderateIntensityMinutes": 30, "vigorousIntensityMinutes": 10},
			"sleep": {"dailySleepDTO": {"sleepTimeSeconds": 27000, "deepSleepSeconds": 5400, "sleepScores": {"overall": {"value": 82}}}},
			"hrv": {"hrvSummary": {"lastNightAvg": 58.0, "weeklyAvg": 61.5}},
			"readiness": {"score": 77, "acuteTrainingLoad": 312.5, "trainingStatusKey": "productive"}
		}`),
	}

	snap, err := mapHealthSnapshot(rec)
	if err != nil {
		t.Fatalf("mapHealthSnapshot failed: %v", err)
	}
	if snap.Date != "2026-02-10" {
		t.Errorf("Expected date preserved, got %q", snap.Date)
	}
	if snap.RestingHR == nil || *snap.RestingHR != 46 {
		t.Errorf("Expected resting HR 46, got %v", snap.RestingHR)
	}
	if snap.SleepDurationMinutes == nil || *snap.SleepDurationMinutes != 450 {
		t.Errorf("Expected 450 sleep minutes, got %v", snap.SleepDurationMinutes)
	}
	if snap.SleepDeepMinutes == nil || *snap.SleepDeepMinutes != 90 {
		t.Errorf("Expected 90 deep minutes, got %v", snap.SleepDeepMinutes)
	}
	if snap.SleepScore == nil || *snap.SleepScore != 82 {
		t.Errorf("Expected sleep score 82, got %v", snap.SleepScore)
	}
	if snap.HRVLastNight == nil || *snap.HRVLastNight != 58.0 {
		t.Errorf("Expected HRV 58, got %v", snap.HRVLastNight)
	}
	if snap.TrainingLoad == nil || *snap.TrainingLoad != 312.5 {
		t.Errorf("Expected training load 312.5, got %v", snap.TrainingLoad)
	}
	if snap.TrainingStatus != "productive" {
		t.Errorf("Expected status productive, got %q", snap.TrainingStatus)
	}
	// Vigorous minutes count double.
	if snap.IntensityMinutes == nil || *snap.IntensityMinutes != 50 {
		t.Errorf("Expected 50 intensity minutes, got %v", snap.IntensityMinutes)
	}
}

func TestMapHealthSnapshot_PartialSectionsTolerated(t *testing.T) {
	rec := types.RawRecord{Payload: []byte(`{"date": "2026-02-10"}`)}
	snap, err := mapHealthSnapshot(rec)
	if err != nil {
		t.Fatalf("Expected partial payload accepted: %v", err)
	}
	if snap.RestingHR != nil || snap.SleepScore != nil {
		t.Error("Expected empty metrics for an empty payload")
	}

	rec.Payload = []byte(`{"summary": {"restingHeartRate": 46}}`)
	if _, err := mapHealthSnapshot(rec); err == nil {
		t.Fatal("Expected error for a payload with no date")
	}
}
