package garmin

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mycoach/server/pkg/types"
)

// garminSportMap collapses Garmin activity type keys into our sport
// classifications.
var garminSportMap = map[string]string{
	"swimming":            types.SportSwimming,
	"lap_swimming":        types.SportSwimming,
	"open_water_swimming": types.SportSwimming,
	"pool_swimming":       types.SportSwimming,
	"strength_training":   types.SportGym,
	"cardio":              types.SportCardio,
	"indoor_cardio":       types.SportCardio,
	"running":             types.SportCardio,
	"cycling":             types.SportCardio,
	"walking":             types.SportCardio,
	"hiking":              types.SportCardio,
	"elliptical":          types.SportCardio,
	"padel":               types.SportPadel,
	"other":               types.SportOther,
}

// ClassifySport maps a Garmin activity type key to a sport bucket.
func ClassifySport(typeKey string) string {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(typeKey), " ", "_"))
	if sport, ok := garminSportMap[normalized]; ok {
		return sport
	}
	return types.SportOther
}

// rawActivity is the slice of a Connect activity payload we map.
type rawActivity struct {
	ActivityID   json.Number `json:"activityId"`
	ActivityName string      `json:"activityName"`
	ActivityType struct {
		TypeKey string `json:"typeKey"`
	} `json:"activityType"`
	StartTimeLocal          string             `json:"startTimeLocal"`
	StartTimeGMT            string             `json:"startTimeGMT"`
	DurationSeconds         *float64           `json:"duration"`
	AverageHR               *float64           `json:"averageHR"`
	MaxHR                   *float64           `json:"maxHR"`
	Calories                *float64           `json:"calories"`
	AerobicTrainingEffect   *float64           `json:"aerobicTrainingEffect"`
	AnaerobicTrainingEffect *float64           `json:"anaerobicTrainingEffect"`
	HRZoneMinutes           map[string]float64 `json:"hrTimeInZoneMinutes"`
}

var garminTimeLayouts = []string{"2006-01-02 15:04:05", time.RFC3339, "2006-01-02T15:04:05"}

func parseGarminTime(v string) (time.Time, bool) {
	v = strings.TrimSpace(strings.TrimSuffix(v, ".0"))
	for _, layout := range garminTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func intPtr(f *float64) *int {
	if f == nil {
		return nil
	}
	i := int(*f)
	return &i
}

// mapActivity converts one raw Connect activity payload into a canonical
// single-source Activity.
func mapActivity(rec types.RawRecord) (*types.Activity, error) {
	var raw rawActivity
	if err := json.Unmarshal(rec.Payload, &raw); err != nil {
		return nil, fmt.Errorf("decode activity payload: %w", err)
	}

	startStr := raw.StartTimeLocal
	if startStr == "" {
		startStr = raw.StartTimeGMT
	}
	start, ok := parseGarminTime(startStr)
	if !ok {
		return nil, fmt.Errorf("unparseable start time %q", startStr)
	}

	title := raw.ActivityName
	if title == "" {
		title = raw.ActivityType.TypeKey
	}

	a := &types.Activity{
		Key:                     rec.Key(),
		Sport:                   ClassifySport(raw.ActivityType.TypeKey),
		Title:                   title,
		Source:                  types.SourceGarmin,
		Provenance:              types.ProvenanceSingleSource,
		ExternalID:              rec.ExternalID,
		StartTime:               start,
		AvgHR:                   intPtr(raw.AverageHR),
		MaxHR:                   intPtr(raw.MaxHR),
		Calories:                intPtr(raw.Calories),
		TrainingEffectAerobic:   raw.AerobicTrainingEffect,
		TrainingEffectAnaerobic: raw.AnaerobicTrainingEffect,
		FetchedAt:               rec.FetchedAt,
	}
	if raw.DurationSeconds != nil && *raw.DurationSeconds > 0 {
		mins := int(*raw.DurationSeconds / 60)
		a.DurationMinutes = &mins
		end := start.Add(time.Duration(*raw.DurationSeconds) * time.Second)
		a.EndTime = &end
	}
	if len(raw.HRZoneMinutes) > 0 {
		a.HRZones = make(map[string]int, len(raw.HRZoneMinutes))
		for zone, mins := range raw.HRZoneMinutes {
			a.HRZones[zone] = int(mins)
		}
	}
	return a, nil
}

// healthPayload bundles the per-day wellness endpoints into one record.
type healthPayload struct {
	Date      string          `json:"date"`
	Summary   json.RawMessage `json:"summary,omitempty"`
	Sleep     json.RawMessage `json:"sleep,omitempty"`
	HRV       json.RawMessage `json:"hrv,omitempty"`
	Readiness json.RawMessage `json:"readiness,omitempty"`
}

type dailySummary struct {
	RestingHeartRate          *int     `json:"restingHeartRate"`
	MaxHeartRate              *int     `json:"maxHeartRate"`
	AverageHeartRate          *int     `json:"averageHeartRate"`
	TotalSteps                *int     `json:"totalSteps"`
	AverageStressLevel        *int     `json:"averageStressLevel"`
	BodyBatteryHighestValue   *int     `json:"bodyBatteryHighestValue"`
	BodyBatteryLowestValue    *int     `json:"bodyBatteryLowestValue"`
	AvgWakingRespirationValue *float64 `json:"avgWakingRespirationValue"`
	AverageSpo2               *float64 `json:"averageSpo2"`
	ModerateIntensityMinutes  *int     `json:"moderateIntensityMinutes"`
	VigorousIntensityMinutes  *int     `json:"vigorousIntensityMinutes"`
	VO2MaxValue               *float64 `json:"vo2MaxValue"`
}

type sleepData struct {
	DailySleepDTO struct {
		SleepTimeSeconds  *int `json:"sleepTimeSeconds"`
		DeepSleepSeconds  *int `json:"deepSleepSeconds"`
		LightSleepSeconds *int `json:"lightSleepSeconds"`
		RemSleepSeconds   *int `json:"remSleepSeconds"`
		AwakeSleepSeconds *int `json:"awakeSleepSeconds"`
		SleepScores       struct {
			Overall struct {
				Value *int `json:"value"`
			} `json:"overall"`
		} `json:"sleepScores"`
	} `json:"dailySleepDTO"`
}

type hrvData struct {
	HRVSummary struct {
		LastNightAvg *float64 `json:"lastNightAvg"`
		WeeklyAvg    *float64 `json:"weeklyAvg"`
	} `json:"hrvSummary"`
}

type readinessData struct {
	Score          *int     `json:"score"`
	TrainingLoad   *float64 `json:"acuteTrainingLoad"`
	TrainingStatus string   `json:"trainingStatusKey"`
}

func secondsToMinutes(s *int) *int {
	if s == nil {
		return nil
	}
	m := *s / 60
	return &m
}

// mapHealthSnapshot builds one day's HealthSnapshot from the bundled
// wellness payload. Missing sections are tolerated; partial data is still
// a valid snapshot.
func mapHealthSnapshot(rec types.RawRecord) (*types.HealthSnapshot, error) {
	var p healthPayload
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode health payload: %w", err)
	}
	if p.Date == "" {
		return nil, fmt.Errorf("health payload missing date")
	}

	snap := &types.HealthSnapshot{
		Date:      p.Date,
		Source:    types.SourceGarmin,
		FetchedAt: rec.FetchedAt,
	}

	if len(p.Summary) > 0 {
		var s dailySummary
		if err := json.Unmarshal(p.Summary, &s); err == nil {
			snap.RestingHR = s.RestingHeartRate
			snap.MaxHR = s.MaxHeartRate
			snap.AvgHR = s.AverageHeartRate
			snap.Steps = s.TotalSteps
			snap.AvgStress = s.AverageStressLevel
			snap.BodyBatteryHigh = s.BodyBatteryHighestValue
			snap.BodyBatteryLow = s.BodyBatteryLowestValue
			snap.RespirationAvg = s.AvgWakingRespirationValue
			snap.SpO2Avg = s.AverageSpo2
			snap.VO2Max = s.VO2MaxValue
			if s.ModerateIntensityMinutes != nil || s.VigorousIntensityMinutes != nil {
				total := 0
				if s.ModerateIntensityMinutes != nil {
					total += *s.ModerateIntensityMinutes
				}
				if s.VigorousIntensityMinutes != nil {
					total += 2 * *s.VigorousIntensityMinutes
				}
				snap.IntensityMinutes = &total
			}
		}
	}

	if len(p.Sleep) > 0 {
		var s sleepData
		if err := json.Unmarshal(p.Sleep, &s); err == nil {
			dto := s.DailySleepDTO
			snap.SleepDurationMinutes = secondsToMinutes(dto.SleepTimeSeconds)
			snap.SleepDeepMinutes = secondsToMinutes(dto.DeepSleepSeconds)
			snap.SleepLightMinutes = secondsToMinutes(dto.LightSleepSeconds)
			snap.SleepRemMinutes = secondsToMinutes(dto.RemSleepSeconds)
			snap.SleepAwakeMinutes = secondsToMinutes(dto.AwakeSleepSeconds)
			snap.SleepScore = dto.SleepScores.Overall.Value
		}
	}

	if len(p.HRV) > 0 {
		var h hrvData
		if err := json.Unmarshal(p.HRV, &h); err == nil {
			snap.HRVLastNight = h.HRVSummary.LastNightAvg
			snap.HRV7DayAvg = h.HRVSummary.WeeklyAvg
		}
	}

	if len(p.Readiness) > 0 {
		var r readinessData
		if err := json.Unmarshal(p.Readiness, &r); err == nil {
			snap.TrainingReadiness = r.Score
			snap.TrainingLoad = r.TrainingLoad
			snap.TrainingStatus = r.TrainingStatus
		}
	}

	return snap, nil
}
