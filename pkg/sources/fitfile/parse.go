package fitfile

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/muktihari/fit/decoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
	"github.com/muktihari/fit/proto"

	"github.com/mycoach/server/pkg/types"
)

// parsedFile is the subset of a FIT file we care about: one session
// summary plus any strength sets. Multi-session files (device
// auto-pause) are folded into a single activity.
type parsedFile struct {
	name           string
	sport          string
	startTime      time.Time
	elapsedSeconds float64
	avgHR          int
	maxHR          int
	calories       int
	sets           []types.ExerciseSet
}

func parse(data []byte) (*parsedFile, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty FIT data")
	}

	fitDec := decoder.New(bytes.NewReader(data))

	out := &parsedFile{sport: types.SportOther}
	sessions := 0

	for fitDec.Next() {
		fitData, err := fitDec.Decode()
		if err != nil {
			return nil, fmt.Errorf("failed to decode FIT file: %w", err)
		}

		for _, msg := range fitData.Messages {
			switch msg.Num {
			case typedef.MesgNumFileId:
				fileId := mesgdef.NewFileId(&msg)
				if out.startTime.IsZero() && !fileId.TimeCreated.IsZero() {
					out.startTime = fileId.TimeCreated.UTC()
				}

			case typedef.MesgNumSession:
				sessionMsg := mesgdef.NewSession(&msg)
				if sessions == 0 {
					out.sport = mapFitSport(sessionMsg.Sport, sessionMsg.SubSport)
					if sessionMsg.SportProfileName != "" {
						out.name = sessionMsg.SportProfileName
					}
					if !sessionMsg.StartTime.IsZero() {
						out.startTime = sessionMsg.StartTime.UTC()
					}
				}
				sessions++
				if sessionMsg.TotalElapsedTime != 0xFFFFFFFF {
					out.elapsedSeconds += float64(sessionMsg.TotalElapsedTime) / 1000
				}
				if sessionMsg.AvgHeartRate != 0xFF && out.avgHR == 0 {
					out.avgHR = int(sessionMsg.AvgHeartRate)
				}
				if sessionMsg.MaxHeartRate != 0xFF && int(sessionMsg.MaxHeartRate) > out.maxHR {
					out.maxHR = int(sessionMsg.MaxHeartRate)
				}
				if sessionMsg.TotalCalories != 0xFFFF {
					out.calories += int(sessionMsg.TotalCalories)
				}

			case typedef.MesgNumSet:
				if set := parseSet(&msg, len(out.sets)); set != nil {
					out.sets = append(out.sets, *set)
				}
			}
		}
	}

	if out.startTime.IsZero() {
		return nil, fmt.Errorf("no timestamps found in FIT file")
	}
	if sessions == 0 && len(out.sets) == 0 {
		return nil, fmt.Errorf("no sessions found in FIT file")
	}
	if len(out.sets) > 0 && out.sport == types.SportOther {
		out.sport = types.SportGym
	}
	if out.name == "" {
		out.name = generateName(out.sport, out.startTime)
	}
	return out, nil
}

func parseSet(msg *proto.Message, index int) *types.ExerciseSet {
	setMsg := mesgdef.NewSet(msg)

	// Rest periods are recorded as Set messages too; skip them.
	if setMsg.SetType != typedef.SetTypeActive {
		return nil
	}

	set := &types.ExerciseSet{
		ExerciseName: "unknown",
		SetIndex:     index,
		SetType:      "normal",
	}
	if len(setMsg.Category) > 0 && setMsg.Category[0] != typedef.ExerciseCategoryInvalid {
		set.ExerciseName = humanizeCategory(setMsg.Category[0])
	}
	if setMsg.Repetitions != 0xFFFF {
		reps := int(setMsg.Repetitions)
		set.Reps = &reps
	}
	// Weight uses scale 16, kg
	if setMsg.Weight != 0xFFFF {
		kg := float64(setMsg.Weight) / 16
		set.WeightKg = &kg
	}
	// Duration uses milliseconds
	if setMsg.Duration != 0xFFFFFFFF {
		secs := int(setMsg.Duration / 1000)
		set.DurationSeconds = &secs
	}
	return set
}

// mapFitSport converts FIT SDK sport types to our sport buckets.
func mapFitSport(sport typedef.Sport, subSport typedef.SubSport) string {
	switch sport {
	case typedef.SportTraining, typedef.SportFitnessEquipment:
		if subSport == typedef.SubSportStrengthTraining {
			return types.SportGym
		}
		return types.SportCardio
	case typedef.SportSwimming:
		return types.SportSwimming
	case typedef.SportTennis, typedef.SportRacket:
		return types.SportPadel
	case typedef.SportRunning, typedef.SportCycling, typedef.SportWalking,
		typedef.SportHiking, typedef.SportRowing:
		return types.SportCardio
	default:
		return types.SportOther
	}
}

func humanizeCategory(c typedef.ExerciseCategory) string {
	return strings.ReplaceAll(c.String(), "_", " ")
}

func generateName(sport string, start time.Time) string {
	return fmt.Sprintf("%s %s", sport, start.Format(types.DateLayout))
}
