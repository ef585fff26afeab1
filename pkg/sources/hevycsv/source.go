package hevycsv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mycoach/server/pkg/sources"
	"github.com/mycoach/server/pkg/types"
)

// Source adapts one uploaded Hevy CSV document. A new Source is built per
// upload; Fetch is restartable because it re-parses the same bytes.
type Source struct {
	content []byte
	now     func() time.Time
}

var _ sources.Source = (*Source)(nil)

func NewSource(content []byte) *Source {
	return &Source{content: content, now: time.Now}
}

func (s *Source) ID() string {
	return types.SourceHevyCSV
}

// Authenticate is a no-op: file imports carry no credentials.
func (s *Source) Authenticate(ctx context.Context) error {
	return nil
}

// Fetch parses the whole document. The since cursor is ignored: a CSV
// export is a complete statement of its own contents, and dedup makes
// re-ingestion a no-op.
func (s *Source) Fetch(ctx context.Context, since time.Time) (*sources.FetchResult, error) {
	parsed, err := Parse(bytes.NewReader(s.content))
	if err != nil {
		return nil, err
	}

	out := &sources.FetchResult{}
	fetchedAt := s.now().UTC()

	for _, w := range parsed.Workouts {
		externalID := types.TitleExternalID(w.StartTime, w.Title)
		payload, err := json.Marshal(w)
		if err != nil {
			return nil, fmt.Errorf("marshal workout %q: %w", w.Title, err)
		}
		out.Records = append(out.Records, types.RawRecord{
			SourceID:   s.ID(),
			ExternalID: externalID,
			Kind:       types.KindActivity,
			Payload:    payload,
			FetchedAt:  fetchedAt,
			Rows:       w.TotalRows(),
		})
		for _, rej := range w.RejectedRows {
			out.Rejected = append(out.Rejected, sources.RowError{
				Row:    rej.Row,
				Group:  externalID,
				Reason: rej.Reason,
			})
		}
	}
	for _, e := range parsed.Errors {
		out.Rejected = append(out.Rejected, sources.RowError{Reason: e})
	}
	return out, nil
}

// Normalize turns a workout record into a gym Activity with its sets.
func (s *Source) Normalize(rec types.RawRecord) (sources.Record, error) {
	var w Workout
	if err := json.Unmarshal(rec.Payload, &w); err != nil {
		return nil, &sources.ValidationError{SourceID: s.ID(), ExternalID: rec.ExternalID, Reason: err.Error()}
	}
	if w.Title == "" || w.StartTime.IsZero() {
		return nil, &sources.ValidationError{SourceID: s.ID(), ExternalID: rec.ExternalID, Reason: "workout missing title or start time"}
	}

	a := &types.Activity{
		Key:        rec.Key(),
		Sport:      types.SportGym,
		Title:      w.Title,
		Source:     s.ID(),
		Provenance: types.ProvenanceSingleSource,
		ExternalID: rec.ExternalID,
		StartTime:  w.StartTime,
		EndTime:    w.EndTime,
		FetchedAt:  rec.FetchedAt,
	}
	if w.EndTime != nil {
		if mins := int(w.EndTime.Sub(w.StartTime).Minutes()); mins > 0 {
			a.DurationMinutes = &mins
		}
	}
	for _, set := range w.Sets {
		a.Sets = append(a.Sets, types.ExerciseSet{
			ExerciseName:    set.ExerciseTitle,
			SetIndex:        set.SetIndex,
			SetType:         set.SetType,
			SupersetID:      set.SupersetID,
			Notes:           set.ExerciseNotes,
			WeightKg:        set.WeightKg,
			Reps:            set.Reps,
			DistanceMeters:  set.DistanceMeters,
			DurationSeconds: set.DurationSeconds,
			RPE:             set.RPE,
		})
	}
	return a, nil
}
