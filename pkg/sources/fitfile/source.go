// Package fitfile imports activities from uploaded Garmin FIT files.
// It covers devices that sync through files rather than the Connect API,
// including strength workouts recorded on-watch with Set messages.
package fitfile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mycoach/server/pkg/sources"
	"github.com/mycoach/server/pkg/types"
)

// Source adapts one uploaded FIT file. Like the CSV adapter, a new
// Source is built per upload and Fetch re-parses the same bytes.
type Source struct {
	filename string
	data     []byte
	now      func() time.Time
}

var _ sources.Source = (*Source)(nil)

func NewSource(filename string, data []byte) *Source {
	return &Source{filename: filename, data: data, now: time.Now}
}

func (s *Source) ID() string {
	return types.SourceFitFile
}

// Authenticate is a no-op: file imports carry no credentials.
func (s *Source) Authenticate(ctx context.Context) error {
	return nil
}

// payload is the stored form of an upload. The raw bytes ride along so
// Normalize can re-decode without another copy of the file; encoding/json
// base64s them.
type payload struct {
	Filename string `json:"filename"`
	Data     []byte `json:"data"`
}

// Fetch decodes the file once to establish identity (start time and
// title), then emits a single record holding the raw bytes.
func (s *Source) Fetch(ctx context.Context, since time.Time) (*sources.FetchResult, error) {
	parsed, err := parse(s.data)
	if err != nil {
		return &sources.FetchResult{
			Rejected: []sources.RowError{{Reason: fmt.Sprintf("%s: %v", s.filename, err)}},
		}, nil
	}

	body, err := json.Marshal(payload{Filename: s.filename, Data: s.data})
	if err != nil {
		return nil, fmt.Errorf("marshal fit payload: %w", err)
	}
	return &sources.FetchResult{
		Records: []types.RawRecord{{
			SourceID:   s.ID(),
			ExternalID: types.TitleExternalID(parsed.startTime, parsed.name),
			Kind:       types.KindActivity,
			Payload:    body,
			FetchedAt:  s.now().UTC(),
			Rows:       1,
		}},
	}, nil
}

// Normalize decodes the stored bytes into an Activity. Set messages
// become exercise sets; session totals fill the summary fields.
func (s *Source) Normalize(rec types.RawRecord) (sources.Record, error) {
	var p payload
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		return nil, &sources.ValidationError{SourceID: s.ID(), ExternalID: rec.ExternalID, Reason: err.Error()}
	}
	parsed, err := parse(p.Data)
	if err != nil {
		return nil, &sources.ValidationError{SourceID: s.ID(), ExternalID: rec.ExternalID, Reason: err.Error()}
	}

	a := &types.Activity{
		Key:        rec.Key(),
		Sport:      parsed.sport,
		Title:      parsed.name,
		Source:     s.ID(),
		Provenance: types.ProvenanceSingleSource,
		ExternalID: rec.ExternalID,
		StartTime:  parsed.startTime,
		FetchedAt:  rec.FetchedAt,
		Sets:       parsed.sets,
	}
	if parsed.elapsedSeconds > 0 {
		end := parsed.startTime.Add(time.Duration(parsed.elapsedSeconds * float64(time.Second)))
		a.EndTime = &end
		mins := int(parsed.elapsedSeconds / 60)
		if mins > 0 {
			a.DurationMinutes = &mins
		}
	}
	if parsed.avgHR > 0 {
		hr := parsed.avgHR
		a.AvgHR = &hr
	}
	if parsed.maxHR > 0 {
		hr := parsed.maxHR
		a.MaxHR = &hr
	}
	if parsed.calories > 0 {
		cal := parsed.calories
		a.Calories = &cal
	}
	return a, nil
}
