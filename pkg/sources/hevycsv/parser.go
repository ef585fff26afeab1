// Package hevycsv implements the file-import adapter for Hevy workout CSV
// exports. It is stateless: Authenticate is a no-op and the whole uploaded
// document is parsed into RawRecords in one pass.
package hevycsv

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	lbsToKg       = 0.45359237
	milesToMeters = 1609.344
)

var requiredColumns = []string{"title", "start_time", "end_time", "exercise_title", "set_index", "set_type"}

// Set is a single set parsed from one CSV row.
type Set struct {
	ExerciseTitle   string   `json:"exercise_title"`
	SetIndex        int      `json:"set_index"`
	SetType         string   `json:"set_type"`
	SupersetID      *int     `json:"superset_id,omitempty"`
	ExerciseNotes   string   `json:"exercise_notes,omitempty"`
	WeightKg        *float64 `json:"weight_kg,omitempty"`
	Reps            *int     `json:"reps,omitempty"`
	DistanceMeters  *float64 `json:"distance_meters,omitempty"`
	DurationSeconds *int     `json:"duration_seconds,omitempty"`
	RPE             *float64 `json:"rpe,omitempty"`
}

// Workout groups the rows sharing a (title, start_time) pair.
type Workout struct {
	Title     string     `json:"title"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Sets      []Set      `json:"sets"`

	// RejectedRows are rows that identified this workout but failed
	// validation. They count toward the workout's source-row total so
	// a re-import of the same file reports them as dedup skips.
	RejectedRows []RejectedRow `json:"rejected_rows,omitempty"`
}

// RejectedRow is a malformed row attributed to a workout.
type RejectedRow struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// TotalRows is the number of CSV rows behind this workout, valid or not.
func (w *Workout) TotalRows() int {
	return len(w.Sets) + len(w.RejectedRows)
}

// ParseResult is the outcome of parsing one CSV document.
type ParseResult struct {
	Workouts []*Workout

	// Errors are document-level or unattributable row failures (rows
	// missing the identity fields needed to tie them to a workout).
	Errors []string

	RowsParsed   int
	RowsRejected int
}

func parseOptionalFloat(v string) *float64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}

func parseOptionalInt(v string) *int {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if i, err := strconv.Atoi(v); err == nil {
		return &i
	}
	if f := parseOptionalFloat(v); f != nil {
		i := int(*f)
		return &i
	}
	return nil
}

var timeLayouts = []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02 15:04"}

func parseTime(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Parse reads a Hevy CSV export into grouped workouts. Malformed rows do
// not abort the document: rows with identity fields are attributed to
// their workout as rejected rows, rows without go to document errors.
func Parse(r io.Reader) (*ParseResult, error) {
	res := &ParseResult{}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		res.Errors = append(res.Errors, "CSV file is empty or has no header row")
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF"))] = i
	}

	var missing []string
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		res.Errors = append(res.Errors, "missing required columns: "+strings.Join(missing, ", "))
		return res, nil
	}

	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	workouts := make(map[string]*Workout)
	var order []string

	for rowNum := 2; ; rowNum++ { // row 1 is the header
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", rowNum, err))
			res.RowsRejected++
			continue
		}

		title := field(row, "title")
		startStr := field(row, "start_time")
		exercise := field(row, "exercise_title")

		if title == "" || startStr == "" || exercise == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: missing title, start_time, or exercise_title", rowNum))
			res.RowsRejected++
			continue
		}

		start, ok := parseTime(startStr)
		if !ok {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: invalid start_time %q", rowNum, startStr))
			res.RowsRejected++
			continue
		}

		key := title + "|" + startStr
		w, exists := workouts[key]
		if !exists {
			w = &Workout{Title: title, StartTime: start}
			if end, ok := parseTime(field(row, "end_time")); ok {
				w.EndTime = &end
			}
			workouts[key] = w
			order = append(order, key)
		}

		reject := func(reason string) {
			w.RejectedRows = append(w.RejectedRows, RejectedRow{Row: rowNum, Reason: reason})
			res.RowsRejected++
		}

		setIndex := parseOptionalInt(field(row, "set_index"))
		if setIndex == nil {
			reject("invalid or missing set_index")
			continue
		}

		// Numeric fields that are present but unparseable reject the row;
		// absent fields are simply omitted.
		var weightKg *float64
		if v := field(row, "weight_lbs"); v != "" {
			lbs := parseOptionalFloat(v)
			if lbs == nil {
				reject(fmt.Sprintf("non-numeric weight_lbs %q", v))
				continue
			}
			kg := *lbs * lbsToKg
			weightKg = &kg
		}

		var distanceMeters *float64
		if v := field(row, "distance_miles"); v != "" {
			miles := parseOptionalFloat(v)
			if miles == nil {
				reject(fmt.Sprintf("non-numeric distance_miles %q", v))
				continue
			}
			m := *miles * milesToMeters
			distanceMeters = &m
		}

		var reps *int
		if v := field(row, "reps"); v != "" {
			reps = parseOptionalInt(v)
			if reps == nil {
				reject(fmt.Sprintf("non-numeric reps %q", v))
				continue
			}
		}

		rpe := parseOptionalFloat(field(row, "rpe"))
		if rpe != nil && (*rpe < 1 || *rpe > 10) {
			rpe = nil
		}

		setType := strings.ToLower(field(row, "set_type"))
		switch setType {
		case "normal", "warmup", "dropset", "failure":
		default:
			setType = "normal"
		}

		w.Sets = append(w.Sets, Set{
			ExerciseTitle:   exercise,
			SetIndex:        *setIndex,
			SetType:         setType,
			SupersetID:      parseOptionalInt(field(row, "superset_id")),
			ExerciseNotes:   field(row, "exercise_notes"),
			WeightKg:        weightKg,
			Reps:            reps,
			DistanceMeters:  distanceMeters,
			DurationSeconds: parseOptionalInt(field(row, "duration_seconds")),
			RPE:             rpe,
		})
		res.RowsParsed++
	}

	for _, key := range order {
		w := workouts[key]
		sort.SliceStable(w.Sets, func(i, j int) bool {
			if w.Sets[i].ExerciseTitle == w.Sets[j].ExerciseTitle {
				return w.Sets[i].SetIndex < w.Sets[j].SetIndex
			}
			return false
		})
		res.Workouts = append(res.Workouts, w)
	}
	return res, nil
}
