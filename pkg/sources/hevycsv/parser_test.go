package hevycsv

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"
)

const legDayCSV = `title,start_time,end_time,exercise_title,superset_id,exercise_notes,set_index,set_type,weight_lbs,reps,distance_miles,duration_seconds,rpe
Leg Day,2026-02-10 09:00:00,2026-02-10 09:45:00,Squat (Barbell),,,0,normal,220,5,,,8
Leg Day,2026-02-10 09:00:00,2026-02-10 09:45:00,Squat (Barbell),,,1,normal,heavy,5,,,8
Leg Day,2026-02-10 09:00:00,2026-02-10 09:45:00,Leg Press,,,0,normal,400,8,,,7
`

func TestParse_LegDay(t *testing.T) {
	res, err := Parse(strings.NewReader(legDayCSV))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(res.Workouts) != 1 {
		t.Fatalf("Expected 1 workout, got %d", len(res.Workouts))
	}
	w := res.Workouts[0]
	if w.Title != "Leg Day" {
		t.Errorf("Expected title Leg Day, got %q", w.Title)
	}
	if len(w.Sets) != 2 {
		t.Fatalf("Expected 2 valid sets, got %d", len(w.Sets))
	}
	if len(w.RejectedRows) != 1 {
		t.Fatalf("Expected 1 rejected row, got %d", len(w.RejectedRows))
	}
	if w.RejectedRows[0].Row != 3 {
		t.Errorf("Expected rejection on row 3, got %d", w.RejectedRows[0].Row)
	}
	if !strings.Contains(w.RejectedRows[0].Reason, "weight_lbs") {
		t.Errorf("Expected weight_lbs in rejection reason, got %q", w.RejectedRows[0].Reason)
	}
	if w.TotalRows() != 3 {
		t.Errorf("Expected 3 total rows, got %d", w.TotalRows())
	}

	// 220 lbs -> kg
	squat := w.Sets[0]
	if squat.WeightKg == nil || math.Abs(*squat.WeightKg-99.79) > 0.01 {
		t.Errorf("Expected squat weight ~99.79kg, got %v", squat.WeightKg)
	}
	if squat.RPE == nil || *squat.RPE != 8 {
		t.Errorf("Expected squat RPE 8, got %v", squat.RPE)
	}
	if w.EndTime == nil || w.EndTime.Sub(w.StartTime).Minutes() != 45 {
		t.Errorf("Expected 45 minute workout window")
	}
}

func TestParse_MissingIdentityRowsAreUnattributable(t *testing.T) {
	csv := `title,start_time,end_time,exercise_title,set_index,set_type
Leg Day,2026-02-10 09:00:00,2026-02-10 09:45:00,Squat (Barbell),0,normal
,,,Bench Press,0,normal
`
	res, err := Parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(res.Workouts) != 1 || len(res.Workouts[0].Sets) != 1 {
		t.Fatal("Expected one workout with one set")
	}
	if len(res.Errors) != 1 {
		t.Fatalf("Expected 1 document-level error, got %d: %v", len(res.Errors), res.Errors)
	}
	if res.RowsRejected != 1 {
		t.Errorf("Expected 1 rejected row, got %d", res.RowsRejected)
	}
}

func TestParse_ByteOrderMarkHeader(t *testing.T) {
	res, err := Parse(strings.NewReader("\uFEFF" + legDayCSV))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("Expected no document errors, got %v", res.Errors)
	}
	if len(res.Workouts) != 1 || len(res.Workouts[0].Sets) != 2 {
		t.Error("Expected the exported header to parse despite the leading byte order mark")
	}
}

func TestParse_MissingRequiredColumns(t *testing.T) {
	res, err := Parse(strings.NewReader("title,start_time\nLeg Day,2026-02-10 09:00:00\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(res.Errors) == 0 || !strings.Contains(res.Errors[0], "missing required columns") {
		t.Errorf("Expected missing-columns error, got %v", res.Errors)
	}
}

func TestParse_RPEOutOfRangeDropped(t *testing.T) {
	csv := `title,start_time,end_time,exercise_title,set_index,set_type,rpe
Leg Day,2026-02-10 09:00:00,,Squat (Barbell),0,normal,15
`
	res, err := Parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(res.Workouts) != 1 || len(res.Workouts[0].Sets) != 1 {
		t.Fatal("Expected the row to remain valid")
	}
	if res.Workouts[0].Sets[0].RPE != nil {
		t.Errorf("Expected out-of-range RPE to be dropped, got %v", *res.Workouts[0].Sets[0].RPE)
	}
}

func TestSourceFetch(t *testing.T) {
	src := NewSource([]byte(legDayCSV))
	result, err := src.Fetch(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(result.Records))
	}
	rec := result.Records[0]
	if rec.Rows != 3 {
		t.Errorf("Expected record to carry 3 source rows, got %d", rec.Rows)
	}
	if len(result.Rejected) != 1 {
		t.Fatalf("Expected 1 rejected row, got %d", len(result.Rejected))
	}
	if result.Rejected[0].Group != rec.ExternalID {
		t.Errorf("Expected rejection attributed to the workout record")
	}

	normalized, err := src.Normalize(rec)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if normalized.RecordKind() != "activity" {
		t.Errorf("Expected activity record, got %s", normalized.RecordKind())
	}
}
