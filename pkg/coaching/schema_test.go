package coaching

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycoach/server/pkg/types"
)

func TestSchemaFor_AllTasksRegistered(t *testing.T) {
	for _, taskType := range []string{
		types.TaskDailyBriefing, types.TaskWeeklyPlan, types.TaskPostWorkout, types.TaskSleepCoaching,
	} {
		s, ok := SchemaFor(taskType, TemplateVersion)
		require.True(t, ok, "missing schema for %s", taskType)
		assert.Equal(t, taskType, s.TaskType)
	}
	_, ok := SchemaFor(types.TaskDailyBriefing, "v999")
	assert.False(t, ok)
}

func TestValidateDailyBriefing(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr string
	}{
		{
			name:    "valid",
			payload: `{"readiness_verdict":"go_hard","summary":"Fresh.","recommendations":["Heavy squats."]}`,
		},
		{
			name:    "unknown verdict",
			payload: `{"readiness_verdict":"yolo","summary":"Fresh.","recommendations":["x"]}`,
			wantErr: "readiness_verdict",
		},
		{
			name:    "missing summary",
			payload: `{"readiness_verdict":"rest","recommendations":["x"]}`,
			wantErr: "summary",
		},
		{
			name:    "no recommendations",
			payload: `{"readiness_verdict":"rest","summary":"Tired."}`,
			wantErr: "recommendation",
		},
	}
	s, _ := SchemaFor(types.TaskDailyBriefing, TemplateVersion)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Validate(json.RawMessage(tt.payload))
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateWeeklyPlan(t *testing.T) {
	s, _ := SchemaFor(types.TaskWeeklyPlan, TemplateVersion)

	valid := `{"overview":"Base week.","sessions":[{"day":0,"sport":"gym","focus":"squat","duration_minutes":60}]}`
	assert.NoError(t, s.Validate(json.RawMessage(valid)))

	badDay := `{"overview":"Base week.","sessions":[{"day":7,"sport":"gym","focus":"squat","duration_minutes":60}]}`
	err := s.Validate(json.RawMessage(badDay))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "day must be 0-6")

	noSessions := `{"overview":"Base week.","sessions":[]}`
	assert.Error(t, s.Validate(json.RawMessage(noSessions)))

	zeroDuration := `{"overview":"Base week.","sessions":[{"day":1,"sport":"gym","focus":"squat","duration_minutes":0}]}`
	assert.Error(t, s.Validate(json.RawMessage(zeroDuration)))
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    string
		wantErr bool
	}{
		{name: "bare object", text: `{"a":1}`, want: `{"a":1}`},
		{name: "fenced", text: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "prose wrapped", text: "Here you go:\n{\"a\":1}\nHope that helps!", want: `{"a":1}`},
		{name: "no object", text: "sorry, I cannot help", wantErr: true},
		{name: "truncated", text: `{"a":`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := ExtractJSON(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(raw))
		})
	}
}
