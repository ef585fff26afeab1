package coaching

import (
	"fmt"

	"github.com/mycoach/server/pkg/types"
)

const systemPersona = `You are an experienced hybrid training coach. Your athlete trains
across gym strength work, swimming, padel, and general cardio. You reason
from the structured training context provided and give specific, actionable
guidance grounded in the data. You respect recovery signals (HRV, sleep,
training readiness) and the athlete's current mesocycle phase. You never
invent data that is not in the context.`

var taskInstructions = map[string]string{
	types.TaskDailyBriefing: `Produce today's readiness briefing.
Respond ONLY with a JSON object of this exact shape:
{
  "readiness_verdict": "go_hard" | "moderate" | "active_recovery" | "rest",
  "summary": "2-3 sentence readiness assessment",
  "recommendations": ["specific actionable recommendation", ...],
  "cautions": ["optional warning", ...]
}`,
	types.TaskWeeklyPlan: `Produce a training plan for the coming week,
honoring the athlete's availability slots and the current mesocycle phase
(reduce volume in deload weeks, push load in intensification).
Respond ONLY with a JSON object of this exact shape:
{
  "overview": "1-2 sentence plan rationale",
  "phase_note": "how the mesocycle phase shaped this plan",
  "sessions": [
    {"day": 0-6 (0=Monday), "sport": "gym|swimming|padel|cardio",
     "focus": "session focus", "duration_minutes": N, "details": "optional detail"}
  ]
}`,
	types.TaskPostWorkout: `Analyze the most recent workout in the context.
Respond ONLY with a JSON object of this exact shape:
{
  "summary": "2-3 sentence analysis",
  "went_well": ["observation", ...],
  "to_improve": ["observation", ...],
  "next_session_hint": "optional pointer for the next session"
}`,
	types.TaskSleepCoaching: `Review the sleep data in the context and coach
the athlete on sleep quality.
Respond ONLY with a JSON object of this exact shape:
{
  "assessment": "2-3 sentence sleep assessment",
  "trends": ["observed trend", ...],
  "recommendations": ["specific actionable recommendation", ...]
}`,
}

// tierFor selects the model tier per task. Plan generation gets the
// higher-reasoning tier; daily tasks run cheap.
func tierFor(taskType string) string {
	if taskType == types.TaskWeeklyPlan {
		return TierReasoning
	}
	return TierCheap
}

// BuildPrompt assembles persona, context, and task instructions.
func BuildPrompt(tc *TaskContext) (string, error) {
	instructions, ok := taskInstructions[tc.TaskType]
	if !ok {
		return "", fmt.Errorf("no prompt template for task type %s", tc.TaskType)
	}
	return fmt.Sprintf("%s\n\nTraining context:\n%s\n\n%s\n", systemPersona, tc.Body, instructions), nil
}

// BuildRepairPrompt augments a prompt with the validation error from the
// first attempt and asks for a corrected structured response.
func BuildRepairPrompt(prompt, rawOutput string, validationErr error) string {
	return fmt.Sprintf(`%s

Your previous response failed validation: %v

Previous response:
%s

Respond ONLY with a corrected, valid JSON object matching the required shape. No prose, no markdown fences.`,
		prompt, validationErr, rawOutput)
}
