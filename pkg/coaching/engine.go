package coaching

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	shared "github.com/mycoach/server/pkg"
	"github.com/mycoach/server/pkg/infrastructure/pubsub"
	"github.com/mycoach/server/pkg/progression"
	"github.com/mycoach/server/pkg/types"
)

// EventTypeCoachingResult is the CloudEvent type emitted when a task
// completes, consumed by delivery collaborators.
const EventTypeCoachingResult = "com.mycoach.coaching.result"

// Engine orchestrates one coaching task end to end: advance progression
// if due, assemble context, invoke, validate, persist, publish. Tasks
// are idempotent per (task type, reference date): re-running returns
// the stored result without another model call.
type Engine struct {
	store     shared.Store
	assembler *Assembler
	validator *Validator
	tracker   *progression.Tracker
	publisher shared.Publisher
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewEngine(store shared.Store, assembler *Assembler, validator *Validator, tracker *progression.Tracker, publisher shared.Publisher, logger *slog.Logger) *Engine {
	return &Engine{
		store:     store,
		assembler: assembler,
		validator: validator,
		tracker:   tracker,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (e *Engine) userLock(userID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[userID] = l
	}
	return l
}

// RunCoachingTask runs one task synchronously to completion.
func (e *Engine) RunCoachingTask(ctx context.Context, userID, taskType, referenceDate string) (*types.CoachingResult, error) {
	if !types.ValidTaskType(taskType) {
		return nil, fmt.Errorf("unknown task type: %s", taskType)
	}
	refDate, err := time.Parse(types.DateLayout, referenceDate)
	if err != nil {
		return nil, fmt.Errorf("invalid reference date %q: %w", referenceDate, err)
	}

	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := e.store.GetResult(ctx, userID, taskType, referenceDate)
	if err != nil {
		return nil, fmt.Errorf("load existing result: %w", err)
	}
	if existing != nil {
		e.logger.Info("returning stored result",
			"task_type", taskType, "reference_date", referenceDate, "result_id", existing.ID)
		return existing, nil
	}

	// Weekly plans open a training week: the state machine advances
	// before context assembly so the plan reflects the new phase.
	if taskType == types.TaskWeeklyPlan {
		weekStart := mondayOf(refDate).Format(types.DateLayout)
		if _, err := e.tracker.Advance(ctx, userID, weekStart); err != nil {
			return nil, err
		}
	}

	tc, err := e.assembler.Assemble(ctx, userID, taskType, referenceDate)
	if err != nil {
		return nil, err
	}
	out, err := e.validator.GenerateValidated(ctx, userID, tc)
	if err != nil {
		return nil, err
	}

	result := &types.CoachingResult{
		ID:               uuid.NewString(),
		UserID:           userID,
		TaskType:         taskType,
		TemplateVersion:  TemplateVersion,
		ReferenceDate:    referenceDate,
		GeneratedAt:      e.now().UTC(),
		Payload:          out.Payload,
		RawText:          out.RawText,
		ValidationStatus: out.Status,
		CostEstimateUSD:  out.CostUSD,
		InvocationIDs:    out.InvocationIDs,
	}
	if err := e.store.SetResult(ctx, userID, result); err != nil {
		return nil, fmt.Errorf("store result: %w", err)
	}

	e.publish(ctx, result)
	e.logger.Info("coaching task complete",
		"task_type", taskType, "reference_date", referenceDate,
		"status", result.ValidationStatus, "cost_usd", result.CostEstimateUSD)
	return result, nil
}

// GetResult returns a stored result, or (nil, nil) when none exists.
func (e *Engine) GetResult(ctx context.Context, userID, taskType, referenceDate string) (*types.CoachingResult, error) {
	if !types.ValidTaskType(taskType) {
		return nil, fmt.Errorf("unknown task type: %s", taskType)
	}
	return e.store.GetResult(ctx, userID, taskType, referenceDate)
}

func (e *Engine) publish(ctx context.Context, result *types.CoachingResult) {
	if e.publisher == nil {
		return
	}
	ev, err := pubsub.NewCloudEvent(pubsub.SourceCoaching, EventTypeCoachingResult, result.UserID, result)
	if err != nil {
		e.logger.Error("failed to build result event", "error", err)
		return
	}
	if _, err := e.publisher.PublishCloudEvent(ctx, shared.TopicCoachingResults, ev); err != nil {
		e.logger.Error("failed to publish result event", "error", err)
	}
}
