package coaching

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mycoach/server/pkg/types"
)

// InvokerConfig bounds retry behavior and cost estimation.
type InvokerConfig struct {
	// MaxAttempts bounds transient-failure retries. Zero means 3.
	MaxAttempts int
	// BaseBackoff is the first retry delay, doubled per attempt. Zero
	// means 500ms.
	BaseBackoff time.Duration
	// EstimatedOutputTokens feeds the pre-invocation cost estimate. Zero
	// means 1024.
	EstimatedOutputTokens int
}

func (c *InvokerConfig) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 500 * time.Millisecond
	}
	if c.EstimatedOutputTokens <= 0 {
		c.EstimatedOutputTokens = 1024
	}
}

// Invoker calls the model backend under the cost ceiling. Transient
// failures retry with exponential backoff up to a small fixed bound;
// auth and malformed-request failures fail immediately.
//
// Invoke never writes the invocation record itself: it returns one for
// every call, success or failure, and the caller appends it after
// deciding the validation outcome.
type Invoker struct {
	backend Backend
	ledger  *CostLedger
	logger  *slog.Logger
	cfg     InvokerConfig
	now     func() time.Time
	sleep   func(time.Duration)
}

func NewInvoker(backend Backend, ledger *CostLedger, logger *slog.Logger, cfg InvokerConfig) *Invoker {
	cfg.applyDefaults()
	return &Invoker{
		backend: backend,
		ledger:  ledger,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// estimateModel maps a tier to the model used for pre-call pricing.
func estimateModel(tier string) string {
	if tier == TierReasoning {
		return "gemini-1.5-pro"
	}
	return "gemini-2.0-flash"
}

// Invoke runs one admission-checked backend call. The returned
// PromptInvocation is non-nil in every case and must be appended by the
// caller; its Outcome is failed or refused on error and valid otherwise
// (the output validator downgrades it if validation fails).
func (iv *Invoker) Invoke(ctx context.Context, userID, taskType string, req *GenerateRequest) (*GenerateResponse, *types.PromptInvocation, error) {
	inv := &types.PromptInvocation{
		ID:              uuid.NewString(),
		TaskType:        taskType,
		TemplateVersion: TemplateVersion,
		Prompt:          req.Prompt,
		CreatedAt:       iv.now().UTC(),
	}

	inputTokens := EstimateTokens(req.Prompt)
	estCost := CostUSD(estimateModel(req.Tier), inputTokens, iv.cfg.EstimatedOutputTokens)

	if err := iv.ledger.Reserve(ctx, userID, estCost); err != nil {
		var budgetErr *BudgetExceededError
		if errors.As(err, &budgetErr) {
			inv.Outcome = types.OutcomeRefused
			inv.Error = err.Error()
			iv.logger.Warn("invocation refused by cost ceiling",
				"task_type", taskType, "user_id", userID,
				"spent_usd", budgetErr.SpentUSD, "ceiling_usd", budgetErr.CeilingUSD)
			return nil, inv, err
		}
		inv.Outcome = types.OutcomeFailed
		inv.Error = err.Error()
		return nil, inv, err
	}

	start := iv.now()
	resp, err := iv.generateWithRetry(ctx, req)
	inv.LatencyMS = int(iv.now().Sub(start).Milliseconds())

	if err != nil {
		iv.ledger.Adjust(userID, estCost, 0)
		inv.Outcome = types.OutcomeFailed
		inv.Error = err.Error()
		return nil, inv, err
	}

	actualCost := CostUSD(resp.Model, resp.InputTokens, resp.OutputTokens)
	iv.ledger.Adjust(userID, estCost, actualCost)

	inv.Model = resp.Model
	inv.InputTokens = resp.InputTokens
	inv.OutputTokens = resp.OutputTokens
	inv.EstimatedCostUSD = actualCost
	inv.Response = resp.Text
	inv.Outcome = types.OutcomeValid
	return resp, inv, nil
}

func (iv *Invoker) generateWithRetry(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	backoff := iv.cfg.BaseBackoff
	var lastErr error
	for attempt := 1; attempt <= iv.cfg.MaxAttempts; attempt++ {
		resp, err := iv.backend.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var transient *TransientBackendError
		if !errors.As(err, &transient) {
			return nil, err
		}
		if attempt == iv.cfg.MaxAttempts {
			break
		}
		iv.logger.Warn("transient backend error, retrying",
			"attempt", attempt, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		iv.sleep(backoff)
		backoff *= 2
	}
	return nil, lastErr
}
