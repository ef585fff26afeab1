package coaching

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/mycoach/server/pkg/storage/memory"
	"github.com/mycoach/server/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.Default()
}

type stubBackend struct {
	calls     int
	responses []func() (*GenerateResponse, error)
}

func (b *stubBackend) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	i := b.calls
	b.calls++
	if i >= len(b.responses) {
		i = len(b.responses) - 1
	}
	return b.responses[i]()
}

func okResponse(text string) func() (*GenerateResponse, error) {
	return func() (*GenerateResponse, error) {
		return &GenerateResponse{Text: text, Model: "gemini-2.0-flash", InputTokens: 200, OutputTokens: 80}, nil
	}
}

func transientFailure() func() (*GenerateResponse, error) {
	return func() (*GenerateResponse, error) {
		return nil, &TransientBackendError{Err: errors.New("backend returned 503")}
	}
}

func newTestInvoker(backend Backend, ceiling float64) (*Invoker, *CostLedger, *[]time.Duration) {
	ledger := NewCostLedger(memory.NewStore(), ceiling)
	iv := NewInvoker(backend, ledger, testLogger(), InvokerConfig{})
	var slept []time.Duration
	iv.sleep = func(d time.Duration) { slept = append(slept, d) }
	return iv, ledger, &slept
}

func TestInvoke_RetriesTransientThenSucceeds(t *testing.T) {
	backend := &stubBackend{responses: []func() (*GenerateResponse, error){
		transientFailure(),
		transientFailure(),
		okResponse("{}"),
	}}
	iv, ledger, slept := newTestInvoker(backend, 30.0)

	resp, inv, err := iv.Invoke(context.Background(), "user-1", types.TaskDailyBriefing, &GenerateRequest{
		Tier:   TierCheap,
		Prompt: "hello",
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if backend.calls != 3 {
		t.Errorf("Expected 3 backend calls, got %d", backend.calls)
	}
	if len(*slept) != 2 {
		t.Fatalf("Expected 2 backoff sleeps, got %d", len(*slept))
	}
	if (*slept)[0] != 500*time.Millisecond || (*slept)[1] != time.Second {
		t.Errorf("Expected exponential backoff 500ms, 1s; got %v", *slept)
	}
	if inv.Outcome != types.OutcomeValid {
		t.Errorf("Expected outcome %q, got %q", types.OutcomeValid, inv.Outcome)
	}
	want := CostUSD(resp.Model, resp.InputTokens, resp.OutputTokens)
	if inv.EstimatedCostUSD != want {
		t.Errorf("Expected invocation cost %v, got %v", want, inv.EstimatedCostUSD)
	}
	if ledger.Spent("user-1") != want {
		t.Errorf("Expected ledger settled to actual cost %v, got %v", want, ledger.Spent("user-1"))
	}
}

func TestInvoke_TransientExhaustsAttempts(t *testing.T) {
	backend := &stubBackend{responses: []func() (*GenerateResponse, error){transientFailure()}}
	iv, ledger, slept := newTestInvoker(backend, 30.0)

	_, inv, err := iv.Invoke(context.Background(), "user-1", types.TaskDailyBriefing, &GenerateRequest{
		Tier:   TierCheap,
		Prompt: "hello",
	})
	if err == nil {
		t.Fatal("Expected error after exhausting retries")
	}
	if backend.calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", backend.calls)
	}
	if len(*slept) != 2 {
		t.Errorf("Expected sleeps between attempts only, got %d", len(*slept))
	}
	if inv.Outcome != types.OutcomeFailed {
		t.Errorf("Expected outcome %q, got %q", types.OutcomeFailed, inv.Outcome)
	}
	if ledger.Spent("user-1") != 0 {
		t.Errorf("Expected reservation released on failure, got %v", ledger.Spent("user-1"))
	}
}

func TestInvoke_NonTransientFailsImmediately(t *testing.T) {
	backend := &stubBackend{responses: []func() (*GenerateResponse, error){
		func() (*GenerateResponse, error) { return nil, errors.New("API key not valid") },
	}}
	iv, _, slept := newTestInvoker(backend, 30.0)

	_, inv, err := iv.Invoke(context.Background(), "user-1", types.TaskDailyBriefing, &GenerateRequest{
		Tier:   TierCheap,
		Prompt: "hello",
	})
	if err == nil {
		t.Fatal("Expected error")
	}
	if backend.calls != 1 {
		t.Errorf("Expected a single attempt for a non-transient failure, got %d", backend.calls)
	}
	if len(*slept) != 0 {
		t.Errorf("Expected no backoff, got %v", *slept)
	}
	if inv.Outcome != types.OutcomeFailed {
		t.Errorf("Expected outcome %q, got %q", types.OutcomeFailed, inv.Outcome)
	}
}

func TestInvoke_BudgetRefusalSkipsBackend(t *testing.T) {
	backend := &stubBackend{responses: []func() (*GenerateResponse, error){okResponse("{}")}}
	iv, _, _ := newTestInvoker(backend, 0)

	_, inv, err := iv.Invoke(context.Background(), "user-1", types.TaskDailyBriefing, &GenerateRequest{
		Tier:   TierCheap,
		Prompt: "hello",
	})
	var budgetErr *BudgetExceededError
	if !errors.As(err, &budgetErr) {
		t.Fatalf("Expected BudgetExceededError, got %v", err)
	}
	if backend.calls != 0 {
		t.Errorf("Expected no backend call after refusal, got %d", backend.calls)
	}
	if inv == nil || inv.Outcome != types.OutcomeRefused {
		t.Errorf("Expected a refused invocation record, got %+v", inv)
	}
}
