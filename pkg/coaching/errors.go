package coaching

import "fmt"

// BudgetExceededError is a typed refusal: the estimated cost of an
// invocation would push the monthly total past the configured ceiling.
// Non-retryable; surfaces immediately.
type BudgetExceededError struct {
	UserID       string
	Month        string
	CeilingUSD   float64
	SpentUSD     float64
	EstimatedUSD float64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("monthly cost ceiling exceeded for %s in %s: spent $%.2f, estimated $%.2f, ceiling $%.2f",
		e.UserID, e.Month, e.SpentUSD, e.EstimatedUSD, e.CeilingUSD)
}

// TransientBackendError marks a model-backend failure worth retrying
// with backoff: rate limits, timeouts, 5xx.
type TransientBackendError struct {
	Err error
}

func (e *TransientBackendError) Error() string {
	return fmt.Sprintf("transient backend error: %v", e.Err)
}

func (e *TransientBackendError) Unwrap() error {
	return e.Err
}
