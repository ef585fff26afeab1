package sources

import "fmt"

// AuthError indicates an adapter credential failure. Permanent is set
// after the single re-auth attempt has also failed; the sync service then
// disables the source until manual intervention.
type AuthError struct {
	SourceID  string
	Permanent bool
	Err       error
}

func (e *AuthError) Error() string {
	state := "transient"
	if e.Permanent {
		state = "permanent"
	}
	return fmt.Sprintf("auth failed for source %s (%s): %v", e.SourceID, state, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// ValidationError indicates a malformed record that could not be
// normalized. It is recorded against the batch report, never propagated.
type ValidationError struct {
	SourceID   string
	ExternalID string
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record %s/%s: %s", e.SourceID, e.ExternalID, e.Reason)
}
