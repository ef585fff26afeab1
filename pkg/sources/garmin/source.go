package garmin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mycoach/server/pkg/sources"
	"github.com/mycoach/server/pkg/types"
)

// Authenticator establishes a session. The oauth2-backed client
// implements this through a token probe; tests substitute a fake.
type Authenticator interface {
	Login(ctx context.Context) error
}

// Source is the Garmin wearable adapter.
type Source struct {
	api    API
	auth   Authenticator
	logger *slog.Logger
	now    func() time.Time

	// authFailed latches after the single re-auth attempt fails, so
	// subsequent calls surface a permanent AuthError without retrying.
	authFailed bool
}

var _ sources.Source = (*Source)(nil)

func NewSource(api API, auth Authenticator, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{api: api, auth: auth, logger: logger, now: time.Now}
}

func (s *Source) ID() string {
	return types.SourceGarmin
}

// Authenticate verifies credentials, re-authenticating once on expiry.
// After the retry also fails the source reports a permanent AuthError
// until manual intervention resets it.
func (s *Source) Authenticate(ctx context.Context) error {
	if s.authFailed {
		return &sources.AuthError{SourceID: s.ID(), Permanent: true, Err: errors.New("source disabled after failed re-authentication")}
	}

	err := s.auth.Login(ctx)
	if err == nil {
		return nil
	}
	s.logger.Warn("Garmin authentication failed, re-authenticating once", "error", err)

	if err = s.auth.Login(ctx); err == nil {
		return nil
	}
	s.authFailed = true
	return &sources.AuthError{SourceID: s.ID(), Permanent: true, Err: err}
}

// Fetch pulls one health record per day and the activities in the window.
// A failed wellness endpoint degrades that day's snapshot rather than
// failing the fetch; a failed activity list fails the whole fetch since
// nothing useful remains.
func (s *Source) Fetch(ctx context.Context, since time.Time) (*sources.FetchResult, error) {
	out := &sources.FetchResult{}
	fetchedAt := s.now().UTC()

	start := since
	if start.IsZero() {
		start = fetchedAt.AddDate(0, 0, -7)
	}
	from := start.Format(types.DateLayout)
	to := fetchedAt.Format(types.DateLayout)

	for day := start; day.Format(types.DateLayout) <= to; day = day.AddDate(0, 0, 1) {
		date := day.Format(types.DateLayout)
		payload := healthPayload{Date: date}

		payload.Summary = s.fetchSection(ctx, date, "summary", s.api.DailySummary)
		payload.Sleep = s.fetchSection(ctx, date, "sleep", s.api.Sleep)
		payload.HRV = s.fetchSection(ctx, date, "hrv", s.api.HRV)
		payload.Readiness = s.fetchSection(ctx, date, "readiness", s.api.TrainingReadiness)

		if payload.Summary == nil && payload.Sleep == nil && payload.HRV == nil && payload.Readiness == nil {
			continue // nothing recorded that day
		}

		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal health payload for %s: %w", date, err)
		}
		out.Records = append(out.Records, types.RawRecord{
			SourceID:   s.ID(),
			ExternalID: "health|" + date,
			Kind:       types.KindHealth,
			Payload:    data,
			FetchedAt:  fetchedAt,
		})
	}

	activities, err := s.api.Activities(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetch activities %s..%s: %w", from, to, err)
	}
	for _, raw := range activities {
		var probe struct {
			ActivityID json.Number `json:"activityId"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil || probe.ActivityID.String() == "" {
			out.Rejected = append(out.Rejected, sources.RowError{Reason: "activity missing activityId"})
			continue
		}
		out.Records = append(out.Records, types.RawRecord{
			SourceID:   s.ID(),
			ExternalID: probe.ActivityID.String(),
			Kind:       types.KindActivity,
			Payload:    json.RawMessage(raw),
			FetchedAt:  fetchedAt,
		})
	}

	return out, nil
}

// fetchSection wraps one wellness endpoint so a single failure only costs
// that section.
func (s *Source) fetchSection(ctx context.Context, date, name string, call func(context.Context, string) (json.RawMessage, error)) json.RawMessage {
	data, err := call(ctx, date)
	if err != nil {
		s.logger.Debug("Garmin wellness call failed", "section", name, "date", date, "error", err)
		return nil
	}
	return data
}

func (s *Source) Normalize(rec types.RawRecord) (sources.Record, error) {
	switch rec.Kind {
	case types.KindHealth:
		snap, err := mapHealthSnapshot(rec)
		if err != nil {
			return nil, &sources.ValidationError{SourceID: s.ID(), ExternalID: rec.ExternalID, Reason: err.Error()}
		}
		return snap, nil
	case types.KindActivity:
		a, err := mapActivity(rec)
		if err != nil {
			return nil, &sources.ValidationError{SourceID: s.ID(), ExternalID: rec.ExternalID, Reason: err.Error()}
		}
		return a, nil
	default:
		return nil, &sources.ValidationError{SourceID: s.ID(), ExternalID: rec.ExternalID, Reason: "unknown record kind " + rec.Kind}
	}
}

// ResetAuth clears the permanent failure latch after manual intervention
// (new credentials).
func (s *Source) ResetAuth() {
	s.authFailed = false
}

// TokenProbeAuthenticator adapts an oauth2 token source into the
// Authenticator interface: a login is a successful token fetch.
type TokenProbeAuthenticator struct {
	Probe func(ctx context.Context) error
}

func (a *TokenProbeAuthenticator) Login(ctx context.Context) error {
	return a.Probe(ctx)
}
