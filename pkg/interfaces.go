package shared

import (
	"context"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/mycoach/server/pkg/types"
)

// --- Persistence Interfaces ---

// ActivityQuery narrows ActivitiesBetween. The zero value returns all
// non-superseded activities in the range.
type ActivityQuery struct {
	Sport             string
	IncludeSuperseded bool
}

// Store is the timeline store: the single owner of canonical activities,
// health snapshots, and mesocycle state. Writes are the exclusive domain
// of the deduplicator, merger, and progression tracker.
//
// Lookups return (nil, nil) when no record exists.
type Store interface {
	// Raw records (retained for audit/replay)
	GetRawRecord(ctx context.Context, userID, key string) (*types.RawRecord, error)
	SetRawRecord(ctx context.Context, userID string, rec *types.RawRecord) error

	// Activities, keyed by dedup key
	GetActivity(ctx context.Context, userID, key string) (*types.Activity, error)
	SetActivity(ctx context.Context, userID string, a *types.Activity) error
	ActivitiesBetween(ctx context.Context, userID, from, to string, q ActivityQuery) ([]*types.Activity, error)

	// Health snapshots, keyed by date
	GetSnapshot(ctx context.Context, userID, date string) (*types.HealthSnapshot, error)
	SetSnapshot(ctx context.Context, userID string, s *types.HealthSnapshot) error
	SnapshotsBetween(ctx context.Context, userID, from, to string) ([]*types.HealthSnapshot, error)

	// Mesocycle state (one per user; progression tracker is the only writer)
	GetMesocycleState(ctx context.Context, userID string) (*types.MesocycleState, error)
	SetMesocycleState(ctx context.Context, userID string, st *types.MesocycleState) error

	// Prompt invocations (append-only audit trail)
	AppendInvocation(ctx context.Context, userID string, inv *types.PromptInvocation) error
	MonthCost(ctx context.Context, userID, month string) (float64, error)

	// Coaching results
	GetResult(ctx context.Context, userID, taskType, referenceDate string) (*types.CoachingResult, error)
	SetResult(ctx context.Context, userID string, r *types.CoachingResult) error

	// Profile and availability (read-only to the engine)
	GetProfile(ctx context.Context, userID string) (*types.UserProfile, error)
	AvailabilityForWeek(ctx context.Context, userID, weekStart string) ([]types.AvailabilitySlot, error)

	// Per-source sync state
	GetSourceState(ctx context.Context, userID, sourceID string) (*types.SourceState, error)
	SetSourceState(ctx context.Context, userID string, st *types.SourceState) error
}

// --- Messaging Interfaces ---

type Publisher interface {
	PublishCloudEvent(ctx context.Context, topic string, e event.Event) (string, error)
}

// --- Storage Interfaces ---

type BlobStore interface {
	Write(ctx context.Context, bucket, object string, data []byte) error
	Read(ctx context.Context, bucket, object string) ([]byte, error)
}
