package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	shared "github.com/mycoach/server/pkg"
	"github.com/mycoach/server/pkg/infrastructure/pubsub"
	blobstore "github.com/mycoach/server/pkg/infrastructure/storage"
	"github.com/mycoach/server/pkg/sources"
	"github.com/mycoach/server/pkg/types"
)

// EventTypeSyncCompleted is the CloudEvent type emitted after a sync.
const EventTypeSyncCompleted = "com.mycoach.sync.completed"

// SyncService drives the ingestion pipeline for one source: authenticate,
// fetch, archive, import, merge. All writes for a user are serialized
// behind a per-user lock; different users sync concurrently.
type SyncService struct {
	store     shared.Store
	importer  *Importer
	merger    *Merger
	publisher shared.Publisher
	blobs     shared.BlobStore
	bucket    string
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewSyncService(store shared.Store, importer *Importer, merger *Merger, publisher shared.Publisher, blobs shared.BlobStore, bucket string, logger *slog.Logger) *SyncService {
	return &SyncService{
		store:     store,
		importer:  importer,
		merger:    merger,
		publisher: publisher,
		blobs:     blobs,
		bucket:    bucket,
		logger:    logger,
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (s *SyncService) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// RunSync syncs a registered source by id.
func (s *SyncService) RunSync(ctx context.Context, userID, sourceID string) (*Report, error) {
	src, ok := sources.GetByID(sourceID)
	if !ok {
		return nil, fmt.Errorf("unknown source: %s", sourceID)
	}
	return s.RunSyncSource(ctx, userID, src)
}

// RunSyncSource syncs a concrete source instance. File import adapters
// are built per upload and passed in directly.
func (s *SyncService) RunSyncSource(ctx context.Context, userID string, src sources.Source) (*Report, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	sourceID := src.ID()
	state, err := s.store.GetSourceState(ctx, userID, sourceID)
	if err != nil {
		return nil, fmt.Errorf("load source state: %w", err)
	}
	if state == nil {
		state = &types.SourceState{SourceID: sourceID, Status: types.SyncStatusNever}
	}
	if state.Status == types.SyncStatusDisabled {
		return nil, fmt.Errorf("source %s is disabled: %s", sourceID, state.Error)
	}

	if err := src.Authenticate(ctx); err != nil {
		var authErr *sources.AuthError
		if errors.As(err, &authErr) && authErr.Permanent {
			state.Status = types.SyncStatusDisabled
		} else {
			state.Status = types.SyncStatusError
		}
		state.Error = err.Error()
		if serr := s.store.SetSourceState(ctx, userID, state); serr != nil {
			s.logger.Error("failed to record source state", "source", sourceID, "error", serr)
		}
		return nil, fmt.Errorf("authenticate %s: %w", sourceID, err)
	}

	result, err := src.Fetch(ctx, state.LastSyncAt)
	if err != nil {
		state.Status = types.SyncStatusError
		state.Error = err.Error()
		if serr := s.store.SetSourceState(ctx, userID, state); serr != nil {
			s.logger.Error("failed to record source state", "source", sourceID, "error", serr)
		}
		return nil, fmt.Errorf("fetch %s: %w", sourceID, err)
	}

	s.archive(ctx, userID, sourceID, result)

	report, err := s.importer.ImportBatch(ctx, userID, src, result)
	if err != nil {
		return nil, err
	}

	if len(report.DatesTouched) > 0 {
		if _, err := s.merger.MergeDates(ctx, userID, report.DatesTouched); err != nil {
			return nil, err
		}
	}

	state.Status = types.SyncStatusOK
	state.Error = ""
	state.LastSyncAt = s.now().UTC()
	if err := s.store.SetSourceState(ctx, userID, state); err != nil {
		return nil, fmt.Errorf("record source state: %w", err)
	}

	s.publish(ctx, userID, report)
	return report, nil
}

// archive writes fetched payloads to blob storage for replay. Best
// effort: the import proceeds even if archival fails.
func (s *SyncService) archive(ctx context.Context, userID, sourceID string, result *sources.FetchResult) {
	if s.blobs == nil || s.bucket == "" || len(result.Records) == 0 {
		return
	}
	stamp := s.now().UTC().Format("20060102T150405Z")
	for _, rec := range result.Records {
		object := blobstore.ObjectName(userID, sourceID, stamp, rec.Key())
		if err := s.blobs.Write(ctx, s.bucket, object, rec.Payload); err != nil {
			s.logger.Warn("failed to archive raw payload", "object", object, "error", err)
		}
	}
}

func (s *SyncService) publish(ctx context.Context, userID string, report *Report) {
	if s.publisher == nil {
		return
	}
	e, err := pubsub.NewCloudEvent(pubsub.SourceSync, EventTypeSyncCompleted, userID, struct {
		UserID string  `json:"user_id"`
		Report *Report `json:"report"`
	}{UserID: userID, Report: report})
	if err != nil {
		s.logger.Error("failed to build sync event", "error", err)
		return
	}
	if _, err := s.publisher.PublishCloudEvent(ctx, shared.TopicSyncCompleted, e); err != nil {
		s.logger.Error("failed to publish sync event", "error", err)
	}
}
