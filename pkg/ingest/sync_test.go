package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mycoach/server/pkg/sources"
	"github.com/mycoach/server/pkg/storage/memory"
	"github.com/mycoach/server/pkg/testing/mocks"
	"github.com/mycoach/server/pkg/types"
)

type fakeSource struct {
	id       string
	authErr  error
	fetchErr error
	result   *sources.FetchResult

	fetchCalls int
	lastSince  time.Time
}

func (f *fakeSource) ID() string { return f.id }

func (f *fakeSource) Authenticate(ctx context.Context) error { return f.authErr }

func (f *fakeSource) Fetch(ctx context.Context, since time.Time) (*sources.FetchResult, error) {
	f.fetchCalls++
	f.lastSince = since
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.result == nil {
		return &sources.FetchResult{}, nil
	}
	return f.result, nil
}

func (f *fakeSource) Normalize(rec types.RawRecord) (sources.Record, error) {
	return nil, errors.New("not implemented")
}

func newSyncService(store *memory.Store, pub *mocks.MockPublisher) *SyncService {
	importer := NewImporter(store, testLogger())
	merger := NewMerger(store, testLogger(), MergerConfig{})
	return NewSyncService(store, importer, merger, pub, nil, "", testLogger())
}

func TestRunSyncSource_PermanentAuthFailureDisablesSource(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := newSyncService(store, &mocks.MockPublisher{})

	src := &fakeSource{
		id:      "garmin",
		authErr: &sources.AuthError{SourceID: "garmin", Permanent: true, Err: errors.New("token revoked")},
	}

	if _, err := svc.RunSyncSource(ctx, "user-1", src); err == nil {
		t.Fatal("Expected an error from a failed sync")
	}

	state, err := store.GetSourceState(ctx, "user-1", "garmin")
	if err != nil || state == nil {
		t.Fatalf("Expected a stored source state: %v", err)
	}
	if state.Status != types.SyncStatusDisabled {
		t.Errorf("Expected status %q, got %q", types.SyncStatusDisabled, state.Status)
	}
	if src.fetchCalls != 0 {
		t.Error("Expected Fetch not attempted after auth failure")
	}

	// A disabled source is refused outright on the next run.
	if _, err := svc.RunSyncSource(ctx, "user-1", src); err == nil {
		t.Fatal("Expected disabled source to be refused")
	}
	if src.fetchCalls != 0 {
		t.Error("Expected no fetch for a disabled source")
	}
}

func TestRunSyncSource_TransientAuthFailureStaysEnabled(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := newSyncService(store, &mocks.MockPublisher{})

	src := &fakeSource{
		id:      "garmin",
		authErr: &sources.AuthError{SourceID: "garmin", Err: errors.New("503 from upstream")},
	}
	if _, err := svc.RunSyncSource(ctx, "user-1", src); err == nil {
		t.Fatal("Expected an error from a failed sync")
	}
	state, _ := store.GetSourceState(ctx, "user-1", "garmin")
	if state.Status != types.SyncStatusError {
		t.Errorf("Expected status %q, got %q", types.SyncStatusError, state.Status)
	}

	// Next run proceeds to fetch.
	src.authErr = nil
	if _, err := svc.RunSyncSource(ctx, "user-1", src); err != nil {
		t.Fatalf("Expected recovery sync to succeed: %v", err)
	}
	if src.fetchCalls != 1 {
		t.Errorf("Expected one fetch after recovery, got %d", src.fetchCalls)
	}
}

func TestRunSyncSource_SuccessAdvancesCursorAndPublishes(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	pub := &mocks.MockPublisher{}
	svc := newSyncService(store, pub)
	fixed := time.Date(2026, 2, 11, 6, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	src := &fakeSource{id: "garmin"}
	report, err := svc.RunSyncSource(ctx, "user-1", src)
	if err != nil {
		t.Fatalf("RunSyncSource failed: %v", err)
	}
	if report == nil {
		t.Fatal("Expected a report")
	}

	state, _ := store.GetSourceState(ctx, "user-1", "garmin")
	if state.Status != types.SyncStatusOK {
		t.Errorf("Expected status %q, got %q", types.SyncStatusOK, state.Status)
	}
	if !state.LastSyncAt.Equal(fixed) {
		t.Errorf("Expected cursor %v, got %v", fixed, state.LastSyncAt)
	}
	if len(pub.Published) != 1 {
		t.Fatalf("Expected 1 published event, got %d", len(pub.Published))
	}
	if pub.Published[0].Type() != EventTypeSyncCompleted {
		t.Errorf("Expected event type %q, got %q", EventTypeSyncCompleted, pub.Published[0].Type())
	}

	// Second run hands the stored cursor to the adapter.
	if _, err := svc.RunSyncSource(ctx, "user-1", src); err != nil {
		t.Fatal(err)
	}
	if !src.lastSince.Equal(fixed) {
		t.Errorf("Expected fetch cursor %v, got %v", fixed, src.lastSince)
	}
}
