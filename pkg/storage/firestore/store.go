// Package firestore provides the persisted timeline store on Cloud
// Firestore, behind the same interface as the in-memory store.
package firestore

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"

	shared "github.com/mycoach/server/pkg"
	"github.com/mycoach/server/pkg/types"
)

// Store implements shared.Store on Firestore. Range queries filter on a
// single field and narrow the rest client-side, so no composite indexes
// are required.
type Store struct {
	c *Client
}

var _ shared.Store = (*Store)(nil)

func NewStore(c *Client) *Store {
	return &Store{c: c}
}

func (s *Store) GetRawRecord(ctx context.Context, userID, key string) (*types.RawRecord, error) {
	return s.c.RawRecords(userID).Doc(key).Get(ctx)
}

func (s *Store) SetRawRecord(ctx context.Context, userID string, rec *types.RawRecord) error {
	return s.c.RawRecords(userID).Doc(rec.Key()).Set(ctx, rec)
}

func (s *Store) GetActivity(ctx context.Context, userID, key string) (*types.Activity, error) {
	return s.c.Activities(userID).Doc(key).Get(ctx)
}

func (s *Store) SetActivity(ctx context.Context, userID string, a *types.Activity) error {
	return s.c.Activities(userID).Doc(a.Key).Set(ctx, a)
}

func (s *Store) ActivitiesBetween(ctx context.Context, userID, from, to string, q shared.ActivityQuery) ([]*types.Activity, error) {
	fromT, err := time.Parse(types.DateLayout, from)
	if err != nil {
		return nil, err
	}
	toT, err := time.Parse(types.DateLayout, to)
	if err != nil {
		return nil, err
	}
	col := s.c.Activities(userID)
	all, err := col.Query(col.Ref.
		Where("start_time", ">=", fromT).
		Where("start_time", "<", toT.AddDate(0, 0, 1))).All(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*types.Activity, 0, len(all))
	for _, a := range all {
		if a.Superseded && !q.IncludeSuperseded {
			continue
		}
		if q.Sport != "" && a.Sport != q.Sport {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func (s *Store) GetSnapshot(ctx context.Context, userID, date string) (*types.HealthSnapshot, error) {
	return s.c.Snapshots(userID).Doc(date).Get(ctx)
}

func (s *Store) SetSnapshot(ctx context.Context, userID string, snap *types.HealthSnapshot) error {
	return s.c.Snapshots(userID).Doc(snap.Date).Set(ctx, snap)
}

func (s *Store) SnapshotsBetween(ctx context.Context, userID, from, to string) ([]*types.HealthSnapshot, error) {
	col := s.c.Snapshots(userID)
	all, err := col.Query(col.Ref.
		Where("date", ">=", from).
		Where("date", "<=", to).
		OrderBy("date", firestore.Asc)).All(ctx)
	if err != nil {
		return nil, err
	}
	return all, nil
}

// Mesocycle state lives in a single well-known document.
const mesocycleDoc = "current"

func (s *Store) GetMesocycleState(ctx context.Context, userID string) (*types.MesocycleState, error) {
	return s.c.Mesocycle(userID).Doc(mesocycleDoc).Get(ctx)
}

func (s *Store) SetMesocycleState(ctx context.Context, userID string, st *types.MesocycleState) error {
	return s.c.Mesocycle(userID).Doc(mesocycleDoc).Set(ctx, st)
}

func (s *Store) AppendInvocation(ctx context.Context, userID string, inv *types.PromptInvocation) error {
	return s.c.Invocations(userID).Doc(inv.ID).Set(ctx, inv)
}

func (s *Store) MonthCost(ctx context.Context, userID, month string) (float64, error) {
	monthStart, err := time.Parse("2006-01", month)
	if err != nil {
		return 0, err
	}
	col := s.c.Invocations(userID)
	all, err := col.Query(col.Ref.
		Where("created_at", ">=", monthStart).
		Where("created_at", "<", monthStart.AddDate(0, 1, 0))).All(ctx)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, inv := range all {
		total += inv.EstimatedCostUSD
	}
	return total, nil
}

func resultDocID(taskType, referenceDate string) string {
	return taskType + "|" + referenceDate
}

func (s *Store) GetResult(ctx context.Context, userID, taskType, referenceDate string) (*types.CoachingResult, error) {
	return s.c.Results(userID).Doc(resultDocID(taskType, referenceDate)).Get(ctx)
}

func (s *Store) SetResult(ctx context.Context, userID string, r *types.CoachingResult) error {
	return s.c.Results(userID).Doc(resultDocID(r.TaskType, r.ReferenceDate)).Set(ctx, r)
}

func (s *Store) GetProfile(ctx context.Context, userID string) (*types.UserProfile, error) {
	return s.c.Profiles().Doc(userID).Get(ctx)
}

func (s *Store) AvailabilityForWeek(ctx context.Context, userID, weekStart string) ([]types.AvailabilitySlot, error) {
	doc, err := s.c.Availability(userID).Doc(weekStart).Get(ctx)
	if err != nil || doc == nil {
		return nil, err
	}
	return doc.Slots, nil
}

func (s *Store) GetSourceState(ctx context.Context, userID, sourceID string) (*types.SourceState, error) {
	return s.c.SourceStates(userID).Doc(sourceID).Get(ctx)
}

func (s *Store) SetSourceState(ctx context.Context, userID string, st *types.SourceState) error {
	return s.c.SourceStates(userID).Doc(st.SourceID).Set(ctx, st)
}
