// Package memory provides the in-memory timeline store. It is the default
// backend for local use and tests; the firestore package provides the
// persisted equivalent behind the same interface.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	shared "github.com/mycoach/server/pkg"
	"github.com/mycoach/server/pkg/types"
)

type userData struct {
	raw          map[string]*types.RawRecord
	activities   map[string]*types.Activity
	snapshots    map[string]*types.HealthSnapshot
	mesocycle    *types.MesocycleState
	invocations  []*types.PromptInvocation
	results      map[string]*types.CoachingResult // taskType|referenceDate
	profile      *types.UserProfile
	availability map[string][]types.AvailabilitySlot // weekStart
	sourceState  map[string]*types.SourceState
}

// Store is an in-memory implementation of shared.Store. Safe for
// concurrent use; callers still serialize writers per user (keyed locks in
// the sync service) to preserve the merge/dedup invariants.
type Store struct {
	mu    sync.RWMutex
	users map[string]*userData
}

var _ shared.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{users: make(map[string]*userData)}
}

func (s *Store) user(id string) *userData {
	u, ok := s.users[id]
	if !ok {
		u = &userData{
			raw:          make(map[string]*types.RawRecord),
			activities:   make(map[string]*types.Activity),
			snapshots:    make(map[string]*types.HealthSnapshot),
			results:      make(map[string]*types.CoachingResult),
			availability: make(map[string][]types.AvailabilitySlot),
			sourceState:  make(map[string]*types.SourceState),
		}
		s.users[id] = u
	}
	return u
}

func (s *Store) GetRawRecord(ctx context.Context, userID, key string) (*types.RawRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userID]; ok {
		if r, ok := u.raw[key]; ok {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) SetRawRecord(ctx context.Context, userID string, rec *types.RawRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.user(userID).raw[rec.Key()] = &cp
	return nil
}

func (s *Store) GetActivity(ctx context.Context, userID, key string) (*types.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userID]; ok {
		if a, ok := u.activities[key]; ok {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) SetActivity(ctx context.Context, userID string, a *types.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.user(userID).activities[a.Key] = &cp
	return nil
}

func (s *Store) ActivitiesBetween(ctx context.Context, userID, from, to string, q shared.ActivityQuery) ([]*types.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	var out []*types.Activity
	for _, a := range u.activities {
		d := a.Date()
		if d < from || d > to {
			continue
		}
		if a.Superseded && !q.IncludeSuperseded {
			continue
		}
		if q.Sport != "" && a.Sport != q.Sport {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].Key < out[j].Key
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

func (s *Store) GetSnapshot(ctx context.Context, userID, date string) (*types.HealthSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userID]; ok {
		if snap, ok := u.snapshots[date]; ok {
			cp := *snap
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) SetSnapshot(ctx context.Context, userID string, snap *types.HealthSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *snap
	s.user(userID).snapshots[snap.Date] = &cp
	return nil
}

func (s *Store) SnapshotsBetween(ctx context.Context, userID, from, to string) ([]*types.HealthSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	var out []*types.HealthSnapshot
	for d, snap := range u.snapshots {
		if d < from || d > to {
			continue
		}
		cp := *snap
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *Store) GetMesocycleState(ctx context.Context, userID string) (*types.MesocycleState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userID]; ok && u.mesocycle != nil {
		cp := *u.mesocycle
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) SetMesocycleState(ctx context.Context, userID string, st *types.MesocycleState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *st
	s.user(userID).mesocycle = &cp
	return nil
}

func (s *Store) AppendInvocation(ctx context.Context, userID string, inv *types.PromptInvocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *inv
	u := s.user(userID)
	u.invocations = append(u.invocations, &cp)
	return nil
}

// MonthCost sums the estimated cost of all invocations created in the
// given month (YYYY-MM).
func (s *Store) MonthCost(ctx context.Context, userID, month string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, nil
	}
	var total float64
	for _, inv := range u.invocations {
		if strings.HasPrefix(inv.CreatedAt.UTC().Format(types.DateLayout), month) {
			total += inv.EstimatedCostUSD
		}
	}
	return total, nil
}

// Invocations returns a copy of the audit trail, oldest first.
func (s *Store) Invocations(userID string) []*types.PromptInvocation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil
	}
	out := make([]*types.PromptInvocation, 0, len(u.invocations))
	for _, inv := range u.invocations {
		cp := *inv
		out = append(out, &cp)
	}
	return out
}

func resultKey(taskType, referenceDate string) string {
	return taskType + "|" + referenceDate
}

func (s *Store) GetResult(ctx context.Context, userID, taskType, referenceDate string) (*types.CoachingResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userID]; ok {
		if r, ok := u.results[resultKey(taskType, referenceDate)]; ok {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) SetResult(ctx context.Context, userID string, r *types.CoachingResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.user(userID).results[resultKey(r.TaskType, r.ReferenceDate)] = &cp
	return nil
}

func (s *Store) GetProfile(ctx context.Context, userID string) (*types.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userID]; ok && u.profile != nil {
		cp := *u.profile
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) SetProfile(userID string, p *types.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.user(userID).profile = &cp
}

func (s *Store) AvailabilityForWeek(ctx context.Context, userID, weekStart string) ([]types.AvailabilitySlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userID]; ok {
		slots := append([]types.AvailabilitySlot(nil), u.availability[weekStart]...)
		sort.Slice(slots, func(i, j int) bool { return slots[i].DayOfWeek < slots[j].DayOfWeek })
		return slots, nil
	}
	return nil, nil
}

func (s *Store) SetAvailability(userID, weekStart string, slots []types.AvailabilitySlot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user(userID).availability[weekStart] = append([]types.AvailabilitySlot(nil), slots...)
}

func (s *Store) GetSourceState(ctx context.Context, userID, sourceID string) (*types.SourceState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userID]; ok {
		if st, ok := u.sourceState[sourceID]; ok {
			cp := *st
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) SetSourceState(ctx context.Context, userID string, st *types.SourceState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *st
	if cp.LastSyncAt.IsZero() {
		cp.LastSyncAt = time.Now().UTC()
	}
	s.user(userID).sourceState[st.SourceID] = &cp
	return nil
}
