// Package sources defines the adapter interface for external training-data
// providers and the registry that sync jobs resolve adapters from.
//
// Adapters never write to the timeline store directly; they hand RawRecords
// to the import deduplicator.
package sources

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/mycoach/server/pkg/types"
)

// RowError is a row-level validation failure raised while turning source
// data into RawRecords. Group ties the row to the record it would have
// belonged to, so re-imports can count it against that record's dedup hit.
type RowError struct {
	Row    int    `json:"row"`
	Group  string `json:"group,omitempty"` // external id of the owning record, if attributable
	Reason string `json:"reason"`
}

// FetchResult is the output of one adapter fetch: the records to ingest
// plus any rows rejected before a record could be formed.
type FetchResult struct {
	Records  []types.RawRecord
	Rejected []RowError
}

// Record is a normalized domain record: either *types.Activity or
// *types.HealthSnapshot.
type Record interface {
	RecordKind() string
}

// Source is the capability interface every provider adapter implements.
type Source interface {
	ID() string

	// Authenticate verifies credentials and establishes a session. File
	// import adapters are stateless and return nil unconditionally.
	Authenticate(ctx context.Context) error

	// Fetch returns a finite batch of RawRecords since the given cursor.
	// Re-invoking with the same cursor restarts the same batch.
	Fetch(ctx context.Context, since time.Time) (*FetchResult, error)

	// Normalize parses one RawRecord into a domain record. A failure here
	// rejects the record without aborting the batch.
	Normalize(rec types.RawRecord) (Record, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Source)
)

// Register adds a source to the registry. Called from init() or from
// wiring code at startup.
func Register(s Source) {
	registryMu.Lock()
	defer registryMu.Unlock()
	id := s.ID()
	if _, exists := registry[id]; exists {
		log.Panicf("Source already registered for id: %s", id)
	}
	registry[id] = s
}

// GetByID returns a registered source.
func GetByID(id string) (Source, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[id]
	return s, ok
}

// All returns all registered sources.
func All() []Source {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Source, 0, len(registry))
	for _, s := range registry {
		out = append(out, s)
	}
	return out
}

// ClearRegistry removes all sources (useful for tests).
func ClearRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]Source)
}
