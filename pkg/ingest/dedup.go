// Package ingest owns the write path of the timeline store: the import
// deduplicator, the cross-source activity merger, and the sync service
// that drives both.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	shared "github.com/mycoach/server/pkg"
	"github.com/mycoach/server/pkg/sources"
	"github.com/mycoach/server/pkg/types"
)

// Report summarizes one import batch. Counts are in source rows, so a
// CSV workout of three rows contributes three to whichever bucket it
// lands in. API records count as one row each.
type Report struct {
	SourceID     string             `json:"source_id"`
	Inserted     int                `json:"inserted"`
	Updated      int                `json:"updated"`
	Skipped      int                `json:"skipped"`
	Rejected     int                `json:"rejected"`
	RowErrors    []sources.RowError `json:"row_errors,omitempty"`
	DatesTouched []string           `json:"dates_touched,omitempty"`
}

// Importer applies fetched batches to the store with at-most-once
// semantics per (source, external id). Re-running an import of already
// ingested data inserts nothing.
type Importer struct {
	store  shared.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewImporter(store shared.Store, logger *slog.Logger) *Importer {
	return &Importer{store: store, logger: logger, now: time.Now}
}

// stagedWrite is one record held back until the whole batch has been
// validated. Nothing is written if any record fails to stage.
type stagedWrite struct {
	raw      *types.RawRecord
	activity *types.Activity
	snapshot *types.HealthSnapshot
	// related carries merge bookkeeping updates that must land with the
	// activity: a retired stale merged activity and its restored
	// counterpart.
	related []*types.Activity
}

// ImportBatch runs one fetch result through dedup, normalization, and
// storage. All writes are staged first and committed together, so a
// normalization panic or store error cannot leave a half-applied batch.
func (im *Importer) ImportBatch(ctx context.Context, userID string, src sources.Source, res *sources.FetchResult) (*Report, error) {
	report := &Report{SourceID: src.ID()}
	now := im.now().UTC()

	// Row errors attributed to a record only count as rejected when that
	// record is actually ingested. On a dedup hit they fold into the
	// record's skip count instead, keeping re-import totals stable.
	attributed := make(map[string][]sources.RowError)
	for _, re := range res.Rejected {
		if re.Group == "" {
			report.Rejected++
			report.RowErrors = append(report.RowErrors, re)
			continue
		}
		attributed[re.Group] = append(attributed[re.Group], re)
	}

	dates := make(map[string]struct{})
	var staged []stagedWrite

	for i := range res.Records {
		rec := res.Records[i]
		attr := attributed[rec.ExternalID]
		validRows := rec.RowCount() - len(attr)
		if validRows < 0 {
			validRows = 0
		}

		existing, err := im.store.GetRawRecord(ctx, userID, rec.Key())
		if err != nil {
			return nil, fmt.Errorf("lookup raw record %s: %w", rec.Key(), err)
		}

		if existing != nil {
			newer := rec.FetchedAt.After(existing.FetchedAt)
			changed := !bytes.Equal(rec.Payload, existing.Payload)
			if !newer || !changed {
				report.Skipped += rec.RowCount()
				continue
			}
			rec.CreatedAt = existing.CreatedAt
		} else {
			rec.CreatedAt = now
		}

		normalized, err := src.Normalize(rec)
		if err != nil {
			im.logger.Warn("record failed normalization",
				"source", src.ID(), "external_id", rec.ExternalID, "error", err)
			report.Rejected += rec.RowCount()
			report.RowErrors = append(report.RowErrors, sources.RowError{
				Group:  rec.ExternalID,
				Reason: err.Error(),
			})
			continue
		}

		recCopy := rec
		sw := stagedWrite{raw: &recCopy}
		switch v := normalized.(type) {
		case *types.Activity:
			v.UserID = userID
			v.UpdatedAt = now
			if existing != nil {
				prev, err := im.store.GetActivity(ctx, userID, v.Key)
				if err != nil {
					return nil, fmt.Errorf("lookup activity %s: %w", v.Key, err)
				}
				if prev != nil {
					v.CreatedAt = prev.CreatedAt
					// A corrected record invalidates any merged activity
					// built from the old one. Retire it and restore the
					// counterpart so the next merger run rebuilds the pair.
					if prev.Superseded && prev.SupersededBy != "" {
						related, err := im.unwindMerge(ctx, userID, prev, now)
						if err != nil {
							return nil, err
						}
						sw.related = related
					}
				}
			}
			if v.CreatedAt.IsZero() {
				v.CreatedAt = now
			}
			sw.activity = v
			dates[v.Date()] = struct{}{}
		case *types.HealthSnapshot:
			v.UserID = userID
			if v.CreatedAt.IsZero() {
				v.CreatedAt = now
			}
			sw.snapshot = v
			dates[v.Date] = struct{}{}
		default:
			return nil, fmt.Errorf("unknown record kind %q from source %s", rec.Kind, src.ID())
		}
		staged = append(staged, sw)

		if existing != nil {
			report.Updated += validRows
		} else {
			report.Inserted += validRows
		}
		for _, re := range attr {
			report.Rejected++
			report.RowErrors = append(report.RowErrors, re)
		}
	}

	for _, sw := range staged {
		if sw.activity != nil {
			if err := im.store.SetActivity(ctx, userID, sw.activity); err != nil {
				return nil, fmt.Errorf("store activity %s: %w", sw.activity.Key, err)
			}
		}
		if sw.snapshot != nil {
			if err := im.store.SetSnapshot(ctx, userID, sw.snapshot); err != nil {
				return nil, fmt.Errorf("store snapshot %s: %w", sw.snapshot.Date, err)
			}
		}
		for _, rel := range sw.related {
			if err := im.store.SetActivity(ctx, userID, rel); err != nil {
				return nil, fmt.Errorf("store related activity %s: %w", rel.Key, err)
			}
		}
		if err := im.store.SetRawRecord(ctx, userID, sw.raw); err != nil {
			return nil, fmt.Errorf("store raw record %s: %w", sw.raw.Key(), err)
		}
	}

	for d := range dates {
		report.DatesTouched = append(report.DatesTouched, d)
	}
	sort.Strings(report.DatesTouched)

	im.logger.Info("import batch complete",
		"source", src.ID(), "user_id", userID,
		"inserted", report.Inserted, "updated", report.Updated,
		"skipped", report.Skipped, "rejected", report.Rejected)
	return report, nil
}

// unwindMerge handles an update to a source activity that an earlier
// merger run folded into a merged activity. The stale merged activity is
// superseded by the corrected record and the other half of the pair
// becomes visible again, leaving the timeline in its pre-merge state
// until the merger rebuilds the pair from current data.
func (im *Importer) unwindMerge(ctx context.Context, userID string, prev *types.Activity, now time.Time) ([]*types.Activity, error) {
	ma, err := im.store.GetActivity(ctx, userID, prev.SupersededBy)
	if err != nil {
		return nil, fmt.Errorf("lookup merged activity %s: %w", prev.SupersededBy, err)
	}
	if ma == nil || ma.Provenance != types.ProvenanceMerged {
		return nil, nil
	}

	var out []*types.Activity
	for _, key := range ma.MergedFrom {
		if key == prev.Key {
			continue
		}
		other, err := im.store.GetActivity(ctx, userID, key)
		if err != nil {
			return nil, fmt.Errorf("lookup merge counterpart %s: %w", key, err)
		}
		if other != nil && other.SupersededBy == ma.Key {
			other.Superseded = false
			other.SupersededBy = ""
			other.UpdatedAt = now
			out = append(out, other)
		}
	}

	ma.Superseded = true
	ma.SupersededBy = prev.Key
	ma.UpdatedAt = now
	return append(out, ma), nil
}
