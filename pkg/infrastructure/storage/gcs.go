// Package storage archives raw source payloads to Google Cloud Storage
// so any import can be audited or replayed after the fact.
package storage

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// ArchiveStore reads and writes payload objects in a GCS bucket.
type ArchiveStore struct {
	Client *storage.Client
}

func (a *ArchiveStore) Write(ctx context.Context, bucket, object string, data []byte) error {
	wc := a.Client.Bucket(bucket).Object(object).NewWriter(ctx)
	wc.ContentType = "application/json"
	if _, err := wc.Write(data); err != nil {
		return err
	}
	return wc.Close()
}

func (a *ArchiveStore) Read(ctx context.Context, bucket, object string) ([]byte, error) {
	rc, err := a.Client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// ObjectName is the canonical archive layout: one object per fetched
// record, grouped by user, source, and fetch timestamp.
func ObjectName(userID, sourceID, stamp, recordKey string) string {
	return fmt.Sprintf("%s/%s/%s/%s.json", userID, sourceID, stamp, recordKey)
}
