package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// DedupKey returns the deterministic identity key for a record from a
// source. The same (source, externalID) pair always maps to the same key,
// regardless of ingestion order.
func DedupKey(sourceID, externalID string) string {
	h := sha256.New()
	h.Write([]byte(sourceID))
	h.Write([]byte{0})
	h.Write([]byte(externalID))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// TitleExternalID builds an external identifier for sources that have no
// native record id, from the record's date and title.
func TitleExternalID(start time.Time, title string) string {
	return start.UTC().Format(time.RFC3339) + "|" + strings.TrimSpace(title)
}

// MergedExternalID builds the external identifier of a merged activity
// from the keys of its two originals. Pair order does not matter.
func MergedExternalID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "+" + b
}
