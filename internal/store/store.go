// Package store defines the persistence boundary of the pipeline. The
// canonical item store, the cross-run history, and the two error logs
// are all accessed through the Store interface so that the backing
// storage (JSON files, PostgreSQL, or an in-memory fake) can be swapped
// without the pipeline being aware.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hbomb79/Reelgest/internal/media"
)

type (
	// Record is an entry in one of the error logs (fetch errors
	// or broken links), keyed by the identifier it concerns.
	Record struct {
		Identifier string    `json:"url" db:"identifier"`
		Reason     string    `json:"reason" db:"reason"`
		RecordedAt time.Time `json:"recorded_at" db:"recorded_at"`
	}

	Store interface {
		// LoadItems returns the canonical metadata store, keyed by identifier.
		LoadItems(ctx context.Context) (map[string]*media.Item, error)

		// SaveItems replaces the canonical metadata store in its entirety.
		SaveItems(ctx context.Context, items map[string]*media.Item) error

		// LoadHistory returns the cross-run history owned by the downstream
		// upload workflow. It is only ever read by this pipeline.
		LoadHistory(ctx context.Context) (map[string]any, error)

		LoadFetchErrors(ctx context.Context) ([]Record, error)
		LoadBrokenLinks(ctx context.Context) ([]Record, error)

		// AppendFetchErrors merges the records provided in to the persisted
		// fetch-error log. Records for identifiers already present are dropped.
		AppendFetchErrors(ctx context.Context, records []Record) error

		// AppendBrokenLinks merges the records provided in to the persisted
		// broken-link log. Records for identifiers already present are dropped.
		AppendBrokenLinks(ctx context.Context, records []Record) error

		Close() error
	}
)

// MarshalJSON omits the recorded_at field for records which carry no
// timestamp, as is the case for entries loaded from logs written before
// timestamps were recorded.
func (r Record) MarshalJSON() ([]byte, error) {
	out := struct {
		Identifier string     `json:"url"`
		Reason     string     `json:"reason"`
		RecordedAt *time.Time `json:"recorded_at,omitempty"`
	}{Identifier: r.Identifier, Reason: r.Reason}
	if !r.RecordedAt.IsZero() {
		out.RecordedAt = &r.RecordedAt
	}

	return json.Marshal(out)
}

// MergeRecords appends the incoming records to the existing ones, skipping
// any record whose identifier is already present (in either the existing
// records, or earlier in the incoming records). The relative order of
// both inputs is preserved, and neither input is modified.
func MergeRecords(existing []Record, incoming []Record) []Record {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged := make([]Record, 0, len(existing)+len(incoming))
	for _, group := range [][]Record{existing, incoming} {
		for _, rec := range group {
			if _, ok := seen[rec.Identifier]; ok {
				continue
			}

			seen[rec.Identifier] = struct{}{}
			merged = append(merged, rec)
		}
	}

	return merged
}

// WithoutErrored returns a copy of the item map provided which excludes any
// items carrying an error marker.
func WithoutErrored(items map[string]*media.Item) map[string]*media.Item {
	out := make(map[string]*media.Item, len(items))
	for id, item := range items {
		if item == nil || item.HasError() {
			continue
		}

		out[id] = item
	}

	return out
}
