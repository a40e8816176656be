// Package postgres implements the store on top of a PostgreSQL
// database. The schema is managed by the embedded migrations found
// in the database package.
package postgres

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"
	"github.com/hbomb79/Reelgest/internal/database"
	"github.com/hbomb79/Reelgest/internal/media"
	"github.com/hbomb79/Reelgest/internal/store"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
)

const (
	itemsTable       = "items"
	historyTable     = "upload_history"
	fetchErrorsTable = "fetch_errors"
	brokenLinksTable = "broken_links"

	// Rows per INSERT statement when rewriting the items table.
	insertBatchSize = 500
)

var builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type (
	itemRow struct {
		Identifier     string         `db:"identifier"`
		Payload        types.JSONText `db:"payload"`
		LocalMediaPath string         `db:"local_media_path"`
	}

	historyRow struct {
		Identifier string         `db:"identifier"`
		Status     types.JSONText `db:"status"`
	}

	pgStore struct {
		db     *sqlx.DB
		closer func() error
		now    func() time.Time
	}
)

// New creates a store using the database connection managed by
// the manager provided. Closing the store closes the connection.
func New(manager database.Manager) *pgStore {
	return &pgStore{db: manager.GetSqlxDb(), closer: manager.Close, now: time.Now}
}

// NewWithDB creates a store using an existing sqlx connection, which
// remains owned by the caller.
func NewWithDB(db *sqlx.DB) *pgStore {
	return &pgStore{db: db, closer: func() error { return nil }, now: time.Now}
}

func (s *pgStore) LoadItems(ctx context.Context) (map[string]*media.Item, error) {
	query, args, err := builder.Select("identifier", "payload", "local_media_path").From(itemsTable).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build items query")
	}

	var rows []itemRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to load items")
	}

	items := make(map[string]*media.Item, len(rows))
	for _, row := range rows {
		metadata := make(map[string]any)
		if len(row.Payload) > 0 {
			if err := row.Payload.Unmarshal(&metadata); err != nil {
				return nil, errors.Wrapf(err, "item %s has an unparseable payload", row.Identifier)
			}
		}

		item := media.NewItem(metadata)
		item.LocalMediaPath = row.LocalMediaPath
		items[row.Identifier] = item
	}

	return items, nil
}

// SaveItems replaces the contents of the items table with the items
// provided, inside of a single transaction. Items carrying an error
// marker are not written.
func (s *pgStore) SaveItems(ctx context.Context, items map[string]*media.Item) error {
	persistable := store.WithoutErrored(items)
	ids := make([]string, 0, len(persistable))
	for id := range persistable {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return database.WrapTx(s.db, func(tx *sqlx.Tx) error {
		del, args, err := builder.Delete(itemsTable).ToSql()
		if err != nil {
			return errors.Wrap(err, "failed to build items delete")
		}
		if _, err := tx.ExecContext(ctx, del, args...); err != nil {
			return errors.Wrap(err, "failed to clear items")
		}

		for start := 0; start < len(ids); start += insertBatchSize {
			end := min(start+insertBatchSize, len(ids))
			insert := builder.Insert(itemsTable).Columns("identifier", "payload", "local_media_path", "updated_at")
			for _, id := range ids[start:end] {
				item := persistable[id]
				payload, err := json.Marshal(item.Metadata)
				if err != nil {
					return errors.Wrapf(err, "failed to marshal payload for item %s", id)
				}

				insert = insert.Values(id, types.JSONText(payload), item.LocalMediaPath, s.now())
			}

			query, args, err := insert.ToSql()
			if err != nil {
				return errors.Wrap(err, "failed to build items insert")
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return errors.Wrap(err, "failed to insert items")
			}
		}

		return nil
	})
}

func (s *pgStore) LoadHistory(ctx context.Context) (map[string]any, error) {
	query, args, err := builder.Select("identifier", "status").From(historyTable).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build history query")
	}

	var rows []historyRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to load history")
	}

	history := make(map[string]any, len(rows))
	for _, row := range rows {
		var status any
		if len(row.Status) > 0 {
			if err := row.Status.Unmarshal(&status); err != nil {
				return nil, errors.Wrapf(err, "history entry %s has an unparseable status", row.Identifier)
			}
		}

		history[row.Identifier] = status
	}

	return history, nil
}

func (s *pgStore) LoadFetchErrors(ctx context.Context) ([]store.Record, error) {
	return s.loadRecords(ctx, fetchErrorsTable)
}

func (s *pgStore) LoadBrokenLinks(ctx context.Context) ([]store.Record, error) {
	return s.loadRecords(ctx, brokenLinksTable)
}

func (s *pgStore) AppendFetchErrors(ctx context.Context, records []store.Record) error {
	return s.appendRecords(ctx, fetchErrorsTable, records)
}

func (s *pgStore) AppendBrokenLinks(ctx context.Context, records []store.Record) error {
	return s.appendRecords(ctx, brokenLinksTable, records)
}

func (s *pgStore) Close() error { return s.closer() }

func (s *pgStore) loadRecords(ctx context.Context, table string) ([]store.Record, error) {
	query, args, err := builder.
		Select("identifier", "reason", "recorded_at").
		From(table).
		OrderBy("recorded_at", "identifier").
		ToSql()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build %s query", table)
	}

	records := make([]store.Record, 0)
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, errors.Wrapf(err, "failed to load %s", table)
	}

	return records, nil
}

// appendRecords inserts the records provided, relying on the primary key
// of the table to drop records for identifiers which are already logged.
func (s *pgStore) appendRecords(ctx context.Context, table string, records []store.Record) error {
	deduped := store.MergeRecords(nil, records)
	if len(deduped) == 0 {
		return nil
	}

	insert := builder.Insert(table).Columns("identifier", "reason", "recorded_at")
	for _, rec := range deduped {
		recordedAt := rec.RecordedAt
		if recordedAt.IsZero() {
			recordedAt = s.now()
		}

		insert = insert.Values(rec.Identifier, rec.Reason, recordedAt)
	}

	query, args, err := insert.Suffix("ON CONFLICT (identifier) DO NOTHING").ToSql()
	if err != nil {
		return errors.Wrapf(err, "failed to build %s insert", table)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrapf(err, "failed to append %s", table)
	}

	return nil
}
