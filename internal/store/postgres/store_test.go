package postgres_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hbomb79/Reelgest/internal/media"
	"github.com/hbomb79/Reelgest/internal/store"
	"github.com/hbomb79/Reelgest/internal/store/postgres"
	"github.com/hbomb79/Reelgest/pkg/logger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ctx         = context.Background()
	errExpected = errors.New("test: expected error")
)

func init() {
	logger.SetMinLoggingLevel(logger.WARNING.Level())
}

func newMockStore(t *testing.T) (store.Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return postgres.NewWithDB(sqlx.NewDb(db, "postgres")), mock
}

func Test_LoadItems(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT identifier, payload, local_media_path FROM items")).
		WillReturnRows(sqlmock.NewRows([]string{"identifier", "payload", "local_media_path"}).
			AddRow("a", []byte(`{"title":"first"}`), "videos/a.mp4").
			AddRow("b", []byte(`{}`), ""))

	items, err := st.LoadItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "first", items["a"].Metadata["title"])
	assert.Equal(t, "videos/a.mp4", items["a"].LocalMediaPath)
	assert.Empty(t, items["b"].Metadata)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_LoadItems_QueryFailure(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM items").WillReturnError(errExpected)

	_, err := st.LoadItems(ctx)
	assert.ErrorIs(t, err, errExpected)
}

func Test_SaveItems_ReplacesTableInTransaction(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM items")).WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO items (identifier,payload,local_media_path,updated_at) VALUES ($1,$2,$3,$4),($5,$6,$7,$8)")).
		WithArgs("a", sqlmock.AnyArg(), "videos/a.mp4", sqlmock.AnyArg(), "b", sqlmock.AnyArg(), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	downloaded := media.NewItem(map[string]any{"title": "first"})
	downloaded.LocalMediaPath = "videos/a.mp4"
	err := st.SaveItems(ctx, map[string]*media.Item{
		"b":       media.NewItem(nil),
		"a":       downloaded,
		"errored": media.NewErroredItem("timeout"),
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_SaveItems_RollsBackOnFailure(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM items").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO items").WillReturnError(errExpected)
	mock.ExpectRollback()

	err := st.SaveItems(ctx, map[string]*media.Item{"a": media.NewItem(nil)})

	assert.ErrorIs(t, err, errExpected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_LoadHistory(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT identifier, status FROM upload_history")).
		WillReturnRows(sqlmock.NewRows([]string{"identifier", "status"}).
			AddRow("a", []byte(`{"channel":"uploaded"}`)).
			AddRow("b", []byte(`"failed"`)))

	history, err := st.LoadHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"a": map[string]any{"channel": "uploaded"},
		"b": "failed",
	}, history)
}

func Test_LoadFetchErrors(t *testing.T) {
	st, mock := newMockStore(t)
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT identifier, reason, recorded_at FROM fetch_errors ORDER BY recorded_at, identifier")).
		WillReturnRows(sqlmock.NewRows([]string{"identifier", "reason", "recorded_at"}).
			AddRow("a", "invalid link", at))

	records, err := st.LoadFetchErrors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []store.Record{{Identifier: "a", Reason: "invalid link", RecordedAt: at}}, records)
}

func Test_AppendBrokenLinks_DedupesAndIgnoresConflicts(t *testing.T) {
	st, mock := newMockStore(t)
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO broken_links (identifier,reason,recorded_at) VALUES ($1,$2,$3),($4,$5,$6) ON CONFLICT (identifier) DO NOTHING")).
		WithArgs("a", "404", at, "b", "empty", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := st.AppendBrokenLinks(ctx, []store.Record{
		{Identifier: "a", Reason: "404", RecordedAt: at},
		{Identifier: "a", Reason: "duplicate", RecordedAt: at},
		{Identifier: "b", Reason: "empty"},
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_AppendFetchErrors_NothingToWrite(t *testing.T) {
	st, mock := newMockStore(t)

	require.NoError(t, st.AppendFetchErrors(ctx, nil))
	assert.NoError(t, mock.ExpectationsWereMet(), "no statement may be issued for an empty batch")
}
