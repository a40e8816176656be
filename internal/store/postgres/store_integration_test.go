//go:build integration

package postgres_test

import (
	"testing"
	"time"

	"github.com/hbomb79/Reelgest/internal/database"
	"github.com/hbomb79/Reelgest/internal/media"
	"github.com/hbomb79/Reelgest/internal/store"
	"github.com/hbomb79/Reelgest/internal/store/postgres"
	"github.com/hbomb79/Reelgest/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Postgres_RoundTrip(t *testing.T) {
	manager, err := database.ConnectDSN(testutil.SpawnPostgres(t), time.Second)
	require.NoError(t, err)
	st := postgres.New(manager)
	t.Cleanup(func() { _ = st.Close() })

	ids := testutil.RandomIdentifiers(3)
	downloaded := media.NewItem(map[string]any{"title": "first", "media_details": []any{map[string]any{"type": "video"}}})
	downloaded.LocalMediaPath = "videos/first.mp4"
	require.NoError(t, st.SaveItems(ctx, map[string]*media.Item{
		ids[0]: downloaded,
		ids[1]: media.NewItem(nil),
		ids[2]: media.NewErroredItem("timeout"),
	}))

	items, err := st.LoadItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, "videos/first.mp4", items[ids[0]].LocalMediaPath)
	assert.Equal(t, "first", items[ids[0]].Metadata["title"])

	// A second save replaces the table contents
	require.NoError(t, st.SaveItems(ctx, map[string]*media.Item{ids[1]: media.NewItem(nil)}))
	items, err = st.LoadItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Contains(t, items, ids[1])

	require.NoError(t, st.AppendFetchErrors(ctx, []store.Record{{Identifier: ids[0], Reason: "invalid link"}}))
	require.NoError(t, st.AppendFetchErrors(ctx, []store.Record{
		{Identifier: ids[0], Reason: "ignored"},
		{Identifier: ids[2], Reason: "unsupported content type"},
	}))

	records, err := st.LoadFetchErrors(ctx)
	require.NoError(t, err)
	reasons := make(map[string]string)
	for _, rec := range records {
		reasons[rec.Identifier] = rec.Reason
	}
	assert.Equal(t, map[string]string{ids[0]: "invalid link", ids[2]: "unsupported content type"}, reasons)

	brokenLinks, err := st.LoadBrokenLinks(ctx)
	require.NoError(t, err)
	assert.Empty(t, brokenLinks)

	_, err = manager.GetSqlxDb().Exec(`INSERT INTO upload_history(identifier, status) VALUES ($1, '{"channel": "uploaded"}')`, ids[1])
	require.NoError(t, err)
	history, err := st.LoadHistory(ctx)
	require.NoError(t, err)
	assert.Contains(t, history, ids[1])
}
