package store_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/hbomb79/Reelgest/internal/media"
	"github.com/hbomb79/Reelgest/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_MergeRecords(t *testing.T) {
	existing := []store.Record{{Identifier: "a", Reason: "1"}, {Identifier: "b", Reason: "2"}}
	incoming := []store.Record{{Identifier: "b", Reason: "3"}, {Identifier: "c", Reason: "4"}, {Identifier: "c", Reason: "5"}}

	merged := store.MergeRecords(existing, incoming)

	assert.Equal(t, []store.Record{
		{Identifier: "a", Reason: "1"},
		{Identifier: "b", Reason: "2"},
		{Identifier: "c", Reason: "4"},
	}, merged)
	assert.Len(t, existing, 2, "inputs must not be modified")
	assert.Len(t, incoming, 3, "inputs must not be modified")
}

func Test_MergeRecords_Empty(t *testing.T) {
	assert.Empty(t, store.MergeRecords(nil, nil))
	assert.NotNil(t, store.MergeRecords(nil, nil))
}

func Test_WithoutErrored(t *testing.T) {
	items := map[string]*media.Item{
		"ok":  media.NewItem(nil),
		"bad": media.NewErroredItem("invalid link"),
		"nil": nil,
	}

	out := store.WithoutErrored(items)
	assert.Len(t, out, 1)
	assert.Contains(t, out, "ok")
	assert.Len(t, items, 3, "input must not be modified")
}

func Test_Record_MarshalJSON(t *testing.T) {
	tests := []struct {
		summary  string
		record   store.Record
		expected string
	}{
		{
			summary:  "untimestamped record omits recorded_at",
			record:   store.Record{Identifier: "a", Reason: "invalid link"},
			expected: `{"url":"a","reason":"invalid link"}`,
		},
		{
			summary:  "timestamped record includes recorded_at",
			record:   store.Record{Identifier: "b", Reason: "404", RecordedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)},
			expected: `{"url":"b","reason":"404","recorded_at":"2024-06-01T12:00:00Z"}`,
		},
	}

	for _, test := range tests {
		t.Run(test.summary, func(t *testing.T) {
			raw, err := json.Marshal(test.record)
			require.NoError(t, err)
			assert.JSONEq(t, test.expected, string(raw))

			var decoded store.Record
			require.NoError(t, json.Unmarshal(raw, &decoded))
			assert.Equal(t, test.record, decoded)
		})
	}
}
