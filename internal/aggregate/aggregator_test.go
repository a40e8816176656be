package aggregate_test

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/hbomb79/Reelgest/internal/aggregate"
	"github.com/hbomb79/Reelgest/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Aggregator_AppliesOutcomes(t *testing.T) {
	existing := media.NewItem(map[string]any{"title": "existing"})
	agg := aggregate.New(map[string]*media.Item{"existing": existing})
	agg.Start()

	agg.Submit(aggregate.Outcome{Identifier: "ok", Kind: aggregate.Resolved, Metadata: map[string]any{"title": "ok"}})
	agg.Submit(aggregate.Outcome{Identifier: "unsupported", Kind: aggregate.ClassifiedFailure, Reason: "unsupported content type"})
	agg.Submit(aggregate.Outcome{Identifier: "flaky", Kind: aggregate.TransientFailure, Reason: "timeout"})
	agg.Submit(aggregate.Outcome{Identifier: "denied", Kind: aggregate.AuthFailure, Reason: "401"})
	agg.Submit(aggregate.Outcome{Identifier: "existing", Kind: aggregate.Downloaded, LocalPath: "videos/existing.mp4"})
	agg.Submit(aggregate.Outcome{Identifier: "gone", Kind: aggregate.BrokenLink, Reason: "404"})

	result := agg.Close()
	require.NotNil(t, result)

	assert.Equal(t, "ok", result.Items["ok"].Metadata["title"])
	assert.True(t, result.Items["unsupported"].HasError())
	assert.True(t, result.Items["flaky"].HasError())
	assert.NotContains(t, result.Items, "denied", "authorization failures must not touch the item map")
	assert.Equal(t, "videos/existing.mp4", result.Items["existing"].LocalMediaPath)

	require.Len(t, result.FetchErrors, 1)
	assert.Equal(t, "unsupported", result.FetchErrors[0].Identifier)
	assert.Equal(t, "unsupported content type", result.FetchErrors[0].Reason)
	assert.False(t, result.FetchErrors[0].RecordedAt.IsZero())

	require.Len(t, result.BrokenLinks, 1)
	assert.Equal(t, "gone", result.BrokenLinks[0].Identifier)

	assert.Equal(t, aggregate.Summary{
		Attempted:    6,
		Succeeded:    2,
		Failed:       4,
		Resolved:     1,
		Classified:   1,
		Transient:    1,
		Unauthorized: 1,
		Downloaded:   1,
		BrokenLinks:  1,
	}, result.Summary)
}

func Test_Aggregator_StripErrored(t *testing.T) {
	agg := aggregate.New(nil)
	agg.Start()
	agg.Submit(aggregate.Outcome{Identifier: "ok", Kind: aggregate.Resolved, Metadata: map[string]any{}})
	agg.Submit(aggregate.Outcome{Identifier: "bad", Kind: aggregate.ClassifiedFailure, Reason: "invalid link"})
	agg.Submit(aggregate.Outcome{Identifier: "flaky", Kind: aggregate.TransientFailure, Reason: "timeout"})

	result := agg.Close()
	assert.Equal(t, 2, result.StripErrored())
	assert.Len(t, result.Items, 1)
	assert.Contains(t, result.Items, "ok")
	assert.Len(t, result.FetchErrors, 1, "stripping items must not remove fetch error records")
}

func Test_Aggregator_CountsSuccessesOnSubmit(t *testing.T) {
	agg := aggregate.New(nil)

	// Not started yet; submissions are buffered but successes are
	// visible immediately.
	agg.Submit(aggregate.Outcome{Identifier: "a", Kind: aggregate.Resolved})
	agg.Submit(aggregate.Outcome{Identifier: "b", Kind: aggregate.TransientFailure})
	agg.Submit(aggregate.Outcome{Identifier: "c", Kind: aggregate.Reused, LocalPath: "x"})
	assert.Equal(t, 2, agg.Successes())

	result := agg.Close()
	assert.Equal(t, 3, result.Summary.Attempted)
}

func Test_Aggregator_ConcurrentSubmitters(t *testing.T) {
	agg := aggregate.New(nil)
	agg.Start()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				agg.Submit(aggregate.Outcome{Identifier: fmt.Sprintf("%d-%d", w, i), Kind: aggregate.Resolved, Metadata: map[string]any{}})
			}
		}(w)
	}

	wg.Wait()
	result := agg.Close()
	assert.Len(t, result.Items, 800)
	assert.Equal(t, 800, result.Summary.Succeeded)
	assert.Equal(t, 800, agg.Successes())
}

func Test_Aggregator_CloseIsIdempotent(t *testing.T) {
	agg := aggregate.New(nil)
	first := agg.Close()
	second := agg.Close()

	assert.Equal(t, first.Summary, second.Summary)
}

func Test_TruncateReason(t *testing.T) {
	assert.Equal(t, "short", aggregate.TruncateReason("short"))
	assert.Equal(t, "multi line message", aggregate.TruncateReason("multi\nline\n  message"))

	long := strings.Repeat("x", 250)
	assert.Len(t, aggregate.TruncateReason(long), aggregate.MaxReasonLength)

	unicode := strings.Repeat("é", 150)
	assert.Equal(t, aggregate.MaxReasonLength, len([]rune(aggregate.TruncateReason(unicode))))
}
