package resolve_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/hbomb79/Reelgest/internal/abort"
	"github.com/hbomb79/Reelgest/internal/aggregate"
	"github.com/hbomb79/Reelgest/internal/resolve"
	"github.com/hbomb79/Reelgest/internal/resolve/mocks"
	"github.com/hbomb79/Reelgest/pkg/logger"
	"github.com/hbomb79/Reelgest/pkg/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errExpected = errors.New("test: expected error")

func init() {
	logger.SetMinLoggingLevel(logger.WARNING.Level())
}

func newConfig(parallelism int, target int, attempts int) resolve.Config {
	return resolve.Config{
		Parallelism:      parallelism,
		TargetSuccesses:  target,
		MaxAttempts:      attempts,
		AuthMarkers:      []string{"401", "403", "unauthorized"},
		PermanentMarkers: []string{"unsupported content type", "invalid link"},
	}
}

func metadataFor(id string) map[string]any {
	return map[string]any{"url": id, "media_details": []any{map[string]any{"type": "video", "url": "https://cdn/" + id + ".mp4"}}}
}

func runService(t *testing.T, config resolve.Config, resolver resolve.Resolver, ids []string) (*aggregate.Result, *abort.Coordinator, worker.Report) {
	agg := aggregate.New(nil)
	agg.Start()
	coordinator := abort.New("resolve")

	report := resolve.New(config, resolver, nil).Run(context.Background(), ids, agg, coordinator)
	return agg.Close(), coordinator, report
}

func Test_Resolve_AllSucceed(t *testing.T) {
	resolverMock := mocks.NewMockResolver()
	resolverMock.On("Resolve", mock.Anything, mock.Anything).Return(func(_ context.Context, id string) map[string]any { return metadataFor(id) }, nil)

	ids := []string{"a", "b", "c", "d", "e"}
	result, coordinator, report := runService(t, newConfig(3, 0, 0), resolverMock, ids)

	assert.False(t, coordinator.Aborted())
	assert.Len(t, result.Items, 5)
	for _, id := range ids {
		require.Contains(t, result.Items, id)
		assert.Equal(t, id, result.Items[id].Metadata["url"])
	}
	assert.Equal(t, worker.Exhausted, report.StopReason)
	assert.Equal(t, 5, result.Summary.Succeeded)
	resolverMock.AssertNumberOfCalls(t, "Resolve", 5)
}

func Test_Resolve_ClassifiesFailures(t *testing.T) {
	resolverMock := mocks.NewMockResolver()
	resolverMock.On("Resolve", mock.Anything, "ok").Return(metadataFor("ok"), nil)
	resolverMock.On("Resolve", mock.Anything, "unsupported").Return(nil, errors.New("Unsupported content type: image"))
	resolverMock.On("Resolve", mock.Anything, "typed").Return(nil, fmt.Errorf("wrapped: %w", resolve.ErrInvalidLink))
	resolverMock.On("Resolve", mock.Anything, "flaky").Return(nil, errExpected)
	resolverMock.On("Resolve", mock.Anything, "empty").Return(nil, nil)

	result, coordinator, _ := runService(t, newConfig(2, 0, 0), resolverMock, []string{"ok", "unsupported", "typed", "flaky", "empty"})

	assert.False(t, coordinator.Aborted())
	assert.False(t, result.Items["ok"].HasError())
	assert.True(t, result.Items["unsupported"].HasError())
	assert.True(t, result.Items["typed"].HasError())
	assert.True(t, result.Items["flaky"].HasError())
	assert.True(t, result.Items["empty"].HasError(), "a nil payload is treated as a transient failure")

	failed := make([]string, 0)
	for _, rec := range result.FetchErrors {
		failed = append(failed, rec.Identifier)
	}
	assert.ElementsMatch(t, []string{"unsupported", "typed"}, failed)
	assert.Equal(t, 2, result.Summary.Classified)
	assert.Equal(t, 2, result.Summary.Transient)
}

func Test_Resolve_StopsAtTargetSuccesses(t *testing.T) {
	resolverMock := mocks.NewMockResolver()
	resolverMock.On("Resolve", mock.Anything, mock.Anything).Return(func(_ context.Context, id string) map[string]any { return metadataFor(id) }, nil)

	ids := []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"}
	result, _, report := runService(t, newConfig(1, 3, 0), resolverMock, ids)

	assert.Len(t, result.Items, 3)
	assert.Contains(t, result.Items, "1")
	assert.Contains(t, result.Items, "3")
	assert.Equal(t, worker.TargetReached, report.StopReason)
	assert.Equal(t, 7, report.Remaining)
	resolverMock.AssertNumberOfCalls(t, "Resolve", 3)
}

func Test_Resolve_TargetIsBestEffortWithConcurrency(t *testing.T) {
	var calls atomic.Int32
	resolverMock := mocks.NewMockResolver()
	resolverMock.On("Resolve", mock.Anything, mock.Anything).Return(func(_ context.Context, id string) map[string]any {
		calls.Add(1)
		return metadataFor(id)
	}, nil)

	ids := make([]string, 50)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%d", i)
	}

	result, _, _ := runService(t, newConfig(4, 5, 0), resolverMock, ids)

	// Each of the workers may have claimed one item before observing the target
	assert.GreaterOrEqual(t, result.Summary.Succeeded, 5)
	assert.LessOrEqual(t, int(calls.Load()), 5+4-1)
}

func Test_Resolve_StopsAtMaxAttempts(t *testing.T) {
	resolverMock := mocks.NewMockResolver()
	resolverMock.On("Resolve", mock.Anything, mock.Anything).Return(nil, errExpected)

	ids := []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"}
	result, _, report := runService(t, newConfig(2, 5, 4), resolverMock, ids)

	assert.Equal(t, worker.AttemptsReached, report.StopReason)
	assert.Equal(t, 4, report.Dispatched)
	assert.Equal(t, 4, result.Summary.Attempted)
	assert.Equal(t, 0, result.Summary.Succeeded)
	resolverMock.AssertNumberOfCalls(t, "Resolve", 4)
}

func Test_Resolve_AuthFailureAbortsStage(t *testing.T) {
	resolverMock := mocks.NewMockResolver()
	resolverMock.On("Resolve", mock.Anything, "c").Return(metadataFor("c"), nil)
	resolverMock.On("Resolve", mock.Anything, "b").Return(metadataFor("b"), nil)
	resolverMock.On("Resolve", mock.Anything, "a").Return(nil, errors.New("HTTP 401: unauthorized"))

	result, coordinator, report := runService(t, newConfig(1, 0, 0), resolverMock, []string{"c", "b", "a", "z", "y"})

	require.True(t, coordinator.Aborted())
	id, cause := coordinator.Cause()
	assert.Equal(t, "a", id)
	assert.ErrorContains(t, cause, "unauthorized")

	assert.Equal(t, worker.Halted, report.StopReason)
	assert.Equal(t, 2, report.Remaining)
	assert.Len(t, result.Items, 2)
	assert.Contains(t, result.Items, "c")
	assert.Contains(t, result.Items, "b")
	assert.Empty(t, result.FetchErrors, "authorization failures must never be recorded as fetch errors")
	assert.Equal(t, 1, result.Summary.Unauthorized)
	resolverMock.AssertNotCalled(t, "Resolve", mock.Anything, "z")
	resolverMock.AssertNotCalled(t, "Resolve", mock.Anything, "y")
}

func Test_Resolve_PanickingResolverIsContained(t *testing.T) {
	resolverMock := mocks.NewMockResolver()
	resolverMock.On("Resolve", mock.Anything, "boom").Return(func(context.Context, string) map[string]any { panic("resolver exploded") }, nil)
	resolverMock.On("Resolve", mock.Anything, "ok").Return(metadataFor("ok"), nil)

	result, coordinator, _ := runService(t, newConfig(1, 0, 0), resolverMock, []string{"boom", "ok"})

	assert.False(t, coordinator.Aborted())
	assert.True(t, result.Items["boom"].HasError())
	assert.False(t, result.Items["ok"].HasError())
}

func Test_Resolve_CancelledContextStopsDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	resolverMock := mocks.NewMockResolver()
	resolverMock.On("Resolve", mock.Anything, mock.Anything).Return(func(_ context.Context, id string) map[string]any {
		cancel()
		return metadataFor(id)
	}, nil)

	agg := aggregate.New(nil)
	agg.Start()
	report := resolve.New(newConfig(1, 0, 0), resolverMock, nil).Run(ctx, []string{"1", "2", "3"}, agg, abort.New("resolve"))
	result := agg.Close()

	assert.Equal(t, 1, report.Dispatched)
	assert.Len(t, result.Items, 1)
}

func Test_Resolve_NoIdentifiers(t *testing.T) {
	resolverMock := mocks.NewMockResolver()

	result, _, report := runService(t, newConfig(4, 0, 0), resolverMock, []string{})

	assert.Empty(t, result.Items)
	assert.Equal(t, worker.Exhausted, report.StopReason)
	resolverMock.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}
