// Package aggregate contains the single-writer owner of a stages
// mutable results. Workers submit outcomes over a channel and a single
// goroutine applies them, one at a time, so no two outcomes are ever
// applied concurrently.
package aggregate

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hbomb79/Reelgest/internal/media"
	"github.com/hbomb79/Reelgest/internal/store"
	"github.com/hbomb79/Reelgest/pkg/logger"
)

var log = logger.Get("Aggregator")

const outcomeBufferSize = 64

type (
	// Summary contains the counters for a single stage.
	Summary struct {
		Attempted int
		Succeeded int
		Failed    int

		Resolved     int
		Classified   int
		Transient    int
		Unauthorized int
		Downloaded   int
		Reused       int
		BrokenLinks  int
	}

	// Result is the final state of an Aggregator, returned once
	// all outcomes have been applied.
	Result struct {
		Items       map[string]*media.Item
		FetchErrors []store.Record
		BrokenLinks []store.Record
		Summary     Summary
	}

	Aggregator struct {
		items       map[string]*media.Item
		fetchErrors []store.Record
		brokenLinks []store.Record
		summary     Summary

		// successes is maintained on submission, rather than application,
		// so that workers reading it to throttle dispatch see their own
		// successes immediately.
		successes atomic.Int64

		outcomes  chan Outcome
		done      chan struct{}
		startOnce sync.Once
		closeOnce sync.Once
		now       func() time.Time
	}
)

// New creates an aggregator seeded with the items provided. The
// aggregator takes ownership of the map; callers must not
// read or modify it until the aggregator has been closed.
func New(items map[string]*media.Item) *Aggregator {
	if items == nil {
		items = make(map[string]*media.Item)
	}

	return &Aggregator{
		items:       items,
		fetchErrors: make([]store.Record, 0),
		brokenLinks: make([]store.Record, 0),
		outcomes:    make(chan Outcome, outcomeBufferSize),
		done:        make(chan struct{}),
		now:         time.Now,
	}
}

// Start launches the goroutine which applies submitted outcomes. It
// is safe to call more than once.
func (agg *Aggregator) Start() {
	agg.startOnce.Do(func() {
		go func() {
			defer close(agg.done)
			for outcome := range agg.outcomes {
				agg.apply(outcome)
			}
		}()
	})
}

// Submit queues an outcome to be applied. Submit must not be called
// after Close.
func (agg *Aggregator) Submit(outcome Outcome) {
	if outcome.Kind.IsSuccess() {
		agg.successes.Add(1)
	}

	agg.outcomes <- outcome
}

// Successes returns the number of successful outcomes submitted so far.
func (agg *Aggregator) Successes() int {
	return int(agg.successes.Load())
}

// Close stops accepting outcomes, waits for every submitted outcome
// to be applied, and returns the resulting state.
func (agg *Aggregator) Close() *Result {
	agg.Start()
	agg.closeOnce.Do(func() { close(agg.outcomes) })
	<-agg.done

	return &Result{
		Items:       agg.items,
		FetchErrors: agg.fetchErrors,
		BrokenLinks: agg.brokenLinks,
		Summary:     agg.summary,
	}
}

func (agg *Aggregator) apply(outcome Outcome) {
	agg.summary.Attempted++
	if outcome.Kind.IsSuccess() {
		agg.summary.Succeeded++
	} else {
		agg.summary.Failed++
	}

	switch outcome.Kind {
	case Resolved:
		agg.summary.Resolved++
		agg.items[outcome.Identifier] = media.NewItem(outcome.Metadata)
	case ClassifiedFailure:
		agg.summary.Classified++
		agg.items[outcome.Identifier] = media.NewErroredItem(outcome.Reason)
		agg.fetchErrors = append(agg.fetchErrors, agg.record(outcome))
	case TransientFailure:
		agg.summary.Transient++
		agg.items[outcome.Identifier] = media.NewErroredItem(outcome.Reason)
	case AuthFailure:
		agg.summary.Unauthorized++
	case Downloaded, Reused:
		if outcome.Kind == Downloaded {
			agg.summary.Downloaded++
		} else {
			agg.summary.Reused++
		}

		item, ok := agg.items[outcome.Identifier]
		if !ok {
			log.Emit(logger.WARNING, "Media for %s was materialised at %s, but the item is not known\n", outcome.Identifier, outcome.LocalPath)
			return
		}

		item.LocalMediaPath = outcome.LocalPath
	case BrokenLink:
		agg.summary.BrokenLinks++
		agg.brokenLinks = append(agg.brokenLinks, agg.record(outcome))
	default:
		log.Emit(logger.ERROR, "Ignoring outcome of unknown kind %s for %s\n", outcome.Kind, outcome.Identifier)
	}
}

func (agg *Aggregator) record(outcome Outcome) store.Record {
	return store.Record{Identifier: outcome.Identifier, Reason: outcome.Reason, RecordedAt: agg.now().UTC()}
}

// StripErrored removes every item carrying an error marker from the
// result, returning the number of items removed. Errors never reach
// the canonical store; they live only in the error logs.
func (res *Result) StripErrored() int {
	removed := 0
	for id, item := range res.Items {
		if item == nil || item.HasError() {
			delete(res.Items, id)
			removed++
		}
	}

	return removed
}
