package worker

import "sync"

type (
	// Budget bounds the work performed by a pool. TargetSuccesses is the
	// number of successful units wanted, MaxAttempts is the total number
	// of units which may be dispatched (successful or not). A zero value
	// for either field disables that limit.
	Budget struct {
		TargetSuccesses int
		MaxAttempts     int
	}

	// Queue hands out items to workers, one at a time, for as long as the
	// budget allows and the halt function reports false. The success count is
	// read through the function provided, as the queue does not own it.
	//
	// The success check is a throttle rather than a hard cut-off: items which
	// have already been claimed are not recalled when the target is met.
	Queue[T any] struct {
		sync.Mutex
		items      []T
		next       int
		budget     Budget
		successes  func() int
		halted     func() bool
		stopReason StopReason
	}

	StopReason int
)

const (
	NotStopped StopReason = iota
	Exhausted
	TargetReached
	AttemptsReached
	Halted
)

func NewQueue[T any](items []T, budget Budget, successes func() int, halted func() bool) *Queue[T] {
	return &Queue[T]{items: items, budget: budget, successes: successes, halted: halted}
}

// Claim returns the next item to be processed. The boolean is false when
// no further work should be dispatched; the reason can be inspected
// using StopReason once the pool has finished.
func (q *Queue[T]) Claim() (T, bool) {
	q.Lock()
	defer q.Unlock()

	var zero T
	switch {
	case q.halted != nil && q.halted():
		q.stopReason = Halted
	case q.budget.TargetSuccesses > 0 && q.successes() >= q.budget.TargetSuccesses:
		q.stopReason = TargetReached
	case q.budget.MaxAttempts > 0 && q.next >= q.budget.MaxAttempts:
		q.stopReason = AttemptsReached
	case q.next >= len(q.items):
		q.stopReason = Exhausted
	default:
		item := q.items[q.next]
		q.next++
		return item, true
	}

	return zero, false
}

// Dispatched returns the number of items handed out so far.
func (q *Queue[T]) Dispatched() int {
	q.Lock()
	defer q.Unlock()

	return q.next
}

// Remaining returns the number of items never handed out.
func (q *Queue[T]) Remaining() int {
	q.Lock()
	defer q.Unlock()

	return len(q.items) - q.next
}

func (q *Queue[T]) StopReason() StopReason {
	q.Lock()
	defer q.Unlock()

	return q.stopReason
}

func (r StopReason) String() string {
	switch r {
	case NotStopped:
		return "running"
	case Exhausted:
		return "queue exhausted"
	case TargetReached:
		return "success target reached"
	case AttemptsReached:
		return "attempt limit reached"
	case Halted:
		return "halted"
	default:
		return "unknown"
	}
}

// Report summarises a queue once the pool consuming it has finished.
type Report struct {
	Dispatched int
	Remaining  int
	StopReason StopReason
}

func (q *Queue[T]) Report() Report {
	q.Lock()
	defer q.Unlock()

	return Report{Dispatched: q.next, Remaining: len(q.items) - q.next, StopReason: q.stopReason}
}
