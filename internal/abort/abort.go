package abort

import (
	"sync"
	"sync/atomic"
)

// Coordinator is a write-once cancellation signal shared by the workers of
// a single pipeline stage. Once signalled, workers stop claiming new work;
// work already in flight is allowed to complete.
//
// Each stage uses its own Coordinator so that an abort raised during one
// stage can never be mistaken for an abort of another.
type Coordinator struct {
	stage   string
	aborted atomic.Bool
	once    sync.Once
	cause   error
	item    string
}

func New(stage string) *Coordinator {
	return &Coordinator{stage: stage}
}

// Signal aborts the stage. Only the first call has any effect, and
// it is the only call for which 'true' is returned.
func (c *Coordinator) Signal(identifier string, cause error) bool {
	first := false
	c.once.Do(func() {
		c.cause = cause
		c.item = identifier
		c.aborted.Store(true)
		first = true
	})

	return first
}

func (c *Coordinator) Aborted() bool { return c.aborted.Load() }

// Cause returns the error (and the identifier which raised it) passed to the
// first call to Signal. If the stage has not been aborted, a nil error is returned.
func (c *Coordinator) Cause() (string, error) {
	if !c.Aborted() {
		return "", nil
	}

	return c.item, c.cause
}

func (c *Coordinator) Stage() string { return c.stage }
