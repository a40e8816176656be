package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// WorkerPool contains a set of workers which are started together
// and waited on together. The 'Wg' WaitGroup is automatically
// controlled by the WorkerPool.
type WorkerPool struct {
	workers []Worker
	Wg      sync.WaitGroup
	started bool
}

// NewWorkerPool creates a new WorkerPool struct
// and initialises the 'workers' slice.
func NewWorkerPool() *WorkerPool {
	return &WorkerPool{workers: make([]Worker, 0)}
}

// NewTaskPool is a convenience for creating a pool of 'size'
// workers which all execute the same task. Worker labels are
// derived from the prefix provided (e.g. "resolve-worker-0").
func NewTaskPool(prefix string, size int, task WorkerTask) *WorkerPool {
	pool := NewWorkerPool()
	for i := 0; i < size; i++ {
		_ = pool.PushWorker(NewWorker(fmt.Sprintf("%s-%d", prefix, i), task))
	}

	return pool
}

// Start cycles through all the workers currently inside the WorkerPool
// and creates a goroutine for each.
//
// Start does NOT block, consumers should use Wait
// to block until every worker has finished.
func (pool *WorkerPool) Start(ctx context.Context) error {
	if pool.started {
		return errors.New("cannot start an already started worker pool")
	}

	pool.started = true
	for _, worker := range pool.workers {
		pool.Wg.Add(1)
		go func(wg *sync.WaitGroup, w Worker) {
			defer wg.Done()
			w.Start(ctx)
		}(&pool.Wg, worker)
	}

	return nil
}

// PushWorker inserts the worker provided in to the worker pool. Workers
// cannot be added once the pool has been started.
func (pool *WorkerPool) PushWorker(workers ...Worker) error {
	if pool.started {
		return errors.New("cannot push worker to already started worker pool")
	}

	pool.workers = append(pool.workers, workers...)
	return nil
}

// Run starts the pool and blocks until every worker has finished.
func (pool *WorkerPool) Run(ctx context.Context) error {
	if err := pool.Start(ctx); err != nil {
		return err
	}

	pool.Wait()
	return nil
}

// Wait blocks until all workers in the pool have finished.
func (pool *WorkerPool) Wait() {
	pool.Wg.Wait()
}

// Size returns the number of workers attached to this pool.
func (pool *WorkerPool) Size() int {
	return len(pool.workers)
}
