package worker

import (
	"context"
	"sync/atomic"

	"github.com/hbomb79/Reelgest/pkg/logger"
)

var workerLogger = logger.Get("Worker")

type WorkerStatus int32

const (
	Idle WorkerStatus = iota
	Working
	Finished
)

// WorkerTask is executed repeatedly by a worker. It should return
// 'true' if it performed a unit of work, and 'false' if there was
// no work left to claim, at which point the worker finishes.
type WorkerTask func(ctx context.Context, w Worker) (bool, error)

type Worker interface {
	Start(context.Context)
	Status() WorkerStatus
	Label() string
}

type taskWorker struct {
	label         string
	task          WorkerTask
	currentStatus atomic.Int32
}

func NewWorker(label string, task WorkerTask) *taskWorker {
	return &taskWorker{label: label, task: task}
}

// Start runs the workers task until it reports that no work remains, or
// until the context provided is cancelled. An error returned by
// the task is logged and the worker moves on to the next unit of work, as
// a single failed unit must never bring down the entire pool.
func (worker *taskWorker) Start(ctx context.Context) {
	workerLogger.Emit(logger.VERBOSE, "Starting worker %s\n", worker.label)
	worker.currentStatus.Store(int32(Working))
	defer func() {
		worker.currentStatus.Store(int32(Finished))
		workerLogger.Emit(logger.VERBOSE, "Worker %s has stopped\n", worker.label)
	}()

	for ctx.Err() == nil {
		didWork, err := worker.task(ctx, worker)
		if err != nil {
			workerLogger.Emit(logger.ERROR, "Worker %s has reported an error(%T): %v\n", worker.label, err, err.Error())
		}

		if !didWork {
			return
		}
	}
}

// Status returns the current status of this worker
func (worker *taskWorker) Status() WorkerStatus {
	return WorkerStatus(worker.currentStatus.Load())
}

// Label returns the label for this worker
func (worker *taskWorker) Label() string {
	return worker.label
}
