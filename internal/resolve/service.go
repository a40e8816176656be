// Package resolve contains the bounded pool of workers which turn
// identifiers in to metadata by calling the external resolver.
package resolve

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/hbomb79/Reelgest/internal/abort"
	"github.com/hbomb79/Reelgest/internal/aggregate"
	"github.com/hbomb79/Reelgest/pkg/logger"
	"github.com/hbomb79/Reelgest/pkg/worker"
)

var log = logger.Get("ResolveSrv")

type (
	// Resolver is the external collaborator which turns an identifier
	// in to an opaque metadata payload.
	Resolver interface {
		Resolve(ctx context.Context, identifier string) (map[string]any, error)
	}

	Service struct {
		config     Config
		resolver   Resolver
		classifier *Classifier
	}
)

// New creates a resolve service. If no classifier is provided, one is
// built from the markers in the config.
func New(config Config, resolver Resolver, classifier *Classifier) *Service {
	if classifier == nil {
		classifier = NewClassifier(config.AuthMarkers, config.PermanentMarkers)
	}

	return &Service{config: config, resolver: resolver, classifier: classifier}
}

// Run resolves the identifiers provided, in order, using a pool of workers. Every
// dispatched identifier produces exactly one outcome, which is submitted to
// the aggregator. Dispatch stops once the budget is exhausted, the coordinator
// is signalled, or the context is cancelled; identifiers already in flight are
// allowed to finish.
//
// Run blocks until every worker has finished.
func (service *Service) Run(ctx context.Context, ids []string, agg *aggregate.Aggregator, coordinator *abort.Coordinator) worker.Report {
	halted := func() bool { return coordinator.Aborted() || ctx.Err() != nil }
	queue := worker.NewQueue(ids, service.config.Budget(), agg.Successes, halted)

	size := max(1, min(service.config.Parallelism, len(ids)))
	pool := worker.NewTaskPool("resolve-worker", size, func(ctx context.Context, w worker.Worker) (bool, error) {
		id, ok := queue.Claim()
		if !ok {
			return false, nil
		}

		service.resolveOne(ctx, w, id, agg, coordinator)
		return true, nil
	})

	log.Emit(logger.INFO, "Resolving up to %d of %d identifiers using %d workers\n", service.dispatchLimit(len(ids)), len(ids), size)
	if err := pool.Run(ctx); err != nil {
		log.Emit(logger.ERROR, "Failed to start resolver pool: %v\n", err)
	}

	report := queue.Report()
	log.Emit(logger.DEBUG, "Resolver pool finished (%s) after dispatching %d identifiers\n", report.StopReason, report.Dispatched)
	return report
}

// resolveOne performs a single resolver call and submits the outcome. No error
// is able to escape; a failure of this identifier must never affect
// any other.
func (service *Service) resolveOne(ctx context.Context, w worker.Worker, id string, agg *aggregate.Aggregator, coordinator *abort.Coordinator) {
	log.Emit(logger.NEW, "[%s] Resolving %s\n", w.Label(), id)
	metadata, err := service.call(ctx, id)
	if err == nil {
		log.Emit(logger.SUCCESS, "[%s] Resolved %s\n", w.Label(), id)
		agg.Submit(aggregate.Outcome{Identifier: id, Kind: aggregate.Resolved, Metadata: metadata})
		return
	}

	failure := service.classifier.Classify(err)
	switch failure.Type() {
	case AUTH_FAILURE:
		if coordinator.Signal(id, err) {
			log.Emit(logger.STOP, "[%s] Authorization failure while resolving %s, no further identifiers will be dispatched\n", w.Label(), id)
		}
	case PERMANENT_FAILURE:
		log.Emit(logger.WARNING, "[%s] Failed to resolve %s (permanent): %s\n", w.Label(), id, failure.Reason())
	default:
		log.Emit(logger.WARNING, "[%s] Failed to resolve %s: %s\n", w.Label(), id, failure.Reason())
	}

	agg.Submit(aggregate.Outcome{Identifier: id, Kind: failure.OutcomeKind(), Reason: failure.Reason()})
}

func (service *Service) call(ctx context.Context, id string) (metadata map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("resolver panicked: %v", r)
		}
	}()

	metadata, err = service.resolver.Resolve(ctx, id)
	if err == nil && metadata == nil {
		return nil, errors.Newf("resolver returned no metadata for %s", id)
	}

	return metadata, err
}

func (service *Service) dispatchLimit(available int) int {
	if service.config.MaxAttempts > 0 {
		return min(available, service.config.MaxAttempts)
	}

	return available
}
