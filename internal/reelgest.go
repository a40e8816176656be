package internal

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/hbomb79/Reelgest/internal/abort"
	"github.com/hbomb79/Reelgest/internal/aggregate"
	"github.com/hbomb79/Reelgest/internal/download"
	"github.com/hbomb79/Reelgest/internal/identifier"
	"github.com/hbomb79/Reelgest/internal/media"
	"github.com/hbomb79/Reelgest/internal/resolve"
	"github.com/hbomb79/Reelgest/internal/store"
	"github.com/hbomb79/Reelgest/pkg/logger"
	"github.com/hbomb79/Reelgest/pkg/worker"
)

const (
	ResolveStage  = "resolve"
	DownloadStage = "download"
)

var (
	log = logger.Get("Core")

	ErrStageAborted = errors.New("stage aborted")
)

type (
	// RunOptions alter the behaviour of a single pipeline run.
	RunOptions struct {
		// SkipDownload stops the run after the resolve stage
		SkipDownload bool
	}

	// StageResult describes the outcome of a single pipeline stage.
	StageResult struct {
		Stage   string
		Summary aggregate.Summary
		Report  worker.Report
		Aborted bool
	}

	// RunSummary describes a pipeline run. Stages only contains
	// the stages which were actually executed.
	RunSummary struct {
		RunID          uuid.UUID
		Identifiers    int
		NewIdentifiers int
		Stages         []StageResult
	}

	Reelgest struct {
		config     ReelgestConfig
		store      store.Store
		resolver   *resolve.Service
		downloader *download.Service
	}
)

// New creates the pipeline. The store is owned by the caller, who
// is responsible for closing it. The resolver may be nil if only
// the download stage will be run.
func New(config ReelgestConfig, st store.Store, res resolve.Resolver, client *http.Client) *Reelgest {
	r := &Reelgest{
		config:     config,
		store:      st,
		downloader: download.New(config.Download, client),
	}
	if res != nil {
		r.resolver = resolve.New(config.Resolve, res, nil)
	}

	return r
}

// Run performs a complete pipeline run: the identifier list is read and
// filtered against everything a previous run has dealt with, the new
// identifiers are resolved, and then media is downloaded for every item
// that needs it. The state is persisted after each stage regardless of
// how the stage ended.
//
// If a stage is aborted due to an authorization failure, the remaining
// stages are skipped and an error marked with ErrStageAborted is returned.
// If the context is cancelled, the current stage is persisted and the
// context error is returned without starting the next stage.
func (r *Reelgest) Run(ctx context.Context, opts RunOptions) (*RunSummary, error) {
	if r.resolver == nil {
		return nil, errors.New("pipeline has no resolver configured")
	}

	summary := &RunSummary{RunID: uuid.New()}
	log.Emit(logger.NEW, "Starting run %s\n", summary.RunID)

	ids, err := identifier.ReadList(r.config.Input.Path)
	if err != nil {
		return summary, err
	}
	summary.Identifiers = len(ids)

	items, err := r.store.LoadItems(ctx)
	if err != nil {
		return summary, errors.Wrap(err, "failed to load items")
	}
	history, err := r.store.LoadHistory(ctx)
	if err != nil {
		return summary, errors.Wrap(err, "failed to load history")
	}
	fetchErrors, err := r.store.LoadFetchErrors(ctx)
	if err != nil {
		return summary, errors.Wrap(err, "failed to load fetch errors")
	}

	skip := identifier.ComputeSkipSet(items, history, fetchErrors)
	newIds := identifier.FilterNew(identifier.Order(ids, r.config.Input.Ascending), skip)
	summary.NewIdentifiers = len(newIds)
	log.Emit(logger.INFO, "%d of %d identifiers are new (%d already processed, in history, or failed)\n", len(newIds), len(ids), len(ids)-len(newIds))
	if len(newIds) == 0 {
		log.Emit(logger.SUCCESS, "No new work for run %s\n", summary.RunID)
		return summary, nil
	}

	resolveResult, items := r.resolveStage(ctx, newIds, items)
	summary.Stages = append(summary.Stages, *resolveResult)
	if resolveResult.Aborted {
		return summary, r.abortError(resolveResult)
	}
	if err := ctx.Err(); err != nil {
		return summary, errors.Wrap(err, "run interrupted after resolve stage")
	}

	if opts.SkipDownload {
		log.Emit(logger.INFO, "Skipping download stage\n")
		return summary, nil
	}

	downloadResult := r.downloadStage(ctx, items)
	summary.Stages = append(summary.Stages, *downloadResult)
	if downloadResult.Aborted {
		return summary, r.abortError(downloadResult)
	}
	if err := ctx.Err(); err != nil {
		return summary, errors.Wrap(err, "run interrupted during download stage")
	}

	return summary, nil
}

// Download runs only the download stage, using the items currently
// held by the store.
func (r *Reelgest) Download(ctx context.Context) (*RunSummary, error) {
	summary := &RunSummary{RunID: uuid.New()}
	log.Emit(logger.NEW, "Starting download run %s\n", summary.RunID)

	items, err := r.store.LoadItems(ctx)
	if err != nil {
		return summary, errors.Wrap(err, "failed to load items")
	}

	result := r.downloadStage(ctx, items)
	summary.Stages = append(summary.Stages, *result)
	if result.Aborted {
		return summary, r.abortError(result)
	}
	if err := ctx.Err(); err != nil {
		return summary, errors.Wrap(err, "download run interrupted")
	}

	return summary, nil
}

func (r *Reelgest) resolveStage(ctx context.Context, ids []string, items map[string]*media.Item) (*StageResult, map[string]*media.Item) {
	coordinator := abort.New(ResolveStage)
	agg := aggregate.New(items)
	agg.Start()

	report := r.resolver.Run(ctx, ids, agg, coordinator)
	result := agg.Close()
	if stripped := result.StripErrored(); stripped > 0 {
		log.Emit(logger.DEBUG, "Removed %d errored items before saving\n", stripped)
	}

	persistCtx := context.WithoutCancel(ctx)
	if err := r.store.SaveItems(persistCtx, result.Items); err != nil {
		log.Emit(logger.ERROR, "Failed to save items: %v\n", err)
	}
	if err := r.store.AppendFetchErrors(persistCtx, result.FetchErrors); err != nil {
		log.Emit(logger.ERROR, "Failed to save fetch errors: %v\n", err)
	}

	stage := r.finishStage(coordinator, result.Summary, report)
	return stage, result.Items
}

func (r *Reelgest) downloadStage(ctx context.Context, items map[string]*media.Item) *StageResult {
	brokenLinks, err := r.store.LoadBrokenLinks(ctx)
	if err != nil {
		log.Emit(logger.WARNING, "Failed to load broken links, previously broken items will not be deprioritised: %v\n", err)
	}

	coordinator := abort.New(DownloadStage)
	agg := aggregate.New(items)
	agg.Start()

	report := r.downloader.Run(ctx, items, brokenLinks, agg, coordinator)
	result := agg.Close()

	persistCtx := context.WithoutCancel(ctx)
	if err := r.store.SaveItems(persistCtx, result.Items); err != nil {
		log.Emit(logger.ERROR, "Failed to save items: %v\n", err)
	}
	if err := r.store.AppendBrokenLinks(persistCtx, result.BrokenLinks); err != nil {
		log.Emit(logger.ERROR, "Failed to save broken links: %v\n", err)
	}

	return r.finishStage(coordinator, result.Summary, report)
}

func (r *Reelgest) finishStage(coordinator *abort.Coordinator, summary aggregate.Summary, report worker.Report) *StageResult {
	stage := &StageResult{Stage: coordinator.Stage(), Summary: summary, Report: report, Aborted: coordinator.Aborted()}

	status := logger.SUCCESS
	if stage.Aborted {
		status = logger.STOP
		id, cause := coordinator.Cause()
		log.Emit(logger.ERROR, "The %s stage was aborted by an authorization failure for %s: %v\n", stage.Stage, id, cause)
	} else if report.StopReason == worker.Halted {
		status = logger.STOP
		log.Emit(logger.WARNING, "The %s stage was interrupted\n", stage.Stage)
	}

	log.Emit(status, "Finished %s stage (%s): %d attempted, %d succeeded, %d failed, %d never dispatched\n",
		stage.Stage, report.StopReason, summary.Attempted, summary.Succeeded, summary.Failed, report.Remaining)
	return stage
}

func (r *Reelgest) abortError(stage *StageResult) error {
	return errors.Mark(errors.Newf("%s stage aborted due to an authorization failure", stage.Stage), ErrStageAborted)
}
