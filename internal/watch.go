package internal

import (
	"context"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hbomb79/Reelgest/pkg/logger"
	"github.com/rjeczalik/notify"
)

// Watch performs a pipeline run immediately, and then again each time the
// identifier list changes on disk. A run is also forced on a regular interval
// in case the watcher misses an event. Watch returns when the context
// is cancelled, or when a run is aborted by an authorization failure (as
// every later run would fail in the same way).
func (r *Reelgest) Watch(ctx context.Context, opts RunOptions) error {
	inputPath, err := filepath.Abs(r.config.Input.Path)
	if err != nil {
		return errors.Wrapf(err, "failed to resolve input path %s", r.config.Input.Path)
	}

	fsNotifyChannel := make(chan notify.EventInfo, 1)
	if err := notify.Watch(filepath.Dir(inputPath), fsNotifyChannel, notify.Create, notify.Write, notify.Rename); err != nil {
		return errors.Wrapf(err, "failed to watch %s", filepath.Dir(inputPath))
	}
	defer notify.Stop(fsNotifyChannel)

	forceSync := time.NewTicker(time.Second * time.Duration(r.config.Watch.ForceSyncSeconds))
	defer forceSync.Stop()

	if err := r.watchRun(ctx, opts, "startup"); err != nil {
		return err
	}

	for {
		select {
		case ev := <-fsNotifyChannel:
			if filepath.Clean(ev.Path()) != inputPath {
				continue
			}

			if err := r.watchRun(ctx, opts, "identifier list changed"); err != nil {
				return err
			}
		case <-forceSync.C:
			if err := r.watchRun(ctx, opts, "forced sync"); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// watchRun performs a single run on behalf of Watch. Only errors which
// should stop the watcher are returned; all others are logged.
func (r *Reelgest) watchRun(ctx context.Context, opts RunOptions, trigger string) error {
	if ctx.Err() != nil {
		return nil
	}

	log.Emit(logger.INFO, "Starting run (%s)\n", trigger)
	if _, err := r.Run(ctx, opts); err != nil {
		if errors.Is(err, ErrStageAborted) {
			return err
		}
		if errors.Is(err, context.Canceled) {
			log.Emit(logger.INFO, "Run interrupted (%s)\n", trigger)
			return nil
		}

		log.Emit(logger.ERROR, "Run failed: %v\n", err)
	}

	return nil
}
