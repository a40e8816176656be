// Package download contains the bounded pool of workers which
// materialise the media of resolved items as local files.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/hbomb79/Reelgest/internal/abort"
	"github.com/hbomb79/Reelgest/internal/aggregate"
	"github.com/hbomb79/Reelgest/internal/media"
	"github.com/hbomb79/Reelgest/internal/store"
	"github.com/hbomb79/Reelgest/pkg/logger"
	"github.com/hbomb79/Reelgest/pkg/worker"
)

const partialSuffix = ".part"

var (
	log = logger.Get("DownloadSrv")

	ErrUnauthorized = errors.New("media transport rejected credentials")
	ErrEmptyBody    = errors.New("downloaded media is empty")
)

type (
	// StatusError is returned when the media transport responds
	// with a non-2xx status.
	StatusError struct {
		StatusCode int
		Status     string
	}

	candidate struct {
		id   string
		item *media.Item
	}

	Service struct {
		config Config
		client *http.Client
	}
)

func (e *StatusError) Error() string {
	return fmt.Sprintf("media transport responded with status %d (%s)", e.StatusCode, e.Status)
}

// New creates a download service which performs transfers using
// the client provided. If the client is nil, a default client is used.
func New(config Config, client *http.Client) *Service {
	if client == nil {
		client = &http.Client{}
	}

	return &Service{config: config, client: client}
}

// Candidates returns the identifiers of the items which still need their media
// downloading: those with no local media path, or whose local media
// file no longer exists. Items carrying an error marker are never candidates.
//
// Items which already have a broken-link record are still retried, but only
// after every other candidate, so they cannot consume the attempt budget of
// each run ahead of items which have never been tried. Within each group the
// result is sorted so that dispatch order is stable between runs.
func Candidates(items map[string]*media.Item, brokenLinks []store.Record) []string {
	known := make(map[string]struct{}, len(brokenLinks))
	for _, rec := range brokenLinks {
		known[rec.Identifier] = struct{}{}
	}

	fresh := make([]string, 0)
	retries := make([]string, 0)
	for id, item := range items {
		if item == nil || item.HasError() {
			continue
		}

		if item.LocalMediaPath != "" {
			if _, err := os.Stat(item.LocalMediaPath); err == nil {
				continue
			}
		}

		if _, ok := known[id]; ok {
			retries = append(retries, id)
		} else {
			fresh = append(fresh, id)
		}
	}

	sort.Strings(fresh)
	sort.Strings(retries)
	return append(fresh, retries...)
}

// Run downloads the media for each candidate item using a pool of
// workers. The candidates are selected, and copied, before any work
// is dispatched so the pool never reads the items while the aggregator
// is applying outcomes to them.
//
// Run blocks until every worker has finished.
func (service *Service) Run(ctx context.Context, items map[string]*media.Item, brokenLinks []store.Record, agg *aggregate.Aggregator, coordinator *abort.Coordinator) worker.Report {
	ids := Candidates(items, brokenLinks)
	candidates := make([]candidate, 0, len(ids))
	for _, id := range ids {
		candidates = append(candidates, candidate{id: id, item: items[id].Clone()})
	}

	halted := func() bool { return coordinator.Aborted() || ctx.Err() != nil }
	queue := worker.NewQueue(candidates, service.config.Budget(), agg.Successes, halted)

	size := max(1, min(service.config.Parallelism, len(candidates)))
	pool := worker.NewTaskPool("download-worker", size, func(ctx context.Context, w worker.Worker) (bool, error) {
		c, ok := queue.Claim()
		if !ok {
			return false, nil
		}

		service.downloadOne(ctx, w, c, agg, coordinator)
		return true, nil
	})

	log.Emit(logger.INFO, "Downloading media for %d items using %d workers\n", len(candidates), size)
	if err := pool.Run(ctx); err != nil {
		log.Emit(logger.ERROR, "Failed to start download pool: %v\n", err)
	}

	report := queue.Report()
	log.Emit(logger.DEBUG, "Download pool finished (%s) after dispatching %d items\n", report.StopReason, report.Dispatched)
	return report
}

func (service *Service) downloadOne(ctx context.Context, w worker.Worker, c candidate, agg *aggregate.Aggregator, coordinator *abort.Coordinator) {
	ref, err := c.item.PrimaryReference(service.config.PrimaryKind)
	if err != nil {
		log.Emit(logger.WARNING, "[%s] Item %s has no usable %s reference\n", w.Label(), c.id, service.config.PrimaryKind)
		agg.Submit(aggregate.Outcome{Identifier: c.id, Kind: aggregate.BrokenLink, Reason: aggregate.TruncateReason(err.Error())})
		return
	}

	target := filepath.Join(service.config.OutputDir, SafeFilename(c.id, ResolveExtension(*ref, service.config.FallbackExtension)))
	if info, err := os.Stat(target); err == nil && info.Mode().IsRegular() && info.Size() > 0 {
		log.Emit(logger.INFO, "[%s] Reusing existing media for %s at %s\n", w.Label(), c.id, target)
		agg.Submit(aggregate.Outcome{Identifier: c.id, Kind: aggregate.Reused, LocalPath: target})
		return
	}

	log.Emit(logger.NEW, "[%s] Downloading %s to %s\n", w.Label(), c.id, target)
	if err := service.fetch(ctx, ref.URL, target); err != nil {
		reason := aggregate.TruncateReason(err.Error())
		if errors.Is(err, ErrUnauthorized) {
			if coordinator.Signal(c.id, err) {
				log.Emit(logger.STOP, "[%s] Authorization failure while downloading %s, no further items will be dispatched\n", w.Label(), c.id)
			}

			agg.Submit(aggregate.Outcome{Identifier: c.id, Kind: aggregate.AuthFailure, Reason: reason})
			return
		}

		log.Emit(logger.WARNING, "[%s] Failed to download %s: %s\n", w.Label(), c.id, reason)
		agg.Submit(aggregate.Outcome{Identifier: c.id, Kind: aggregate.BrokenLink, Reason: reason})
		return
	}

	log.Emit(logger.SUCCESS, "[%s] Downloaded %s\n", w.Label(), c.id)
	agg.Submit(aggregate.Outcome{Identifier: c.id, Kind: aggregate.Downloaded, LocalPath: target})
}

// fetch streams the body at the URL provided in to a partial file beside the
// target, renaming it in to place only once the whole body has been written.
// On any failure, the partial file is removed.
func (service *Service) fetch(ctx context.Context, url string, target string) error {
	ctx, cancel := context.WithTimeout(ctx, service.config.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "failed to build media request")
	}

	resp, err := service.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to request media")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return errors.Mark(&StatusError{StatusCode: resp.StatusCode, Status: resp.Status}, ErrUnauthorized)
	} else if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	if err := os.MkdirAll(filepath.Dir(target), os.ModePerm); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}

	partial := target + partialSuffix
	file, err := os.Create(partial)
	if err != nil {
		return errors.Wrap(err, "failed to create partial media file")
	}

	written, copyErr := io.Copy(file, resp.Body)
	closeErr := file.Close()
	switch {
	case copyErr != nil:
		err = errors.Wrap(copyErr, "failed to stream media")
	case closeErr != nil:
		err = errors.Wrap(closeErr, "failed to close partial media file")
	case written == 0:
		err = ErrEmptyBody
	default:
		err = os.Rename(partial, target)
	}

	if err != nil {
		if rmErr := os.Remove(partial); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Emit(logger.WARNING, "Failed to remove partial media file %s: %v\n", partial, rmErr)
		}

		return err
	}

	return nil
}
