// Package jsonfile implements the store using plain JSON files on the
// local file system. Every save is a whole-file rewrite of a freshly
// loaded (and then updated) structure, performed atomically so that a
// crash mid-write never corrupts the previous snapshot.
package jsonfile

import (
	"context"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/hbomb79/Reelgest/internal/media"
	"github.com/hbomb79/Reelgest/internal/store"
	"github.com/hbomb79/Reelgest/pkg/logger"
)

var log = logger.Get("JSONStore")

type (
	Config struct {
		ItemsPath       string `yaml:"items_path" env:"STORE_ITEMS_PATH" env-default:"Data/reelsData.json"`
		HistoryPath     string `yaml:"history_path" env:"STORE_HISTORY_PATH" env-default:"upload_history.json"`
		FetchErrorsPath string `yaml:"fetch_errors_path" env:"STORE_FETCH_ERRORS_PATH" env-default:"Data/fetchErrors.json"`
		BrokenLinksPath string `yaml:"broken_links_path" env:"STORE_BROKEN_LINKS_PATH" env-default:"Data/brokenLinks.json"`
	}

	fileStore struct {
		// Guards the read-merge-write cycle of the error logs
		sync.Mutex
		config Config
	}
)

func New(config Config) *fileStore {
	return &fileStore{config: config}
}

func (s *fileStore) LoadItems(_ context.Context) (map[string]*media.Item, error) {
	items := loadStore(s.config.ItemsPath, make(map[string]*media.Item))
	if items == nil {
		return make(map[string]*media.Item), nil
	}

	// A 'null' entry in the file decodes to a nil item
	for id, item := range items {
		if item == nil {
			delete(items, id)
		}
	}

	return items, nil
}

func (s *fileStore) SaveItems(_ context.Context, items map[string]*media.Item) error {
	return writeJSON(s.config.ItemsPath, store.WithoutErrored(items))
}

func (s *fileStore) LoadHistory(_ context.Context) (map[string]any, error) {
	history := loadStore(s.config.HistoryPath, make(map[string]any))
	if history == nil {
		return make(map[string]any), nil
	}

	return history, nil
}

func (s *fileStore) LoadFetchErrors(_ context.Context) ([]store.Record, error) {
	return loadRecords(s.config.FetchErrorsPath), nil
}

func (s *fileStore) LoadBrokenLinks(_ context.Context) ([]store.Record, error) {
	return loadRecords(s.config.BrokenLinksPath), nil
}

func (s *fileStore) AppendFetchErrors(_ context.Context, records []store.Record) error {
	return s.appendRecords(s.config.FetchErrorsPath, records)
}

func (s *fileStore) AppendBrokenLinks(_ context.Context, records []store.Record) error {
	return s.appendRecords(s.config.BrokenLinksPath, records)
}

func (s *fileStore) Close() error { return nil }

// appendRecords loads the current contents of the log at the path provided,
// merges the new records in (dropping those for identifiers already present)
// and rewrites the file. If the merge adds nothing, the file is left untouched.
func (s *fileStore) appendRecords(path string, records []store.Record) error {
	if len(records) == 0 {
		return nil
	}

	s.Lock()
	defer s.Unlock()

	existing := loadRecords(path)
	merged := store.MergeRecords(existing, records)
	if len(merged) == len(existing) {
		log.Emit(logger.DEBUG, "No new records for %s, skipping write\n", path)
		return nil
	}

	return writeJSON(path, merged)
}

func loadRecords(path string) []store.Record {
	records := loadStore(path, make([]store.Record, 0))
	if records == nil {
		return make([]store.Record, 0)
	}

	return records
}

// loadStore decodes the JSON file at path. If the file does not exist, or
// cannot be parsed, the empty value provided is returned instead. An
// unparseable file is reported as a warning, it never fails the caller.
func loadStore[T any](path string, empty T) T {
	var target T
	if err := readJSON(path, &target); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Emit(logger.DEBUG, "Store %s does not exist, starting fresh\n", path)
		} else {
			log.Emit(logger.WARNING, "Could not load store %s (%v), treating it as empty\n", path, err)
		}

		return empty
	}

	return target
}
