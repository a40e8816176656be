// Package memory provides an in-process implementation of the store, used
// by tests to exercise the pipeline without touching the file system.
package memory

import (
	"context"
	"sync"

	"github.com/hbomb79/Reelgest/internal/media"
	"github.com/hbomb79/Reelgest/internal/store"
)

type Store struct {
	sync.Mutex
	Items       map[string]*media.Item
	History     map[string]any
	FetchErrors []store.Record
	BrokenLinks []store.Record

	// Writes counts the number of mutating calls which changed state.
	Writes int
}

func New() *Store {
	return &Store{
		Items:       make(map[string]*media.Item),
		History:     make(map[string]any),
		FetchErrors: make([]store.Record, 0),
		BrokenLinks: make([]store.Record, 0),
	}
}

func (s *Store) LoadItems(_ context.Context) (map[string]*media.Item, error) {
	s.Lock()
	defer s.Unlock()

	out := make(map[string]*media.Item, len(s.Items))
	for id, item := range s.Items {
		out[id] = item.Clone()
	}

	return out, nil
}

func (s *Store) SaveItems(_ context.Context, items map[string]*media.Item) error {
	s.Lock()
	defer s.Unlock()

	s.Items = make(map[string]*media.Item, len(items))
	for id, item := range store.WithoutErrored(items) {
		s.Items[id] = item.Clone()
	}
	s.Writes++

	return nil
}

func (s *Store) LoadHistory(_ context.Context) (map[string]any, error) {
	s.Lock()
	defer s.Unlock()

	out := make(map[string]any, len(s.History))
	for k, v := range s.History {
		out[k] = v
	}

	return out, nil
}

func (s *Store) LoadFetchErrors(_ context.Context) ([]store.Record, error) {
	s.Lock()
	defer s.Unlock()

	return append([]store.Record{}, s.FetchErrors...), nil
}

func (s *Store) LoadBrokenLinks(_ context.Context) ([]store.Record, error) {
	s.Lock()
	defer s.Unlock()

	return append([]store.Record{}, s.BrokenLinks...), nil
}

func (s *Store) AppendFetchErrors(_ context.Context, records []store.Record) error {
	s.Lock()
	defer s.Unlock()

	s.FetchErrors = s.merge(s.FetchErrors, records)
	return nil
}

func (s *Store) AppendBrokenLinks(_ context.Context, records []store.Record) error {
	s.Lock()
	defer s.Unlock()

	s.BrokenLinks = s.merge(s.BrokenLinks, records)
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) merge(existing []store.Record, incoming []store.Record) []store.Record {
	merged := store.MergeRecords(existing, incoming)
	if len(merged) != len(existing) {
		s.Writes++
	}

	return merged
}
