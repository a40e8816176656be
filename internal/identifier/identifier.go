// Package identifier handles the list of content-source identifiers fed
// in to the pipeline: reading and normalising the list, ordering it, and
// removing identifiers which previous runs have already dealt with.
package identifier

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/hbomb79/Reelgest/internal/media"
	"github.com/hbomb79/Reelgest/internal/store"
	"github.com/hbomb79/Reelgest/pkg/logger"
)

var (
	log = logger.Get("Identifiers")

	ErrInputUnavailable = errors.New("identifier list unavailable")
)

// Set is a set of identifiers.
type Set map[string]struct{}

func (s Set) Add(id string) { s[id] = struct{}{} }

func (s Set) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// ReadList reads the identifier list at the path provided. The file may
// either be a JSON array of strings, or plain text containing one identifier
// per line (blank lines and lines beginning with '#' are ignored).
//
// Identifiers are trimmed, and duplicates are removed (the first occurrence
// is kept). Any failure to read or parse the file is returned as an error
// wrapping ErrInputUnavailable.
func ReadList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to read identifier list %s", path), ErrInputUnavailable)
	}

	var raw []string
	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("[")) {
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "failed to parse identifier list %s", path), ErrInputUnavailable)
		}
	} else {
		scanner := bufio.NewScanner(bytes.NewReader(data))
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if strings.HasPrefix(line, "#") {
				continue
			}

			raw = append(raw, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "failed to scan identifier list %s", path), ErrInputUnavailable)
		}
	}

	ids, duplicates := Normalize(raw)
	if duplicates > 0 {
		log.Emit(logger.WARNING, "Removed %d duplicate identifiers from %s\n", duplicates, path)
	}

	log.Emit(logger.INFO, "Loaded %d unique identifiers from %s\n", len(ids), path)
	return ids, nil
}

// Normalize trims each identifier, drops empty ones, and removes
// duplicates while preserving the order of first occurrence. The number
// of duplicates removed is returned alongside the result.
func Normalize(raw []string) ([]string, int) {
	seen := make(Set, len(raw))
	out := make([]string, 0, len(raw))
	duplicates := 0
	for _, id := range raw {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if seen.Contains(id) {
			duplicates++
			continue
		}

		seen.Add(id)
		out = append(out, id)
	}

	return out, duplicates
}

// Order returns the identifiers in processing order. In ascending mode the
// order of the input is kept, otherwise (the default) the input is reversed
// so that the most recently appended identifiers are processed first.
func Order(ids []string, ascending bool) []string {
	out := slices.Clone(ids)
	if !ascending {
		slices.Reverse(out)
	}

	return out
}

// ComputeSkipSet returns the union of every identifier which must not be
// processed again: those already in the canonical store, those
// in the cross-run history, and those with a permanent fetch error.
func ComputeSkipSet(items map[string]*media.Item, history map[string]any, fetchErrors []store.Record) Set {
	skip := make(Set, len(items)+len(history)+len(fetchErrors))
	for id := range items {
		skip.Add(id)
	}
	for id := range history {
		skip.Add(id)
	}
	for _, rec := range fetchErrors {
		skip.Add(rec.Identifier)
	}

	return skip
}

// FilterNew returns the identifiers which are not present in the skip set,
// preserving their relative order.
func FilterNew(ids []string, skip Set) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !skip.Contains(id) {
			out = append(out, id)
		}
	}

	return out
}
