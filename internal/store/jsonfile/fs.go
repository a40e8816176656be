package jsonfile

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// readJSON decodes the JSON file at the path provided in to v. A missing
// file is reported using an error satisfying errors.Is(err, os.ErrNotExist).
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read file %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "parse JSON %s", path)
	}

	return nil
}

// writeJSON encodes v and atomically replaces the file at path with
// the result. The previous contents remain intact if any step fails.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "marshal JSON for %s", path)
	}

	return writeBytes(path, append(data, '\n'))
}

func writeBytes(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create parent for %s", path)
	}

	tmp, err := os.CreateTemp(dir, ".reelgest-tmp-*")
	if err != nil {
		return errors.Wrapf(err, "create temp file for %s", path)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return errors.Wrapf(err, "write temp file for %s", path)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return errors.Wrapf(err, "sync temp file for %s", path)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return errors.Wrapf(err, "close temp file for %s", path)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		cleanup()
		return errors.Wrapf(err, "chmod temp file for %s", path)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return errors.Wrapf(err, "atomic rename for %s", path)
	}

	return nil
}
