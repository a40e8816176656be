// Package testutil contains helpers shared by the tests of
// several packages.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/gommon/random"
	"github.com/stretchr/testify/require"
)

// TempDirWithFiles creates a temporary directory containing the files
// provided (keyed by path relative to the directory), returning the
// path of the directory.
func TempDirWithFiles(t *testing.T, files map[string]string) string {
	dirPath := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dirPath, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), os.ModePerm), "failed to create directory for temporary file")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644), "failed to create temporary file in temporary dir")
	}

	return dirPath
}

// WriteJSON marshals the value provided and writes it to the path given.
func WriteJSON(t *testing.T, path string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), os.ModePerm))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

// ReadFile returns the contents of the file, failing the test if it
// cannot be read.
func ReadFile(t *testing.T, path string) []byte {
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

// RandomIdentifier returns a unique content-source identifier.
func RandomIdentifier() string {
	return "https://www.instagram.com/reel/" + random.String(11, random.Alphanumeric) + "/"
}

// RandomIdentifiers returns n unique identifiers.
func RandomIdentifiers(n int) []string {
	ids := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for len(ids) < n {
		id := RandomIdentifier()
		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	return ids
}
