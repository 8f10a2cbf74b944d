package harness

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscover_Directory(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yml", "notes.txt", "C.YAML"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.yaml"), 0755))

	files, err := Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "C.YAML"),
		filepath.Join(dir, "a.yml"),
		filepath.Join(dir, "b.yaml"),
	}, files)
}

func TestDiscover_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "one.yaml")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	files, err := Discover(path)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, files)
}

func TestDiscover_Missing(t *testing.T) {
	_, err := Discover("/nonexistent/scenarios")
	require.Error(t, err)

	var notFound *ScenarioNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "/nonexistent/scenarios", notFound.Path)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestDiscover_EmptyDirectory(t *testing.T) {
	files, err := Discover(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, files)
}
