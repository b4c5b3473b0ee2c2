package score

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	total, err := s.Total()
	require.NoError(t, err)
	assert.Zero(t, total)

	total, err = s.Add(3)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	total, err = s.Add(0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	_, err = s.Add(-1)
	assert.True(t, errors.Is(err, ErrNegativeIncrement))
}

func TestFileStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "score.yaml")

	s := NewFileStore(path)
	total, err := s.Total()
	require.NoError(t, err)
	assert.Zero(t, total, "missing file reads as zero")

	_, err = s.Add(2)
	require.NoError(t, err)
	total, err = s.Add(3)
	require.NoError(t, err)
	assert.Equal(t, 5, total)

	reopened := NewFileStore(path)
	total, err = reopened.Total()
	require.NoError(t, err)
	assert.Equal(t, 5, total)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "stars: 5\n", string(data))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileStoreKeepsOtherCounters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "score.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stars: 1\nstreak: 4\n"), 0o644))

	total, err := NewFileStore(path).Add(1)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "streak: 4")
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "score.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stars: [oops"), 0o644))

	_, err := NewFileStore(path).Total()
	assert.Error(t, err)

	_, err = NewFileStore(path).Add(-2)
	assert.True(t, errors.Is(err, ErrNegativeIncrement))
}
