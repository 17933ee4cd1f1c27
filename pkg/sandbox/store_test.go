package sandbox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/ncds-go/internal/models"
)

func TestStoreSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	first, err := NewStore(dir)
	require.NoError(t, err)
	idA, err := first.Save("/a", strings.NewReader("alpha"))
	require.NoError(t, err)
	idB, err := first.Save("/b", strings.NewReader("beta"))
	require.NoError(t, err)

	second, err := NewStore(dir)
	require.NoError(t, err)
	assert.Equal(t, []models.FileEntry{
		{Path: "/a", ID: idA},
		{Path: "/b", ID: idB},
	}, second.Entries())

	idC, err := second.Save("/c", strings.NewReader("gamma"))
	require.NoError(t, err)
	assert.Greater(t, idC, idB)

	payload, ok := second.PayloadPath(idA)
	require.True(t, ok)
	data, err := os.ReadFile(payload)
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))
}

func TestStoreRestartAfterDelete(t *testing.T) {
	dir := t.TempDir()

	first, err := NewStore(dir)
	require.NoError(t, err)
	_, err = first.Save("/a", strings.NewReader("alpha"))
	require.NoError(t, err)
	idB, err := first.Save("/b", strings.NewReader("beta"))
	require.NoError(t, err)
	_, found, err := first.Delete(idB)
	require.NoError(t, err)
	require.True(t, found)

	second, err := NewStore(dir)
	require.NoError(t, err)
	assert.Len(t, second.Entries(), 1)

	idC, err := second.Save("/c", strings.NewReader("gamma"))
	require.NoError(t, err)
	assert.Greater(t, idC, idB)
}

func TestStoreSkipsIDsOfUnindexedPayloads(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "9"), []byte("orphan"), 0644))

	s, err := NewStore(dir)
	require.NoError(t, err)
	assert.Empty(t, s.Entries())

	id, err := s.Save("/new", strings.NewReader("fresh"))
	require.NoError(t, err)
	assert.Equal(t, int64(10), id)

	data, err := os.ReadFile(filepath.Join(dir, "9"))
	require.NoError(t, err)
	assert.Equal(t, "orphan", string(data))
}
