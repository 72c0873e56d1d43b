package server

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhotoStore_Save(t *testing.T) {
	store := &photoStore{dir: filepath.Join(t.TempDir(), "nested", "photos")}
	at := time.Date(2024, 5, 1, 12, 30, 45, 0, time.UTC)

	first, err := store.Save([]byte{0xFF, 0xD8, 0xFF, 0xD9}, at)
	require.NoError(t, err)
	second, err := store.Save([]byte{0xFF, 0xD8}, at)
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "同時刻でも名前が衝突しない")
	assert.True(t, strings.HasPrefix(filepath.Base(first), "photo-20240501-123045.000-"))
	assert.Equal(t, ".jpg", filepath.Ext(first))

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xD9}, data)
}

func TestPhotoStore_SaveError(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	store := &photoStore{dir: filepath.Join(file, "photos")}
	_, err := store.Save([]byte{0xFF, 0xD8}, time.Now())
	assert.Error(t, err)
}
