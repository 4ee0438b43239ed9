package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ncaa-match-pipeline/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "archive")
		store, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		assert.NotNil(t, store)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsAFile", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.EqualError(t, err, "base directory path is not a directory")
	})
}

func TestPutObject(t *testing.T) {
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	uri, err := store.PutObject(ctx, "female/d1/2024/09/01/scoreboard.json", "application/json", strings.NewReader(`{"games":[]}`))
	require.NoError(t, err)
	want := filepath.Join(dir, "female/d1/2024/09/01/scoreboard.json")
	assert.Equal(t, "file://"+want, uri)
	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, `{"games":[]}`, string(data))

	_, err = store.PutObject(ctx, "../escape.json", "", strings.NewReader("x"))
	assert.EqualError(t, err, "path traversal detected")

	_, err = store.PutObject(ctx, " ", "", strings.NewReader("x"))
	assert.EqualError(t, err, "path is required")
}
