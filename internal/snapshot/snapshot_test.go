package snapshot_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bookwatch/crawler/internal/snapshot"
)

func TestNewCreatesMissingDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "snapshots")
	store, err := snapshot.New(snapshot.Config{BaseDir: dir})
	require.NoError(t, err)
	require.NotNil(t, store)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestNewRejectsEmptyDir(t *testing.T) {
	t.Parallel()

	_, err := snapshot.New(snapshot.Config{})
	require.Error(t, err)
}

func TestNewRejectsFileAsBaseDir(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	_, err := snapshot.New(snapshot.Config{BaseDir: file})
	require.Error(t, err)
}

func TestPutObjectWritesAndReturnsURI(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := snapshot.New(snapshot.Config{BaseDir: dir})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(),
		"sess-1/abcd1234.html", "text/html", []byte("<html>page</html>"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "file://"))

	data, err := os.ReadFile(filepath.Join(dir, "sess-1", "abcd1234.html"))
	require.NoError(t, err)
	require.Equal(t, "<html>page</html>", string(data))
}

func TestPutObjectRejectsTraversal(t *testing.T) {
	t.Parallel()

	store, err := snapshot.New(snapshot.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../escape.html", "text/html", []byte("x"))
	require.Error(t, err)

	_, err = store.PutObject(context.Background(), "  ", "text/html", []byte("x"))
	require.Error(t, err)
}
