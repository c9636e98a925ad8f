package thumbnails

import (
	"archive/zip"
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/shishobooks/shisho/pkg/mediafile/cbz"
)

func writeTestCBZ(t *testing.T, path string) {
	t.Helper()

	var imgBuf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 40, 60))
	for y := 0; y < 60; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 6), G: uint8(y * 4), B: 100, A: 255})
		}
	}
	require.NoError(t, jpeg.Encode(&imgBuf, img, nil))

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("001.jpg")
	require.NoError(t, err)
	_, err = w.Write(imgBuf.Bytes())
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestStore_EnsureGeneratesAndCaches(t *testing.T) {
	dir := t.TempDir()
	bookPath := filepath.Join(dir, "book.cbz")
	writeTestCBZ(t, bookPath)

	store := NewStore(filepath.Join(dir, "thumbnails"))
	opts := Options{Width: 20, Height: 30, Format: "jpg", Quality: 80}
	src := Source{MediaID: "media-1", Path: bookPath, Ext: ".cbz"}

	path, err := store.Ensure(context.Background(), src, opts)
	require.NoError(t, err)
	assert.FileExists(t, path)

	contentType, data, err := store.Get("media-1")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", contentType)
	assert.NotEmpty(t, data)
}

func TestStore_EnsureIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	bookPath := filepath.Join(dir, "book.cbz")
	writeTestCBZ(t, bookPath)

	store := NewStore(filepath.Join(dir, "thumbnails"))
	opts := Options{Width: 20, Height: 30, Format: "png", Quality: 80}
	src := Source{MediaID: "media-1", Path: bookPath, Ext: ".cbz"}

	first, err := store.Ensure(context.Background(), src, opts)
	require.NoError(t, err)
	info1, err := os.Stat(first)
	require.NoError(t, err)

	second, err := store.Ensure(context.Background(), src, opts)
	require.NoError(t, err)
	info2, err := os.Stat(second)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, info1.ModTime(), info2.ModTime(), "a second Ensure must not regenerate an existing thumbnail")
}

func TestStore_EnsureSingleFlightsConcurrentCallsForSameID(t *testing.T) {
	dir := t.TempDir()
	bookPath := filepath.Join(dir, "book.cbz")
	writeTestCBZ(t, bookPath)

	store := NewStore(filepath.Join(dir, "thumbnails"))
	opts := Options{Width: 20, Height: 30, Format: "jpg", Quality: 80}
	src := Source{MediaID: "media-1", Path: bookPath, Ext: ".cbz"}

	var wg sync.WaitGroup
	var successes int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Ensure(context.Background(), src, opts)
			if err == nil {
				atomic.AddInt32(&successes, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 20, successes)
	assert.Empty(t, store.inflight, "inflight entries must be cleaned up after completion")
}

func TestStore_RemoveDeletesWhicheverExtensionExists(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	_, err := store.Put("media-1", "webp", []byte("fake-webp-bytes"))
	require.NoError(t, err)

	count, err := store.Remove([]string{"media-1", "media-2"})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, _, err = store.Get("media-1")
	assert.Error(t, err)
}

func TestOptions_ValidateRejectsOutOfRangeQuality(t *testing.T) {
	opts := Options{Width: 1, Height: 1, Format: "jpg", Quality: 101}
	assert.Error(t, opts.Validate())

	opts.Quality = -1
	assert.Error(t, opts.Validate())

	opts.Quality = 80
	assert.NoError(t, opts.Validate())
}

func TestOptions_ValidateRejectsUnknownFormat(t *testing.T) {
	opts := Options{Width: 1, Height: 1, Format: "bmp", Quality: 80}
	assert.Error(t, opts.Validate())
}
