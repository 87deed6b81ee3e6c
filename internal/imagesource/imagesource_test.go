package imagesource

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func dirEntries(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestInputEmpty(t *testing.T) {
	assert.True(t, Input{}.Empty())
	assert.False(t, Input{URL: "http://example.com/a.jpg"}.Empty())
	assert.False(t, Input{Upload: []byte{1}}.Empty())
}

func TestFromUpload(t *testing.T) {
	img, err := FromUpload(pngBytes(t, solid(40, 30, color.RGBA{255, 0, 0, 255})))
	require.NoError(t, err)
	assert.Equal(t, "png", img.Format)
	assert.Equal(t, 40, img.Width)
	assert.Equal(t, 30, img.Height)
	assert.Empty(t, img.Path)
	assert.NoError(t, img.Release())
}

func TestFromUploadDecodeError(t *testing.T) {
	for name, data := range map[string][]byte{
		"garbage": []byte("definitely not an image"),
		"empty":   nil,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := FromUpload(data)
			require.Error(t, err)
			assert.True(t, IsDecodeError(err))
			assert.False(t, IsFetchError(err))
		})
	}
}

func TestFetchSuccess(t *testing.T) {
	body := jpegBytes(t, solid(64, 48, color.RGBA{0, 200, 0, 255}))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(body)
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := NewFetcher(time.Second, dir)
	img, err := f.Fetch(context.Background(), srv.URL+"/apple.jpg")
	require.NoError(t, err)
	assert.Equal(t, "jpeg", img.Format)
	assert.Equal(t, 64, img.Width)
	require.NotEmpty(t, img.Path)
	assert.FileExists(t, img.Path)
	assert.Equal(t, 1, dirEntries(t, dir))

	require.NoError(t, img.Release())
	assert.Equal(t, 0, dirEntries(t, dir))
	assert.NoError(t, img.Release())
}

func TestFetchKeepsDownloadedBytes(t *testing.T) {
	body := pngBytes(t, solid(20, 10, color.RGBA{10, 20, 200, 255}))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	img, err := NewFetcher(time.Second, t.TempDir()).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	defer img.Release()

	saved, err := os.ReadFile(img.Path)
	require.NoError(t, err)
	assert.Equal(t, body, saved)
	assert.Equal(t, "png", img.Format)
	assert.Equal(t, 20, img.Width)
	assert.Equal(t, 10, img.Height)
}

func TestDecodeFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good")
	require.NoError(t, os.WriteFile(good, jpegBytes(t, solid(16, 8, color.White)), 0o600))
	img, err := decodeFile(good, "test")
	require.NoError(t, err)
	assert.Equal(t, "jpeg", img.Format)
	assert.Equal(t, 16, img.Width)

	bad := filepath.Join(dir, "bad")
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0o600))
	_, err = decodeFile(bad, "test")
	assert.True(t, IsDecodeError(err))

	_, err = decodeFile(filepath.Join(dir, "missing"), "test")
	assert.True(t, IsDecodeError(err))
}

func TestFetchScratchDirMissing(t *testing.T) {
	body := pngBytes(t, solid(8, 8, color.White))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	_, err := NewFetcher(time.Second, filepath.Join(t.TempDir(), "missing")).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.False(t, IsFetchError(err))
	assert.False(t, IsDecodeError(err))
}

func TestFetchUniqueScratchFiles(t *testing.T) {
	body := pngBytes(t, solid(8, 8, color.White))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	f := NewFetcher(time.Second, t.TempDir())
	a, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	defer a.Release()
	b, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	defer b.Release()
	assert.NotEqual(t, a.Path, b.Path)
}

func TestFetchNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dir := t.TempDir()
	img, err := NewFetcher(time.Second, dir).Fetch(context.Background(), srv.URL+"/missing.jpg")
	require.Error(t, err)
	assert.Nil(t, img)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	assert.Equal(t, 0, dirEntries(t, dir))
}

func TestFetchDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not an image</html>"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	_, err := NewFetcher(time.Second, dir).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, IsDecodeError(err))
	assert.Equal(t, 0, dirEntries(t, dir))
}

func TestFetchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewFetcher(time.Second, t.TempDir()).Fetch(context.Background(), url)
	require.Error(t, err)
	assert.True(t, IsFetchError(err))
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := NewFetcher(50*time.Millisecond, t.TempDir()).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Zero(t, fe.StatusCode)
}

func TestFetchBadURL(t *testing.T) {
	_, err := NewFetcher(0, t.TempDir()).Fetch(context.Background(), "://nope")
	require.Error(t, err)
	assert.True(t, IsFetchError(err))
}
