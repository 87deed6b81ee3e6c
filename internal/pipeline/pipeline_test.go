package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fruitlens/fruit-classifier/internal/fruit"
	"github.com/fruitlens/fruit-classifier/internal/imagesource"
	"github.com/fruitlens/fruit-classifier/internal/model"
	"github.com/fruitlens/fruit-classifier/internal/session"
	"github.com/fruitlens/fruit-classifier/internal/tally"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubBackend struct {
	scores []float32
	err    error
}

func (s stubBackend) Run([]float32) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return append([]float32(nil), s.scores...), nil
}

func (stubBackend) Close() error { return nil }

var appleScores = []float32{0.91, 0.02, 0.01, 0.01, 0.02, 0.02, 0.01}

func sharedWith(b model.Backend) *model.Shared {
	return model.NewShared(func() (*model.Classifier, error) {
		return model.New(b, model.LayoutNHWC), nil
	})
}

func photo(t *testing.T, size int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func newPipeline(t *testing.T, b model.Backend) (*Pipeline, string) {
	t.Helper()
	dir := t.TempDir()
	return New(imagesource.NewFetcher(time.Second, dir), sharedWith(b), nil), dir
}

func scratchFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestRunAppleTwice(t *testing.T) {
	p, _ := newPipeline(t, stubBackend{scores: appleScores})
	sess := session.New()

	res, err := p.Run(context.Background(), sess, imagesource.Input{Upload: photo(t, 512, color.RGBA{200, 20, 20, 255}), Filename: "apple.jpg"})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, fruit.Apple, res.Prediction.Label)
	assert.Equal(t, "91.00%", res.Prediction.Percent())
	assert.Equal(t, []tally.Entry{{Label: fruit.Apple, Count: 1}}, res.Tally)
	assert.Equal(t, SourceUpload, res.Source)
	assert.Equal(t, 512, res.Width)
	assert.True(t, strings.HasPrefix(res.Thumbnail, "data:image/jpeg;base64,"))

	res, err = p.Run(context.Background(), sess, imagesource.Input{Upload: photo(t, 300, color.RGBA{180, 40, 30, 255})})
	require.NoError(t, err)
	assert.Equal(t, fruit.Apple, res.Prediction.Label)
	assert.Equal(t, []tally.Entry{{Label: fruit.Apple, Count: 2}}, sess.Tally.Snapshot())
}

func TestRunEmptyInput(t *testing.T) {
	p, _ := newPipeline(t, stubBackend{scores: appleScores})
	sess := session.New()
	res, err := p.Run(context.Background(), sess, imagesource.Input{})
	assert.NoError(t, err)
	assert.Nil(t, res)
	assert.Empty(t, sess.Tally.Snapshot())
}

func TestRunURL(t *testing.T) {
	body := photo(t, 256, color.RGBA{250, 220, 50, 255})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	banana := []float32{0.05, 0.8, 0.05, 0.02, 0.03, 0.03, 0.02}
	p, dir := newPipeline(t, stubBackend{scores: banana})
	sess := session.New()

	res, err := p.Run(context.Background(), sess, imagesource.Input{URL: srv.URL + "/banana.jpg"})
	require.NoError(t, err)
	assert.Equal(t, fruit.Banana, res.Prediction.Label)
	assert.Equal(t, SourceURL, res.Source)
	assert.Equal(t, srv.URL+"/banana.jpg", res.URL)
	assert.Equal(t, 0, scratchFiles(t, dir))
	assert.Equal(t, 1, sess.Tally.Count(fruit.Banana))
}

func TestRunURLNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	p, dir := newPipeline(t, stubBackend{scores: appleScores})
	sess := session.New()
	sess.Tally.Record(fruit.Kiwi)

	res, err := p.Run(context.Background(), sess, imagesource.Input{URL: srv.URL + "/gone.jpg"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, imagesource.IsFetchError(err))
	assert.Equal(t, []tally.Entry{{Label: fruit.Kiwi, Count: 1}}, sess.Tally.Snapshot())
	assert.Equal(t, 0, scratchFiles(t, dir))
	assert.Equal(t, "Failed to download image, check the URL.", UserMessage(err))
}

func TestRunUploadWinsOverURL(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p, _ := newPipeline(t, stubBackend{scores: appleScores})
	res, err := p.Run(context.Background(), session.New(), imagesource.Input{
		Upload: photo(t, 64, color.RGBA{255, 0, 0, 255}),
		URL:    srv.URL,
	})
	require.NoError(t, err)
	assert.Equal(t, SourceUpload, res.Source)
	assert.Empty(t, res.URL)
	assert.Zero(t, hits.Load())
}

func TestRunDecodeError(t *testing.T) {
	p, _ := newPipeline(t, stubBackend{scores: appleScores})
	sess := session.New()
	_, err := p.Run(context.Background(), sess, imagesource.Input{Upload: []byte("GIF89a but not really")})
	require.Error(t, err)
	assert.True(t, imagesource.IsDecodeError(err))
	assert.Zero(t, sess.Tally.Total())
}

func TestRunModelLoadError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	p := New(imagesource.NewFetcher(time.Second, t.TempDir()), model.NewShared(func() (*model.Classifier, error) {
		return nil, errors.New("no weights")
	}), nil)
	sess := session.New()

	_, err := p.Run(context.Background(), sess, imagesource.Input{URL: srv.URL})
	require.Error(t, err)
	assert.True(t, model.IsModelLoadError(err))
	assert.Zero(t, hits.Load())
	assert.Zero(t, sess.Tally.Total())
}

func TestRunInferenceError(t *testing.T) {
	p, _ := newPipeline(t, stubBackend{err: errors.New("onnx exploded")})
	sess := session.New()
	_, err := p.Run(context.Background(), sess, imagesource.Input{Upload: photo(t, 32, color.RGBA{0, 255, 0, 255})})
	require.Error(t, err)
	assert.Zero(t, sess.Tally.Total())
}

func TestUserMessage(t *testing.T) {
	assert.Empty(t, UserMessage(nil))
	assert.Contains(t, UserMessage(&imagesource.DecodeError{Source: "upload", Err: errors.New("x")}), "Could not read")
	assert.Contains(t, UserMessage(&model.ModelLoadError{Err: errors.New("x")}), "not available")
	assert.Contains(t, UserMessage(context.Canceled), "cancelled")
	assert.Contains(t, UserMessage(errors.New("other")), "Something went wrong")
}

// stuckScratchFetcher points the fetched image at a non-empty directory, so
// removing it fails.
type stuckScratchFetcher struct {
	inner *imagesource.Fetcher
	dir   string
}

func (f stuckScratchFetcher) Fetch(ctx context.Context, url string) (*imagesource.Image, error) {
	img, err := f.inner.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(img.Path); err != nil {
		return nil, err
	}
	img.Path = f.dir
	return img, nil
}

func TestRunReleaseFailureIsLogged(t *testing.T) {
	body := photo(t, 64, color.RGBA{250, 220, 50, 255})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	stuck := filepath.Join(t.TempDir(), "stuck")
	require.NoError(t, os.MkdirAll(filepath.Join(stuck, "child"), 0o755))

	core, logs := observer.New(zapcore.DebugLevel)
	p := New(
		stuckScratchFetcher{inner: imagesource.NewFetcher(time.Second, t.TempDir()), dir: stuck},
		sharedWith(stubBackend{scores: appleScores}),
		zap.New(core).Sugar(),
	)
	sess := session.New()

	res, err := p.Run(context.Background(), sess, imagesource.Input{URL: srv.URL})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, fruit.Apple, res.Prediction.Label)
	assert.Equal(t, 1, sess.Tally.Count(fruit.Apple))

	warnings := logs.FilterMessage("Failed to delete temporary file").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, zapcore.WarnLevel, warnings[0].Level)
	assert.DirExists(t, stuck)
}

func TestRunScratchDirErrorIsLogged(t *testing.T) {
	body := photo(t, 32, color.RGBA{0, 0, 255, 255})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	p := New(
		imagesource.NewFetcher(time.Second, filepath.Join(t.TempDir(), "missing")),
		sharedWith(stubBackend{scores: appleScores}),
		zap.New(core).Sugar(),
	)
	sess := session.New()

	_, err := p.Run(context.Background(), sess, imagesource.Input{URL: srv.URL})
	require.Error(t, err)
	assert.Zero(t, sess.Tally.Total())
	assert.Equal(t, "Something went wrong while analyzing the image.", UserMessage(err))

	entries := logs.FilterMessage("Failed to prepare scratch file").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
}

func TestRunNonFiniteScoresLeaveTally(t *testing.T) {
	nan := float32(math.NaN())
	p, _ := newPipeline(t, stubBackend{scores: []float32{nan, 0.1, 0.9, 0, 0, 0, 0}})
	sess := session.New()

	res, err := p.Run(context.Background(), sess, imagesource.Input{Upload: photo(t, 32, color.RGBA{255, 0, 0, 255})})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Empty(t, sess.Tally.Snapshot())
}
