// Package pipeline runs one classification: acquire the image, build the
// tensor, classify it and update the session tally.
package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fruitlens/fruit-classifier/internal/imagesource"
	"github.com/fruitlens/fruit-classifier/internal/model"
	"github.com/fruitlens/fruit-classifier/internal/preprocess"
	"github.com/fruitlens/fruit-classifier/internal/session"
	"github.com/fruitlens/fruit-classifier/internal/tally"
	"go.uber.org/zap"
)

const (
	SourceUpload = "upload"
	SourceURL    = "url"

	// DefaultThumbnailSize bounds the longer side of the preview image.
	DefaultThumbnailSize = 512
)

// Result is everything the page needs after a successful run.
type Result struct {
	Prediction   model.Prediction   `json:"prediction"`
	Distribution model.Distribution `json:"distribution"`
	Tally        []tally.Entry      `json:"tally"`
	Source       string             `json:"source"`
	URL          string             `json:"url,omitempty"`
	Filename     string             `json:"filename,omitempty"`
	Width        int                `json:"width"`
	Height       int                `json:"height"`
	Thumbnail    string             `json:"-"`
	Elapsed      time.Duration      `json:"elapsed"`
}

// ImageFetcher downloads an image from a URL into a scratch file owned by
// the returned image.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (*imagesource.Image, error)
}

type Pipeline struct {
	Fetcher       ImageFetcher
	Model         *model.Shared
	Logger        *zap.SugaredLogger
	ThumbnailSize int
}

func New(fetcher ImageFetcher, shared *model.Shared, logger *zap.SugaredLogger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Pipeline{
		Fetcher:       fetcher,
		Model:         shared,
		Logger:        logger,
		ThumbnailSize: DefaultThumbnailSize,
	}
}

// Run classifies in and records the prediction in sess. An empty input
// returns (nil, nil) and leaves the tally alone. Every failure is returned
// as is; nothing is retried and the tally only changes on success.
func (p *Pipeline) Run(ctx context.Context, sess *session.Session, in imagesource.Input) (*Result, error) {
	if in.Empty() {
		return nil, nil
	}
	start := time.Now()

	classifier, err := p.Model.Get()
	if err != nil {
		return nil, err
	}

	img, source, err := p.acquire(ctx, in)
	if err != nil {
		if imagesource.IsFetchError(err) || imagesource.IsDecodeError(err) {
			p.Logger.Warnw("Failed to acquire image", "source", source, "url", in.URL, "error", err)
		} else {
			p.Logger.Errorw("Failed to prepare scratch file", "source", source, "url", in.URL, "error", err)
		}
		return nil, err
	}
	defer func() {
		if err := img.Release(); err != nil {
			p.Logger.Warnw("Failed to delete temporary file", "error", err)
		}
	}()

	tensor, err := preprocess.ToTensor(img.Image)
	if err != nil {
		return nil, err
	}

	pred, dist, err := classifier.Classify(tensor)
	if err != nil {
		p.Logger.Errorw("Prediction error", "error", err)
		return nil, err
	}

	count := sess.Tally.Record(pred.Label)

	res := &Result{
		Prediction:   pred,
		Distribution: dist,
		Tally:        sess.Tally.Snapshot(),
		Source:       source,
		Filename:     in.Filename,
		Width:        img.Width,
		Height:       img.Height,
		Thumbnail:    p.thumbnail(img),
		Elapsed:      time.Since(start),
	}
	if source == SourceURL {
		res.URL = in.URL
	}

	p.Logger.Infow("Classified image",
		"session", sess.ID,
		"source", source,
		"format", img.Format,
		"width", img.Width,
		"height", img.Height,
		"label", pred.Label.String(),
		"confidence", pred.Percent(),
		"count", count,
		"elapsed", res.Elapsed,
	)
	return res, nil
}

func (p *Pipeline) acquire(ctx context.Context, in imagesource.Input) (*imagesource.Image, string, error) {
	if len(in.Upload) > 0 {
		img, err := imagesource.FromUpload(in.Upload)
		return img, SourceUpload, err
	}
	fetcher := p.Fetcher
	if fetcher == nil {
		fetcher = imagesource.NewFetcher(imagesource.DefaultTimeout, "")
	}
	img, err := fetcher.Fetch(ctx, in.URL)
	return img, SourceURL, err
}

// thumbnail returns a JPEG data URI of the image scaled to fit the preview
// box, or "" if encoding fails.
func (p *Pipeline) thumbnail(img *imagesource.Image) string {
	size := p.ThumbnailSize
	if size <= 0 {
		size = DefaultThumbnailSize
	}
	preview := img.Image
	if img.Width > size || img.Height > size {
		preview = imaging.Fit(img.Image, size, size, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, preview, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		p.Logger.Warnw("Failed to encode preview", "error", err)
		return ""
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

// UserMessage turns a pipeline error into the text shown on the page.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case imagesource.IsFetchError(err):
		return "Failed to download image, check the URL."
	case imagesource.IsDecodeError(err):
		return "Could not read the image. Supported formats: JPEG, PNG, WebP."
	case model.IsModelLoadError(err):
		return "The classifier is not available right now."
	case errors.Is(err, context.Canceled):
		return "The request was cancelled."
	default:
		return "Something went wrong while analyzing the image."
	}
}
