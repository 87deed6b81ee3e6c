package imagesource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// DefaultTimeout bounds a whole URL download.
const DefaultTimeout = 30 * time.Second

// Fetcher downloads images from URLs and saves them to a scratch directory.
type Fetcher struct {
	HTTPClient *http.Client
	// TempDir is where scratch files go. Empty means os.TempDir().
	TempDir string
}

// NewFetcher creates a fetcher whose downloads give up after timeout.
func NewFetcher(timeout time.Duration, tempDir string) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		HTTPClient: &http.Client{Timeout: timeout},
		TempDir:    tempDir,
	}
}

// Fetch downloads url into a uniquely named scratch file and decodes the image
// from that file. The returned image owns the file; the caller must Release
// it. On a decode failure the file is removed before returning.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.client().Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxUploadBytes+1))
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(data) > MaxUploadBytes {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("image larger than %d bytes", MaxUploadBytes)}
	}

	path, err := f.save(data)
	if err != nil {
		return nil, err
	}

	img, err := decodeFile(path, url)
	if err != nil {
		if rerr := (&Image{Path: path}).Release(); rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		return nil, err
	}
	img.Path = path
	return img, nil
}

func (f *Fetcher) client() *http.Client {
	if f.HTTPClient != nil {
		return f.HTTPClient
	}
	return &http.Client{Timeout: DefaultTimeout}
}

// save writes the downloaded bytes unchanged to a new scratch file.
func (f *Fetcher) save(data []byte) (string, error) {
	file, err := os.CreateTemp(f.TempDir, "fruit-*.img")
	if err != nil {
		return "", fmt.Errorf("create scratch file: %w", err)
	}
	path := file.Name()

	_, err = file.Write(data)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write scratch file: %w", err)
	}
	return path, nil
}
