// Package imagesource turns an upload or a URL into a decoded image.
package imagesource

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// MaxUploadBytes caps uploaded and downloaded image bodies.
const MaxUploadBytes = 10 << 20

const sourceUpload = "upload"

// Input is what the user handed us. Only one path runs; an upload wins over
// a URL when both are present.
type Input struct {
	Upload   []byte
	Filename string
	URL      string
}

// Empty reports that there is nothing to classify yet.
func (in Input) Empty() bool {
	return len(in.Upload) == 0 && in.URL == ""
}

// Image is a decoded image plus, for URL sources, the scratch file it was
// saved to. Callers must Release it once they are done.
type Image struct {
	Image  image.Image
	Format string
	Width  int
	Height int
	Path   string
	Source string
}

// Release deletes the backing scratch file. It is safe to call more than once
// and on upload images, which have no file.
func (img *Image) Release() error {
	if img == nil || img.Path == "" {
		return nil
	}
	path := img.Path
	img.Path = ""
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove scratch file %s: %w", path, err)
	}
	return nil
}

// FromUpload decodes uploaded bytes. The content type is not checked beyond
// whether a registered decoder accepts the data.
func FromUpload(data []byte) (*Image, error) {
	return decode(data, sourceUpload)
}

func decode(data []byte, source string) (*Image, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Source: source, Err: errors.New("empty body")}
	}
	format, err := checkConfig(bytes.NewReader(data), source)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &DecodeError{Source: source, Err: err}
	}
	return newImage(img, format, source), nil
}

// decodeFile decodes the image stored at path.
func decodeFile(path, source string) (*Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Source: source, Err: err}
	}
	format, err := checkConfig(file, source)
	file.Close()
	if err != nil {
		return nil, err
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, &DecodeError{Source: source, Err: err}
	}
	return newImage(img, format, source), nil
}

// checkConfig reads only the header and rejects unknown formats and empty
// dimensions before a full decode.
func checkConfig(r io.Reader, source string) (string, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return "", &DecodeError{Source: source, Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return "", &DecodeError{Source: source, Err: fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height)}
	}
	return format, nil
}

func newImage(img image.Image, format, source string) *Image {
	b := img.Bounds()
	return &Image{
		Image:  img,
		Format: format,
		Width:  b.Dx(),
		Height: b.Dy(),
		Source: source,
	}
}
