package imagesource

import (
	"errors"
	"fmt"
)

// FetchError reports that a remote image could not be downloaded: the host
// was unreachable, the request timed out or the server answered with a
// non-2xx status.
type FetchError struct {
	URL        string
	StatusCode int // zero when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DecodeError reports bytes that are not a supported image.
type DecodeError struct {
	Source string // "upload" or the URL
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode image from %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
