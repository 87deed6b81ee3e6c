package model

import (
	"errors"
	"fmt"
)

// ModelLoadError means the classifier could not be brought up. It is fatal
// for the classification feature and is never retried.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("load model: %v", e.Err)
	}
	return fmt.Sprintf("load model %s: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

func IsModelLoadError(err error) bool {
	var le *ModelLoadError
	return errors.As(err, &le)
}
