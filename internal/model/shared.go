package model

import (
	"sync"
	"sync/atomic"
)

// LoadFunc builds the classifier. It runs at most once per Shared.
type LoadFunc func() (*Classifier, error)

// Shared is the process-wide classifier. The first Get loads it; concurrent
// callers block until that load finishes and then all see the same result.
// A failed load is remembered and returned by every later Get.
type Shared struct {
	get    func() (*Classifier, error)
	loaded atomic.Pointer[Classifier]
}

func NewShared(load LoadFunc) *Shared {
	s := &Shared{}
	s.get = sync.OnceValues(func() (*Classifier, error) {
		c, err := load()
		if err != nil {
			if !IsModelLoadError(err) {
				err = &ModelLoadError{Err: err}
			}
			return nil, err
		}
		s.loaded.Store(c)
		return c, nil
	})
	return s
}

// Get returns the loaded classifier or the *ModelLoadError from the one and
// only load attempt.
func (s *Shared) Get() (*Classifier, error) {
	return s.get()
}

// Loaded reports whether a successful load has happened, without triggering one.
func (s *Shared) Loaded() bool {
	return s.loaded.Load() != nil
}

// Close releases the classifier if it was loaded.
func (s *Shared) Close() error {
	c := s.loaded.Swap(nil)
	if c == nil {
		return nil
	}
	return c.Close()
}
