package model

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/fruitlens/fruit-classifier/internal/fruit"
	"github.com/fruitlens/fruit-classifier/internal/preprocess"
)

// DefaultMetadata describes a Keras-style export: NHWC float input named
// "input" and a (1, 7) softmax output named "output".
func DefaultMetadata() Metadata {
	return Metadata{
		InputName:   "input",
		OutputName:  "output",
		InputShape:  []int64{1, preprocess.Size, preprocess.Size, preprocess.Channels},
		OutputShape: []int64{1, fruit.Count},
		Layout:      LayoutNHWC,
		Classes:     fruit.Names(),
		ImageSize:   preprocess.Size,
	}
}

// LoadMetadata reads the JSON sidecar at path. Missing fields fall back to
// DefaultMetadata. An empty path returns the defaults.
func LoadMetadata(path string) (Metadata, error) {
	meta := DefaultMetadata()
	if path == "" {
		return meta, nil
	}

	metaFile, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var loaded Metadata
	if err := json.Unmarshal(metaFile, &loaded); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}

	if loaded.InputName != "" {
		meta.InputName = loaded.InputName
	}
	if loaded.OutputName != "" {
		meta.OutputName = loaded.OutputName
	}
	if loaded.Layout != "" {
		meta.Layout = loaded.Layout
		if loaded.InputShape == nil && loaded.Layout == LayoutNCHW {
			meta.InputShape = []int64{1, preprocess.Channels, preprocess.Size, preprocess.Size}
		}
	}
	if loaded.InputShape != nil {
		meta.InputShape = loaded.InputShape
	}
	if loaded.OutputShape != nil {
		meta.OutputShape = loaded.OutputShape
	}
	if loaded.Classes != nil {
		meta.Classes = loaded.Classes
	}
	if loaded.ImageSize != 0 {
		meta.ImageSize = loaded.ImageSize
	}

	if err := meta.Validate(); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

// Validate checks that the model is compatible with the fixed label set and
// the 224x224x3 tensor.
func (m Metadata) Validate() error {
	if !slices.Equal(m.Classes, fruit.Names()) {
		return fmt.Errorf("model classes %v do not match %v", m.Classes, fruit.Names())
	}
	if m.ImageSize != preprocess.Size {
		return fmt.Errorf("model image size %d, want %d", m.ImageSize, preprocess.Size)
	}

	var want []int64
	switch m.Layout {
	case LayoutNHWC:
		want = []int64{1, preprocess.Size, preprocess.Size, preprocess.Channels}
	case LayoutNCHW:
		want = []int64{1, preprocess.Channels, preprocess.Size, preprocess.Size}
	default:
		return fmt.Errorf("unknown input layout %q", m.Layout)
	}
	if !slices.Equal(m.InputShape, want) {
		return fmt.Errorf("input shape %v does not match %s layout %v", m.InputShape, m.Layout, want)
	}

	size := int64(1)
	for _, d := range m.OutputShape {
		size *= d
	}
	if len(m.OutputShape) == 0 || size != fruit.Count {
		return fmt.Errorf("output shape %v must hold %d scores", m.OutputShape, fruit.Count)
	}
	return nil
}
