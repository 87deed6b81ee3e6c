// Package model wraps the pretrained fruit network: it loads it once,
// scores tensors and turns scores into a prediction.
package model

import (
	"fmt"
	"math"

	"github.com/fruitlens/fruit-classifier/internal/fruit"
	"github.com/fruitlens/fruit-classifier/internal/preprocess"
)

// Backend runs raw inference. Run must be safe for concurrent use and must
// not keep input after returning.
type Backend interface {
	Run(input []float32) ([]float32, error)
	Close() error
}

// Classifier maps tensors to label probabilities. It holds no per-call state.
type Classifier struct {
	backend Backend
	layout  string
}

func New(backend Backend, layout string) *Classifier {
	if layout == "" {
		layout = LayoutNHWC
	}
	return &Classifier{backend: backend, layout: layout}
}

// Scores runs the network and returns a normalised distribution. A tensor
// that is not (1, 224, 224, 3) is a programming error and panics.
func (c *Classifier) Scores(t preprocess.Tensor) (Distribution, error) {
	if !t.Valid() {
		panic(fmt.Sprintf("model: tensor shape %v with %d values, want %v", t.Shape, len(t.Data), preprocess.Shape))
	}

	input := t.Data
	if c.layout == LayoutNCHW {
		input = t.CHW()
	}

	raw, err := c.backend.Run(input)
	if err != nil {
		return Distribution{}, fmt.Errorf("inference failed: %w", err)
	}
	if len(raw) != fruit.Count {
		return Distribution{}, fmt.Errorf("inference returned %d scores, want %d", len(raw), fruit.Count)
	}
	for i, v := range raw {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return Distribution{}, fmt.Errorf("inference returned non-finite score %v at %d", v, i)
		}
	}
	return normalize(raw), nil
}

// Classify scores t and picks the most likely label.
func (c *Classifier) Classify(t preprocess.Tensor) (Prediction, Distribution, error) {
	dist, err := c.Scores(t)
	if err != nil {
		return Prediction{}, Distribution{}, err
	}
	label, p := Argmax(dist)
	return Prediction{Label: label, Confidence: float64(p) * 100}, dist, nil
}

func (c *Classifier) Close() error {
	return c.backend.Close()
}

// Argmax returns the label with the highest probability. Ties go to the
// lowest index.
func Argmax(d Distribution) (fruit.Label, float32) {
	maxIdx := 0
	maxVal := d[0]
	for i, val := range d {
		if val > maxVal {
			maxVal = val
			maxIdx = i
		}
	}
	return fruit.Label(maxIdx), maxVal
}

const sumTolerance = 1e-3

// normalize passes through outputs that already form a probability
// distribution and applies softmax to anything else (logits).
func normalize(raw []float32) Distribution {
	var d Distribution
	if isDistribution(raw) {
		copy(d[:], raw)
		return d
	}

	maxVal := math.Inf(-1)
	for _, v := range raw {
		maxVal = math.Max(maxVal, float64(v))
	}
	var sum float64
	exps := make([]float64, len(raw))
	for i, v := range raw {
		exps[i] = math.Exp(float64(v) - maxVal)
		sum += exps[i]
	}
	for i := range d {
		d[i] = float32(exps[i] / sum)
	}
	return d
}

func isDistribution(raw []float32) bool {
	var sum float64
	for _, v := range raw {
		if v < 0 || v > 1 || math.IsNaN(float64(v)) {
			return false
		}
		sum += float64(v)
	}
	return math.Abs(sum-1) <= sumTolerance
}
