package model

import (
	"fmt"

	"github.com/fruitlens/fruit-classifier/internal/fruit"
)

const (
	LayoutNHWC = "NHWC"
	LayoutNCHW = "NCHW"
)

// Metadata is the JSON sidecar saved next to the model weights.
type Metadata struct {
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Layout      string   `json:"layout"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
}

// Distribution holds one probability per label, in label order.
type Distribution [fruit.Count]float32

// Prediction is the winning label and its probability as a percentage.
type Prediction struct {
	Label      fruit.Label `json:"label"`
	Confidence float64     `json:"confidence"`
}

// Percent renders the confidence the way the page shows it, e.g. "91.00%".
func (p Prediction) Percent() string {
	return fmt.Sprintf("%.2f%%", p.Confidence)
}

type PredictionRequest struct {
	Image []float32 `json:"image"`
}

type PredictionResponse struct {
	Class          string             `json:"class"`
	Confidence     float64            `json:"confidence"`
	ConfidenceText string             `json:"confidence_text"`
	Predictions    map[string]float32 `json:"predictions"`
}

func NewPredictionResponse(p Prediction, d Distribution) *PredictionResponse {
	predictions := make(map[string]float32, fruit.Count)
	for _, l := range fruit.Labels() {
		predictions[l.String()] = d[l]
	}
	return &PredictionResponse{
		Class:          p.Label.String(),
		Confidence:     p.Confidence,
		ConfidenceText: p.Percent(),
		Predictions:    predictions,
	}
}
