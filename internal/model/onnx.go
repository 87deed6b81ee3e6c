package model

import (
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"
)

// Config locates the model artifact and the onnxruntime shared library.
type Config struct {
	Path              string
	MetadataPath      string
	SharedLibraryPath string
}

// ONNXBackend runs the exported network with onnxruntime. Every Run call
// allocates its own input and output tensors and the session itself is
// read-only, so concurrent calls need no lock.
type ONNXBackend struct {
	session     *ort.DynamicAdvancedSession
	inputShape  ort.Shape
	outputShape ort.Shape
}

// NewONNXBackend initialises the onnxruntime environment (once per process)
// and opens a session on modelPath.
func NewONNXBackend(modelPath, sharedLibraryPath string, meta Metadata) (*ONNXBackend, error) {
	if !ort.IsInitialized() {
		if sharedLibraryPath != "" {
			ort.SetSharedLibraryPath(sharedLibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{meta.InputName}, []string{meta.OutputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXBackend{
		session:     session,
		inputShape:  ort.NewShape(meta.InputShape...),
		outputShape: ort.NewShape(meta.OutputShape...),
	}, nil
}

func (b *ONNXBackend) Run(input []float32) ([]float32, error) {
	inputTensor, err := ort.NewTensor(b.inputShape, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](b.outputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := b.session.Run([]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor}); err != nil {
		return nil, err
	}

	outputData := outputTensor.GetData()
	scores := make([]float32, len(outputData))
	copy(scores, outputData)
	return scores, nil
}

func (b *ONNXBackend) Close() error {
	if b.session != nil {
		if err := b.session.Destroy(); err != nil {
			return err
		}
		b.session = nil
	}
	return ort.DestroyEnvironment()
}

// Load reads the metadata sidecar and opens the model. Every failure is a
// *ModelLoadError.
func Load(cfg Config) (*Classifier, error) {
	meta, err := LoadMetadata(cfg.MetadataPath)
	if err != nil {
		return nil, &ModelLoadError{Path: cfg.MetadataPath, Err: err}
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, &ModelLoadError{Path: cfg.Path, Err: err}
	}

	backend, err := NewONNXBackend(cfg.Path, cfg.SharedLibraryPath, meta)
	if err != nil {
		return nil, &ModelLoadError{Path: cfg.Path, Err: err}
	}
	return New(backend, meta.Layout), nil
}
