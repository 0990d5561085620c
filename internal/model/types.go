package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
)

var (
	// ErrModelLoad marks a model artifact that cannot be served. It is a
	// startup failure and is never returned from Infer.
	ErrModelLoad = errors.New("model load failed")
	// ErrInference marks a per-call failure: tensor shape mismatch or a
	// runtime error.
	ErrInference = errors.New("inference failed")
)

// Tensor is a dense float32 array in row-major order.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// NewTensor allocates a zeroed tensor of the given shape.
func NewTensor(shape ...int64) Tensor {
	return Tensor{Shape: slices.Clone(shape), Data: make([]float32, numElements(shape))}
}

// Metadata is the sidecar file shipped next to the ONNX artifact. Classes
// lists the labels in model output order.
type Metadata struct {
	Classes   []string `json:"classes"`
	ImageSize int      `json:"image_size,omitempty"`
}

// LoadMetadata reads and validates a metadata file. Any failure wraps
// ErrModelLoad.
func LoadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read metadata: %w", ErrModelLoad, err)
	}

	var metadata Metadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("%w: failed to parse metadata: %w", ErrModelLoad, err)
	}
	if len(metadata.Classes) == 0 {
		return nil, fmt.Errorf("%w: metadata %s lists no classes", ErrModelLoad, path)
	}
	if metadata.ImageSize < 0 {
		return nil, fmt.Errorf("%w: metadata image_size is negative: %d", ErrModelLoad, metadata.ImageSize)
	}
	return &metadata, nil
}

func numElements(shape []int64) int {
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}
