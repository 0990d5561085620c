package model

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"
)

func TestResolveInputShape(t *testing.T) {
	tests := []struct {
		name     string
		declared ort.Shape
		want     ort.Shape
		wantErr  bool
	}{
		{"static", ort.NewShape(1, 3, 256, 256), ort.NewShape(1, 3, 256, 256), false},
		{"dynamic batch", ort.NewShape(-1, 3, 256, 256), ort.NewShape(1, 3, 256, 256), false},
		{"dynamic spatial", ort.NewShape(-1, 3, -1, -1), ort.NewShape(1, 3, 224, 200), false},
		{"static spatial wins", ort.NewShape(1, 3, 128, 128), ort.NewShape(1, 3, 128, 128), false},
		{"wrong rank", ort.NewShape(1, 3, 256), nil, true},
		{"grayscale model", ort.NewShape(1, 1, 256, 256), nil, true},
		{"batch of 4", ort.NewShape(4, 3, 256, 256), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveInputShape(tt.declared, 224, 200)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff([]int64(tt.want), []int64(got)); diff != "" {
				t.Errorf("shape mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolveInputShape_DoesNotMutateDeclared(t *testing.T) {
	declared := ort.NewShape(-1, 3, -1, -1)
	_, err := resolveInputShape(declared, 256, 256)
	require.NoError(t, err)
	assert.Equal(t, []int64{-1, 3, -1, -1}, []int64(declared))
}

func TestResolveOutputShape(t *testing.T) {
	shape, static, err := resolveOutputShape(ort.NewShape(1, 7), 5)
	require.NoError(t, err)
	assert.True(t, static)
	assert.Equal(t, []int64{1, 7}, []int64(shape))

	shape, static, err = resolveOutputShape(ort.NewShape(-1, -1), 7)
	require.NoError(t, err)
	assert.False(t, static)
	assert.Equal(t, []int64{1, 7}, []int64(shape))

	_, _, err = resolveOutputShape(ort.NewShape(-1, -1), 0)
	assert.Error(t, err)

	_, _, err = resolveOutputShape(ort.NewShape(1, 7, 1), 7)
	assert.Error(t, err)
}

func TestNewEngine_MissingArtifact(t *testing.T) {
	_, err := NewEngine(Options{
		ModelPath: filepath.Join(t.TempDir(), "missing.onnx"),
		Height:    256,
		Width:     256,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelLoad))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestInfer_RejectsMismatchedTensor(t *testing.T) {
	e := &Engine{inputShape: ort.NewShape(1, 3, 224, 224)}

	tests := []struct {
		name   string
		tensor Tensor
	}{
		{"larger image", NewTensor(1, 3, 256, 256)},
		{"grayscale", NewTensor(1, 1, 224, 224)},
		{"no batch dim", NewTensor(3, 224, 224)},
		{"short data", Tensor{Shape: []int64{1, 3, 224, 224}, Data: make([]float32, 10)}},
		{"nil data", Tensor{Shape: []int64{1, 3, 224, 224}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scores, err := e.Infer(tt.tensor)
			assert.Nil(t, scores)
			assert.ErrorIs(t, err, ErrInference)
		})
	}
}

func TestLoadMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model_metadata.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"classes":["cardboard","glass","metal"],"image_size":224}`), 0o644))

	meta, err := LoadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"cardboard", "glass", "metal"}, meta.Classes)
	assert.Equal(t, 224, meta.ImageSize)
}

func TestLoadMetadata_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}

	paths := map[string]string{
		"missing":   filepath.Join(dir, "nope.json"),
		"malformed": write("bad.json", `{"classes": [`),
		"empty":     write("empty.json", `{"classes": []}`),
		"negative":  write("neg.json", `{"classes": ["a"], "image_size": -1}`),
	}
	for name, p := range paths {
		_, err := LoadMetadata(p)
		assert.ErrorIs(t, err, ErrModelLoad, name)
	}
}

func TestNewTensor(t *testing.T) {
	tensor := NewTensor(1, 3, 4, 5)
	assert.Equal(t, []int64{1, 3, 4, 5}, tensor.Shape)
	assert.Len(t, tensor.Data, 60)
}
