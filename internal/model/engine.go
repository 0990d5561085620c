package model

import (
	"fmt"
	"os"
	"slices"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Options configures NewEngine.
type Options struct {
	ModelPath         string
	SharedLibraryPath string
	// Height and Width resolve dynamic spatial dims of the model input.
	Height int
	Width  int
	// OutputWidth resolves a dynamic class dimension of the model output.
	OutputWidth int
}

// Engine wraps an ONNX Runtime session for a single-input, single-output
// image classifier. It is created once and shared by all requests.
type Engine struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputShape   ort.Shape
	outputShape  ort.Shape
	inputName    string
	outputName   string
	staticWidth  bool

	// The session is bound to inputTensor/outputTensor, so Run must not
	// overlap.
	mu sync.Mutex
}

// NewEngine loads the model at opts.ModelPath. Every failure wraps
// ErrModelLoad.
func NewEngine(opts Options) (*Engine, error) {
	if _, err := os.Stat(opts.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}

	if opts.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(opts.SharedLibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("%w: failed to initialize ONNX environment: %w", ErrModelLoad, err)
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(opts.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read model signature: %w", ErrModelLoad, err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("%w: expected 1 input and 1 output, model declares %d and %d",
			ErrModelLoad, len(inputs), len(outputs))
	}
	if inputs[0].DataType != ort.TensorElementDataTypeFloat || outputs[0].DataType != ort.TensorElementDataTypeFloat {
		return nil, fmt.Errorf("%w: model must take and return float32 tensors", ErrModelLoad)
	}

	inputShape, err := resolveInputShape(inputs[0].Dimensions, opts.Height, opts.Width)
	if err != nil {
		return nil, fmt.Errorf("%w: input %q: %w", ErrModelLoad, inputs[0].Name, err)
	}
	outputShape, static, err := resolveOutputShape(outputs[0].Dimensions, opts.OutputWidth)
	if err != nil {
		return nil, fmt.Errorf("%w: output %q: %w", ErrModelLoad, outputs[0].Name, err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create input tensor: %w", ErrModelLoad, err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("%w: failed to create output tensor: %w", ErrModelLoad, err)
	}

	session, err := ort.NewAdvancedSession(opts.ModelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("%w: failed to create ONNX session: %w", ErrModelLoad, err)
	}

	return &Engine{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputShape:   inputShape,
		outputShape:  outputShape,
		inputName:    inputs[0].Name,
		outputName:   outputs[0].Name,
		staticWidth:  static,
	}, nil
}

// Infer runs the model on t and returns the scores for batch index 0.
func (e *Engine) Infer(t Tensor) ([]float32, error) {
	if !slices.Equal(t.Shape, e.inputShape) {
		return nil, fmt.Errorf("%w: input shape %v, model expects %v", ErrInference, t.Shape, []int64(e.inputShape))
	}
	if len(t.Data) != numElements(t.Shape) {
		return nil, fmt.Errorf("%w: tensor holds %d values for shape %v", ErrInference, len(t.Data), t.Shape)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.inputTensor.GetData(), t.Data)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}

	scores := make([]float32, e.OutputWidth())
	copy(scores, e.outputTensor.GetData())
	return scores, nil
}

// InputShape is the resolved [1, 3, H, W] shape Infer accepts.
func (e *Engine) InputShape() []int64 {
	return slices.Clone(e.inputShape)
}

// OutputWidth is the number of scores per image.
func (e *Engine) OutputWidth() int {
	return numElements(e.outputShape[1:])
}

// StaticOutputWidth reports whether the model itself declares the output
// width, as opposed to it being taken from Options.OutputWidth.
func (e *Engine) StaticOutputWidth() bool {
	return e.staticWidth
}

// Names returns the model's input and output names.
func (e *Engine) Names() (input, output string) {
	return e.inputName, e.outputName
}

func (e *Engine) Close() {
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
	if e.session != nil {
		e.session.Destroy()
	}
	ort.DestroyEnvironment()
}

// resolveInputShape fills dynamic dims (<= 0) of an NCHW image input: batch
// becomes 1, channels 3, height and width the configured size.
func resolveInputShape(declared ort.Shape, height, width int) (ort.Shape, error) {
	if len(declared) != 4 {
		return nil, fmt.Errorf("expected rank 4 NCHW input, got shape %v", []int64(declared))
	}
	fill := []int64{1, 3, int64(height), int64(width)}
	shape := declared.Clone()
	for i, d := range shape {
		if d <= 0 {
			shape[i] = fill[i]
		}
	}
	if shape[0] != 1 {
		return nil, fmt.Errorf("batch dimension must be 1, got %d", shape[0])
	}
	if shape[1] != 3 {
		return nil, fmt.Errorf("expected 3 channels, got %d", shape[1])
	}
	if shape[2] <= 0 || shape[3] <= 0 {
		return nil, fmt.Errorf("spatial size unresolved: %v", []int64(shape))
	}
	return shape, nil
}

// resolveOutputShape fills dynamic dims of a [batch, classes] output. The
// returned bool is false when the class count came from fallbackWidth.
func resolveOutputShape(declared ort.Shape, fallbackWidth int) (ort.Shape, bool, error) {
	if len(declared) != 2 {
		return nil, false, fmt.Errorf("expected rank 2 [batch, classes] output, got shape %v", []int64(declared))
	}
	shape := declared.Clone()
	if shape[0] <= 0 {
		shape[0] = 1
	}
	if shape[0] != 1 {
		return nil, false, fmt.Errorf("batch dimension must be 1, got %d", shape[0])
	}
	static := true
	if shape[1] <= 0 {
		if fallbackWidth <= 0 {
			return nil, false, fmt.Errorf("dynamic class dimension and no fallback width")
		}
		shape[1] = int64(fallbackWidth)
		static = false
	}
	return shape, static, nil
}
