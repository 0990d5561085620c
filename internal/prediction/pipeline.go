// Package prediction binds model scores to trash categories and runs the
// decode, preprocess, infer, map and assemble steps for one scan.
package prediction

import (
	"context"
	"image"

	"github.com/trashscanner/predictor/internal/imaging"
	"github.com/trashscanner/predictor/internal/logger"
	"github.com/trashscanner/predictor/internal/model"
)

// Engine runs the classifier on a preprocessed tensor. Implementations must
// be deterministic and safe for concurrent use.
type Engine interface {
	Infer(model.Tensor) ([]float32, error)
}

// Preprocessor turns a decoded image into the model input tensor.
type Preprocessor interface {
	Preprocess(image.Image) (model.Tensor, error)
}

// Pipeline is stateless per call and may be shared between requests.
type Pipeline struct {
	preprocessor Preprocessor
	engine       Engine
	labels       LabelSet
	logger       *logger.Logger
}

func NewPipeline(preprocessor Preprocessor, engine Engine, labels LabelSet, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Discard()
	}
	return &Pipeline{
		preprocessor: preprocessor,
		engine:       engine,
		labels:       labels,
		logger:       log,
	}
}

func (p *Pipeline) Labels() LabelSet {
	return p.labels
}

// Classify runs the whole pipeline on raw image bytes. ctx is checked
// before each stage; a stage that has started always runs to completion.
// Failures are *StageError values, or ctx.Err() when the context ended.
func (p *Pipeline) Classify(ctx context.Context, raw []byte, ids CorrelationIDs) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, format, err := imaging.Decode(raw)
	if err != nil {
		return nil, &StageError{Stage: StageDecode, Err: err}
	}
	p.logger.Debug("prediction %s: decoded %s image %dx%d", ids.PredictionID, format, img.Bounds().Dx(), img.Bounds().Dy())

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tensor, err := p.preprocessor.Preprocess(img)
	if err != nil {
		return nil, &StageError{Stage: StagePreprocess, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scores, err := p.engine.Infer(tensor)
	if err != nil {
		return nil, &StageError{Stage: StageInfer, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dist, err := p.labels.Map(scores)
	if err != nil {
		return nil, &StageError{Stage: StageMap, Err: err}
	}

	result := Assemble(dist, ids)
	p.logger.Debug("prediction %s: %s (%.4f)", ids.PredictionID, result.Top.Label, result.Top.Value)
	return result, nil
}

