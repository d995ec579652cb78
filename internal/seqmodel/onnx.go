package seqmodel

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/crimson-sun/sawmill/internal/model"
)

func init() {
	Register("onnx", func(cfg Config) (Model, error) {
		return newONNX(cfg.Path)
	})
}

// ortEnv manages global ONNX Runtime initialization (process-wide singleton).
var ortEnv struct {
	once sync.Once
	err  error
}

// initORT initializes the ONNX Runtime environment. Safe to call multiple
// times; only the first call has any effect.
func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// ONNX runs next-symbol inference against a network exported from an
// external trainer (the recurrent predictor the vocabulary was originally
// modeled with). Parameters are fixed at export time, so Train reports
// ErrTrainingUnsupported.
//
// The network takes an int64 tensor [1, length] of symbol ids and returns
// one logit row [1, vocab]; the vocabulary and window length are read from
// the model's tensor shapes.
type ONNX struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	vocab      int
	length     int
	trainedAt  time.Time
}

// newONNX loads the exported network and creates an inference session,
// validating tensor ranks and reading vocab/length from the declared shapes.
func newONNX(modelPath string) (*ONNX, error) {
	// The ONNX Runtime shared library ships alongside the model file.
	libPath := filepath.Join(filepath.Dir(modelPath), "libonnxruntime.so")
	if err := initORT(libPath); err != nil {
		return nil, fmt.Errorf("onnx: failed to initialize runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info: %w", err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("onnx: expected 1 input tensor, got %d", len(inputs))
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("onnx: model has no outputs")
	}

	inDims := inputs[0].Dimensions
	if len(inDims) != 2 {
		return nil, fmt.Errorf("onnx: expected 2D input tensor, got %v", inDims)
	}
	outDims := outputs[0].Dimensions
	if len(outDims) != 2 {
		return nil, fmt.Errorf("onnx: expected 2D output tensor, got %v", outDims)
	}
	length := int(inDims[1])
	vocab := int(outDims[1])
	if length < 1 || vocab < 1 {
		return nil, fmt.Errorf("onnx: model shapes are dynamic (input %v, output %v); fixed shapes required",
			inDims, outDims)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	opts.SetIntraOpNumThreads(1)
	opts.SetInterOpNumThreads(1)

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}

	// The export carries no timestamp of its own; the file's mtime stands
	// in so callers can tell a fitted model from an unfitted one.
	trainedAt := time.Now()
	if info, err := os.Stat(modelPath); err == nil {
		trainedAt = info.ModTime()
	}

	return &ONNX{
		session:    session,
		inputName:  inputs[0].Name,
		outputName: outputs[0].Name,
		vocab:      vocab,
		length:     length,
		trainedAt:  trainedAt,
	}, nil
}

// VocabSize implements Model.
func (o *ONNX) VocabSize() int { return o.vocab }

// TrainedAt implements Model.
func (o *ONNX) TrainedAt() time.Time { return o.trainedAt }

// Train implements Model: exported networks are read-only.
func (o *ONNX) Train(context.Context, []model.Window, TrainOptions) error {
	return ErrTrainingUnsupported
}

// Save implements Model: the .onnx file itself is the persisted form.
func (o *ONNX) Save(string) error {
	return ErrTrainingUnsupported
}

// Predict implements Model: runs the network on the symbol sequence and
// softmaxes the logit row into a full-vocabulary distribution.
func (o *ONNX) Predict(symbols []int, k int) ([]model.Prediction, error) {
	if err := checkSymbols(symbols, o.length, o.vocab); err != nil {
		return nil, err
	}
	if err := checkK(k, o.vocab); err != nil {
		return nil, err
	}

	ids := make([]int64, len(symbols))
	for i, s := range symbols {
		ids[i] = int64(s)
	}
	input, err := ort.NewTensor(ort.NewShape(1, int64(o.length)), ids)
	if err != nil {
		return nil, fmt.Errorf("onnx: create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(o.vocab)))
	if err != nil {
		return nil, fmt.Errorf("onnx: create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := o.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("onnx: inference: %w", err)
	}

	logits := output.GetData()
	dist := make([]float64, o.vocab)
	max := float64(logits[0])
	for _, z := range logits[1:] {
		if float64(z) > max {
			max = float64(z)
		}
	}
	sum := 0.0
	for i, z := range logits {
		e := math.Exp(float64(z) - max)
		dist[i] = e
		sum += e
	}
	for i := range dist {
		dist[i] /= sum
	}
	return topK(dist, k), nil
}

// Close releases ONNX Runtime resources.
func (o *ONNX) Close() error {
	if o.session != nil {
		return o.session.Destroy()
	}
	return nil
}
