package sawmill

type options struct {
	threshold    float64
	windowLength int
	topK         int
	modelKind    string
	epochs       int
	learningRate float64
	batchSize    int
}

// Option configures a Sawmill instance.
type Option func(*options)

// WithSimilarityThreshold sets the minimum token-level similarity for a line
// to join an existing template. Below it a new template is created.
// Default: 0.5.
func WithSimilarityThreshold(t float64) Option {
	return func(o *options) {
		o.threshold = t
	}
}

// WithWindowLength sets the number of leading template ids per window; the
// id that follows them is the label being predicted. Default: 19.
func WithWindowLength(l int) Option {
	return func(o *options) {
		o.windowLength = l
	}
}

// WithTopK sets how many predicted continuations the actual id is checked
// against. Default: 2.
func WithTopK(k int) Option {
	return func(o *options) {
		o.topK = k
	}
}

// WithModelKind selects the sequence model implementation: "softmax" or
// "ngram". Default: "softmax".
func WithModelKind(kind string) Option {
	return func(o *options) {
		o.modelKind = kind
	}
}

// WithTraining overrides the training hyperparameters. Zero values keep the
// defaults (100 epochs, learning rate 0.001, batch size 32).
func WithTraining(epochs int, learningRate float64, batchSize int) Option {
	return func(o *options) {
		o.epochs = epochs
		o.learningRate = learningRate
		o.batchSize = batchSize
	}
}

func defaultOptions() options {
	return options{
		threshold:    0.5,
		windowLength: 19,
		topK:         2,
		modelKind:    "softmax",
	}
}
