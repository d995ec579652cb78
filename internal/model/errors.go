package model

import "errors"

// Sentinel errors shared across the pipeline. Input errors skip a single
// unit and the stream continues; the remaining errors are fatal to the
// current phase.
var (
	// ErrEmptyLine marks a log line with no tokens left after
	// normalization. The line is dropped and counted as skipped input.
	ErrEmptyLine = errors.New("empty line after normalization")

	// ErrWindowLength marks a sequence whose length is not exactly the
	// configured window size. Wrong-length input is rejected, never
	// truncated or padded.
	ErrWindowLength = errors.New("sequence length does not match window size")

	// ErrVocabularyMismatch marks a window referencing a cluster id the
	// loaded model was not trained with. Predicting against an undersized
	// vocabulary silently corrupts results, so this is fatal to the phase.
	ErrVocabularyMismatch = errors.New("cluster id exceeds model vocabulary")

	// ErrModelUnavailable marks a missing or empty persisted model when a
	// detection phase requires one.
	ErrModelUnavailable = errors.New("no usable model available")
)
