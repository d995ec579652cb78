package seqmodel

import (
	"fmt"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/crimson-sun/sawmill/internal/model"
)

// envelope is the on-disk framing for in-process model kinds: a kind tag,
// the vocabulary the parameters are valid for, and the kind-specific
// payload. The blob is opaque to everything outside this package.
type envelope struct {
	Kind      string    `cbor:"kind"`
	VocabSize int       `cbor:"vocab_size"`
	Length    int       `cbor:"length"`
	TrainedAt time.Time `cbor:"trained_at"`
	Payload   []byte    `cbor:"payload"`
}

type loaderFunc func(env envelope) (Model, error)

var loaders = map[string]loaderFunc{}

func registerLoader(kind string, fn loaderFunc) {
	loaders[kind] = fn
}

// Valid reports whether a persisted model exists at path. Existence with
// non-zero size is the sole precondition checked before loading; content
// integrity surfaces from Load itself.
func Valid(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// Load reads a persisted model of the given kind from path. Kinds trained
// externally (onnx) load their native file format directly; everything else
// is an envelope written by Save.
func Load(kind, path string) (Model, error) {
	if !Valid(path) {
		return nil, fmt.Errorf("seqmodel: %s: %w", path, model.ErrModelUnavailable)
	}
	if kind == "onnx" {
		return newONNX(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seqmodel: read %s: %w", path, err)
	}
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("seqmodel: decode %s: %w", path, err)
	}
	if env.Kind != kind {
		return nil, fmt.Errorf("seqmodel: %s holds a %q model, want %q", path, env.Kind, kind)
	}
	loader, ok := loaders[env.Kind]
	if !ok {
		return nil, fmt.Errorf("seqmodel: no loader for model kind %q", env.Kind)
	}
	m, err := loader(env)
	if err != nil {
		return nil, fmt.Errorf("seqmodel: load %s: %w", path, err)
	}
	return m, nil
}

// saveEnvelope encodes and atomically writes an envelope: the blob is
// written to a temp file first so a crash mid-write never leaves a
// non-empty, truncated model that would pass the validity precondition.
func saveEnvelope(path string, env envelope) error {
	data, err := cbor.Marshal(env)
	if err != nil {
		return fmt.Errorf("seqmodel: encode model: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("seqmodel: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("seqmodel: rename %s: %w", tmp, err)
	}
	return nil
}
