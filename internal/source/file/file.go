// Package file implements a log source provider that tails a local file.
// Intended for development and tests; it mirrors pulling from a collector by
// returning only the lines appended since the previous fetch.
package file

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/crimson-sun/sawmill/internal/model"
	"github.com/crimson-sun/sawmill/internal/source"
)

func init() {
	source.Register("file", func() source.Source {
		return &Source{}
	})
}

// Source reads a file incrementally, remembering its offset between fetches.
// A truncated file (offset beyond EOF) restarts from the beginning.
type Source struct {
	offset int64
}

// Fetch returns up to params.Limit complete lines appended since the last
// call. An incomplete trailing line (no newline yet) is left for the next
// fetch.
func (s *Source) Fetch(ctx context.Context, cfg source.Config, params source.FetchParams) ([]model.RawLine, error) {
	path := cfg.Extra["path"]
	if path == "" {
		return nil, fmt.Errorf("file source: missing required config key \"path\" in Extra")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("file source: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("file source: %w", err)
	}
	if info.Size() < s.offset {
		s.offset = 0 // rotated or truncated
	}
	if _, err := f.Seek(s.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("file source: seek: %w", err)
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 1000
	}

	var results []model.RawLine
	r := bufio.NewReader(f)
	for len(results) < limit {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, err := r.ReadString('\n')
		if err == io.EOF {
			break // partial line stays unconsumed
		}
		if err != nil {
			return nil, fmt.Errorf("file source: read: %w", err)
		}
		s.offset += int64(len(line))
		text := line[:len(line)-1]
		if text == "" {
			continue
		}
		results = append(results, model.RawLine{
			Timestamp: time.Now(),
			Source:    "file",
			Text:      text,
		})
	}
	return results, nil
}
