// Package source defines the pull-based log source collaborators. Sources
// return ordered raw text lines; a fetch failure is degraded by callers to
// an empty result and retried on the next poll cycle, never propagated as a
// crash.
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/crimson-sun/sawmill/internal/model"
)

// Source defines the interface all log source providers must implement.
type Source interface {
	// Fetch returns up to params.Limit ordered raw lines matching the
	// configured query.
	Fetch(ctx context.Context, cfg Config, params FetchParams) ([]model.RawLine, error)
}

// Config holds provider-specific connection settings.
type Config struct {
	Provider string
	Endpoint string
	APIKey   string
	Query    string            // provider query expression (e.g. a LogQL selector)
	Extra    map[string]string // provider-specific settings
}

// FetchParams defines filters for one fetch.
type FetchParams struct {
	Start time.Time
	End   time.Time
	Limit int
}

// Constructor is a function that creates a new Source instance.
type Constructor func() Source

var registry = map[string]Constructor{}

// Register adds a source constructor under the given provider name.
func Register(name string, ctor Constructor) {
	registry[name] = ctor
}

// Get returns the source constructor for the given provider name.
func Get(name string) (Constructor, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown source provider: %s", name)
	}
	return ctor, nil
}

// Providers returns the names of all registered source providers.
func Providers() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
