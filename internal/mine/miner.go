// Package mine implements the online template-clustering engine: an
// append-only arena of log templates that maps every incoming token sequence
// to a stable integer cluster id in a single pass, without ever re-scanning
// history.
package mine

import (
	"github.com/crimson-sun/sawmill/internal/model"
)

// DefaultThreshold is the similarity fraction a candidate template must meet
// for an incoming line to join its cluster.
const DefaultThreshold = 0.5

// Miner owns the evolving cluster set. Ids are assigned monotonically from 0
// and are never reused or deleted; templates only ever generalize.
//
// Miner is not safe for concurrent callers: Classify is a read-modify-write
// over shared cluster state. Callers with multiple ingestion paths must
// serialize access externally.
type Miner struct {
	threshold float64

	// clusters is an arena addressed by cluster id. byLen maps a token
	// count to the ids of clusters with that count, most recently created
	// first, so lookup cost is bounded by the active clusters of one
	// length and hot (recent) templates are found early.
	clusters []*model.Cluster
	byLen    map[int][]int
}

// New creates a Miner with the given similarity threshold. Thresholds
// outside (0, 1] fall back to DefaultThreshold.
func New(threshold float64) *Miner {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Miner{
		threshold: threshold,
		byLen:     make(map[int][]int),
	}
}

// Classify maps a token sequence to its cluster id, creating a new cluster
// when no existing template of the same length is similar enough. The first
// candidate at or above the threshold wins; there is no search for a global
// best match.
//
// Returns model.ErrEmptyLine for an empty token sequence.
func (m *Miner) Classify(tokens []string) (int, error) {
	if len(tokens) == 0 {
		return 0, model.ErrEmptyLine
	}

	for _, id := range m.byLen[len(tokens)] {
		c := m.clusters[id]
		if similarity(c.Template, tokens) >= m.threshold {
			widen(c, tokens)
			c.MatchCount++
			return c.ID, nil
		}
	}

	return m.allocate(tokens), nil
}

// allocate creates a new cluster whose template is the literal token
// sequence and registers it at the front of its length bucket.
func (m *Miner) allocate(tokens []string) int {
	c := &model.Cluster{
		ID:         len(m.clusters),
		Template:   append([]string(nil), tokens...),
		TokenCount: len(tokens),
		MatchCount: 1,
	}
	m.clusters = append(m.clusters, c)
	bucket := m.byLen[c.TokenCount]
	m.byLen[c.TokenCount] = append([]int{c.ID}, bucket...)
	return c.ID
}

// similarity is the fraction of positions where the template token equals
// the incoming token. Wildcard positions always count as matches. Both
// slices have equal length by construction.
func similarity(template, tokens []string) float64 {
	matched := 0
	for i, tok := range template {
		if tok == model.Wildcard || tok == tokens[i] {
			matched++
		}
	}
	return float64(matched) / float64(len(template))
}

// widen replaces every disagreeing template position with the wildcard.
// Wildcard positions are left alone — generalization is monotonic.
func widen(c *model.Cluster, tokens []string) {
	for i, tok := range c.Template {
		if tok != model.Wildcard && tok != tokens[i] {
			c.Template[i] = model.Wildcard
		}
	}
}

// NumClusters reports the current vocabulary size (count of assigned ids).
func (m *Miner) NumClusters() int {
	return len(m.clusters)
}

// Clusters returns a copy of the cluster set, ordered by id. Templates are
// copied so callers cannot mutate miner state.
func (m *Miner) Clusters() []model.Cluster {
	out := make([]model.Cluster, len(m.clusters))
	for i, c := range m.clusters {
		out[i] = model.Cluster{
			ID:         c.ID,
			Template:   append([]string(nil), c.Template...),
			TokenCount: c.TokenCount,
			MatchCount: c.MatchCount,
		}
	}
	return out
}
