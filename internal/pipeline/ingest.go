// Package pipeline connects the collaborators into the two long-running
// stages: the ingestor (source -> tokenizer -> miner -> queue) and the
// orchestrator (queue -> windows -> model -> verdicts -> report).
package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/crimson-sun/sawmill/internal/logging"
	"github.com/crimson-sun/sawmill/internal/metrics"
	"github.com/crimson-sun/sawmill/internal/mine"
	"github.com/crimson-sun/sawmill/internal/queue"
	"github.com/crimson-sun/sawmill/internal/source"
	"github.com/crimson-sun/sawmill/internal/tokenize"
)

var tracer = otel.Tracer("pipeline")

// IngestorConfig controls one ingest loop.
type IngestorConfig struct {
	Source       source.Config
	Limit        int
	PollInterval time.Duration
}

// Ingestor pulls raw lines from a source, classifies each into a template
// cluster, and pushes the resulting ids onto the durable queue one id per
// line. The miner snapshot is persisted after every batch so the detection
// process sees the same vocabulary.
type Ingestor struct {
	log   *logging.Logger
	src   source.Source
	miner *mine.Miner
	store *queue.Store
	cfg   IngestorConfig

	lastEnd time.Time
}

// NewIngestor wires an ingest stage. The provider named in cfg.Source must
// be registered.
func NewIngestor(log *logging.Logger, miner *mine.Miner, store *queue.Store, cfg IngestorConfig) (*Ingestor, error) {
	ctor, err := source.Get(cfg.Source.Provider)
	if err != nil {
		return nil, err
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 1000
	}
	return &Ingestor{log: log, src: ctor(), miner: miner, store: store, cfg: cfg}, nil
}

// Once runs a single fetch-classify-push cycle and reports how many lines
// were classified. A source failure is degraded to an empty batch; the next
// cycle retries the same time range.
func (in *Ingestor) Once(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "ingest.cycle")
	defer span.End()

	now := time.Now()
	start := in.lastEnd
	if start.IsZero() {
		start = now.Add(-time.Hour)
	}

	lines, err := in.src.Fetch(ctx, in.cfg.Source, source.FetchParams{
		Start: start,
		End:   now,
		Limit: in.cfg.Limit,
	})
	if err != nil {
		in.log.Warn().Err(err).Str("provider", in.cfg.Source.Provider).Msg("fetch failed, retrying next cycle")
		return 0, nil
	}

	pushed := 0
	for _, line := range lines {
		tokens := tokenize.Tokens(line.Text)
		if tokens == nil {
			metrics.LinesSkipped.WithLabelValues(in.cfg.Source.Provider).Inc()
			continue
		}
		id, err := in.miner.Classify(tokens)
		if err != nil {
			metrics.LinesSkipped.WithLabelValues(in.cfg.Source.Provider).Inc()
			continue
		}
		if err := in.store.Push([]int{id}); err != nil {
			return pushed, err
		}
		metrics.LinesIngested.WithLabelValues(in.cfg.Source.Provider).Inc()
		pushed++
	}
	in.lastEnd = now
	span.SetAttributes(
		attribute.Int("lines.fetched", len(lines)),
		attribute.Int("lines.pushed", pushed),
	)

	if pushed > 0 {
		snap, err := in.miner.Snapshot()
		if err != nil {
			return pushed, err
		}
		if err := in.store.SaveSnapshot(snap); err != nil {
			return pushed, err
		}
	}
	metrics.Clusters.Set(float64(in.miner.NumClusters()))
	return pushed, nil
}

// Run polls the source until ctx is cancelled.
func (in *Ingestor) Run(ctx context.Context) error {
	interval := in.cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := in.Once(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			in.log.Info().Int("lines", n).Int("clusters", in.miner.NumClusters()).Msg("ingested batch")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
