package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/crimson-sun/sawmill/internal/detect"
	"github.com/crimson-sun/sawmill/internal/logging"
	"github.com/crimson-sun/sawmill/internal/model"
	"github.com/crimson-sun/sawmill/internal/queue"
	"github.com/crimson-sun/sawmill/internal/report"
	"github.com/crimson-sun/sawmill/internal/seqmodel"
	"github.com/crimson-sun/sawmill/internal/window"
)

// State names the orchestrator's lifecycle phase.
type State string

const (
	StateIdle      State = "idle"
	StateTraining  State = "training"
	StateDetecting State = "detecting"
	StateMonitor   State = "monitoring"
	StateStopped   State = "stopped"
)

// ErrNoTrainingData is returned when the bootstrap phase drains the queue
// and finds too few ids to form even one window.
var ErrNoTrainingData = errors.New("pipeline: not enough queued ids to train on")

// OrchestratorConfig controls the detection side of the pipeline.
type OrchestratorConfig struct {
	WindowLength int // symbols per window, excluding the label
	TopK         int
	ModelPath    string
	Train        seqmodel.TrainOptions
	PollInterval time.Duration
}

// Orchestrator drives the detection lifecycle: a bootstrap training pass
// over the queued backlog, a batch detection pass, then steady-state
// monitoring of new arrivals. Verdict indices run continuously across the
// batch and monitor phases.
type Orchestrator struct {
	log   *logging.Logger
	store *queue.Store
	mdl   seqmodel.Model
	sink  report.Sink
	cfg   OrchestratorConfig

	engine  *detect.Engine
	sliding *window.Sliding

	mu        sync.Mutex
	state     State
	windows   int
	anomalies []model.Verdict // current phase only, cleared at phase end
}

// NewOrchestrator wires the detection stage around an already constructed
// (possibly still untrained) model.
func NewOrchestrator(log *logging.Logger, store *queue.Store, mdl seqmodel.Model, sink report.Sink, cfg OrchestratorConfig) *Orchestrator {
	if cfg.WindowLength < 1 {
		cfg.WindowLength = window.DefaultLength
	}
	if cfg.TopK < 1 {
		cfg.TopK = detect.DefaultTopK
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	return &Orchestrator{
		log:     log,
		store:   store,
		mdl:     mdl,
		sink:    sink,
		cfg:     cfg,
		engine:  detect.New(cfg.TopK, 0),
		sliding: window.NewSliding(cfg.WindowLength),
		state:   StateIdle,
	}
}

// Run executes the full lifecycle and blocks until ctx is cancelled or a
// phase fails.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.Bootstrap(ctx); err != nil {
		return err
	}
	if err := o.BatchDetect(ctx); err != nil {
		return err
	}
	return o.Monitor(ctx)
}

// Bootstrap drains the queued backlog into tumbling windows and trains the
// model on them. An empty backlog is a hard error: detection without a
// fitted model would judge everything against noise.
func (o *Orchestrator) Bootstrap(ctx context.Context) error {
	o.setState(StateTraining)

	if !o.mdl.TrainedAt().IsZero() {
		o.log.Info().Time("trainedAt", o.mdl.TrainedAt()).Msg("model already trained, skipping bootstrap")
		return nil
	}

	ids, err := o.drain(ctx)
	if err != nil {
		return err
	}
	windows, dropped, err := window.Tumble(ids, o.cfg.WindowLength)
	if err != nil {
		return err
	}
	if dropped > 0 {
		o.log.Warn().Int("ids", dropped).Msg("trailing partial window dropped from training set")
	}
	if len(windows) == 0 {
		return fmt.Errorf("%w: drained %d ids, need %d", ErrNoTrainingData, len(ids), o.cfg.WindowLength+1)
	}

	opts := o.cfg.Train
	if opts.Progress == nil {
		opts.Progress = func(epoch, epochs int, loss float64) {
			o.log.Debug().Int("epoch", epoch).Int("epochs", epochs).Float64("loss", loss).Msg("training")
		}
	}
	o.log.Info().Int("windows", len(windows)).Int("vocab", o.mdl.VocabSize()).Msg("training model")
	if err := o.mdl.Train(ctx, windows, opts); err != nil {
		if errors.Is(err, seqmodel.ErrTrainingUnsupported) {
			// An externally trained model skips fitting, but the
			// detect phase still owes these ids verdicts.
			if perr := o.store.Push(ids); perr != nil {
				return fmt.Errorf("pipeline: requeue backlog: %w", perr)
			}
			o.log.Info().Int("ids", len(ids)).Msg("model is trained externally, backlog requeued for detection")
			return nil
		}
		return fmt.Errorf("pipeline: train: %w", err)
	}
	if o.cfg.ModelPath != "" {
		if err := o.mdl.Save(o.cfg.ModelPath); err != nil {
			return fmt.Errorf("pipeline: save model: %w", err)
		}
	}
	return nil
}

// BatchDetect replays everything queued since bootstrap through the sliding
// window and writes one verdict line per window plus a trailing anomaly
// summary.
func (o *Orchestrator) BatchDetect(ctx context.Context) error {
	o.setState(StateDetecting)
	if _, err := o.detectPending(ctx); err != nil {
		return err
	}
	return o.flushSummary()
}

// Monitor polls the queue at the configured interval, judging new windows as
// they complete. On shutdown it writes a summary of the anomalies seen while
// monitoring and returns nil.
func (o *Orchestrator) Monitor(ctx context.Context) error {
	o.setState(StateMonitor)
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.setState(StateStopped)
			return o.flushSummary()
		case <-ticker.C:
		}
		n, err := o.detectPending(ctx)
		if err != nil {
			o.setState(StateStopped)
			// Best effort: verdicts already made this phase still
			// reach the report before the error propagates.
			if ferr := o.flushSummary(); ferr != nil {
				o.log.Warn().Err(ferr).Msg("summary flush on shutdown failed")
			}
			return err
		}
		if n > 0 {
			_, _, c := o.Snapshot()
			o.log.Info().Int("windows", n).Int("normal", c.NormalTotal).Int("anomalies", c.AnomalyTotal).Msg("monitor cycle")
		}
	}
}

// detectPending drains the queue and judges every window that completes.
// Each pushed id emits at most one window; ids left in the sliding buffer
// carry over to the next call, so no window is ever judged twice.
func (o *Orchestrator) detectPending(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "pipeline.detect",
		trace.WithAttributes(attribute.Int("topk", o.engine.K())))
	defer span.End()

	ids, err := o.drain(ctx)
	if err != nil {
		return 0, err
	}

	judged := 0
	for _, id := range ids {
		w, ok := o.sliding.Push(id)
		if !ok {
			continue
		}
		predicted, err := o.mdl.Predict(w.Symbols, o.engine.K())
		if err != nil {
			// A vocabulary mismatch means the miner and model have
			// diverged; no verdict from this model is trustworthy.
			return judged, fmt.Errorf("pipeline: predict: %w", err)
		}
		o.mu.Lock()
		v := o.engine.Decide(w.Symbols, w.Label, predicted)
		o.windows++
		if v.IsAnomaly {
			o.anomalies = append(o.anomalies, v)
		}
		o.mu.Unlock()
		if err := o.sink.WriteVerdict(v); err != nil {
			return judged, fmt.Errorf("pipeline: report: %w", err)
		}
		judged++
	}
	span.SetAttributes(attribute.Int("windows", judged))
	return judged, nil
}

// drain pops every queued payload and flattens the ids in order. Malformed
// payloads have already been discarded by the queue; they are logged and
// skipped.
func (o *Orchestrator) drain(ctx context.Context) ([]int, error) {
	var ids []int
	for {
		if err := ctx.Err(); err != nil {
			return ids, err
		}
		payload, ok, err := o.store.Pop()
		if errors.Is(err, queue.ErrMalformed) {
			o.log.Warn().Msg("skipping malformed queue payload")
			continue
		}
		if err != nil {
			return ids, fmt.Errorf("pipeline: pop: %w", err)
		}
		if !ok {
			return ids, nil
		}
		ids = append(ids, payload...)
	}
}

// flushSummary writes the anomaly summary for the current phase and clears
// the phase accumulator.
func (o *Orchestrator) flushSummary() error {
	o.mu.Lock()
	anomalies := o.anomalies
	o.anomalies = nil
	o.mu.Unlock()
	if err := o.sink.WriteSummary(anomalies); err != nil {
		return fmt.Errorf("pipeline: summary: %w", err)
	}
	return nil
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Snapshot reports the lifecycle phase and counters for the ops endpoints.
// Safe to call from other goroutines.
func (o *Orchestrator) Snapshot() (State, int, model.RunCounters) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state, o.windows, o.engine.Counters()
}
