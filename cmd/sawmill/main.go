package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/sawmill/internal/api"
	"github.com/crimson-sun/sawmill/internal/config"
	"github.com/crimson-sun/sawmill/internal/logging"
	"github.com/crimson-sun/sawmill/internal/metrics"
	"github.com/crimson-sun/sawmill/internal/mine"
	"github.com/crimson-sun/sawmill/internal/model"
	"github.com/crimson-sun/sawmill/internal/pipeline"
	"github.com/crimson-sun/sawmill/internal/queue"
	"github.com/crimson-sun/sawmill/internal/report"
	reportfile "github.com/crimson-sun/sawmill/internal/report/file"
	"github.com/crimson-sun/sawmill/internal/report/stdout"
	"github.com/crimson-sun/sawmill/internal/report/webhook"
	"github.com/crimson-sun/sawmill/internal/seqmodel"
	"github.com/crimson-sun/sawmill/internal/source"
	"github.com/crimson-sun/sawmill/internal/tracing"

	// Register source providers.
	_ "github.com/crimson-sun/sawmill/internal/source/file"
	_ "github.com/crimson-sun/sawmill/internal/source/loki"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var cfgPath string

	root := &cobra.Command{
		Use:   "sawmill",
		Short: "Log template mining and sequence anomaly detection",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "configs/sawmill.yaml", "YAML config path")

	root.AddCommand(ingestCmd(&cfgPath))
	root.AddCommand(trainCmd(&cfgPath))
	root.AddCommand(detectCmd(&cfgPath))
	root.AddCommand(monitorCmd(&cfgPath))
	root.AddCommand(runCmd(&cfgPath))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sawmill %s (%s) %s\n", version, commit, date)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sawmill: %v\n", err)
		os.Exit(1)
	}
}

func withSignals() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func setup(cfgPath string) (config.Config, *logging.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	log := logging.New(cfg.Logging.Level)
	metrics.MustRegister()
	return cfg, log, nil
}

func openQueue(cfg config.Config) (*queue.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Queue.Path), 0o755); err != nil {
		return nil, err
	}
	return queue.Open(cfg.Queue.Path)
}

// restoreMiner rebuilds the miner from the snapshot in the queue database,
// or starts empty on the first run.
func restoreMiner(cfg config.Config, store *queue.Store) (*mine.Miner, error) {
	m := mine.New(cfg.Mine.Threshold)
	snap, ok, err := store.LoadSnapshot()
	if err != nil {
		return nil, err
	}
	if ok {
		if err := m.Restore(snap); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// buildModel constructs the sequence model sized to the mined vocabulary,
// reloading saved parameters when a valid blob exists.
func buildModel(cfg config.Config, store *queue.Store) (seqmodel.Model, error) {
	miner, err := restoreMiner(cfg, store)
	if err != nil {
		return nil, err
	}
	if seqmodel.Valid(cfg.Model.Path) {
		mdl, err := seqmodel.Load(cfg.Model.Kind, cfg.Model.Path)
		if err != nil {
			return nil, err
		}
		// The miner keeps growing between runs; a blob sized to an
		// older vocabulary cannot judge ids it has never seen.
		if n := miner.NumClusters(); n > mdl.VocabSize() {
			return nil, fmt.Errorf("model %s holds %d symbols, miner has %d clusters: %w",
				cfg.Model.Path, mdl.VocabSize(), n, model.ErrVocabularyMismatch)
		}
		return mdl, nil
	}
	vocab := miner.NumClusters()
	if vocab == 0 {
		return nil, errors.New("no template vocabulary yet, run ingest first")
	}
	return seqmodel.New(cfg.Model.Kind, seqmodel.Config{
		VocabSize: vocab,
		Length:    cfg.Window.Length,
		Path:      cfg.Model.Path,
	})
}

func newSink(cfg config.Config) (report.Sink, error) {
	switch cfg.Report.Output {
	case "stdout":
		return stdout.New(), nil
	case "webhook":
		if cfg.Report.URL == "" {
			return nil, errors.New("report output webhook needs report.url")
		}
		return webhook.New(cfg.Report.URL), nil
	case "file", "":
		if err := os.MkdirAll(filepath.Dir(cfg.Report.Path), 0o755); err != nil {
			return nil, err
		}
		return reportfile.New(cfg.Report.Path)
	default:
		return nil, fmt.Errorf("unknown report output %q", cfg.Report.Output)
	}
}

func newOrchestrator(cfg config.Config, log *logging.Logger, store *queue.Store, sink report.Sink) (*pipeline.Orchestrator, error) {
	mdl, err := buildModel(cfg, store)
	if err != nil {
		return nil, err
	}
	return pipeline.NewOrchestrator(log, store, mdl, sink, pipeline.OrchestratorConfig{
		WindowLength: cfg.Window.Length,
		TopK:         cfg.Model.TopK,
		ModelPath:    cfg.Model.Path,
		Train: seqmodel.TrainOptions{
			Epochs:       cfg.Model.Epochs,
			LearningRate: cfg.Model.LearningRate,
			BatchSize:    cfg.Model.BatchSize,
		},
		PollInterval: cfg.Monitor.PollInterval.Std(),
	}), nil
}

func newIngestor(cfg config.Config, log *logging.Logger, miner *mine.Miner, store *queue.Store) (*pipeline.Ingestor, error) {
	return pipeline.NewIngestor(log, miner, store, pipeline.IngestorConfig{
		Source: source.Config{
			Provider: cfg.Source.Provider,
			Endpoint: cfg.Source.Endpoint,
			APIKey:   cfg.Source.APIKey,
			Query:    cfg.Source.Query,
			Extra:    cfg.Source.Extra,
		},
		Limit:        cfg.Source.Limit,
		PollInterval: cfg.Source.PollInterval.Std(),
	})
}

func serveAPI(ctx context.Context, cfg config.Config, log *logging.Logger, store *queue.Store, orch *pipeline.Orchestrator, kind string) {
	srv := api.NewServer(api.Deps{
		Log: log,
		Clusters: func() []model.Cluster {
			m, err := restoreMiner(cfg, store)
			if err != nil {
				return nil
			}
			return m.Clusters()
		},
		Status: func() api.Status {
			st := api.Status{ModelKind: kind}
			if orch != nil {
				state, windows, counters := orch.Snapshot()
				st.State = string(state)
				st.WindowsSeen = windows
				st.NormalTotal = counters.NormalTotal
				st.AnomalyTotal = counters.AnomalyTotal
			}
			if m, err := restoreMiner(cfg, store); err == nil {
				st.Clusters = m.NumClusters()
			}
			if n, err := store.Len(); err == nil {
				st.QueueDepth = n
			}
			return st
		},
	}, api.Config{Addr: cfg.Server.Addr})

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("ops server listening")
		if err := srv.Run(ctx); err != nil {
			log.Error().Err(err).Msg("ops server error")
		}
	}()
}

func initTracing(ctx context.Context, cfg config.Config, log *logging.Logger) tracing.Closer {
	closer, err := tracing.Init(ctx, tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRatio:  cfg.Tracing.SampleRatio,
	})
	if err != nil {
		log.Warn().Err(err).Msg("tracing disabled, collector unreachable")
		return func(context.Context) error { return nil }
	}
	return closer
}

func shutdownTracing(closer tracing.Closer, log *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := closer(ctx); err != nil {
		log.Warn().Err(err).Msg("tracing shutdown")
	}
}

func ingestCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Pull logs, mine templates, queue cluster-id sequences",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			ctx, cancel := withSignals()
			defer cancel()
			closer := initTracing(ctx, cfg, log)
			defer shutdownTracing(closer, log)

			store, err := openQueue(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			miner, err := restoreMiner(cfg, store)
			if err != nil {
				return err
			}
			in, err := newIngestor(cfg, log, miner, store)
			if err != nil {
				return err
			}
			serveAPI(ctx, cfg, log, store, nil, cfg.Model.Kind)

			log.Info().Str("provider", cfg.Source.Provider).Int("clusters", miner.NumClusters()).Msg("ingest starting")
			if err := in.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func trainCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Train the sequence model on the queued backlog and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			ctx, cancel := withSignals()
			defer cancel()

			store, err := openQueue(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			sink, err := newSink(cfg)
			if err != nil {
				return err
			}
			defer sink.Close()

			orch, err := newOrchestrator(cfg, log, store, sink)
			if err != nil {
				return err
			}
			if err := orch.Bootstrap(ctx); err != nil {
				return err
			}
			log.Info().Str("path", cfg.Model.Path).Msg("model trained")
			return nil
		},
	}
}

func detectCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Judge the queued windows in one batch pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			ctx, cancel := withSignals()
			defer cancel()

			store, err := openQueue(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			sink, err := newSink(cfg)
			if err != nil {
				return err
			}
			defer sink.Close()

			orch, err := newOrchestrator(cfg, log, store, sink)
			if err != nil {
				return err
			}
			if err := orch.Bootstrap(ctx); err != nil {
				return err
			}
			return orch.BatchDetect(ctx)
		},
	}
}

func monitorCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Train on the backlog if needed, judge queued windows, then watch for new arrivals",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			ctx, cancel := withSignals()
			defer cancel()
			closer := initTracing(ctx, cfg, log)
			defer shutdownTracing(closer, log)

			store, err := openQueue(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			sink, err := newSink(cfg)
			if err != nil {
				return err
			}
			defer sink.Close()

			orch, err := newOrchestrator(cfg, log, store, sink)
			if err != nil {
				return err
			}
			serveAPI(ctx, cfg, log, store, orch, cfg.Model.Kind)

			if err := orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func runCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run ingest and detection together in one process",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			ctx, cancel := withSignals()
			defer cancel()
			closer := initTracing(ctx, cfg, log)
			defer shutdownTracing(closer, log)

			store, err := openQueue(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			miner, err := restoreMiner(cfg, store)
			if err != nil {
				return err
			}
			in, err := newIngestor(cfg, log, miner, store)
			if err != nil {
				return err
			}

			// Seed the backlog before sizing the model, otherwise a
			// cold start has no vocabulary to train over.
			if _, err := in.Once(ctx); err != nil {
				return err
			}

			sink, err := newSink(cfg)
			if err != nil {
				return err
			}
			defer sink.Close()

			orch, err := newOrchestrator(cfg, log, store, sink)
			if err != nil {
				return err
			}
			serveAPI(ctx, cfg, log, store, orch, cfg.Model.Kind)

			errc := make(chan error, 2)
			go func() { errc <- in.Run(ctx) }()
			go func() { errc <- orch.Run(ctx) }()

			err = <-errc
			cancel()
			<-errc
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
