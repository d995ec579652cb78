// Package api serves the ops endpoints: health, Prometheus metrics, the
// learned template clusters, and a pipeline status snapshot.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/crimson-sun/sawmill/internal/logging"
	"github.com/crimson-sun/sawmill/internal/metrics"
	"github.com/crimson-sun/sawmill/internal/model"
)

// Status is a point-in-time snapshot of the running pipeline.
type Status struct {
	State        string    `json:"state"`
	Clusters     int       `json:"clusters"`
	QueueDepth   int       `json:"queueDepth"`
	WindowsSeen  int       `json:"windowsSeen"`
	NormalTotal  int       `json:"normalTotal"`
	AnomalyTotal int       `json:"anomalyTotal"`
	ModelKind    string    `json:"modelKind"`
	TrainedAt    time.Time `json:"trainedAt,omitempty"`
}

// Deps are read-only views into the pipeline; both funcs must be safe to
// call from the serving goroutine.
type Deps struct {
	Log      *logging.Logger
	Clusters func() []model.Cluster
	Status   func() Status
}

type Config struct {
	Addr string
}

type Server struct {
	cfg  Config
	deps Deps
}

func NewServer(d Deps, c Config) *Server { return &Server{cfg: c, deps: d} }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.deps.Log.HTTPLogger(s.router())}
	go func() { <-ctx.Done(); _ = srv.Shutdown(context.Background()) }()
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { metrics.Handler().ServeHTTP(w, r) })
	r.Get("/v1/clusters", s.handleClusters)
	r.Get("/v1/status", s.handleStatus)
	return r
}

type clusterView struct {
	ID         int    `json:"id"`
	Template   string `json:"template"`
	TokenCount int    `json:"tokenCount"`
	MatchCount int    `json:"matchCount"`
}

func (s *Server) handleClusters(w http.ResponseWriter, _ *http.Request) {
	clusters := s.deps.Clusters()
	out := make([]clusterView, 0, len(clusters))
	for i := range clusters {
		c := &clusters[i]
		out = append(out, clusterView{
			ID:         c.ID,
			Template:   c.TemplateString(),
			TokenCount: c.TokenCount,
			MatchCount: c.MatchCount,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.deps.Status())
}
