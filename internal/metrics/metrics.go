// Package metrics exposes the process's Prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Anomalies = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "sawmill_anomalies_total", Help: "Windows judged anomalous"},
	)
	Normal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "sawmill_normal_total", Help: "Windows judged normal"},
	)
	LastResult = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "sawmill_last_result", Help: "Most recent verdict (0=normal, 1=anomaly)"},
	)

	LinesIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sawmill_lines_ingested_total", Help: "Log lines classified"},
		[]string{"source"},
	)
	LinesSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sawmill_lines_skipped_total", Help: "Log lines dropped as unusable input"},
		[]string{"source"},
	)
	Clusters = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "sawmill_clusters", Help: "Size of the learned template vocabulary"},
	)
)

func MustRegister() {
	prometheus.MustRegister(Anomalies, Normal, LastResult, LinesIngested, LinesSkipped, Clusters)
}

// RecordVerdict pushes one decision to the counters and the last-result gauge.
func RecordVerdict(isAnomaly bool) {
	if isAnomaly {
		Anomalies.Inc()
		LastResult.Set(1)
	} else {
		Normal.Inc()
		LastResult.Set(0)
	}
}

func Handler() http.Handler { return promhttp.Handler() }
