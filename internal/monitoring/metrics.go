// internal/monitoring/metrics.go
package monitoring

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	faults "github.com/valpere/staleguard/internal/errors"
	"github.com/valpere/staleguard/internal/wait"
)

// MetricsManager owns the Prometheus metrics for element waits and scenario
// runs. Metrics live on a private registry so several managers can coexist
// in one process (and in tests).
type MetricsManager struct {
	registry *prometheus.Registry

	// Wait metrics
	attemptsTotal    *prometheus.CounterVec
	resolutionsTotal *prometheus.CounterVec
	resolveDuration  *prometheus.HistogramVec
	resolveAttempts  *prometheus.HistogramVec

	// Scenario metrics
	scenariosTotal   *prometheus.CounterVec
	scenarioDuration *prometheus.HistogramVec
	sessionsActive   prometheus.Gauge

	namespace string
	subsystem string
}

// MetricsConfig configuration for metrics
type MetricsConfig struct {
	Namespace       string            `yaml:"namespace" json:"namespace"`
	Subsystem       string            `yaml:"subsystem" json:"subsystem"`
	Labels          map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
	EnableGoMetrics bool              `yaml:"enable_go_metrics" json:"enable_go_metrics"`
	MetricsPath     string            `yaml:"metrics_path" json:"metrics_path"`
	ListenAddress   string            `yaml:"listen_address" json:"listen_address"`
}

// NewMetricsManager creates a new metrics manager
func NewMetricsManager(config MetricsConfig) *MetricsManager {
	if config.Namespace == "" {
		config.Namespace = "staleguard"
	}
	if config.Subsystem == "" {
		config.Subsystem = "wait"
	}

	mm := &MetricsManager{
		registry:  prometheus.NewRegistry(),
		namespace: config.Namespace,
		subsystem: config.Subsystem,
	}
	mm.initializeMetrics(prometheus.Labels(config.Labels))

	if config.EnableGoMetrics {
		mm.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return mm
}

// initializeMetrics initializes all Prometheus metrics
func (mm *MetricsManager) initializeMetrics(constLabels prometheus.Labels) {
	register := func(c prometheus.Collector) {
		mm.registry.MustRegister(c)
	}

	mm.attemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   mm.namespace,
			Subsystem:   mm.subsystem,
			Name:        "attempts_total",
			Help:        "Resolution attempts by outcome fault kind (ok for success)",
			ConstLabels: constLabels,
		},
		[]string{"condition", "fault"},
	)
	register(mm.attemptsTotal)

	mm.resolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   mm.namespace,
			Subsystem:   mm.subsystem,
			Name:        "resolutions_total",
			Help:        "Completed waits by outcome",
			ConstLabels: constLabels,
		},
		[]string{"condition", "outcome"},
	)
	register(mm.resolutionsTotal)

	mm.resolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   mm.namespace,
			Subsystem:   mm.subsystem,
			Name:        "duration_seconds",
			Help:        "Time spent waiting for a condition",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			ConstLabels: constLabels,
		},
		[]string{"outcome"},
	)
	register(mm.resolveDuration)

	mm.resolveAttempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   mm.namespace,
			Subsystem:   mm.subsystem,
			Name:        "attempts_per_wait",
			Help:        "Attempts needed per completed wait",
			Buckets:     prometheus.LinearBuckets(1, 1, 10),
			ConstLabels: constLabels,
		},
		[]string{"outcome"},
	)
	register(mm.resolveAttempts)

	mm.scenariosTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   mm.namespace,
			Name:        "scenarios_total",
			Help:        "Scenario runs by result and fault kind",
			ConstLabels: constLabels,
		},
		[]string{"scenario", "driver", "result", "fault"},
	)
	register(mm.scenariosTotal)

	mm.scenarioDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   mm.namespace,
			Name:        "scenario_duration_seconds",
			Help:        "Scenario run time including session setup and teardown",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"scenario", "driver"},
	)
	register(mm.scenarioDuration)

	mm.sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   mm.namespace,
			Name:        "sessions_active",
			Help:        "Browser sessions currently open",
			ConstLabels: constLabels,
		},
	)
	register(mm.sessionsActive)
}

var _ wait.Observer = (*MetricsManager)(nil)

// Attempt implements wait.Observer.
func (mm *MetricsManager) Attempt(condition string, _ int, err error) {
	mm.attemptsTotal.WithLabelValues(conditionLabel(condition), faultLabel(err)).Inc()
}

// Done implements wait.Observer.
func (mm *MetricsManager) Done(condition string, attempts int, elapsed time.Duration, err error) {
	outcome := outcomeLabel(err)
	mm.resolutionsTotal.WithLabelValues(conditionLabel(condition), outcome).Inc()
	mm.resolveDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	mm.resolveAttempts.WithLabelValues(outcome).Observe(float64(attempts))
}

// RecordScenario counts one finished scenario run.
func (mm *MetricsManager) RecordScenario(scenario, driver string, passed bool, err error, duration time.Duration) {
	result := "passed"
	if !passed {
		result = "failed"
	}
	fault := "none"
	if err != nil {
		fault = faults.KindOf(err).String()
	}
	mm.scenariosTotal.WithLabelValues(scenario, driver, result, fault).Inc()
	mm.scenarioDuration.WithLabelValues(scenario, driver).Observe(duration.Seconds())
}

// SessionOpened and SessionClosed track open browser sessions.
func (mm *MetricsManager) SessionOpened() { mm.sessionsActive.Inc() }

func (mm *MetricsManager) SessionClosed() { mm.sessionsActive.Dec() }

// Registry exposes the underlying registry (mainly for tests).
func (mm *MetricsManager) Registry() *prometheus.Registry {
	return mm.registry
}

// MetricsHandler returns an HTTP handler for metrics endpoint
func (mm *MetricsManager) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(mm.registry, promhttp.HandlerOpts{})
}

// StartMetricsServer serves the metrics until ctx is cancelled.
func (mm *MetricsManager) StartMetricsServer(ctx context.Context, address, path string) error {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, mm.MetricsHandler())

	server := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func faultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if wait.IsPending(err) {
		return "pending"
	}
	return faults.KindOf(err).String()
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "resolved"
	case faults.KindOf(err) == faults.KindTimeout:
		return "timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "failed"
	}
}

// conditionLabel keeps label cardinality bounded: locator values are dropped,
// only the condition kind and strategy remain.
func conditionLabel(condition string) string {
	if i := strings.Index(condition, "="); i >= 0 {
		return condition[:i]
	}
	return condition
}
