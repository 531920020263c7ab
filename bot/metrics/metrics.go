// Package metrics exports dialogue and delivery metrics to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/m3rciful/intakebot/bot/intake"
	"github.com/m3rciful/intakebot/core/logger"
)

const namespace = "intakebot"

// Config controls the metrics endpoint. An empty Listen disables it.
type Config struct {
	Listen string `yaml:"listen" envconfig:"METRICS_LISTEN"`
	Path   string `yaml:"path" envconfig:"METRICS_PATH"`
}

// Enabled reports whether the endpoint should be served.
func (c Config) Enabled() bool { return c.Listen != "" }

// Normalize fills defaults.
func (c *Config) Normalize() {
	if c.Path == "" {
		c.Path = "/metrics"
	}
}

// Recorder implements intake.Observer with Prometheus metrics kept in its own registry.
type Recorder struct {
	registry *prometheus.Registry

	transitions   *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	deliveryTime  prometheus.Histogram
	cancellations *prometheus.CounterVec
	expirations   prometheus.Counter
}

var _ intake.Observer = (*Recorder)(nil)

// NewRecorder creates a Recorder with Go runtime and process collectors registered.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Dialogue state transitions",
			},
			[]string{"from", "to"},
		),
		rejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejections_total",
				Help:      "Inputs rejected by state and reason",
			},
			[]string{"state", "reason"},
		),
		deliveries: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deliveries_total",
				Help:      "Delivery attempts by status",
			},
			[]string{"status"},
		),
		deliveryTime: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "delivery_duration_seconds",
				Help:      "Time spent forwarding a submission to the operator chat",
				Buckets:   prometheus.DefBuckets,
			},
		),
		cancellations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cancellations_total",
				Help:      "Dialogues cancelled by state",
			},
			[]string{"state"},
		),
		expirations: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "expired_sessions_total",
				Help:      "Sessions dropped by the idle sweep",
			},
		),
	}
}

// Registry returns the registry backing the recorder.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Transition counts a state change.
func (r *Recorder) Transition(from, to intake.State) {
	r.transitions.WithLabelValues(from.String(), to.String()).Inc()
}

// Rejected counts a rejected input.
func (r *Recorder) Rejected(state intake.State, reason string) {
	r.rejections.WithLabelValues(state.String(), reason).Inc()
}

// Delivered records the result and duration of a delivery attempt.
func (r *Recorder) Delivered(took time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "fail"
	}
	r.deliveries.WithLabelValues(status).Inc()
	r.deliveryTime.Observe(took.Seconds())
}

// Cancelled counts a cancelled dialogue.
func (r *Recorder) Cancelled(state intake.State) {
	r.cancellations.WithLabelValues(state.String()).Inc()
}

// Expired counts sessions removed by the sweep.
func (r *Recorder) Expired(n int) {
	r.expirations.Add(float64(n))
}

// GaugeFunc exposes a value read at scrape time, such as the number of open sessions.
func (r *Recorder) GaugeFunc(name, help string, fn func() float64) {
	promauto.With(r.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn)
}

// CounterFunc exposes a monotonically increasing value read at scrape time.
func (r *Recorder) CounterFunc(name, help string, fn func() float64) {
	promauto.With(r.registry).NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn)
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Serve runs the metrics endpoint until ctx is done.
func (r *Recorder) Serve(ctx context.Context, cfg Config) error {
	cfg.Normalize()
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, r.Handler())
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info(ctx, "metrics", "metrics.listen",
		slog.String("listen", cfg.Listen),
		slog.String("path", cfg.Path),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics shutdown: %w", err)
		}
		return nil
	}
}
