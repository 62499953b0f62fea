// Package metrics exposes engine activity as Prometheus metrics.
//
// Collector implements cim.Observer; install it on the engine and every
// invocation, result evaluation, job poll and traversal is counted:
//
//	hvctl_invocations_total{method,result}
//	hvctl_invocation_duration_seconds{method}
//	hvctl_results_total{outcome}
//	hvctl_job_polls_total{class,state}
//	hvctl_jobs_total{state}
//	hvctl_job_duration_seconds
//	hvctl_traversals_total{result}
//	hvctl_traversal_paths
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/javanstorm/hvctl/pkg/cim"
)

const namespace = "hvctl"

// Collector records engine events.
type Collector struct {
	invocations        *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
	results            *prometheus.CounterVec
	jobPolls           *prometheus.CounterVec
	jobs               *prometheus.CounterVec
	jobDuration        prometheus.Histogram
	traversals         *prometheus.CounterVec
	traversalPaths     prometheus.Histogram
}

var _ cim.Observer = (*Collector)(nil)

// NewCollector creates the collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_total",
			Help:      "Remote method invocations by method and result.",
		}, []string{"method", "result"}),
		invocationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invocation_duration_seconds",
			Help:      "Duration of remote method invocations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_total",
			Help:      "Evaluated invocation results by outcome.",
		}, []string{"outcome"}),
		jobPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_polls_total",
			Help:      "Job state reads by job class and observed state.",
		}, []string{"class", "state"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Finished job waits by final state.",
		}, []string{"state"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time spent waiting for jobs.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}),
		traversals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traversals_total",
			Help:      "Graph traversals by result.",
		}, []string{"result"}),
		traversalPaths: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "traversal_paths",
			Help:      "Number of complete paths produced per traversal.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}

	reg.MustRegister(
		c.invocations,
		c.invocationDuration,
		c.results,
		c.jobPolls,
		c.jobs,
		c.jobDuration,
		c.traversals,
		c.traversalPaths,
	)
	return c
}

// InvocationFinished counts the call and records its duration.
func (c *Collector) InvocationFinished(method string, elapsed time.Duration, err error) {
	c.invocations.WithLabelValues(method, result(err)).Inc()
	c.invocationDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ResultEvaluated counts results by outcome.
func (c *Collector) ResultEvaluated(_ cim.Code, outcome cim.Outcome) {
	c.results.WithLabelValues(outcome.String()).Inc()
}

// JobPolled counts one state read.
func (c *Collector) JobPolled(class string, state cim.JobState) {
	c.jobPolls.WithLabelValues(class, state.String()).Inc()
}

// JobFinished counts the job by final state, or Timeout.
func (c *Collector) JobFinished(state cim.JobState, elapsed time.Duration, err error) {
	label := state.String()
	if errors.Is(err, cim.ErrTimeout) {
		label = "Timeout"
	}
	c.jobs.WithLabelValues(label).Inc()
	c.jobDuration.Observe(elapsed.Seconds())
}

// TraversalFinished counts the traversal and records its path count.
func (c *Collector) TraversalFinished(_, paths int, err error) {
	c.traversals.WithLabelValues(result(err)).Inc()
	if err == nil {
		c.traversalPaths.Observe(float64(paths))
	}
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

// Handler returns the /metrics handler for the registry g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// StartServer serves /metrics from g on addr until ctx ends.
func StartServer(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Debug("metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
