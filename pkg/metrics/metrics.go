// Package metrics exposes run metrics in the Prometheus text format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tokenash"

// Collector holds the metrics of a single run. All methods are safe on a
// nil receiver so callers can leave metrics disabled.
type Collector struct {
	reg *prometheus.Registry

	fetchAttempts *prometheus.CounterVec
	fetchFailures *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	providerDays  *prometheus.CounterVec

	dayTokens    *prometheus.GaugeVec
	windowTokens *prometheus.GaugeVec
	lastRun      prometheus.Gauge
}

// New registers the collector's metrics on a private registry.
func New() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),

		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "Requests sent to provider usage APIs",
		}, []string{"provider"}),

		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Provider usage requests that failed and were skipped",
		}, []string{"provider"}),

		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Provider usage request latency",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider"}),

		providerDays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merged_days_total",
			Help:      "Provider days merged into the ledger",
		}, []string{"provider"}),

		dayTokens: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "day_tokens",
			Help:      "Tokens recorded for the current day",
		}, []string{"provider"}),

		windowTokens: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_tokens",
			Help:      "Summary of per-day totals over the chart window",
		}, []string{"stat"}),

		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed run",
		}),
	}

	c.reg.MustRegister(
		c.fetchAttempts,
		c.fetchFailures,
		c.fetchDuration,
		c.providerDays,
		c.dayTokens,
		c.windowTokens,
		c.lastRun,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.reg
}

// ObserveFetch records one provider request.
func (c *Collector) ObserveFetch(provider string, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.fetchAttempts.WithLabelValues(provider).Inc()
	c.fetchDuration.WithLabelValues(provider).Observe(d.Seconds())
	if err != nil {
		c.fetchFailures.WithLabelValues(provider).Inc()
	}
}

// MergedDays counts provider days folded into the ledger.
func (c *Collector) MergedDays(provider string, n int) {
	if c == nil {
		return
	}
	c.providerDays.WithLabelValues(provider).Add(float64(n))
}

// SetDayTokens records a provider's count for the current day.
func (c *Collector) SetDayTokens(provider string, tokens int64) {
	if c == nil {
		return
	}
	c.dayTokens.WithLabelValues(provider).Set(float64(tokens))
}

// SetWindow records the chart window summary.
func (c *Collector) SetWindow(sum, mean, max int64) {
	if c == nil {
		return
	}
	c.windowTokens.WithLabelValues("sum").Set(float64(sum))
	c.windowTokens.WithLabelValues("mean").Set(float64(mean))
	c.windowTokens.WithLabelValues("max").Set(float64(max))
}

// MarkRun stamps the completion time of the run.
func (c *Collector) MarkRun(t time.Time) {
	if c == nil {
		return
	}
	c.lastRun.Set(float64(t.Unix()))
}

// WriteTextfile writes all metrics to path for the node exporter textfile
// collector.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
