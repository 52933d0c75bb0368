package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector tracks publishing pipeline metrics.
type Collector struct {
	PublishSuccess  prometheus.Counter
	PublishFailure  *prometheus.CounterVec
	PublishRetries  prometheus.Counter
	PublishDuration prometheus.Histogram
	QueuePending    prometheus.Gauge
	QueueInFlight   prometheus.Gauge
	ScanBatchSize   prometheus.Histogram
}

func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		PublishSuccess: factory.NewCounter(prometheus.CounterOpts{
			Name: "snapflow_publish_success_total",
			Help: "Posts published successfully.",
		}),
		PublishFailure: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "snapflow_publish_failure_total",
			Help: "Publish attempts that failed, by error category.",
		}, []string{"category"}),
		PublishRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "snapflow_publish_retries_total",
			Help: "Publish attempts rescheduled for retry.",
		}),
		PublishDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "snapflow_publish_duration_seconds",
			Help:    "Wall time of a single publish attempt.",
			Buckets: prometheus.DefBuckets,
		}),
		QueuePending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "snapflow_queue_pending",
			Help: "Posts waiting in the publishing queue.",
		}),
		QueueInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "snapflow_queue_inflight",
			Help: "Posts currently held by a publish attempt.",
		}),
		ScanBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "snapflow_scan_batch_size",
			Help:    "Due posts found per scan tick.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		}),
	}
}

// ObservePublish records one settled publish attempt.
func (c *Collector) ObservePublish(success bool, category string, retrying bool, elapsed time.Duration) {
	c.PublishDuration.Observe(elapsed.Seconds())
	if success {
		c.PublishSuccess.Inc()
		return
	}
	c.PublishFailure.WithLabelValues(category).Inc()
	if retrying {
		c.PublishRetries.Inc()
	}
}

// Serve exposes the registry on a side listener, separate from the API
// port.
func Serve(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}
