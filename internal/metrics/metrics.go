package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "guardian"

var (
	metricsOnce sync.Once

	signaturesTotal     *prometheus.CounterVec
	transitionsTotal    *prometheus.CounterVec
	batchItemsTotal     *prometheus.CounterVec
	gatewayDurationHist *prometheus.HistogramVec
	plaintextMode       prometheus.Gauge
	plaintextReadsTotal *prometheus.CounterVec
	sweeperExpiredTotal prometheus.Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		signaturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signing",
			Name:      "signatures_total",
			Help:      "Guardian signatures submitted, by verification result",
		}, []string{"result"})
		transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Status transitions of requests and batches",
		}, []string{"kind", "from", "to"})
		batchItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "items_executed_total",
			Help:      "Batch items attempted, by outcome",
		}, []string{"outcome"})
		gatewayDurationHist = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "call_duration_seconds",
			Help:      "Duration of execution gateway calls",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"op", "status"})
		plaintextMode = promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "plaintext_mode",
			Help:      "1 when the store runs without an encryption key",
		})
		plaintextReadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "plaintext_reads_total",
			Help:      "Blobs read through the plaintext fallback path",
		}, []string{"purpose"})
		sweeperExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "batches_expired_total",
			Help:      "Batches cancelled by the expiry sweep",
		})
	})
}

func ObserveSignature(result string) {
	initMetrics()
	signaturesTotal.WithLabelValues(result).Inc()
}

func ObserveTransition(kind string, from string, to string) {
	initMetrics()
	transitionsTotal.WithLabelValues(kind, from, to).Inc()
}

func ObserveBatchItem(outcome string) {
	initMetrics()
	batchItemsTotal.WithLabelValues(outcome).Inc()
}

func ObserveGatewayCall(op string, status string, d time.Duration) {
	initMetrics()
	gatewayDurationHist.WithLabelValues(op, status).Observe(d.Seconds())
}

func SetPlaintextMode(enabled bool) {
	initMetrics()
	if enabled {
		plaintextMode.Set(1)
		return
	}
	plaintextMode.Set(0)
}

func ObservePlaintextRead(purpose string) {
	initMetrics()
	plaintextReadsTotal.WithLabelValues(purpose).Inc()
}

func ObserveExpired(n int) {
	initMetrics()
	sweeperExpiredTotal.Add(float64(n))
}
