package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "katscan_batch_fetches_total",
			Help: "Full-collection batch fetches by outcome",
		},
		[]string{"outcome"},
	)

	batchPagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "katscan_batch_pages_total",
		Help: "Pages fetched by batch fetches",
	})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "katscan_batch_duration_seconds",
		Help:    "Duration of full-collection batch fetches",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})
)
