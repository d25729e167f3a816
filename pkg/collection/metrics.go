package collection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	paginatorFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "katscan_paginator_fetches_total",
		Help: "Paginator fetches by kind (initial, more) and outcome (success, error, stale, cached)",
	}, []string{"kind", "outcome"})

	paginatorStaleTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "katscan_paginator_stale_responses_total",
		Help: "Responses discarded because a newer request was issued",
	})

	paginatorCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "katscan_paginator_cache_hits_total",
		Help: "Pages served from the paginator page cache",
	})

	paginatorFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "katscan_paginator_fetch_duration_seconds",
		Help:    "Page fetch duration as seen by the paginator",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"kind"})
)
