package models

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rowsPredicted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xclf",
		Subsystem: "models",
		Name:      "rows_predicted_total",
		Help:      "Rows predicted in batch, by model type.",
	}, []string{"model"})

	batchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "xclf",
		Subsystem: "models",
		Name:      "predict_batch_duration_seconds",
		Help:      "Wall time of one batch prediction.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	})

	modelsTrained = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xclf",
		Subsystem: "models",
		Name:      "trained_total",
		Help:      "Models trained and committed, by model type.",
	}, []string{"model"})
)
