package base

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var classifiersTrained = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "xclf_base_classifiers_trained_total",
	Help: "Base classifiers trained and written, by kind",
}, []string{"kind"})

var degenerateJobs = promauto.NewCounter(prometheus.CounterOpts{
	Name: "xclf_base_degenerate_jobs_total",
	Help: "Training jobs with a single class that produced a constant classifier",
})

var notConverged = promauto.NewCounter(prometheus.CounterOpts{
	Name: "xclf_base_not_converged_total",
	Help: "Logistic classifiers that hit the iteration limit",
})

var failedBatches = promauto.NewCounter(prometheus.CounterOpts{
	Name: "xclf_base_failed_batches_total",
	Help: "Training batches aborted by a worker failure",
})

var batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "xclf_base_batch_duration_seconds",
	Help:    "Wall time of one base classifier training batch",
	Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
})
