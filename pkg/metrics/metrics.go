package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PredictionsServed counts predictions by outcome (ok/error)
var PredictionsServed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "taskpredict_predictions_total",
		Help: "Total number of single predictions served",
	},
	[]string{"outcome"},
)

// BatchSize records the size distribution of batch prediction requests
var BatchSize = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "taskpredict_batch_size",
		Help:    "Number of feature vectors per batch prediction request",
		Buckets: prometheus.ExponentialBuckets(1, 4, 6),
	},
)

// TrainingRuns counts training operations by family and outcome
var TrainingRuns = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "taskpredict_training_runs_total",
		Help: "Total number of training runs",
	},
	[]string{"family", "outcome"},
)

// TrainingDuration records wall-clock training time by family
var TrainingDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "taskpredict_training_duration_seconds",
		Help:    "Wall-clock duration of training runs in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"family"},
)

// ActiveModelInfo exposes the active model family and version as labels
var ActiveModelInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "taskpredict_active_model_info",
		Help: "Set to 1 for the currently active model family and version",
	},
	[]string{"family", "version"},
)

// TuningTrials counts hyperparameter tuning trials by family
var TuningTrials = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "taskpredict_tuning_trials_total",
		Help: "Total number of hyperparameter tuning trials executed",
	},
	[]string{"family"},
)

func init() {
	prometheus.MustRegister(PredictionsServed, BatchSize)
	prometheus.MustRegister(TrainingRuns, TrainingDuration, ActiveModelInfo, TuningTrials)
}
