package tuning

import (
	"math"

	"github.com/Aidin1998/taskpredict/internal/ensemble"
)

type paramKind int

const (
	kindInt paramKind = iota
	kindFloat
	kindLogFloat
	kindChoice
)

// dimension is one searchable hyperparameter with its fixed range.
type dimension struct {
	name    string
	kind    paramKind
	lo, hi  float64
	options []float64
}

// transform maps a raw value into the space the kernel estimator works in
// (log space for log-uniform dimensions).
func (d dimension) transform(v float64) float64 {
	if d.kind == kindLogFloat {
		return math.Log(v)
	}
	return v
}

func (d dimension) untransform(v float64) float64 {
	if d.kind == kindLogFloat {
		return math.Exp(v)
	}
	return v
}

func (d dimension) clip(v float64) float64 {
	lo, hi := d.lo, d.hi
	if d.kind == kindLogFloat {
		lo, hi = math.Log(d.lo), math.Log(d.hi)
	}
	return math.Min(math.Max(v, lo), hi)
}

// searchSpace returns the fixed per-family parameter space.
func searchSpace(family ensemble.Family) []dimension {
	switch family {
	case ensemble.GradientBoosting:
		return []dimension{
			{name: "n_estimators", kind: kindInt, lo: 50, hi: 300},
			{name: "max_depth", kind: kindInt, lo: 3, hi: 15},
			{name: "learning_rate", kind: kindLogFloat, lo: 0.01, hi: 0.3},
			{name: "min_samples_split", kind: kindInt, lo: 2, hi: 20},
			{name: "min_samples_leaf", kind: kindInt, lo: 1, hi: 10},
			{name: "subsample", kind: kindFloat, lo: 0.6, hi: 1.0},
		}
	case ensemble.XGBoost:
		return []dimension{
			{name: "n_estimators", kind: kindInt, lo: 50, hi: 300},
			{name: "max_depth", kind: kindInt, lo: 3, hi: 15},
			{name: "learning_rate", kind: kindLogFloat, lo: 0.01, hi: 0.3},
			{name: "min_samples_leaf", kind: kindInt, lo: 1, hi: 10},
			{name: "subsample", kind: kindFloat, lo: 0.6, hi: 1.0},
			{name: "colsample_bytree", kind: kindFloat, lo: 0.5, hi: 1.0},
			{name: "lambda", kind: kindLogFloat, lo: 1e-8, hi: 10},
		}
	default: // random forest
		return []dimension{
			{name: "n_estimators", kind: kindInt, lo: 50, hi: 300},
			{name: "max_depth", kind: kindInt, lo: 3, hi: 20},
			{name: "min_samples_split", kind: kindInt, lo: 2, hi: 20},
			{name: "min_samples_leaf", kind: kindInt, lo: 1, hi: 10},
			{name: "max_features", kind: kindChoice, options: []float64{0, 2, 3}},
		}
	}
}

// assignParams converts a sampled assignment into concrete hyperparameters,
// starting from the family defaults for anything outside the search space.
func assignParams(family ensemble.Family, sample map[string]float64, seed uint64) ensemble.Params {
	p := ensemble.DefaultParams(family)
	p.Seed = seed
	for name, v := range sample {
		switch name {
		case "n_estimators":
			p.NEstimators = int(math.Round(v))
		case "max_depth":
			p.MaxDepth = int(math.Round(v))
		case "min_samples_split":
			p.MinSamplesSplit = int(math.Round(v))
		case "min_samples_leaf":
			p.MinSamplesLeaf = int(math.Round(v))
		case "max_features":
			p.MaxFeatures = int(math.Round(v))
		case "learning_rate":
			p.LearningRate = v
		case "subsample":
			p.Subsample = v
		case "colsample_bytree":
			p.ColsampleByTree = v
		case "lambda":
			p.Lambda = v
		}
	}
	return p
}
