// Package tuning implements sequential model-based hyperparameter search
// over the fixed per-family parameter spaces, scored by mean k-fold
// cross-validated R². The sampler follows the tree-structured Parzen
// estimator scheme: observed trials are split into good and bad sets and
// candidates are drawn where the good-density to bad-density ratio is
// largest.
package tuning

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/Aidin1998/taskpredict/common/errors"
	"github.com/Aidin1998/taskpredict/internal/ensemble"
	"github.com/Aidin1998/taskpredict/internal/evaluation"
	"github.com/Aidin1998/taskpredict/internal/features"
	"github.com/Aidin1998/taskpredict/pkg/metrics"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// MaxTrials hard-caps the trial budget to bound tuning cost.
	MaxTrials = 200

	folds         = 5
	startupTrials = 10
	nCandidates   = 24
	gamma         = 0.25
)

// Result reports the best assignment found.
type Result struct {
	Family     string             `json:"model_type"`
	BestParams map[string]float64 `json:"best_params"`
	Params     ensemble.Params    `json:"-"`
	BestScore  float64            `json:"best_score"`
	Trials     int                `json:"trials"`
}

type trial struct {
	assignment map[string]float64
	score      float64
}

// Tuner runs sequential model-based search for one family on one dataset.
type Tuner struct {
	logger *zap.Logger
	seed   uint64
}

// NewTuner creates a tuner; seed fixes both fold splitting and sampling.
func NewTuner(logger *zap.Logger, seed uint64) *Tuner {
	return &Tuner{logger: logger, seed: seed}
}

// Tune runs up to trials evaluations and returns the best assignment and
// its mean cross-validated R².
func (t *Tuner) Tune(ctx context.Context, family ensemble.Family, examples []features.Example, trials int) (*Result, error) {
	if !family.Valid() {
		return nil, fmt.Errorf("%w: %q", errors.ErrUnsupportedFamily, family)
	}
	if !ensemble.Supported(family) {
		return nil, fmt.Errorf("%w: family %q", errors.ErrDependencyUnavailable, family)
	}
	if trials < 1 {
		return nil, errors.NewValidationError("trials", "must be at least 1")
	}
	if trials > MaxTrials {
		trials = MaxTrials
	}
	for i, ex := range examples {
		if err := ex.Validate(); err != nil {
			return nil, errors.NewItemValidationError(i, "data", err.Error())
		}
	}

	x, y := features.Matrix(examples)
	space := searchSpace(family)
	rng := rand.New(rand.NewPCG(t.seed, t.seed^0x2545f4914f6cdd1d))

	history := make([]trial, 0, trials)
	best := trial{score: math.Inf(-1)}

	for i := 0; i < trials; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var assignment map[string]float64
		if len(history) < startupTrials {
			assignment = sampleUniform(rng, space)
		} else {
			assignment = sampleTPE(rng, space, history)
		}

		params := assignParams(family, assignment, t.seed)
		score, err := t.objective(ctx, family, params, x, y)
		if err != nil {
			return nil, err
		}
		metrics.TuningTrials.WithLabelValues(string(family)).Inc()

		history = append(history, trial{assignment: assignment, score: score})
		if score > best.score {
			best = history[len(history)-1]
			t.logger.Debug("tuning improved",
				zap.String("family", string(family)),
				zap.Int("trial", i+1),
				zap.Float64("score", score))
		}
	}

	return &Result{
		Family:     string(family),
		BestParams: best.assignment,
		Params:     assignParams(family, best.assignment, t.seed),
		BestScore:  best.score,
		Trials:     len(history),
	}, nil
}

func (t *Tuner) objective(ctx context.Context, family ensemble.Family, params ensemble.Params, x [][]float64, y []float64) (float64, error) {
	build := func() (evaluation.Fitter, error) {
		return ensemble.New(family, params)
	}
	scores, err := evaluation.CrossValidate(ctx, build, x, y, folds, t.seed)
	if err != nil {
		return 0, err
	}
	return stat.Mean(scores, nil), nil
}

func sampleUniform(rng *rand.Rand, space []dimension) map[string]float64 {
	out := make(map[string]float64, len(space))
	for _, d := range space {
		switch d.kind {
		case kindChoice:
			out[d.name] = d.options[rng.IntN(len(d.options))]
		case kindInt:
			out[d.name] = d.lo + float64(rng.IntN(int(d.hi-d.lo)+1))
		case kindLogFloat:
			out[d.name] = math.Exp(math.Log(d.lo) + rng.Float64()*(math.Log(d.hi)-math.Log(d.lo)))
		default:
			out[d.name] = d.lo + rng.Float64()*(d.hi-d.lo)
		}
	}
	return out
}

// sampleTPE draws candidates from a kernel estimate over the good trials
// and keeps the one with the highest good/bad density ratio.
func sampleTPE(rng *rand.Rand, space []dimension, history []trial) map[string]float64 {
	sorted := append([]trial(nil), history...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].score > sorted[j].score })
	nGood := max(1, int(float64(len(sorted))*gamma))
	good, bad := sorted[:nGood], sorted[nGood:]

	bestScore := math.Inf(-1)
	var bestAssignment map[string]float64
	for c := 0; c < nCandidates; c++ {
		candidate := make(map[string]float64, len(space))
		logRatio := 0.0
		for _, d := range space {
			v := drawFromSet(rng, d, good)
			candidate[d.name] = v
			logRatio += logDensity(d, good, v) - logDensity(d, bad, v)
		}
		if logRatio > bestScore {
			bestScore = logRatio
			bestAssignment = candidate
		}
	}
	return bestAssignment
}

// drawFromSet picks a random observation from the set and perturbs it with
// the kernel bandwidth, clipped back into range.
func drawFromSet(rng *rand.Rand, d dimension, set []trial) float64 {
	if d.kind == kindChoice {
		// Sample categories proportionally to their smoothed frequency.
		weights := categoryWeights(d, set)
		r := rng.Float64()
		acc := 0.0
		for i, w := range weights {
			acc += w
			if r <= acc {
				return d.options[i]
			}
		}
		return d.options[len(d.options)-1]
	}

	center := d.transform(set[rng.IntN(len(set))].assignment[d.name])
	v := d.clip(center + rng.NormFloat64()*bandwidth(d, set))
	v = d.untransform(v)
	if d.kind == kindInt {
		v = math.Round(math.Min(math.Max(v, d.lo), d.hi))
	}
	return v
}

func bandwidth(d dimension, set []trial) float64 {
	lo, hi := d.lo, d.hi
	if d.kind == kindLogFloat {
		lo, hi = math.Log(d.lo), math.Log(d.hi)
	}
	return (hi - lo) / math.Sqrt(float64(len(set))+1)
}

func logDensity(d dimension, set []trial, v float64) float64 {
	if len(set) == 0 {
		return 0
	}
	if d.kind == kindChoice {
		weights := categoryWeights(d, set)
		for i, opt := range d.options {
			if opt == v {
				return math.Log(weights[i])
			}
		}
		return math.Log(1e-12)
	}

	bw := bandwidth(d, set)
	tv := d.transform(v)
	var density float64
	for _, tr := range set {
		kernel := distuv.Normal{Mu: d.transform(tr.assignment[d.name]), Sigma: bw}
		density += kernel.Prob(tv)
	}
	return math.Log(density/float64(len(set)) + 1e-300)
}

func categoryWeights(d dimension, set []trial) []float64 {
	counts := make([]float64, len(d.options))
	for i := range counts {
		counts[i] = 1 // add-one smoothing
	}
	for _, tr := range set {
		for i, opt := range d.options {
			if tr.assignment[d.name] == opt {
				counts[i]++
			}
		}
	}
	total := 0.0
	for _, c := range counts {
		total += c
	}
	for i := range counts {
		counts[i] /= total
	}
	return counts
}
