// Package explain computes additive per-feature attributions for single
// predictions: exact Shapley values over the 4-feature contract, with
// coalition values estimated against a background reference sample.
package explain

import (
	"math/bits"
	"math/rand/v2"

	"github.com/Aidin1998/taskpredict/common/errors"
	"github.com/Aidin1998/taskpredict/internal/ensemble"
	"github.com/Aidin1998/taskpredict/internal/features"
)

// maxBackground caps the reference sample for per-explanation cost.
const maxBackground = 100

// Attribution decomposes one prediction into per-feature contributions that
// sum, together with the baseline, to the point estimate.
type Attribution struct {
	Prediction    float64            `json:"predictedTime"`
	Baseline      float64            `json:"baseline"`
	Contributions map[string]float64 `json:"perFeatureContribution"`
}

// Explainer is the optional attribution capability: it exists only when a
// background sample is available for the active model.
type Explainer struct {
	model      ensemble.Model
	background [][]float64
}

// New builds an explainer over a background sample, downsampling to the
// internal cap with a fixed seed.
func New(model ensemble.Model, background []features.Example, seed uint64) (*Explainer, error) {
	if model == nil {
		return nil, errors.ErrModelNotLoaded
	}
	if len(background) == 0 {
		return nil, errors.ErrAttributionUnavailable
	}

	rows := make([][]float64, len(background))
	for i, ex := range background {
		rows[i] = ex.Features.Floats()
	}
	if len(rows) > maxBackground {
		rng := rand.New(rand.NewPCG(seed, seed^0x6c62272e07bb0142))
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		rows = rows[:maxBackground]
	}
	return &Explainer{model: model, background: rows}, nil
}

// Explain computes the exact Shapley decomposition of the prediction at v.
// With the fixed 4-feature contract all 16 coalitions are enumerated, so
// the additivity identity holds exactly up to floating rounding.
func (e *Explainer) Explain(v features.Vector) (*Attribution, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}

	x := v.Floats()
	dim := len(x)
	nCoalitions := 1 << dim

	// value[mask] is the expected prediction with masked features taken
	// from x and the rest drawn from the background sample.
	value := make([]float64, nCoalitions)
	for mask := 0; mask < nCoalitions; mask++ {
		rows := make([][]float64, len(e.background))
		for i, b := range e.background {
			row := make([]float64, dim)
			for f := 0; f < dim; f++ {
				if mask&(1<<f) != 0 {
					row[f] = x[f]
				} else {
					row[f] = b[f]
				}
			}
			rows[i] = row
		}
		preds := e.model.PredictBatch(rows)
		var sum float64
		for _, p := range preds {
			sum += p
		}
		value[mask] = sum / float64(len(preds))
	}

	phi := make([]float64, dim)
	for f := 0; f < dim; f++ {
		for mask := 0; mask < nCoalitions; mask++ {
			if mask&(1<<f) != 0 {
				continue
			}
			s := bits.OnesCount(uint(mask))
			weight := factorial(s) * factorial(dim-s-1) / factorial(dim)
			phi[f] += weight * (value[mask|(1<<f)] - value[mask])
		}
	}

	contributions := make(map[string]float64, dim)
	for i, name := range features.Names() {
		contributions[name] = phi[i]
	}

	return &Attribution{
		Prediction:    value[nCoalitions-1],
		Baseline:      value[0],
		Contributions: contributions,
	}, nil
}

func factorial(n int) float64 {
	out := 1.0
	for i := 2; i <= n; i++ {
		out *= float64(i)
	}
	return out
}
