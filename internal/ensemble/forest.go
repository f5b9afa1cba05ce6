package ensemble

import (
	"encoding/json"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// forest is a bootstrap-aggregated ensemble of regression trees. It exposes
// per-member predictions, which the prediction service turns into an
// ensemble-disagreement confidence score.
type forest struct {
	params Params
	state  forestState
}

type forestState struct {
	Trees       []*regressionTree `json:"trees"`
	Importances []float64         `json:"importances"`
}

func newForest(p Params) *forest { return &forest{params: p} }

func (f *forest) Family() Family { return RandomForest }
func (f *forest) Params() Params { return f.params }

func (f *forest) Fit(x [][]float64, y []float64) error {
	if err := checkTrainable(x, y); err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(f.params.Seed, f.params.Seed^0xa0761d6478bd642f))
	n := len(y)
	dim := len(x[0])
	gains := make([]float64, dim)
	trees := make([]*regressionTree, f.params.NEstimators)

	cfg := treeConfig{
		maxDepth:        f.params.MaxDepth,
		minSamplesSplit: f.params.MinSamplesSplit,
		minSamplesLeaf:  f.params.MinSamplesLeaf,
	}

	for m := range trees {
		sample := make([]int, n)
		for i := range sample {
			sample[i] = rng.IntN(n)
		}
		if f.params.MaxFeatures > 0 && f.params.MaxFeatures < dim {
			cfg.features = sampleColumns(rng, dim, f.params.MaxFeatures)
		}
		trees[m] = fitTree(x, y, sample, cfg, gains)
	}

	f.state = forestState{Trees: trees, Importances: normalizeGains(gains)}
	return nil
}

func (f *forest) Predict(x []float64) float64 {
	var sum float64
	for _, t := range f.state.Trees {
		sum += t.predict(x)
	}
	return sum / float64(len(f.state.Trees))
}

func (f *forest) PredictBatch(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for _, t := range f.state.Trees {
		for i, row := range x {
			out[i] += t.predict(row)
		}
	}
	floats.Scale(1/float64(len(f.state.Trees)), out)
	return out
}

// MemberPredictBatch returns one prediction row per tree.
func (f *forest) MemberPredictBatch(x [][]float64) [][]float64 {
	out := make([][]float64, len(f.state.Trees))
	for m, t := range f.state.Trees {
		out[m] = t.predictBatch(x)
	}
	return out
}

func (f *forest) Importances() []float64 { return f.state.Importances }

func (f *forest) MarshalState() ([]byte, error) { return json.Marshal(f.state) }

func (f *forest) UnmarshalState(data []byte) error { return json.Unmarshal(data, &f.state) }

// sampleColumns draws k distinct column indices.
func sampleColumns(rng *rand.Rand, dim, k int) []int {
	perm := rng.Perm(dim)
	cols := append([]int(nil), perm[:k]...)
	return cols
}

// normalizeGains scales accumulated split gains to sum to 1, falling back to
// a uniform vector when the ensemble produced no informative splits.
func normalizeGains(gains []float64) []float64 {
	out := append([]float64(nil), gains...)
	total := floats.Sum(out)
	if total <= 0 {
		for i := range out {
			out[i] = 1 / float64(len(out))
		}
		return out
	}
	floats.Scale(1/total, out)
	return out
}
