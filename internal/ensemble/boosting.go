package ensemble

import (
	"encoding/json"
	"math/rand/v2"
)

// boosting implements stage-wise gradient boosting for squared loss: each
// stage fits a shallow tree to the current residuals and is shrunk by the
// learning rate. Per-stage trees are exposed as ensemble members.
type boosting struct {
	params Params
	state  boostingState
}

type boostingState struct {
	Base        float64           `json:"base"`
	Trees       []*regressionTree `json:"trees"`
	Importances []float64         `json:"importances"`
}

func newBoosting(p Params) *boosting { return &boosting{params: p} }

func (b *boosting) Family() Family { return GradientBoosting }
func (b *boosting) Params() Params { return b.params }

func (b *boosting) Fit(x [][]float64, y []float64) error {
	if err := checkTrainable(x, y); err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(b.params.Seed, b.params.Seed^0xe7037ed1a0b428db))
	n := len(y)
	dim := len(x[0])
	gains := make([]float64, dim)

	var base float64
	for _, v := range y {
		base += v
	}
	base /= float64(n)

	current := make([]float64, n)
	for i := range current {
		current[i] = base
	}
	residual := make([]float64, n)

	cfg := treeConfig{
		maxDepth:        b.params.MaxDepth,
		minSamplesSplit: b.params.MinSamplesSplit,
		minSamplesLeaf:  b.params.MinSamplesLeaf,
	}

	subsample := b.params.Subsample
	if subsample <= 0 || subsample > 1 {
		subsample = 1
	}

	trees := make([]*regressionTree, 0, b.params.NEstimators)
	for m := 0; m < b.params.NEstimators; m++ {
		for i := range residual {
			residual[i] = y[i] - current[i]
		}

		idx := allRows(n)
		if subsample < 1 {
			rng.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
			idx = idx[:max(2, int(float64(n)*subsample))]
		}

		tree := fitTree(x, residual, idx, cfg, gains)
		trees = append(trees, tree)
		for i, row := range x {
			current[i] += b.params.LearningRate * tree.predict(row)
		}
	}

	b.state = boostingState{Base: base, Trees: trees, Importances: normalizeGains(gains)}
	return nil
}

func (b *boosting) Predict(x []float64) float64 {
	out := b.state.Base
	for _, t := range b.state.Trees {
		out += b.params.LearningRate * t.predict(x)
	}
	return out
}

func (b *boosting) PredictBatch(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i := range out {
		out[i] = b.state.Base
	}
	for _, t := range b.state.Trees {
		for i, row := range x {
			out[i] += b.params.LearningRate * t.predict(row)
		}
	}
	return out
}

// MemberPredictBatch returns the raw per-stage tree outputs.
func (b *boosting) MemberPredictBatch(x [][]float64) [][]float64 {
	out := make([][]float64, len(b.state.Trees))
	for m, t := range b.state.Trees {
		out[m] = t.predictBatch(x)
	}
	return out
}

func (b *boosting) Importances() []float64 { return b.state.Importances }

func (b *boosting) MarshalState() ([]byte, error) { return json.Marshal(b.state) }

func (b *boosting) UnmarshalState(data []byte) error { return json.Unmarshal(data, &b.state) }

func allRows(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
