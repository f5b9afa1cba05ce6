// Package xgb provides the alternative boosted-tree implementation:
// Newton-step leaf weights with L2 regularization and per-tree column
// subsampling. It is an optional dependency — importing this package
// registers the family; runtimes built without it reject xgboost requests.
package xgb

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/Aidin1998/taskpredict/internal/ensemble"
)

var errDegenerate = errors.New("degenerate input: fewer than 2 distinct label values")

func init() {
	ensemble.RegisterFamily(ensemble.XGBoost, func(p ensemble.Params) ensemble.Model {
		return &booster{params: p}
	})
}

// booster implements regularized Newton boosting for squared loss. It does
// not expose per-member predictions; confidence falls back to the fixed
// default for this family.
type booster struct {
	params ensemble.Params
	state  boosterState
}

type boosterState struct {
	Base        float64      `json:"base"`
	Trees       []newtonTree `json:"trees"`
	Importances []float64    `json:"importances"`
}

type newtonNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Weight    float64 `json:"w"`
}

type newtonTree struct {
	Nodes []newtonNode `json:"nodes"`
}

func (b *booster) Family() ensemble.Family { return ensemble.XGBoost }
func (b *booster) Params() ensemble.Params { return b.params }

func (b *booster) Fit(x [][]float64, y []float64) error {
	if err := checkInput(x, y); err != nil {
		return err
	}

	p := b.params
	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x8ebc6af09c88c6e3))
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

	subsample := p.Subsample
	if subsample <= 0 || subsample > 1 {
		subsample = 1
	}
	colsample := p.ColsampleByTree
	if colsample <= 0 || colsample > 1 {
		colsample = 1
	}
	lambda := p.Lambda
	if lambda < 0 {
		lambda = 0
	}

	grad := make([]float64, n)
	trees := make([]newtonTree, 0, p.NEstimators)
	for m := 0; m < p.NEstimators; m++ {
		// Squared loss: gradient = prediction - label, hessian = 1.
		for i := range grad {
			grad[i] = current[i] - y[i]
		}

		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		if subsample < 1 {
			rng.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
			idx = idx[:max(2, int(float64(n)*subsample))]
		}

		cols := columnSubset(rng, dim, colsample)
		builder := &treeBuilder{
			x: x, grad: grad,
			maxDepth:      p.MaxDepth,
			minSplit:      p.MinSamplesSplit,
			minLeaf:       p.MinSamplesLeaf,
			lambda:        lambda,
			candidateCols: cols,
			gains:         gains,
		}
		tree := builder.build(idx)
		trees = append(trees, tree)
		for i, row := range x {
			current[i] += p.LearningRate * tree.score(row)
		}
	}

	b.state = boosterState{Base: base, Trees: trees, Importances: normalize(gains)}
	return nil
}

func (b *booster) Predict(x []float64) float64 {
	out := b.state.Base
	for i := range b.state.Trees {
		out += b.params.LearningRate * b.state.Trees[i].score(x)
	}
	return out
}

func (b *booster) PredictBatch(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = b.Predict(row)
	}
	return out
}

func (b *booster) Importances() []float64 { return b.state.Importances }

func (b *booster) MarshalState() ([]byte, error) { return json.Marshal(b.state) }

func (b *booster) UnmarshalState(data []byte) error { return json.Unmarshal(data, &b.state) }

// treeBuilder grows one Newton tree over the gradient statistics.
type treeBuilder struct {
	x             [][]float64
	grad          []float64
	maxDepth      int
	minSplit      int
	minLeaf       int
	lambda        float64
	candidateCols []int
	gains         []float64
}

func (tb *treeBuilder) build(idx []int) newtonTree {
	t := newtonTree{}
	tb.grow(&t, idx, 0)
	return t
}

func (tb *treeBuilder) grow(t *newtonTree, idx []int, depth int) int {
	var sumG float64
	for _, i := range idx {
		sumG += tb.grad[i]
	}
	sumH := float64(len(idx)) // unit hessians for squared loss
	weight := -sumG / (sumH + tb.lambda)

	if depth >= tb.maxDepth || len(idx) < tb.minSplit {
		return t.leaf(weight)
	}

	feature, threshold, gain := tb.bestSplit(idx, sumG, sumH)
	if feature < 0 {
		return t.leaf(weight)
	}
	tb.gains[feature] += gain

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if tb.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	node := len(t.Nodes)
	t.Nodes = append(t.Nodes, newtonNode{Feature: feature, Threshold: threshold, Weight: weight})
	l := tb.grow(t, left, depth+1)
	r := tb.grow(t, right, depth+1)
	t.Nodes[node].Left = l
	t.Nodes[node].Right = r
	return node
}

// bestSplit maximizes the regularized structure-score gain
// 0.5 * (GL²/(HL+λ) + GR²/(HR+λ) − G²/(H+λ)).
func (tb *treeBuilder) bestSplit(idx []int, sumG, sumH float64) (int, float64, float64) {
	n := len(idx)
	parent := sumG * sumG / (sumH + tb.lambda)

	bestFeature := -1
	bestThreshold := 0.0
	bestGain := 1e-12

	order := make([]int, n)
	for _, f := range tb.candidateCols {
		copy(order, idx)
		sort.Slice(order, func(a, b int) bool { return tb.x[order[a]][f] < tb.x[order[b]][f] })

		var gl float64
		for k := 1; k < n; k++ {
			gl += tb.grad[order[k-1]]

			prev, cur := tb.x[order[k-1]][f], tb.x[order[k]][f]
			if prev == cur {
				continue
			}
			if k < tb.minLeaf || n-k < tb.minLeaf {
				continue
			}

			hl := float64(k)
			gr := sumG - gl
			hr := sumH - hl
			gain := 0.5 * (gl*gl/(hl+tb.lambda) + gr*gr/(hr+tb.lambda) - parent)
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = prev + (cur-prev)/2
			}
		}
	}
	if bestFeature < 0 {
		return -1, 0, 0
	}
	return bestFeature, bestThreshold, bestGain
}

func (t *newtonTree) leaf(weight float64) int {
	t.Nodes = append(t.Nodes, newtonNode{Feature: -1, Weight: weight})
	return len(t.Nodes) - 1
}

func (t *newtonTree) score(x []float64) float64 {
	node := 0
	for {
		nd := t.Nodes[node]
		if nd.Feature < 0 {
			return nd.Weight
		}
		if x[nd.Feature] <= nd.Threshold {
			node = nd.Left
		} else {
			node = nd.Right
		}
	}
}

func columnSubset(rng *rand.Rand, dim int, colsample float64) []int {
	k := max(1, int(float64(dim)*colsample))
	if k >= dim {
		cols := make([]int, dim)
		for i := range cols {
			cols[i] = i
		}
		return cols
	}
	return append([]int(nil), rng.Perm(dim)[:k]...)
}

func checkInput(x [][]float64, y []float64) error {
	if len(x) == 0 || len(y) == 0 || len(x) != len(y) {
		return fmt.Errorf("feature rows (%d) and labels (%d) are empty or differ", len(x), len(y))
	}
	distinct := false
	for i := 1; i < len(y); i++ {
		if y[i] != y[0] {
			distinct = true
			break
		}
	}
	if !distinct {
		return errDegenerate
	}
	return nil
}

func normalize(gains []float64) []float64 {
	out := append([]float64(nil), gains...)
	var total float64
	for _, g := range out {
		total += g
	}
	if total <= 0 {
		for i := range out {
			out[i] = 1 / float64(len(out))
		}
		return out
	}
	for i := range out {
		out[i] /= total
	}
	return out
}
