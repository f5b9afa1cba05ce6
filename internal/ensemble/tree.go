package ensemble

import "sort"

// treeNode is one node of a serialized regression tree. Feature is -1 for
// leaves; Left/Right index into the owning tree's node slice.
type treeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

type regressionTree struct {
	Nodes []treeNode `json:"nodes"`
}

// treeConfig bounds the growth of a single CART regression tree.
type treeConfig struct {
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	// features restricts split candidates to a column subset; nil means all.
	features []int
}

// fitTree grows an SSE-minimizing regression tree over the rows named by
// idx. Split gains are accumulated into gains (indexed by feature) when the
// caller tracks importances.
func fitTree(x [][]float64, y []float64, idx []int, cfg treeConfig, gains []float64) *regressionTree {
	t := &regressionTree{}
	candidates := cfg.features
	if candidates == nil {
		candidates = make([]int, len(x[0]))
		for i := range candidates {
			candidates[i] = i
		}
	}
	t.build(x, y, idx, 0, cfg, candidates, gains)
	return t
}

// build appends the subtree for idx and returns its root node index.
func (t *regressionTree) build(x [][]float64, y []float64, idx []int, depth int, cfg treeConfig, candidates []int, gains []float64) int {
	sum, sumSq := 0.0, 0.0
	for _, i := range idx {
		sum += y[i]
		sumSq += y[i] * y[i]
	}
	n := float64(len(idx))
	mean := sum / n
	sse := sumSq - sum*sum/n

	if depth >= cfg.maxDepth || len(idx) < cfg.minSamplesSplit || sse <= 1e-12 {
		return t.leaf(mean)
	}

	feature, threshold, gain := bestSplit(x, y, idx, candidates, cfg.minSamplesLeaf, sum, sumSq)
	if feature < 0 {
		return t.leaf(mean)
	}
	if gains != nil {
		gains[feature] += gain
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	node := len(t.Nodes)
	t.Nodes = append(t.Nodes, treeNode{Feature: feature, Threshold: threshold, Value: mean})
	l := t.build(x, y, left, depth+1, cfg, candidates, gains)
	r := t.build(x, y, right, depth+1, cfg, candidates, gains)
	t.Nodes[node].Left = l
	t.Nodes[node].Right = r
	return node
}

func (t *regressionTree) leaf(value float64) int {
	t.Nodes = append(t.Nodes, treeNode{Feature: -1, Value: value})
	return len(t.Nodes) - 1
}

// bestSplit scans every candidate feature for the threshold with the largest
// SSE reduction, honoring the minimum leaf size on both sides. It returns
// feature -1 when no valid split improves on the parent.
func bestSplit(x [][]float64, y []float64, idx, candidates []int, minLeaf int, sum, sumSq float64) (int, float64, float64) {
	n := len(idx)
	parentSSE := sumSq - sum*sum/float64(n)

	bestFeature := -1
	bestThreshold := 0.0
	bestGain := 1e-12

	order := make([]int, n)
	for _, f := range candidates {
		copy(order, idx)
		sort.Slice(order, func(a, b int) bool { return x[order[a]][f] < x[order[b]][f] })

		leftSum, leftSumSq := 0.0, 0.0
		for k := 1; k < n; k++ {
			yi := y[order[k-1]]
			leftSum += yi
			leftSumSq += yi * yi

			prev, cur := x[order[k-1]][f], x[order[k]][f]
			if prev == cur {
				continue
			}
			if k < minLeaf || n-k < minLeaf {
				continue
			}

			rightSum := sum - leftSum
			rightSumSq := sumSq - leftSumSq
			sseL := leftSumSq - leftSum*leftSum/float64(k)
			sseR := rightSumSq - rightSum*rightSum/float64(n-k)
			gain := parentSSE - sseL - sseR
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

func (t *regressionTree) predict(x []float64) float64 {
	node := 0
	for {
		nd := t.Nodes[node]
		if nd.Feature < 0 {
			return nd.Value
		}
		if x[nd.Feature] <= nd.Threshold {
			node = nd.Left
		} else {
			node = nd.Right
		}
	}
}

func (t *regressionTree) predictBatch(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = t.predict(row)
	}
	return out
}
