// Package evaluation provides the shared cross-validation and regression
// metric helpers used by the training pipeline, the hyperparameter tuner
// and the significance tester.
package evaluation

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// Fitter is the minimal regressor surface evaluation needs: anything that
// can be fitted on a matrix and score a batch.
type Fitter interface {
	Fit(x [][]float64, y []float64) error
	PredictBatch(x [][]float64) []float64
}

// Builder constructs a fresh, unfitted regressor for one fold.
type Builder func() (Fitter, error)

// Fold holds index sets for one cross-validation rotation.
type Fold struct {
	Train []int
	Val   []int
}

// KFold partitions [0, n) into k shuffled folds with a fixed seed so fold
// membership is reproducible for a given dataset size.
func KFold(n, k int, seed uint64) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("k must be at least 2, got %d", k)
	}
	if n < k {
		return nil, fmt.Errorf("cannot split %d samples into %d folds", n, k)
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	rng := rand.New(rand.NewPCG(seed, seed^0xda3e39cb94b95bdb))
	rng.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

	folds := make([]Fold, k)
	for i := 0; i < k; i++ {
		lo := i * n / k
		hi := (i + 1) * n / k
		val := idx[lo:hi]
		train := make([]int, 0, n-len(val))
		train = append(train, idx[:lo]...)
		train = append(train, idx[hi:]...)
		folds[i] = Fold{Train: train, Val: val}
	}
	return folds, nil
}

// CrossValidate fits a fresh model per fold and returns per-fold R² scores
// in fold order. Folds run in parallel; the result slice is indexed by fold
// so the reduction is deterministic regardless of completion order.
func CrossValidate(ctx context.Context, build Builder, x [][]float64, y []float64, k int, seed uint64) ([]float64, error) {
	folds, err := KFold(len(y), k, seed)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(folds))
	g, ctx := errgroup.WithContext(ctx)
	for i, fold := range folds {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			model, err := build()
			if err != nil {
				return err
			}
			trainX, trainY := gather(x, y, fold.Train)
			valX, valY := gather(x, y, fold.Val)
			if err := model.Fit(trainX, trainY); err != nil {
				return fmt.Errorf("fold %d: %w", i, err)
			}
			scores[i] = RSquared(valY, model.PredictBatch(valX))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

func gather(x [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	gx := make([][]float64, len(idx))
	gy := make([]float64, len(idx))
	for i, j := range idx {
		gx[i] = x[j]
		gy[i] = y[j]
	}
	return gx, gy
}

// RSquared computes the coefficient of determination of predictions against
// observed values. A constant target yields 0.
func RSquared(observed, predicted []float64) float64 {
	mean := stat.Mean(observed, nil)
	var ssRes, ssTot float64
	for i, o := range observed {
		d := o - predicted[i]
		ssRes += d * d
		t := o - mean
		ssTot += t * t
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

// MAE computes the mean absolute error.
func MAE(observed, predicted []float64) float64 {
	var sum float64
	for i, o := range observed {
		sum += math.Abs(o - predicted[i])
	}
	return sum / float64(len(observed))
}

// RMSE computes the root mean squared error.
func RMSE(observed, predicted []float64) float64 {
	var sum float64
	for i, o := range observed {
		d := o - predicted[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(observed)))
}
