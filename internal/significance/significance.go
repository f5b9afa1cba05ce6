// Package significance compares two model configurations with a paired
// t-test over per-fold cross-validation scores. The paired design controls
// for per-fold data variance, answering whether one family is meaningfully
// better than another rather than which mean happens to be higher.
package significance

import (
	"context"
	"math"

	"github.com/Aidin1998/taskpredict/common/errors"
	"github.com/Aidin1998/taskpredict/internal/ensemble"
	"github.com/Aidin1998/taskpredict/internal/evaluation"
	"github.com/Aidin1998/taskpredict/internal/features"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Alpha is the fixed significance threshold.
const Alpha = 0.05

// Comparison reports a paired model comparison.
type Comparison struct {
	FamilyA     string    `json:"model_a"`
	FamilyB     string    `json:"model_b"`
	MeanA       float64   `json:"model_a_mean_r2"`
	MeanB       float64   `json:"model_b_mean_r2"`
	ScoresA     []float64 `json:"model_a_fold_r2"`
	ScoresB     []float64 `json:"model_b_fold_r2"`
	TStatistic  float64   `json:"t_statistic"`
	PValue      float64   `json:"p_value"`
	Significant bool      `json:"significant"`
	Folds       int       `json:"folds"`
}

// Compare cross-validates both families on identical fold splits and runs a
// two-sided paired t-test on the per-fold R² sequences.
func Compare(ctx context.Context, familyA, familyB ensemble.Family, examples []features.Example, k int, seed uint64) (*Comparison, error) {
	for _, f := range []ensemble.Family{familyA, familyB} {
		if !f.Valid() {
			return nil, errors.ErrInvalidModelType
		}
		if !ensemble.Supported(f) {
			return nil, errors.ErrDependencyUnavailable
		}
	}
	for i, ex := range examples {
		if err := ex.Validate(); err != nil {
			return nil, errors.NewItemValidationError(i, "data", err.Error())
		}
	}

	x, y := features.Matrix(examples)
	buildFor := func(f ensemble.Family) evaluation.Builder {
		return func() (evaluation.Fitter, error) {
			return ensemble.New(f, ensemble.DefaultParams(f))
		}
	}

	// The shared seed yields identical fold membership for both families,
	// which is what makes the test paired.
	scoresA, err := evaluation.CrossValidate(ctx, buildFor(familyA), x, y, k, seed)
	if err != nil {
		return nil, err
	}
	scoresB, err := evaluation.CrossValidate(ctx, buildFor(familyB), x, y, k, seed)
	if err != nil {
		return nil, err
	}

	t, p := PairedTTest(scoresA, scoresB)
	return &Comparison{
		FamilyA:     string(familyA),
		FamilyB:     string(familyB),
		MeanA:       stat.Mean(scoresA, nil),
		MeanB:       stat.Mean(scoresB, nil),
		ScoresA:     scoresA,
		ScoresB:     scoresB,
		TStatistic:  t,
		PValue:      p,
		Significant: p < Alpha,
		Folds:       k,
	}, nil
}

// PairedTTest returns the t statistic and two-sided p-value for paired
// samples a and b. Identical sequences yield t=0, p=1.
func PairedTTest(a, b []float64) (tStat, pValue float64) {
	n := len(a)
	diffs := make([]float64, n)
	for i := range diffs {
		diffs[i] = a[i] - b[i]
	}
	mean := stat.Mean(diffs, nil)
	sd := stat.StdDev(diffs, nil)

	if sd == 0 || math.IsNaN(sd) {
		if mean == 0 {
			return 0, 1
		}
		return math.Inf(sign(mean)), 0
	}

	tStat = mean / (sd / math.Sqrt(float64(n)))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}
	pValue = 2 * dist.CDF(-math.Abs(tStat))
	return tStat, pValue
}

func sign(v float64) int {
	if v < 0 {
		return -1
	}
	return 1
}
