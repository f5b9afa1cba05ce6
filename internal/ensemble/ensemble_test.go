package ensemble

import (
	"testing"

	"github.com/Aidin1998/taskpredict/common/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trainingData(n int) (x [][]float64, y []float64) {
	// Deterministic grid with a linear-ish target; enough structure for the
	// trees to find real splits.
	for i := 0; i < n; i++ {
		size := float64(1 + i%3)
		typ := float64(1 + (i/3)%3)
		pri := float64(1 + (i/9)%5)
		load := float64(i%100)
		x = append(x, []float64{size, typ, pri, load})
		y = append(y, size*2+typ*0.5+load*0.01-pri*0.05)
	}
	return x, y
}

func TestFamilyEnum(t *testing.T) {
	assert.Equal(t, []Family{RandomForest, GradientBoosting, XGBoost}, Families())
	assert.True(t, RandomForest.Valid())
	assert.True(t, XGBoost.Valid())
	assert.False(t, Family("linear_regression").Valid())
}

func TestNew(t *testing.T) {
	t.Run("invalid family", func(t *testing.T) {
		_, err := New("neural_net", Params{})
		assert.ErrorIs(t, err, errors.ErrInvalidModelType)
	})

	t.Run("valid but unregistered family", func(t *testing.T) {
		// xgboost registers itself from its own package, which this test
		// binary does not import.
		if Supported(XGBoost) {
			t.Skip("xgboost factory registered in this binary")
		}
		_, err := New(XGBoost, DefaultParams(XGBoost))
		assert.ErrorIs(t, err, errors.ErrDependencyUnavailable)
	})

	t.Run("registered families", func(t *testing.T) {
		for _, f := range []Family{RandomForest, GradientBoosting} {
			m, err := New(f, DefaultParams(f))
			require.NoError(t, err)
			assert.Equal(t, f, m.Family())
		}
	})
}

func TestFitAndPredict(t *testing.T) {
	x, y := trainingData(300)

	for _, f := range []Family{RandomForest, GradientBoosting} {
		t.Run(string(f), func(t *testing.T) {
			m, err := New(f, DefaultParams(f))
			require.NoError(t, err)
			require.NoError(t, m.Fit(x, y))

			preds := m.PredictBatch(x)
			require.Len(t, preds, len(y))

			// In-sample fit should be tight on noise-free structured data.
			var ssRes, ssTot, mean float64
			for _, v := range y {
				mean += v
			}
			mean /= float64(len(y))
			for i := range y {
				ssRes += (y[i] - preds[i]) * (y[i] - preds[i])
				ssTot += (y[i] - mean) * (y[i] - mean)
			}
			assert.Greater(t, 1-ssRes/ssTot, 0.9)

			t.Run("single matches batch", func(t *testing.T) {
				assert.InDelta(t, preds[0], m.Predict(x[0]), 1e-9)
			})
		})
	}
}

func TestImportancesNormalized(t *testing.T) {
	x, y := trainingData(300)
	for _, f := range []Family{RandomForest, GradientBoosting} {
		t.Run(string(f), func(t *testing.T) {
			m, err := New(f, DefaultParams(f))
			require.NoError(t, err)
			require.NoError(t, m.Fit(x, y))

			imp := m.Importances()
			require.Len(t, imp, 4)
			var sum float64
			for _, v := range imp {
				assert.GreaterOrEqual(t, v, 0.0)
				sum += v
			}
			assert.InDelta(t, 1.0, sum, 1e-9)
		})
	}
}

func TestMemberPredictor(t *testing.T) {
	x, y := trainingData(120)
	for _, f := range []Family{RandomForest, GradientBoosting} {
		t.Run(string(f), func(t *testing.T) {
			m, err := New(f, DefaultParams(f))
			require.NoError(t, err)
			require.NoError(t, m.Fit(x, y))

			mp, ok := m.(MemberPredictor)
			require.True(t, ok)
			members := mp.MemberPredictBatch(x[:5])
			require.Len(t, members, DefaultParams(f).NEstimators)
			for _, row := range members {
				assert.Len(t, row, 5)
			}
		})
	}
}

func TestStateRoundTrip(t *testing.T) {
	x, y := trainingData(200)
	for _, f := range []Family{RandomForest, GradientBoosting} {
		t.Run(string(f), func(t *testing.T) {
			m, err := New(f, DefaultParams(f))
			require.NoError(t, err)
			require.NoError(t, m.Fit(x, y))

			blob, err := Marshal(m)
			require.NoError(t, err)

			restored, err := Unmarshal(blob)
			require.NoError(t, err)
			assert.Equal(t, f, restored.Family())
			assert.Equal(t, m.PredictBatch(x[:20]), restored.PredictBatch(x[:20]))
			assert.Equal(t, m.Importances(), restored.Importances())
		})
	}
}

func TestDegenerateTrainingRejected(t *testing.T) {
	m, err := New(RandomForest, DefaultParams(RandomForest))
	require.NoError(t, err)

	t.Run("empty", func(t *testing.T) {
		assert.Error(t, m.Fit(nil, nil))
	})
	t.Run("shape mismatch", func(t *testing.T) {
		assert.Error(t, m.Fit([][]float64{{1, 2, 3, 4}}, []float64{1, 2}))
	})
	t.Run("constant labels", func(t *testing.T) {
		x := [][]float64{{1, 1, 1, 1}, {2, 2, 2, 2}, {3, 3, 3, 3}}
		assert.Error(t, m.Fit(x, []float64{5, 5, 5}))
	})
}

func TestTrainingDeterministicForSeed(t *testing.T) {
	x, y := trainingData(200)
	p := DefaultParams(RandomForest)

	a, err := New(RandomForest, p)
	require.NoError(t, err)
	require.NoError(t, a.Fit(x, y))
	b, err := New(RandomForest, p)
	require.NoError(t, err)
	require.NoError(t, b.Fit(x, y))

	assert.Equal(t, a.PredictBatch(x[:30]), b.PredictBatch(x[:30]))
}
