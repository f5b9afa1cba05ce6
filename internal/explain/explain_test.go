package explain

import (
	"testing"

	"github.com/Aidin1998/taskpredict/common/errors"
	"github.com/Aidin1998/taskpredict/internal/ensemble"
	"github.com/Aidin1998/taskpredict/internal/features"
	"github.com/Aidin1998/taskpredict/internal/synthetic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fitModel(t *testing.T, examples []features.Example) ensemble.Model {
	t.Helper()
	m, err := ensemble.New(ensemble.RandomForest, ensemble.Params{
		NEstimators: 30, MaxDepth: 8, MinSamplesSplit: 4, MinSamplesLeaf: 2, Seed: 42,
	})
	require.NoError(t, err)
	x, y := features.Matrix(examples)
	require.NoError(t, m.Fit(x, y))
	return m
}

func TestNew(t *testing.T) {
	examples := synthetic.NewGenerator(1).Examples(80)
	m := fitModel(t, examples)

	t.Run("requires a background sample", func(t *testing.T) {
		_, err := New(m, nil, 42)
		assert.ErrorIs(t, err, errors.ErrAttributionUnavailable)
	})

	t.Run("requires a model", func(t *testing.T) {
		_, err := New(nil, examples, 42)
		assert.ErrorIs(t, err, errors.ErrModelNotLoaded)
	})

	t.Run("accepts a large background", func(t *testing.T) {
		big := synthetic.NewGenerator(2).Examples(1000)
		ex, err := New(m, big, 42)
		require.NoError(t, err)
		assert.NotNil(t, ex)
	})
}

func TestExplainAdditivity(t *testing.T) {
	examples := synthetic.NewGenerator(synthetic.DefaultSeed).Examples(150)
	m := fitModel(t, examples)
	explainer, err := New(m, examples, 42)
	require.NoError(t, err)

	probes := []features.Vector{
		{TaskSize: 1, TaskType: 1, Priority: 1, ResourceLoad: 5},
		{TaskSize: 3, TaskType: 2, Priority: 5, ResourceLoad: 95},
		{TaskSize: 2, TaskType: 3, Priority: 3, ResourceLoad: 50},
	}
	for _, v := range probes {
		attribution, err := explainer.Explain(v)
		require.NoError(t, err)

		require.Len(t, attribution.Contributions, features.Dim)
		var sum float64
		for _, name := range features.Names() {
			contribution, ok := attribution.Contributions[name]
			require.True(t, ok, "missing contribution for %s", name)
			sum += contribution
		}
		assert.InDelta(t, attribution.Prediction, attribution.Baseline+sum, 1e-9)
		assert.InDelta(t, m.Predict(v.Floats()), attribution.Prediction, 1e-9)
	}
}

func TestExplainSizeDominatesOnSyntheticData(t *testing.T) {
	examples := synthetic.NewGenerator(synthetic.DefaultSeed).Examples(300)
	m := fitModel(t, examples)
	explainer, err := New(m, examples, 42)
	require.NoError(t, err)

	small, err := explainer.Explain(features.Vector{TaskSize: 1, TaskType: 1, Priority: 3, ResourceLoad: 50})
	require.NoError(t, err)
	large, err := explainer.Explain(features.Vector{TaskSize: 3, TaskType: 1, Priority: 3, ResourceLoad: 50})
	require.NoError(t, err)

	// Task size doubles the base cost between the extremes, so its
	// contribution should move in the same direction as the prediction.
	assert.Greater(t, large.Contributions["taskSize"], small.Contributions["taskSize"])
}

func TestExplainValidatesInput(t *testing.T) {
	examples := synthetic.NewGenerator(1).Examples(60)
	explainer, err := New(fitModel(t, examples), examples, 42)
	require.NoError(t, err)

	_, err = explainer.Explain(features.Vector{TaskSize: 0, TaskType: 1, Priority: 1, ResourceLoad: 0})
	assert.True(t, errors.IsValidation(err))
}
