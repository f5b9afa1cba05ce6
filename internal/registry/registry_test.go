package registry

import (
	"path/filepath"
	"testing"

	"github.com/Aidin1998/taskpredict/common/errors"
	"github.com/Aidin1998/taskpredict/internal/ensemble"
	"github.com/Aidin1998/taskpredict/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func fittedModel(t *testing.T) ensemble.Model {
	t.Helper()
	m, err := ensemble.New(ensemble.RandomForest, ensemble.Params{
		NEstimators: 5, MaxDepth: 3, MinSamplesSplit: 2, MinSamplesLeaf: 1, Seed: 42,
	})
	require.NoError(t, err)
	x := [][]float64{{1, 1, 1, 10}, {2, 2, 2, 20}, {3, 3, 3, 30}, {1, 2, 3, 40}, {2, 3, 1, 50}}
	y := []float64{2, 4, 6, 2.5, 4.5}
	require.NoError(t, m.Fit(x, y))
	return m
}

func TestActiveBeforePublish(t *testing.T) {
	r := New(zaptest.NewLogger(t))
	_, err := r.Active()
	assert.ErrorIs(t, err, errors.ErrModelNotLoaded)
	assert.False(t, r.Loaded())
	assert.Equal(t, "not-loaded", r.Version())
}

func TestPublishSwapsAtomically(t *testing.T) {
	r := New(zaptest.NewLogger(t))
	m := fittedModel(t)

	r.Publish(&Instance{Model: m, Family: ensemble.RandomForest, Version: "v1"})
	inst, err := r.Active()
	require.NoError(t, err)
	assert.Equal(t, "v1", inst.Version)

	r.Publish(&Instance{Model: m, Family: ensemble.RandomForest, Version: "v2"})
	assert.Equal(t, "v2", r.Version())
}

func TestRestore(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "models.db"), zaptest.NewLogger(t))
	require.NoError(t, err)

	t.Run("empty store", func(t *testing.T) {
		r := New(zaptest.NewLogger(t))
		restored, err := r.Restore(st)
		require.NoError(t, err)
		assert.False(t, restored)
		assert.False(t, r.Loaded())
	})

	t.Run("round trip", func(t *testing.T) {
		m := fittedModel(t)
		state, err := ensemble.Marshal(m)
		require.NoError(t, err)
		require.NoError(t, st.SaveModel(&store.ModelRecord{
			Version: "v20250101000000000000001",
			Family:  string(ensemble.RandomForest),
			State:   state,
		}, nil))

		r := New(zaptest.NewLogger(t))
		restored, err := r.Restore(st)
		require.NoError(t, err)
		assert.True(t, restored)

		inst, err := r.Active()
		require.NoError(t, err)
		assert.Equal(t, ensemble.RandomForest, inst.Family)
		probe := [][]float64{{2, 2, 2, 20}}
		assert.Equal(t, m.PredictBatch(probe), inst.Model.PredictBatch(probe))
	})
}
