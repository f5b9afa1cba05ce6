package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "models.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	return st
}

func TestSaveAndLoadLatest(t *testing.T) {
	st := openTestStore(t)

	latest, err := st.LoadLatest()
	require.NoError(t, err)
	assert.Nil(t, latest)

	records := []*ModelRecord{
		{Version: "v20250101000000000000001", Family: "random_forest", State: []byte(`{"a":1}`)},
		{Version: "v20250102000000000000002", Family: "gradient_boosting", State: []byte(`{"b":2}`)},
	}
	for _, r := range records {
		require.NoError(t, st.SaveModel(r, &ModelMetadata{
			Version:         r.Version,
			Family:          r.Family,
			TrainedAt:       "2025-01-02T00:00:00Z",
			DataFingerprint: "abc123def456",
			SamplesTrained:  500,
		}))
	}

	latest, err = st.LoadLatest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "v20250102000000000000002", latest.Version)
	assert.Equal(t, "gradient_boosting", latest.Family)
	assert.JSONEq(t, `{"b":2}`, string(latest.State))
}

func TestLoadMetadata(t *testing.T) {
	st := openTestStore(t)

	meta, err := st.LoadMetadata("missing")
	require.NoError(t, err)
	assert.Nil(t, meta)

	record := &ModelRecord{Version: "v1", Family: "random_forest", State: []byte("{}")}
	require.NoError(t, st.SaveModel(record, &ModelMetadata{
		Version:         "v1",
		Family:          "random_forest",
		TrainedAt:       "2025-06-01T12:00:00Z",
		DataFingerprint: "deadbeef0000",
		SamplesTrained:  120,
		R2Mean:          0.87,
		FoldScores:      "[0.85,0.89]",
	}))

	meta, err = st.LoadMetadata("v1")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, 120, meta.SamplesTrained)
	assert.Equal(t, 0.87, meta.R2Mean)
}

func TestVersions(t *testing.T) {
	st := openTestStore(t)
	for _, v := range []string{"v1", "v3", "v2"} {
		require.NoError(t, st.SaveModel(&ModelRecord{Version: v, Family: "random_forest", State: []byte("{}")}, nil))
	}
	versions, err := st.Versions()
	require.NoError(t, err)
	assert.Equal(t, []string{"v3", "v2", "v1"}, versions)
}

func TestDuplicateVersionRejected(t *testing.T) {
	st := openTestStore(t)
	record := &ModelRecord{Version: "v1", Family: "random_forest", State: []byte("{}")}
	require.NoError(t, st.SaveModel(record, nil))
	assert.Error(t, st.SaveModel(&ModelRecord{Version: "v1", Family: "random_forest", State: []byte("{}")}, nil))
}
