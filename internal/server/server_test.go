package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Aidin1998/taskpredict/internal/config"
	"github.com/Aidin1998/taskpredict/internal/ensemble"
	"github.com/Aidin1998/taskpredict/internal/features"
	"github.com/Aidin1998/taskpredict/internal/predictor"
	"github.com/Aidin1998/taskpredict/internal/registry"
	"github.com/Aidin1998/taskpredict/internal/store"
	"github.com/Aidin1998/taskpredict/internal/synthetic"
	"github.com/Aidin1998/taskpredict/internal/training"
)

func newTestServer(t *testing.T, train bool, mutate func(cfg *config.Config)) *Server {
	t.Helper()
	logger := zaptest.NewLogger(t)
	st, err := store.Open(filepath.Join(t.TempDir(), "models.db"), logger)
	require.NoError(t, err)
	reg := registry.New(logger)
	pipe := training.NewPipeline(st, reg, logger)
	service := predictor.New(reg, pipe, st, logger, predictor.Options{})

	if train {
		examples := synthetic.NewGenerator(synthetic.DefaultSeed).Examples(200)
		_, err = service.Train(context.Background(), ensemble.RandomForest, examples)
		require.NoError(t, err)
	}

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Security.RateLimit = 0 // keep handler tests independent of the bucket
	if mutate != nil {
		mutate(cfg)
	}
	return New(cfg, service, logger)
}

func doJSON(t *testing.T, srv *Server, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, true, nil)
	w := doJSON(t, srv, http.MethodGet, "/api/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, true, resp["modelLoaded"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestPredictEndpoint(t *testing.T) {
	srv := newTestServer(t, true, nil)

	t.Run("ok", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodPost, "/api/predict", map[string]any{
			"taskSize": 2, "taskType": 1, "priority": 3, "resourceLoad": 40,
		}, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Greater(t, resp["predictedTime"].(float64), 0.0)
		assert.GreaterOrEqual(t, resp["confidence"].(float64), 0.5)
	})

	t.Run("invalid feature yields problem response", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodPost, "/api/predict", map[string]any{
			"taskSize": 9, "taskType": 1, "priority": 3, "resourceLoad": 40,
		}, nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")

		var problem map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
		assert.Equal(t, "Request validation failed", problem["title"])
	})

	t.Run("model not loaded", func(t *testing.T) {
		cold := newTestServer(t, false, nil)
		w := doJSON(t, cold, http.MethodPost, "/api/predict", map[string]any{
			"taskSize": 1, "taskType": 1, "priority": 3, "resourceLoad": 40,
		}, nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestBatchEndpoint(t *testing.T) {
	srv := newTestServer(t, true, nil)
	w := doJSON(t, srv, http.MethodPost, "/api/predict/batch", map[string]any{
		"tasks": []map[string]any{
			{"taskSize": 1, "taskType": 1, "priority": 1, "resourceLoad": 10},
			{"taskSize": 3, "taskType": 2, "priority": 5, "resourceLoad": 90},
		},
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Predictions []struct {
			Index         int      `json:"index"`
			PredictedTime *float64 `json:"predictedTime"`
		} `json:"predictions"`
		Count         int     `json:"count"`
		MeanPredicted float64 `json:"meanPredicted"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Predictions, 2)
	require.NotNil(t, resp.Predictions[1].PredictedTime)
	assert.Greater(t, *resp.Predictions[1].PredictedTime, 0.0)
	assert.Positive(t, resp.MeanPredicted)
}

func TestTrainEndpoint(t *testing.T) {
	srv := newTestServer(t, false, nil)

	examples := synthetic.NewGenerator(1).Examples(40)
	data := make([]map[string]any, len(examples))
	for i, ex := range examples {
		data[i] = map[string]any{
			"taskSize":     ex.Features.TaskSize,
			"taskType":     ex.Features.TaskType,
			"priority":     ex.Features.Priority,
			"resourceLoad": ex.Features.ResourceLoad,
			"actualTime":   ex.Label,
		}
	}

	w := doJSON(t, srv, http.MethodPost, "/api/train", map[string]any{
		"modelType": "random_forest",
		"data":      data,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Version string           `json:"version"`
		Metrics training.Metrics `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Version)
	assert.Equal(t, "random_forest", resp.Metrics.ModelType)

	t.Run("too few examples", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodPost, "/api/train", map[string]any{
			"modelType": "random_forest",
			"data":      data[:5],
		}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid model type", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodPost, "/api/train", map[string]any{
			"modelType": "linear",
			"data":      data,
		}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSwitchEndpoint(t *testing.T) {
	srv := newTestServer(t, true, nil)

	w := doJSON(t, srv, http.MethodPost, "/api/model/switch", map[string]any{
		"modelType": "gradient_boosting",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	info := doJSON(t, srv, http.MethodGet, "/api/model/info", nil, nil)
	require.Equal(t, http.StatusOK, info.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(info.Body.Bytes(), &resp))
	assert.Equal(t, "gradient_boosting", resp["modelType"])
}

func TestExplainEndpoint(t *testing.T) {
	srv := newTestServer(t, true, nil)
	w := doJSON(t, srv, http.MethodPost, "/api/explain", map[string]any{
		"taskSize": 2, "taskType": 2, "priority": 3, "resourceLoad": 50,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		PredictedTime float64            `json:"predictedTime"`
		Baseline      float64            `json:"baseline"`
		Contributions map[string]float64 `json:"perFeatureContribution"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Contributions, len(features.Names()))
	var sum float64
	for _, c := range resp.Contributions {
		sum += c
	}
	assert.InDelta(t, resp.PredictedTime, resp.Baseline+sum, 1e-9)
}

func TestCalibratedEndpoint(t *testing.T) {
	srv := newTestServer(t, true, nil)
	w := doJSON(t, srv, http.MethodPost, "/api/predict/calibrated", map[string]any{
		"taskSize": 2, "taskType": 1, "priority": 3, "resourceLoad": 30,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		PredictedTime float64 `json:"predictedTime"`
		Lower         float64 `json:"lower"`
		Upper         float64 `json:"upper"`
		Coverage      float64 `json:"coverage"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Less(t, resp.Lower, resp.PredictedTime)
	assert.Greater(t, resp.Upper, resp.PredictedTime)
	assert.Equal(t, 0.9, resp.Coverage)
}

func TestCompareEndpoint(t *testing.T) {
	srv := newTestServer(t, true, nil)
	w := doJSON(t, srv, http.MethodPost, "/api/model/compare", map[string]any{
		"modelA": "random_forest",
		"modelB": "random_forest",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["significant"])
}

func TestAPIKeyAuth(t *testing.T) {
	srv := newTestServer(t, true, func(cfg *config.Config) {
		cfg.Security.APIKey = "secret"
	})

	t.Run("missing key rejected", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodGet, "/api/health", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid key accepted", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodGet, "/api/health", nil, map[string]string{"X-API-Key": "secret"})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("metrics stays open", func(t *testing.T) {
		w := doJSON(t, srv, http.MethodGet, "/metrics", nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, true, func(cfg *config.Config) {
		cfg.Security.RateLimit = 1
		cfg.Security.RateBurst = 2
	})

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		w := doJSON(t, srv, http.MethodGet, "/api/health", nil, nil)
		codes = append(codes, w.Code)
	}
	assert.Contains(t, codes, http.StatusTooManyRequests)
}
