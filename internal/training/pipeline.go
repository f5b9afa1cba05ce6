// Package training implements the model training pipeline: fit a requested
// ensemble family, score it with k-fold cross-validation, mint a version,
// persist the instance and publish it to the registry.
package training

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Aidin1998/taskpredict/common/errors"
	"github.com/Aidin1998/taskpredict/internal/ensemble"
	"github.com/Aidin1998/taskpredict/internal/evaluation"
	"github.com/Aidin1998/taskpredict/internal/features"
	"github.com/Aidin1998/taskpredict/internal/registry"
	"github.com/Aidin1998/taskpredict/internal/store"
	"github.com/Aidin1998/taskpredict/pkg/metrics"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// Folds is the fixed cross-validation fold count.
const Folds = 5

// Metrics is the training metrics record returned to callers and persisted
// with the model version. SamplesTrained counts the rows of the final fit,
// which excludes any calibration holdout the caller set aside.
type Metrics struct {
	ModelType         string             `json:"model_type"`
	R2Mean            float64            `json:"r2_mean"`
	R2Std             float64            `json:"r2_std"`
	SamplesTrained    int                `json:"samples_trained"`
	FeatureImportance map[string]float64 `json:"feature_importance"`
}

// Result reports one completed training run.
type Result struct {
	Version    string    `json:"version"`
	Metrics    Metrics   `json:"metrics"`
	FoldScores []float64 `json:"fold_scores"`
}

// Pipeline wires the fit/evaluate/persist/publish sequence.
type Pipeline struct {
	store    *store.Store
	registry *registry.Registry
	logger   *zap.Logger
}

// NewPipeline creates a training pipeline.
func NewPipeline(st *store.Store, reg *registry.Registry, logger *zap.Logger) *Pipeline {
	return &Pipeline{store: st, registry: reg, logger: logger}
}

// Train fits the family with its fixed default hyperparameters.
func (p *Pipeline) Train(ctx context.Context, family ensemble.Family, examples []features.Example) (*Result, error) {
	if !family.Valid() {
		return nil, fmt.Errorf("%w: %q", errors.ErrInvalidModelType, family)
	}
	return p.TrainWithParams(ctx, family, ensemble.DefaultParams(family), examples)
}

// TrainWithParams fits the family with explicit hyperparameters. On any fit
// failure the previously active instance is left untouched.
func (p *Pipeline) TrainWithParams(ctx context.Context, family ensemble.Family, params ensemble.Params, examples []features.Example) (*Result, error) {
	started := time.Now()
	if len(examples) == 0 {
		return nil, errors.NewValidationError("data", "training set must not be empty")
	}
	for i, ex := range examples {
		if err := ex.Validate(); err != nil {
			return nil, errors.NewItemValidationError(i, "data", err.Error())
		}
	}

	x, y := features.Matrix(examples)

	// Cross-validated generalization estimate. Small retrain batches get a
	// reduced fold count so every fold keeps at least one validation row.
	k := Folds
	if len(y) < k {
		k = len(y)
	}
	build := func() (evaluation.Fitter, error) {
		return ensemble.New(family, params)
	}
	scores, err := evaluation.CrossValidate(ctx, build, x, y, k, params.Seed)
	if err != nil {
		metrics.TrainingRuns.WithLabelValues(string(family), "error").Inc()
		return nil, p.asTrainingError(family, err)
	}

	model, err := ensemble.New(family, params)
	if err != nil {
		metrics.TrainingRuns.WithLabelValues(string(family), "error").Inc()
		return nil, err
	}
	if err := model.Fit(x, y); err != nil {
		metrics.TrainingRuns.WithLabelValues(string(family), "error").Inc()
		return nil, errors.NewTrainingError(string(family), err)
	}

	result := &Result{
		Version: MintVersion(p.registry.Version()),
		Metrics: Metrics{
			ModelType:         string(family),
			R2Mean:            stat.Mean(scores, nil),
			R2Std:             stat.PopStdDev(scores, nil),
			SamplesTrained:    len(y),
			FeatureImportance: importanceMap(model),
		},
		FoldScores: scores,
	}

	// Persistence is the terminal step of training: only after the durable
	// write succeeds is the new instance published.
	if err := p.persist(model, result, examples); err != nil {
		metrics.TrainingRuns.WithLabelValues(string(family), "error").Inc()
		return nil, err
	}
	p.registry.Publish(&registry.Instance{Model: model, Family: family, Version: result.Version})

	metrics.TrainingRuns.WithLabelValues(string(family), "ok").Inc()
	metrics.TrainingDuration.WithLabelValues(string(family)).Observe(time.Since(started).Seconds())
	p.logger.Info("training complete",
		zap.String("family", string(family)),
		zap.String("version", result.Version),
		zap.Int("samples", len(y)),
		zap.Float64("r2_mean", result.Metrics.R2Mean))
	return result, nil
}

func (p *Pipeline) asTrainingError(family ensemble.Family, err error) error {
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, errors.ErrInvalidModelType),
		errors.Is(err, errors.ErrDependencyUnavailable),
		errors.IsValidation(err),
		errors.IsTraining(err):
		return err
	}
	return errors.NewTrainingError(string(family), err)
}

func (p *Pipeline) persist(model ensemble.Model, result *Result, examples []features.Example) error {
	state, err := ensemble.Marshal(model)
	if err != nil {
		return err
	}
	foldJSON, _ := json.Marshal(result.FoldScores)
	impJSON, _ := json.Marshal(result.Metrics.FeatureImportance)

	record := &store.ModelRecord{
		Version: result.Version,
		Family:  result.Metrics.ModelType,
		State:   state,
	}
	meta := &store.ModelMetadata{
		Version:         result.Version,
		Family:          result.Metrics.ModelType,
		TrainedAt:       time.Now().UTC().Format(time.RFC3339),
		DataFingerprint: Fingerprint(examples),
		SamplesTrained:  result.Metrics.SamplesTrained,
		R2Mean:          result.Metrics.R2Mean,
		R2Std:           result.Metrics.R2Std,
		FoldScores:      string(foldJSON),
		Importances:     string(impJSON),
	}
	return p.store.SaveModel(record, meta)
}

func importanceMap(model ensemble.Model) map[string]float64 {
	names := features.Names()
	imp := model.Importances()
	out := make(map[string]float64, len(names))
	if len(imp) != len(names) {
		// Family does not expose importances: uniform fallback.
		for _, name := range names {
			out[name] = 1 / float64(len(names))
		}
		return out
	}
	for i, name := range names {
		out[name] = imp[i]
	}
	return out
}

// MintVersion derives a fresh, lexically sortable version token from the
// wall clock, strictly greater than prev.
func MintVersion(prev string) string {
	now := time.Now().UTC()
	v := fmt.Sprintf("v%s%09d", now.Format("20060102150405"), now.Nanosecond())
	if prev != "" && strings.HasPrefix(prev, "v") && v <= prev {
		// Clock did not advance past the previous mint; bump instead.
		v = prev + "1"
	}
	return v
}

// Fingerprint hashes the canonically ordered training set; the 12-hex-char
// prefix is stored with the version for reproducibility audits.
func Fingerprint(examples []features.Example) string {
	rows := make([]string, len(examples))
	for i, ex := range examples {
		rows[i] = fmt.Sprintf("%d,%d,%d,%.6f,%.6f",
			ex.Features.TaskSize, ex.Features.TaskType, ex.Features.Priority, ex.Features.ResourceLoad, ex.Label)
	}
	sort.Strings(rows)
	sum := sha256.Sum256([]byte(strings.Join(rows, "\n")))
	return hex.EncodeToString(sum[:])[:12]
}
