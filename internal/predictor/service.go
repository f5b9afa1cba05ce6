// Package predictor is the service facade: it owns the accumulated training
// set, serializes the training lifecycle, and exposes the prediction,
// calibration, attribution, tuning and comparison operations over the single
// active model.
package predictor

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/Aidin1998/taskpredict/common/errors"
	"github.com/Aidin1998/taskpredict/internal/conformal"
	"github.com/Aidin1998/taskpredict/internal/ensemble"
	"github.com/Aidin1998/taskpredict/internal/explain"
	"github.com/Aidin1998/taskpredict/internal/features"
	"github.com/Aidin1998/taskpredict/internal/registry"
	"github.com/Aidin1998/taskpredict/internal/significance"
	"github.com/Aidin1998/taskpredict/internal/store"
	"github.com/Aidin1998/taskpredict/internal/training"
	"github.com/Aidin1998/taskpredict/internal/tuning"
	"github.com/Aidin1998/taskpredict/pkg/metrics"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

const (
	// MinTrainExamples is the floor for a full training request.
	MinTrainExamples = 10
	// MinRetrainExamples is the floor for a retraining batch.
	MinRetrainExamples = 5
	// MaxBatchSize bounds one batch prediction request.
	MaxBatchSize = 1000

	// defaultConfidence is reported by families without per-member access.
	defaultConfidence = 0.75

	// minCalibration is the smallest training set that still gets a held-out
	// calibration split; below it calibrated prediction stays unavailable.
	minCalibration = 50
)

// Options configures the service.
type Options struct {
	DefaultFamily ensemble.Family
	RetentionCap  int
	Alpha         float64
	Seed          uint64
	// Bootstrap supplies a fallback training set when an operation needs
	// data and none has been accumulated yet.
	Bootstrap func() []features.Example
}

// Prediction is one point estimate with its disagreement-based confidence.
type Prediction struct {
	PredictedTime float64 `json:"predictedTime"`
	Confidence    float64 `json:"confidence"`
	ModelVersion  string  `json:"modelVersion"`
	ModelType     string  `json:"modelType"`
}

// BatchItem is one positional result inside a batch response. Exactly one of
// Prediction and Err is set.
type BatchItem struct {
	Index      int
	Prediction *Prediction
	Err        error
}

// BatchResult is a full batch response with aggregate statistics over the
// successful items.
type BatchResult struct {
	Items         []BatchItem
	Succeeded     int
	Failed        int
	MeanPredicted float64
	ModelVersion  string
	ModelType     string
}

// CalibratedPrediction pairs a point estimate and its disagreement
// confidence with the conformal interval.
type CalibratedPrediction struct {
	PredictedTime float64 `json:"predictedTime"`
	Confidence    float64 `json:"confidence"`
	Lower         float64 `json:"lower"`
	Upper         float64 `json:"upper"`
	Coverage      float64 `json:"coverage"`
	ModelVersion  string  `json:"modelVersion"`
}

// Info describes the active model.
type Info struct {
	Loaded            bool              `json:"loaded"`
	ModelType         string            `json:"modelType,omitempty"`
	Version           string            `json:"version,omitempty"`
	Features          []string          `json:"features"`
	SamplesRetained   int               `json:"samplesRetained"`
	Calibrated        bool              `json:"calibrated"`
	SupportedFamilies []string          `json:"supportedFamilies"`
	Metrics           *training.Metrics `json:"metrics,omitempty"`
}

// Service coordinates the registry, pipeline and per-model companions.
type Service struct {
	registry *registry.Registry
	pipeline *training.Pipeline
	store    *store.Store
	logger   *zap.Logger
	opts     Options

	// trainMu serializes training, retraining and switching; concurrent
	// attempts are rejected rather than queued.
	trainMu sync.Mutex

	mu          sync.RWMutex
	dataset     []features.Example
	lastMetrics *training.Metrics
	calibrator  *conformal.Calibrator
	explainer   *explain.Explainer
}

// New creates the service. Zero option fields fall back to the service
// defaults.
func New(reg *registry.Registry, pipe *training.Pipeline, st *store.Store, logger *zap.Logger, opts Options) *Service {
	if opts.DefaultFamily == "" {
		opts.DefaultFamily = ensemble.RandomForest
	}
	if opts.RetentionCap <= 0 {
		opts.RetentionCap = 50000
	}
	if opts.Alpha <= 0 || opts.Alpha >= 1 {
		opts.Alpha = 0.1
	}
	if opts.Seed == 0 {
		opts.Seed = 42
	}
	return &Service{registry: reg, pipeline: pipe, store: st, logger: logger, opts: opts}
}

// Predict returns the point estimate and confidence for one task.
func (s *Service) Predict(v features.Vector) (*Prediction, error) {
	if err := v.Validate(); err != nil {
		metrics.PredictionsServed.WithLabelValues("error").Inc()
		return nil, err
	}
	inst, err := s.registry.Active()
	if err != nil {
		metrics.PredictionsServed.WithLabelValues("error").Inc()
		return nil, err
	}

	rows := [][]float64{v.Floats()}
	pred := inst.Model.PredictBatch(rows)[0]
	conf := confidences(inst.Model, rows)[0]

	metrics.PredictionsServed.WithLabelValues("ok").Inc()
	return &Prediction{
		PredictedTime: pred,
		Confidence:    conf,
		ModelVersion:  inst.Version,
		ModelType:     string(inst.Family),
	}, nil
}

// PredictBatch predicts up to MaxBatchSize tasks in one vectorized pass.
// Invalid items fail positionally without sinking the rest of the batch.
func (s *Service) PredictBatch(vectors []features.Vector) (*BatchResult, error) {
	if len(vectors) == 0 {
		return nil, errors.NewValidationError("tasks", "batch must not be empty")
	}
	if len(vectors) > MaxBatchSize {
		return nil, errors.NewValidationError("tasks", "batch exceeds the 1000 item limit")
	}
	inst, err := s.registry.Active()
	if err != nil {
		return nil, err
	}
	metrics.BatchSize.Observe(float64(len(vectors)))

	items := make([]BatchItem, len(vectors))
	validIdx := make([]int, 0, len(vectors))
	rows := make([][]float64, 0, len(vectors))
	for i, v := range vectors {
		items[i].Index = i
		if err := v.Validate(); err != nil {
			items[i].Err = errors.NewItemValidationError(i, "tasks", err.Error())
			metrics.PredictionsServed.WithLabelValues("error").Inc()
			continue
		}
		validIdx = append(validIdx, i)
		rows = append(rows, v.Floats())
	}

	result := &BatchResult{
		Items:        items,
		Failed:       len(vectors) - len(validIdx),
		ModelVersion: inst.Version,
		ModelType:    string(inst.Family),
	}
	if len(rows) == 0 {
		return result, nil
	}

	preds := inst.Model.PredictBatch(rows)
	confs := confidences(inst.Model, rows)

	var sum float64
	for j, i := range validIdx {
		items[i].Prediction = &Prediction{
			PredictedTime: preds[j],
			Confidence:    confs[j],
			ModelVersion:  inst.Version,
			ModelType:     string(inst.Family),
		}
		sum += preds[j]
		metrics.PredictionsServed.WithLabelValues("ok").Inc()
	}
	result.Succeeded = len(validIdx)
	result.MeanPredicted = sum / float64(len(validIdx))
	return result, nil
}

// confidences maps per-member disagreement to [0.5, 0.99] per row; families
// without per-member access get the fixed default.
func confidences(model ensemble.Model, rows [][]float64) []float64 {
	out := make([]float64, len(rows))
	mp, ok := model.(ensemble.MemberPredictor)
	if !ok {
		for i := range out {
			out[i] = defaultConfidence
		}
		return out
	}

	members := mp.MemberPredictBatch(rows)
	column := make([]float64, len(members))
	for i := range rows {
		for m, memberPreds := range members {
			column[m] = memberPreds[i]
		}
		variance := stat.PopVariance(column, nil)
		c := 1 / (1 + variance)
		if c < 0.5 {
			c = 0.5
		}
		if c > 0.99 {
			c = 0.99
		}
		out[i] = c
	}
	return out
}

// Train fits a fresh model of the requested family on the provided examples,
// replacing the accumulated training set.
func (s *Service) Train(ctx context.Context, family ensemble.Family, examples []features.Example) (*training.Result, error) {
	if len(examples) < MinTrainExamples {
		return nil, errors.NewValidationError("data", "training requires at least 10 examples")
	}
	if !s.trainMu.TryLock() {
		return nil, errors.ErrTrainingInProgress
	}
	defer s.trainMu.Unlock()

	return s.trainLocked(ctx, family, examples)
}

// Retrain updates the model with a fresh batch. With incremental set the
// batch is appended to the retained set, bounded by the retention cap;
// otherwise the batch replaces it.
func (s *Service) Retrain(ctx context.Context, examples []features.Example, incremental bool) (*training.Result, error) {
	if len(examples) < MinRetrainExamples {
		return nil, errors.NewValidationError("data", "retraining requires at least 5 examples")
	}
	if !s.trainMu.TryLock() {
		return nil, errors.ErrTrainingInProgress
	}
	defer s.trainMu.Unlock()

	family := s.opts.DefaultFamily
	if inst, err := s.registry.Active(); err == nil {
		family = inst.Family
	}

	data := examples
	if incremental {
		s.mu.RLock()
		data = append(append([]features.Example(nil), s.dataset...), examples...)
		s.mu.RUnlock()
		if excess := len(data) - s.opts.RetentionCap; excess > 0 {
			data = data[excess:]
		}
	}
	return s.trainLocked(ctx, family, data)
}

// SwitchFamily retrains the requested family on the retained data and
// publishes it. On any failure the previously active instance is untouched.
func (s *Service) SwitchFamily(ctx context.Context, family ensemble.Family) (*training.Result, error) {
	if !family.Valid() {
		return nil, errors.ErrInvalidModelType
	}
	if !ensemble.Supported(family) {
		return nil, errors.ErrDependencyUnavailable
	}
	if !s.trainMu.TryLock() {
		return nil, errors.ErrTrainingInProgress
	}
	defer s.trainMu.Unlock()

	return s.trainLocked(ctx, family, s.snapshotOrBootstrap())
}

// trainLocked runs the split/fit/calibrate sequence. Caller holds trainMu.
// The reported SamplesTrained covers the fit split only; the full submitted
// set is retained and surfaced as Info().SamplesRetained.
func (s *Service) trainLocked(ctx context.Context, family ensemble.Family, examples []features.Example) (*training.Result, error) {
	for i, ex := range examples {
		if err := ex.Validate(); err != nil {
			return nil, errors.NewItemValidationError(i, "data", err.Error())
		}
	}

	// Conformal calibration needs residuals from rows the model never saw,
	// so a slice of the data is held out before fitting.
	trainSet, calSet := splitCalibration(examples, s.opts.Seed)

	result, err := s.pipeline.Train(ctx, family, trainSet)
	if err != nil {
		return nil, err
	}
	inst, err := s.registry.Active()
	if err != nil {
		return nil, err
	}

	var calibrator *conformal.Calibrator
	if len(calSet) > 0 {
		calibrator, err = conformal.New(inst.Model, inst.Version, s.opts.Alpha)
		if err == nil {
			err = calibrator.Calibrate(calSet)
		}
		if err != nil {
			s.logger.Warn("calibration skipped", zap.Error(err))
			calibrator = nil
		}
	}
	explainer, err := explain.New(inst.Model, trainSet, s.opts.Seed)
	if err != nil {
		explainer = nil
	}

	s.mu.Lock()
	s.dataset = append([]features.Example(nil), examples...)
	s.lastMetrics = &result.Metrics
	s.calibrator = calibrator
	s.explainer = explainer
	s.mu.Unlock()
	return result, nil
}

// splitCalibration shuffles a copy with the fixed seed and holds out a fifth
// of the rows once the set is large enough to spare them.
func splitCalibration(examples []features.Example, seed uint64) (trainSet, calSet []features.Example) {
	if len(examples) < minCalibration {
		return examples, nil
	}
	shuffled := append([]features.Example(nil), examples...)
	rng := rand.New(rand.NewPCG(seed, seed^0x853c49e6748fea9b))
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	cut := len(shuffled) / 5
	return shuffled[cut:], shuffled[:cut]
}

// CalibratedPredict returns conformal intervals for the given tasks. It
// requires a calibrator built against the currently active model version.
func (s *Service) CalibratedPredict(vectors []features.Vector) ([]CalibratedPrediction, error) {
	if len(vectors) == 0 {
		return nil, errors.NewValidationError("tasks", "batch must not be empty")
	}
	inst, err := s.registry.Active()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	cal := s.calibrator
	s.mu.RUnlock()
	if cal == nil || cal.ModelVersion != inst.Version {
		return nil, errors.ErrNotCalibrated
	}

	intervals, err := cal.PredictInterval(vectors)
	if err != nil {
		return nil, err
	}
	rows := make([][]float64, len(vectors))
	for i, v := range vectors {
		rows[i] = v.Floats()
	}
	preds := inst.Model.PredictBatch(rows)
	confs := confidences(inst.Model, rows)

	out := make([]CalibratedPrediction, len(preds))
	for i := range preds {
		out[i] = CalibratedPrediction{
			PredictedTime: preds[i],
			Confidence:    confs[i],
			Lower:         intervals[i].Lower,
			Upper:         intervals[i].Upper,
			Coverage:      cal.Coverage(),
			ModelVersion:  inst.Version,
		}
	}
	return out, nil
}

// Explain returns the additive attribution for one task. The capability is
// present only when the active model was trained in this process, since the
// background sample is not persisted.
func (s *Service) Explain(v features.Vector) (*explain.Attribution, error) {
	if _, err := s.registry.Active(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	ex := s.explainer
	s.mu.RUnlock()
	if ex == nil {
		return nil, errors.ErrAttributionUnavailable
	}
	return ex.Explain(v)
}

// Tune searches the family's hyperparameter space on the retained data and,
// when apply is set, trains and publishes a model with the best assignment.
func (s *Service) Tune(ctx context.Context, family ensemble.Family, trials int, apply bool) (*tuning.Result, *training.Result, error) {
	data := s.snapshotOrBootstrap()
	if len(data) < MinTrainExamples {
		return nil, nil, errors.NewValidationError("data", "tuning requires at least 10 retained examples")
	}

	tuner := tuning.NewTuner(s.logger, s.opts.Seed)
	result, err := tuner.Tune(ctx, family, data, trials)
	if err != nil {
		return nil, nil, err
	}
	if !apply {
		return result, nil, nil
	}

	if !s.trainMu.TryLock() {
		return result, nil, errors.ErrTrainingInProgress
	}
	defer s.trainMu.Unlock()

	trainSet, calSet := splitCalibration(data, s.opts.Seed)
	trained, err := s.pipeline.TrainWithParams(ctx, family, result.Params, trainSet)
	if err != nil {
		return result, nil, err
	}
	if inst, aerr := s.registry.Active(); aerr == nil {
		s.refreshCompanions(inst, trainSet, calSet, &trained.Metrics, data)
	}
	return result, trained, nil
}

// refreshCompanions rebuilds the calibrator and explainer for a newly
// published instance. Caller holds trainMu.
func (s *Service) refreshCompanions(inst *registry.Instance, trainSet, calSet []features.Example, m *training.Metrics, full []features.Example) {
	var calibrator *conformal.Calibrator
	if len(calSet) > 0 {
		if c, err := conformal.New(inst.Model, inst.Version, s.opts.Alpha); err == nil {
			if err := c.Calibrate(calSet); err == nil {
				calibrator = c
			}
		}
	}
	explainer, err := explain.New(inst.Model, trainSet, s.opts.Seed)
	if err != nil {
		explainer = nil
	}

	s.mu.Lock()
	s.dataset = append([]features.Example(nil), full...)
	s.lastMetrics = m
	s.calibrator = calibrator
	s.explainer = explainer
	s.mu.Unlock()
}

// Compare runs the paired significance test between two families on the
// retained data.
func (s *Service) Compare(ctx context.Context, familyA, familyB ensemble.Family) (*significance.Comparison, error) {
	data := s.snapshotOrBootstrap()
	if len(data) < MinTrainExamples {
		return nil, errors.NewValidationError("data", "comparison requires at least 10 retained examples")
	}
	k := training.Folds
	if len(data) < k {
		k = len(data)
	}
	return significance.Compare(ctx, familyA, familyB, data, k, s.opts.Seed)
}

// Info reports the active model and service state.
func (s *Service) Info() *Info {
	s.mu.RLock()
	retained := len(s.dataset)
	calibrated := s.calibrator != nil
	lastMetrics := s.lastMetrics
	s.mu.RUnlock()

	supported := make([]string, 0, len(ensemble.Families()))
	for _, f := range ensemble.Families() {
		if ensemble.Supported(f) {
			supported = append(supported, string(f))
		}
	}

	info := &Info{
		Features:          features.Names(),
		SamplesRetained:   retained,
		Calibrated:        calibrated,
		SupportedFamilies: supported,
		Metrics:           lastMetrics,
	}
	inst, err := s.registry.Active()
	if err != nil {
		return info
	}
	info.Loaded = true
	info.ModelType = string(inst.Family)
	info.Version = inst.Version
	if calibrated {
		s.mu.RLock()
		info.Calibrated = s.calibrator.ModelVersion == inst.Version
		s.mu.RUnlock()
	}
	return info
}

// Bootstrap trains an initial model when the registry is empty, using the
// configured bootstrap source. Used at startup when no persisted model exists.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.registry.Loaded() {
		return nil
	}
	data := s.snapshotOrBootstrap()
	if len(data) < MinTrainExamples {
		return errors.NewValidationError("data", "bootstrap source produced too few examples")
	}
	_, err := s.Train(ctx, s.opts.DefaultFamily, data)
	return err
}

func (s *Service) snapshotOrBootstrap() []features.Example {
	s.mu.RLock()
	data := append([]features.Example(nil), s.dataset...)
	s.mu.RUnlock()
	if len(data) == 0 && s.opts.Bootstrap != nil {
		data = s.opts.Bootstrap()
	}
	return data
}

// DefaultFamily returns the configured default model family.
func (s *Service) DefaultFamily() ensemble.Family {
	return s.opts.DefaultFamily
}

// Versions lists persisted model versions, newest first.
func (s *Service) Versions() ([]string, error) {
	return s.store.Versions()
}

// Metadata returns the persisted audit record for one version.
func (s *Service) Metadata(version string) (*store.ModelMetadata, error) {
	return s.store.LoadMetadata(version)
}
