// Package ensemble implements the swappable tree-ensemble regression engine
// behind the prediction service: a closed set of model families sharing one
// Model contract, with per-member prediction access as an optional capability.
package ensemble

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/Aidin1998/taskpredict/common/errors"
)

// Family identifies a model family from the closed enum.
type Family string

const (
	RandomForest     Family = "random_forest"
	GradientBoosting Family = "gradient_boosting"
	// XGBoost is the alternative boosted-tree implementation. It is optional:
	// its package registers the factory at init time, and a runtime built
	// without it reports ErrDependencyUnavailable.
	XGBoost Family = "xgboost"
)

// Families returns the closed enum in canonical order.
func Families() []Family {
	return []Family{RandomForest, GradientBoosting, XGBoost}
}

// Valid reports whether f is inside the closed enum.
func (f Family) Valid() bool {
	switch f {
	case RandomForest, GradientBoosting, XGBoost:
		return true
	}
	return false
}

// Params holds the union of family hyperparameters. Families read the
// subset that applies to them and ignore the rest.
type Params struct {
	NEstimators     int     `json:"n_estimators"`
	MaxDepth        int     `json:"max_depth"`
	MinSamplesSplit int     `json:"min_samples_split"`
	MinSamplesLeaf  int     `json:"min_samples_leaf"`
	MaxFeatures     int     `json:"max_features,omitempty"` // 0 means all features
	LearningRate    float64 `json:"learning_rate,omitempty"`
	Subsample       float64 `json:"subsample,omitempty"`
	ColsampleByTree float64 `json:"colsample_bytree,omitempty"`
	Lambda          float64 `json:"lambda,omitempty"` // L2 leaf regularization
	Seed            uint64  `json:"seed"`
}

// DefaultParams returns the fixed family-specific training defaults.
func DefaultParams(f Family) Params {
	switch f {
	case GradientBoosting:
		return Params{
			NEstimators:     100,
			MaxDepth:        6,
			MinSamplesSplit: 5,
			MinSamplesLeaf:  2,
			LearningRate:    0.1,
			Subsample:       1.0,
			Seed:            42,
		}
	case XGBoost:
		return Params{
			NEstimators:     100,
			MaxDepth:        6,
			MinSamplesSplit: 4,
			MinSamplesLeaf:  2,
			LearningRate:    0.1,
			Subsample:       0.8,
			ColsampleByTree: 0.8,
			Lambda:          1.0,
			Seed:            42,
		}
	default:
		return Params{
			NEstimators:     100,
			MaxDepth:        10,
			MinSamplesSplit: 5,
			MinSamplesLeaf:  2,
			Seed:            42,
		}
	}
}

// Model is a fitted (or fittable) ensemble regressor. Fitted state is opaque
// outside this package; it round-trips through MarshalState/UnmarshalState.
type Model interface {
	Family() Family
	Params() Params
	Fit(x [][]float64, y []float64) error
	Predict(x []float64) float64
	PredictBatch(x [][]float64) []float64
	// Importances returns normalized split-gain importances per feature,
	// or nil when the family does not expose them.
	Importances() []float64
	MarshalState() ([]byte, error)
	UnmarshalState(data []byte) error
}

// MemberPredictor is the optional per-member prediction capability used for
// ensemble-disagreement confidence. Rows of the result are members, columns
// are inputs.
type MemberPredictor interface {
	MemberPredictBatch(x [][]float64) [][]float64
}

// Factory builds an unfitted model of one family.
type Factory func(p Params) Model

var (
	registryMu sync.RWMutex
	registry   = map[Family]Factory{}
)

// RegisterFamily installs a factory for a family. Optional implementations
// call this from their package init.
func RegisterFamily(f Family, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[f] = factory
}

// Supported reports whether a factory for f is present in this runtime.
func Supported(f Family) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[f]
	return ok
}

// Available returns the registered families in canonical order.
func Available() []Family {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Family, 0, len(registry))
	for f := range registry {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// New builds an unfitted model. Families outside the closed enum yield
// ErrInvalidModelType; enum members without a registered factory yield
// ErrDependencyUnavailable.
func New(f Family, p Params) (Model, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("%w: %q (choose from %v)", errors.ErrInvalidModelType, f, Families())
	}
	registryMu.RLock()
	factory, ok := registry[f]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: family %q is not compiled into this runtime", errors.ErrDependencyUnavailable, f)
	}
	return factory(p), nil
}

type envelope struct {
	Family Family          `json:"family"`
	Params Params          `json:"params"`
	State  json.RawMessage `json:"state"`
}

// Marshal serializes a fitted model with its family tag and parameters.
func Marshal(m Model) ([]byte, error) {
	state, err := m.MarshalState()
	if err != nil {
		return nil, fmt.Errorf("marshal %s state: %w", m.Family(), err)
	}
	return json.Marshal(envelope{Family: m.Family(), Params: m.Params(), State: state})
}

// Unmarshal reconstructs a fitted model from Marshal output.
func Unmarshal(data []byte) (Model, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode model envelope: %w", err)
	}
	m, err := New(env.Family, env.Params)
	if err != nil {
		return nil, err
	}
	if err := m.UnmarshalState(env.State); err != nil {
		return nil, fmt.Errorf("decode %s state: %w", env.Family, err)
	}
	return m, nil
}

// checkTrainable rejects degenerate fits: empty input, inconsistent shapes
// or fewer than two distinct label values.
func checkTrainable(x [][]float64, y []float64) error {
	if len(x) == 0 || len(y) == 0 {
		return fmt.Errorf("empty training set")
	}
	if len(x) != len(y) {
		return fmt.Errorf("feature rows (%d) and labels (%d) differ", len(x), len(y))
	}
	distinct := false
	for i := 1; i < len(y); i++ {
		if y[i] != y[0] {
			distinct = true
			break
		}
	}
	if !distinct {
		return fmt.Errorf("degenerate input: fewer than 2 distinct label values")
	}
	return nil
}

func init() {
	RegisterFamily(RandomForest, func(p Params) Model { return newForest(p) })
	RegisterFamily(GradientBoosting, func(p Params) Model { return newBoosting(p) })
}
