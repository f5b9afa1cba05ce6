// Package conformal implements split conformal prediction: residuals on a
// held-out calibration set are converted into an interval half-width with a
// finite-sample marginal coverage guarantee.
package conformal

import (
	"math"
	"sort"
	"sync"

	"github.com/Aidin1998/taskpredict/common/errors"
	"github.com/Aidin1998/taskpredict/internal/ensemble"
	"github.com/Aidin1998/taskpredict/internal/features"
	"gonum.org/v1/gonum/stat"
)

// Interval is one calibrated prediction interval.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Calibrator wraps a fitted model with a calibrated residual quantile. It
// carries no model state of its own and must be rebuilt when the underlying
// model changes; ModelVersion lets callers detect staleness.
type Calibrator struct {
	mu           sync.RWMutex
	model        ensemble.Model
	ModelVersion string
	alpha        float64
	halfWidth    float64
	calibrated   bool
}

// New creates an uncalibrated wrapper around a fitted model. alpha is the
// miscoverage rate (0.1 targets 90% coverage).
func New(model ensemble.Model, modelVersion string, alpha float64) (*Calibrator, error) {
	if alpha <= 0 || alpha >= 1 {
		return nil, errors.NewValidationError("alpha", "must be in (0, 1)")
	}
	return &Calibrator{model: model, ModelVersion: modelVersion, alpha: alpha}, nil
}

// Calibrate computes the residual half-width from a calibration set. The
// set must be disjoint from the model's training data to preserve
// exchangeability; that discipline is the caller's responsibility.
func (c *Calibrator) Calibrate(calibration []features.Example) error {
	if len(calibration) == 0 {
		return errors.NewValidationError("calibration", "calibration set must not be empty")
	}
	for i, ex := range calibration {
		if err := ex.Validate(); err != nil {
			return errors.NewItemValidationError(i, "calibration", err.Error())
		}
	}

	x, y := features.Matrix(calibration)
	preds := c.model.PredictBatch(x)

	residuals := make([]float64, len(y))
	for i := range y {
		residuals[i] = math.Abs(y[i] - preds[i])
	}
	sort.Float64s(residuals)

	// Finite-sample split-conformal correction: the naive (1-alpha) quantile
	// under-covers on finite calibration sets.
	n := float64(len(residuals))
	level := math.Min(1, math.Ceil((n+1)*(1-c.alpha))/n)
	q := stat.Quantile(level, stat.Empirical, residuals, nil)

	c.mu.Lock()
	c.halfWidth = q
	c.calibrated = true
	c.mu.Unlock()
	return nil
}

// HalfWidth returns the calibrated interval half-width.
func (c *Calibrator) HalfWidth() (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.calibrated {
		return 0, errors.ErrNotCalibrated
	}
	return c.halfWidth, nil
}

// Coverage returns the nominal coverage rate 1 - alpha.
func (c *Calibrator) Coverage() float64 { return 1 - c.alpha }

// PredictInterval returns point ± halfWidth for each input vector. It fails
// with ErrNotCalibrated before the first Calibrate call.
func (c *Calibrator) PredictInterval(vectors []features.Vector) ([]Interval, error) {
	c.mu.RLock()
	calibrated, half := c.calibrated, c.halfWidth
	c.mu.RUnlock()
	if !calibrated {
		return nil, errors.ErrNotCalibrated
	}

	x := make([][]float64, len(vectors))
	for i, v := range vectors {
		if err := v.Validate(); err != nil {
			return nil, err
		}
		x[i] = v.Floats()
	}
	preds := c.model.PredictBatch(x)

	out := make([]Interval, len(preds))
	for i, p := range preds {
		out[i] = Interval{Lower: p - half, Upper: p + half}
	}
	return out, nil
}
