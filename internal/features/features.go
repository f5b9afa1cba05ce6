// Package features defines the fixed 4-dimensional task feature contract
// shared by every ingress point of the prediction core.
package features

import (
	"math"

	"github.com/Aidin1998/taskpredict/common/errors"
)

// Dim is the fixed feature dimensionality of the contract.
const Dim = 4

// Task size classes.
const (
	SizeSmall  = 1
	SizeMedium = 2
	SizeLarge  = 3
)

// Task type classes.
const (
	TypeCPU   = 1
	TypeIO    = 2
	TypeMixed = 3
)

// Vector is an immutable, validated task descriptor.
type Vector struct {
	TaskSize     int     `json:"taskSize"`
	TaskType     int     `json:"taskType"`
	Priority     int     `json:"priority"`
	ResourceLoad float64 `json:"resourceLoad"`
}

// Names returns the canonical feature names, index-aligned with Floats.
func Names() []string {
	return []string{"taskSize", "taskType", "priority", "resourceLoad"}
}

// Validate checks every field against the contract ranges.
func (v Vector) Validate() error {
	if v.TaskSize < SizeSmall || v.TaskSize > SizeLarge {
		return errors.NewValidationError("taskSize", "must be 1, 2, or 3")
	}
	if v.TaskType < TypeCPU || v.TaskType > TypeMixed {
		return errors.NewValidationError("taskType", "must be 1, 2, or 3")
	}
	if v.Priority < 1 || v.Priority > 5 {
		return errors.NewValidationError("priority", "must be between 1 and 5")
	}
	if math.IsNaN(v.ResourceLoad) || v.ResourceLoad < 0 || v.ResourceLoad > 100 {
		return errors.NewValidationError("resourceLoad", "must be between 0 and 100")
	}
	return nil
}

// Floats returns the vector as a dense row in canonical feature order.
func (v Vector) Floats() []float64 {
	return []float64{float64(v.TaskSize), float64(v.TaskType), float64(v.Priority), v.ResourceLoad}
}

// Example pairs a feature vector with an observed execution time in seconds.
type Example struct {
	Features Vector  `json:"features"`
	Label    float64 `json:"actualTime"`
}

// Validate checks the feature vector and requires a positive label.
func (e Example) Validate() error {
	if err := e.Features.Validate(); err != nil {
		return err
	}
	if math.IsNaN(e.Label) || e.Label <= 0 {
		return errors.NewValidationError("actualTime", "must be a positive number of seconds")
	}
	return nil
}

// Matrix converts an example set into a dense feature matrix and label slice.
func Matrix(examples []Example) (x [][]float64, y []float64) {
	x = make([][]float64, len(examples))
	y = make([]float64, len(examples))
	for i, ex := range examples {
		x[i] = ex.Features.Floats()
		y[i] = ex.Label
	}
	return x, y
}
