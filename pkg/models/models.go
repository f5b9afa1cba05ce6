// Package models defines the HTTP request and response shapes of the
// prediction API.
package models

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/Aidin1998/taskpredict/internal/ensemble"
	"github.com/Aidin1998/taskpredict/internal/features"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("modelfamily", func(fl validator.FieldLevel) bool {
			return ensemble.Family(fl.Field().String()).Valid()
		})
	}
}

// Task is the wire form of one task descriptor.
type Task struct {
	TaskSize     int     `json:"taskSize" binding:"required"`
	TaskType     int     `json:"taskType" binding:"required"`
	Priority     int     `json:"priority" binding:"required"`
	ResourceLoad float64 `json:"resourceLoad" binding:"min=0,max=100"`
}

// Vector converts the wire form into the validated feature contract.
func (t Task) Vector() features.Vector {
	return features.Vector{
		TaskSize:     t.TaskSize,
		TaskType:     t.TaskType,
		Priority:     t.Priority,
		ResourceLoad: t.ResourceLoad,
	}
}

// TrainExample is the wire form of one labelled observation.
type TrainExample struct {
	Task
	ActualTime float64 `json:"actualTime" binding:"required"`
}

// Example converts the wire form into the validated training contract.
func (e TrainExample) Example() features.Example {
	return features.Example{Features: e.Task.Vector(), Label: e.ActualTime}
}

// BatchPredictRequest carries up to 1000 tasks.
type BatchPredictRequest struct {
	Tasks []Task `json:"tasks" binding:"required"`
}

// TrainRequest starts a full training run.
type TrainRequest struct {
	ModelType string         `json:"modelType"`
	Data      []TrainExample `json:"data" binding:"required"`
}

// RetrainRequest updates the model with fresh observations.
type RetrainRequest struct {
	Data        []TrainExample `json:"data" binding:"required"`
	Incremental bool           `json:"incremental"`
}

// SwitchRequest selects a different model family.
type SwitchRequest struct {
	ModelType string `json:"modelType" binding:"required,modelfamily"`
}

// CompareRequest runs the paired significance test between two families.
type CompareRequest struct {
	ModelA string `json:"modelA" binding:"required,modelfamily"`
	ModelB string `json:"modelB" binding:"required,modelfamily"`
}

// TuneRequest runs hyperparameter search for one family.
type TuneRequest struct {
	ModelType string `json:"modelType" binding:"required,modelfamily"`
	Trials    int    `json:"trials"`
	Apply     bool   `json:"apply"`
}

// BatchItem is one positional batch result; Error is set instead of the
// prediction fields when the item failed validation.
type BatchItem struct {
	Index         int      `json:"index"`
	PredictedTime *float64 `json:"predictedTime,omitempty"`
	Confidence    *float64 `json:"confidence,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// BatchPredictResponse is the aggregate batch reply.
type BatchPredictResponse struct {
	Predictions   []BatchItem `json:"predictions"`
	Count         int         `json:"count"`
	Failed        int         `json:"failed"`
	MeanPredicted float64     `json:"meanPredicted"`
	ModelVersion  string      `json:"modelVersion"`
	ModelType     string      `json:"modelType"`
}

// HealthResponse reports liveness and model state.
type HealthResponse struct {
	Status       string `json:"status"`
	ModelLoaded  bool   `json:"modelLoaded"`
	ModelVersion string `json:"modelVersion,omitempty"`
}
