package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorValidate(t *testing.T) {
	valid := Vector{TaskSize: 2, TaskType: 1, Priority: 3, ResourceLoad: 50}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(v *Vector)
		field  string
	}{
		{"task size too small", func(v *Vector) { v.TaskSize = 0 }, "taskSize"},
		{"task size too large", func(v *Vector) { v.TaskSize = 4 }, "taskSize"},
		{"task type out of range", func(v *Vector) { v.TaskType = 5 }, "taskType"},
		{"priority too low", func(v *Vector) { v.Priority = 0 }, "priority"},
		{"priority too high", func(v *Vector) { v.Priority = 6 }, "priority"},
		{"negative load", func(v *Vector) { v.ResourceLoad = -1 }, "resourceLoad"},
		{"load above 100", func(v *Vector) { v.ResourceLoad = 100.5 }, "resourceLoad"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := valid
			tt.mutate(&v)
			err := v.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestExampleValidate(t *testing.T) {
	ex := Example{
		Features: Vector{TaskSize: 1, TaskType: 2, Priority: 4, ResourceLoad: 10},
		Label:    3.5,
	}
	require.NoError(t, ex.Validate())

	t.Run("zero label rejected", func(t *testing.T) {
		bad := ex
		bad.Label = 0
		assert.Error(t, bad.Validate())
	})
	t.Run("negative label rejected", func(t *testing.T) {
		bad := ex
		bad.Label = -1
		assert.Error(t, bad.Validate())
	})
	t.Run("invalid features rejected", func(t *testing.T) {
		bad := ex
		bad.Features.TaskSize = 9
		assert.Error(t, bad.Validate())
	})
}

func TestFloatsOrderMatchesNames(t *testing.T) {
	v := Vector{TaskSize: 3, TaskType: 2, Priority: 5, ResourceLoad: 77.5}
	row := v.Floats()
	require.Len(t, row, Dim)
	require.Len(t, Names(), Dim)
	assert.Equal(t, []float64{3, 2, 5, 77.5}, row)
}

func TestMatrix(t *testing.T) {
	examples := []Example{
		{Features: Vector{TaskSize: 1, TaskType: 1, Priority: 1, ResourceLoad: 0}, Label: 1.5},
		{Features: Vector{TaskSize: 3, TaskType: 3, Priority: 5, ResourceLoad: 100}, Label: 9.1},
	}
	x, y := Matrix(examples)
	require.Len(t, x, 2)
	require.Len(t, y, 2)
	assert.Equal(t, []float64{1, 1, 1, 0}, x[0])
	assert.Equal(t, 9.1, y[1])
}
