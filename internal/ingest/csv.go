// Package ingest loads training examples from CSV files. The expected
// layout is a header row followed by
// taskSize,taskType,priority,resourceLoad,actualTime.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Aidin1998/taskpredict/common/errors"
	"github.com/Aidin1998/taskpredict/internal/features"
)

var columns = []string{"taskSize", "taskType", "priority", "resourceLoad", "actualTime"}

// LoadFile reads and validates a CSV training set from path.
func LoadFile(path string) ([]features.Example, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open training data %q: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads and validates a CSV training set. Every row must pass the
// feature contract; the first invalid row fails the load with its index.
func Load(r io.Reader) ([]features.Example, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(columns)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i, want := range columns {
		if !strings.EqualFold(strings.TrimSpace(header[i]), want) {
			return nil, errors.NewValidationError("header",
				fmt.Sprintf("column %d must be %q, got %q", i, want, header[i]))
		}
	}

	var out []features.Example
	for row := 0; ; row++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", row, err)
		}
		ex, err := parseRow(record)
		if err != nil {
			return nil, errors.NewItemValidationError(row, "data", err.Error())
		}
		if err := ex.Validate(); err != nil {
			return nil, errors.NewItemValidationError(row, "data", err.Error())
		}
		out = append(out, ex)
	}
	return out, nil
}

func parseRow(record []string) (features.Example, error) {
	ints := make([]int, 3)
	for i := 0; i < 3; i++ {
		v, err := strconv.Atoi(strings.TrimSpace(record[i]))
		if err != nil {
			return features.Example{}, fmt.Errorf("%s: %q is not an integer", columns[i], record[i])
		}
		ints[i] = v
	}
	load, err := strconv.ParseFloat(strings.TrimSpace(record[3]), 64)
	if err != nil {
		return features.Example{}, fmt.Errorf("resourceLoad: %q is not a number", record[3])
	}
	label, err := strconv.ParseFloat(strings.TrimSpace(record[4]), 64)
	if err != nil {
		return features.Example{}, fmt.Errorf("actualTime: %q is not a number", record[4])
	}
	return features.Example{
		Features: features.Vector{
			TaskSize:     ints[0],
			TaskType:     ints[1],
			Priority:     ints[2],
			ResourceLoad: load,
		},
		Label: label,
	}, nil
}
