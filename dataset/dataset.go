// Package dataset holds the payload table shared by every write of a benchmark run.
package dataset

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

const (
	keyPrefix          = "key"
	updatedValuePrefix = "updated_value"
)

// Dataset is an immutable, ordered table of unique values indexed by operation index.
// It is built once before any phase runs and is read concurrently without locking.
type Dataset struct {
	values []string
}

// New generates count unique random values.
func New(count int) (*Dataset, error) {
	if count < 0 {
		return nil, fmt.Errorf("dataset: invalid count %d", count)
	}

	values := make([]string, count)
	seen := make(map[string]struct{}, count)

	for i := 0; i < count; {
		v := uuid.NewString()
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		values[i] = v
		i++
	}

	return &Dataset{values: values}, nil
}

// Value returns the payload for operation index i.
func (d *Dataset) Value(i int) string {
	return d.values[i]
}

// Len returns the number of values in the table.
func (d *Dataset) Len() int {
	return len(d.values)
}

// Key returns the record key for operation index i.
func Key(i int) string {
	return keyPrefix + strconv.Itoa(i)
}

// UpdatedValue returns the value written for operation index i during the update phase.
func UpdatedValue(i int) string {
	return updatedValuePrefix + strconv.Itoa(i)
}
