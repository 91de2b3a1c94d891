// Package repository holds the calibration store boundary and its in-memory
// implementation.
package repository

import (
	"context"

	"github.com/okian/kpiforecast/internal/domain/model"
)

// UpdateFunc receives the current state (zero with found=false when the
// pair has none) and returns the state to persist.
type UpdateFunc func(current model.CalibrationState, found bool) (model.CalibrationState, error)

// CalibrationStore provides read/write access to per-(user, KPI)
// calibration rows.
type CalibrationStore interface {
	// Get returns ErrNotFound when the pair has no row.
	Get(ctx context.Context, userID, kpiID string) (model.CalibrationState, error)

	// List returns every row of a user ordered by KPI id.
	List(ctx context.Context, userID string) ([]model.CalibrationState, error)

	// Put overwrites a row.
	Put(ctx context.Context, state model.CalibrationState) error

	// Update runs fn as one read-modify-write for the pair. Concurrent
	// updates of the same pair are serialized; an error from fn leaves the
	// row untouched.
	Update(ctx context.Context, userID, kpiID string, fn UpdateFunc) (model.CalibrationState, error)

	// Count returns the number of rows held.
	Count(ctx context.Context) int
}
