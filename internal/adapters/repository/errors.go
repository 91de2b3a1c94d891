package repository

import "errors"

// Sentinel kinds for calibration store errors.
var (
	ErrNotFound   = errors.New("calibration state not found")
	ErrInvalidKey = errors.New("invalid calibration key")
)
