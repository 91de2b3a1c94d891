package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted       = errors.New("service not started")
	ErrNoSink           = errors.New("service has no result sink")
	ErrInvalidDealClose = errors.New("invalid deal close")
	ErrCalibrationStore = errors.New("calibration store")
)
