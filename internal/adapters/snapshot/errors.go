package snapshot

import "errors"

// Sentinel kinds for snapshot errors.
var (
	ErrRead   = errors.New("snapshot read failed")
	ErrDecode = errors.New("snapshot decode failed")
	ErrWrite  = errors.New("report write failed")
)
