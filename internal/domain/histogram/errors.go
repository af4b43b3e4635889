package histogram

import "errors"

// Sentinel errors for the histogram store.
var (
	ErrInvalidScore = errors.New("score must be a finite number")
)
