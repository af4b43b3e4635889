package cache

import "errors"

// Sentinel errors for histogram backends.
var (
	ErrUnavailable = errors.New("histogram backend unavailable")
	ErrCorrupt     = errors.New("histogram backend holds a malformed value")
)
