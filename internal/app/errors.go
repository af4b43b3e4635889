package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrValidation = errors.New("invalid request")
	ErrNotFound   = errors.New("evaluation not found")
	ErrNotStarted = errors.New("service not started")
)
