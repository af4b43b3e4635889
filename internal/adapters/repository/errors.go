package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound     = errors.New("evaluation not found")
	ErrPersistence  = errors.New("evaluation store failure")
	ErrInvalidScore = errors.New("score must be a finite number")
)
