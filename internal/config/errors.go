package config

import "errors"

// Sentinel errors returned by Load and Validate.
var (
	ErrLoadConfig        = errors.New("load config failed")
	ErrInvalidConfig     = errors.New("invalid config")
	ErrUnsupportedFormat = errors.New("unsupported config file format")
)
