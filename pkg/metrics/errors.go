package metrics

import "errors"

// ErrNoManager is returned when a nil manager is installed as the global.
var ErrNoManager = errors.New("metrics: nil manager")
