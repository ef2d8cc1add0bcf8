package stats

import "errors"

// ErrNoStorage is returned when a Reporter is used without a storage backend.
var ErrNoStorage = errors.New("statistics storage not configured")
