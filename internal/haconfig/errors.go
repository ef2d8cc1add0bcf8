package haconfig

import "errors"

var (
	// ErrNotFound is returned when a file or directory to load does not exist.
	ErrNotFound = errors.New("configuration path not found")
	// ErrParse is returned when a document is not valid YAML after sanitising.
	ErrParse = errors.New("invalid configuration yaml")
	// ErrIncludeCycle is returned when a file includes itself, directly or not.
	ErrIncludeCycle = errors.New("include cycle detected")
)
