package config

import "errors"

// Validation and load failures wrap one of these; match with errors.Is.
var (
	// ErrInvalidConfig covers unreadable YAML, malformed NADSCAN_* values
	// and out-of-range settings.
	ErrInvalidConfig = errors.New("config: invalid configuration")

	// ErrMissingRequired is returned when a setting the server cannot run
	// without, such as the listen address or report dir, is empty.
	ErrMissingRequired = errors.New("config: missing required setting")
)
