package plugin

import "errors"

var (
	// ErrUnknownTool is returned when a job names a tool nobody registered.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrDuplicateTool is returned when a name is registered twice.
	ErrDuplicateTool = errors.New("tool already registered")

	// ErrEmptyTarget is returned by tools that cannot run without a target.
	ErrEmptyTarget = errors.New("target is required")

	// ErrInvalidPattern is returned by Expand for a malformed glob.
	ErrInvalidPattern = errors.New("invalid tool pattern")

	// ErrScriptFailed wraps the failure string a script sets.
	ErrScriptFailed = errors.New("script failed")
)
