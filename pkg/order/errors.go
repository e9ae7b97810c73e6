package order

import "errors"

// Sentinel errors returned by Order mutation methods. Component-level
// code (localproc, exchproc) maps these onto the richer hfterrors
// taxonomy where a caller-facing error code is needed.
var (
	ErrInvalidStatusForMutation = errors.New("order: cannot mutate a terminal order")
)
