package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound = errors.New("opportunity not found")
	ErrConflict = errors.New("version conflict")
	ErrClosed   = errors.New("opportunity closed")
)
