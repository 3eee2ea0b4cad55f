package core

import "errors"

// Ledger error taxonomy. Validation errors are detected before any write;
// the rest are surfaced as-is from the backend. Callers match with errors.Is.
var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidSettings   = errors.New("invalid settings")
	ErrInvalidCategory   = errors.New("invalid category")
	ErrRecordNotFound    = errors.New("record not found")
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrRemoteUnavailable = errors.New("remote store unavailable")
	ErrCorruptRecord     = errors.New("unreadable stored record")
)
