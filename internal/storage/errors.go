package storage

import "errors"

var (
	// ErrAlertNotFound is returned when an alert is not in the store
	ErrAlertNotFound = errors.New("alert not found")

	// ErrInvalidTransition is returned when an alert status change is not allowed
	ErrInvalidTransition = errors.New("invalid alert status transition")
)
