package scheduler

import "errors"

var (
	// ErrInvalidSchedule is returned when a cron expression cannot be parsed
	ErrInvalidSchedule = errors.New("invalid cron expression")

	// ErrAlreadyStarted is returned when Start is called twice
	ErrAlreadyStarted = errors.New("scheduler already started")

	// ErrInvalidRetention is returned for a non-positive retention period
	ErrInvalidRetention = errors.New("retention must be positive")
)
