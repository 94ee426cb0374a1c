package batch

import "errors"

var (
	// ErrJobNotFound is returned for an unknown job id.
	ErrJobNotFound = errors.New("batch: job not found")

	// ErrEmptyBatch is returned when a submission has no emails.
	ErrEmptyBatch = errors.New("batch: no emails submitted")

	// ErrTooManyEmails is returned when a submission exceeds Config.MaxEmails.
	ErrTooManyEmails = errors.New("batch: too many emails in one job")

	// ErrJobNotCompleted is returned when exporting a job that has not
	// finished successfully.
	ErrJobNotCompleted = errors.New("batch: job is not completed")

	// ErrNoEmailColumn is returned when a CSV header has no email column.
	ErrNoEmailColumn = errors.New("batch: email column not found")
)
