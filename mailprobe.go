// Package mailprobe decides whether an email address is deliverable
// without sending mail. It combines a syntax check, domain
// classification, MX resolution and a live SMTP probe into one verdict
// with a confidence score.
//
// Basic usage:
//
//	result, err := mailprobe.New().Validate(ctx, "user@example.com")
//
// Configured pipeline:
//
//	result, err := mailprobe.New().
//	    WithSMTP(mailprobe.SMTPOptions{
//	        HeloName: "probe.myapp.com",
//	        MailFrom: "verify@myapp.com",
//	    }).
//	    WithHostLimit(2, 4).
//	    Validate(ctx, "user@example.com")
package mailprobe

import "github.com/optimode/mailprobe/types"

// ValidationResult is a re-export from the types package so that
// consumers don't need to import it directly.
type ValidationResult = types.ValidationResult

// SMTPOutcome is a re-export.
type SMTPOutcome = types.SMTPOutcome

// Status is a re-export.
type Status = types.Status

// Status constants re-exported.
const (
	StatusValid   = types.StatusValid
	StatusRisky   = types.StatusRisky
	StatusInvalid = types.StatusInvalid
	StatusUnknown = types.StatusUnknown
)
