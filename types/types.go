// Package types contains the shared types for mailprobe.
// This package does not import anything from other mailprobe packages
// to avoid circular imports.
package types

import "time"

// Status is the overall verdict for an email address.
type Status string

const (
	StatusValid   Status = "valid"
	StatusRisky   Status = "risky"
	StatusInvalid Status = "invalid"
	StatusUnknown Status = "unknown"
)

// ReasonCode classifies how an SMTP probe ended when it did not succeed.
type ReasonCode string

const (
	ReasonUnexpectedGreeting ReasonCode = "UNEXPECTED_GREETING"
	ReasonEHLOFailed         ReasonCode = "EHLO_FAILED"
	ReasonMailFailed         ReasonCode = "MAIL_FAILED"
	ReasonRCPTRejected       ReasonCode = "RCPT_REJECTED"
	ReasonTimeout            ReasonCode = "TIMEOUT"
	ReasonConnection         ReasonCode = "CONNECTION_ERROR"
	ReasonProtocol           ReasonCode = "PROTOCOL_ERROR"
	ReasonAuth               ReasonCode = "AUTH_ERROR"
	ReasonUnknown            ReasonCode = "UNKNOWN_ERROR"
	ReasonSkipped            ReasonCode = "SKIPPED"
	ReasonInternal           ReasonCode = "INTERNAL_ERROR"
)

// SMTPOutcome describes what happened during an SMTP probe.
// For a CONNECTION_ERROR, Message carries the underlying condition
// (ECONNRESET, ECONNREFUSED, ETIMEDOUT or EPIPE).
type SMTPOutcome struct {
	OK       bool       `json:"ok"`
	Skipped  bool       `json:"skipped"`
	Code     ReasonCode `json:"code,omitempty"`
	Message  string     `json:"message"`
	MXHost   string     `json:"mxHost,omitempty"`
	SMTPCode int        `json:"smtpCode,omitempty"`
}

// DomainInfo is optional registration data for the email domain.
// It is informational and never affects the status or score.
type DomainInfo struct {
	Registrar string     `json:"registrar,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	AgeDays   int        `json:"ageDays,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// ValidationResult is the outcome of validating a single email address.
type ValidationResult struct {
	Email       string       `json:"email"`
	SyntaxValid bool         `json:"syntax"`
	MX          []string     `json:"mx"`
	Disposable  bool         `json:"disposable"`
	RoleAccount bool         `json:"role"`
	SMTP        *SMTPOutcome `json:"smtp"`
	Status      Status       `json:"status"`
	Score       int          `json:"score"`
	Suggestion  string       `json:"suggestion,omitempty"`
	Domain      *DomainInfo  `json:"domain,omitempty"`
	Error       string       `json:"error,omitempty"`
}
