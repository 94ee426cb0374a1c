package mailprobe

import "errors"

var (
	// ErrInvalidSMTPOptions is returned when WithSMTP is called
	// but HeloName or MailFrom is missing.
	ErrInvalidSMTPOptions = errors.New("mailprobe: SMTPOptions requires HeloName and MailFrom")

	// ErrInvalidOAuthOptions is returned when WithOAuth is called
	// without a user or with an unknown mechanism.
	ErrInvalidOAuthOptions = errors.New("mailprobe: OAuthOptions requires User and a known Mechanism")
)
