package mailprobe

import (
	"github.com/optimode/mailprobe/types"
)

// Scores for each terminal step of the pipeline.
const (
	scoreRejected      = 0
	scoreSkipRequested = 50
	scoreEstimatedRole = 70
	scoreEstimated     = 85
	scoreAcceptedRole  = 75
	scoreAccepted      = 95
	scoreProbeFailed   = 10
)

func finish(r ValidationResult, status types.Status, score int) ValidationResult {
	r.Status = status
	r.Score = score
	return r
}

func rejected(r ValidationResult) ValidationResult {
	return finish(r, types.StatusInvalid, scoreRejected)
}

// estimated scores a domain that is not probed on purpose. Role accounts
// are never better than risky.
func estimated(r ValidationResult, reason string) ValidationResult {
	r.SMTP = &types.SMTPOutcome{
		Skipped: true,
		Code:    types.ReasonSkipped,
		Message: reason,
	}
	if r.RoleAccount {
		return finish(r, types.StatusRisky, scoreEstimatedRole)
	}
	return finish(r, types.StatusValid, scoreEstimated)
}

// probed scores a completed probe. Any failure, transport errors
// included, is invalid.
func probed(r ValidationResult, out types.SMTPOutcome) ValidationResult {
	r.SMTP = &out
	switch {
	case !out.OK:
		return finish(r, types.StatusInvalid, scoreProbeFailed)
	case r.RoleAccount:
		return finish(r, types.StatusRisky, scoreAcceptedRole)
	default:
		return finish(r, types.StatusValid, scoreAccepted)
	}
}

// internalError is the result for a fault inside the pipeline itself.
func internalError(email string, err error) ValidationResult {
	return ValidationResult{
		Email:  email,
		MX:     []string{},
		SMTP:   &types.SMTPOutcome{Code: types.ReasonInternal, Message: err.Error()},
		Status: types.StatusInvalid,
		Score:  scoreRejected,
		Error:  err.Error(),
	}
}
