package batch

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/optimode/mailprobe/types"
)

// resultColumns are appended to every exported row.
var resultColumns = []string{
	"validation_status",
	"validation_score",
	"is_syntax_valid",
	"is_disposable",
	"is_role_account",
	"mx_records",
	"smtp_check",
}

// WriteCSV writes a completed job as CSV. Jobs submitted as rows keep
// their original columns; plain jobs get an email column.
func WriteCSV(w io.Writer, job *Job) error {
	if job.State != StateCompleted {
		return ErrJobNotCompleted
	}

	cw := csv.NewWriter(w)
	header := job.Header
	if len(header) == 0 {
		header = []string{DefaultEmailColumn}
	}
	if err := cw.Write(append(append([]string(nil), header...), resultColumns...)); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for i, res := range job.Results {
		var lead []string
		if len(job.Header) > 0 && i < len(job.Rows) {
			lead = padRow(job.Rows[i], len(job.Header))
		} else {
			lead = []string{job.Emails[i]}
		}
		if err := cw.Write(append(lead, resultFields(res)...)); err != nil {
			return fmt.Errorf("write csv row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func padRow(fields []string, n int) []string {
	out := make([]string, n)
	copy(out, fields)
	return out
}

func resultFields(r types.ValidationResult) []string {
	status := string(r.Status)
	if status == "" {
		status = string(types.StatusUnknown)
	}
	smtp := "not_performed"
	if r.SMTP != nil {
		smtp = "failed"
		if r.SMTP.OK {
			smtp = "passed"
		}
	}
	return []string{
		status,
		strconv.Itoa(r.Score),
		strconv.FormatBool(r.SyntaxValid),
		strconv.FormatBool(r.Disposable),
		strconv.FormatBool(r.RoleAccount),
		strings.Join(r.MX, ";"),
		smtp,
	}
}
