package batch

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimode/mailprobe/types"
)

func exportResults() []types.ValidationResult {
	return []types.ValidationResult{
		{
			Email: "a@example.com", SyntaxValid: true,
			MX:     []string{"mx1.example.com", "mx2.example.com"},
			SMTP:   &types.SMTPOutcome{OK: true},
			Status: types.StatusValid, Score: 95,
		},
		{
			Email: "admin@example.com", SyntaxValid: true, RoleAccount: true,
			MX:     []string{"mx1.example.com"},
			Status: types.StatusRisky, Score: 50,
		},
		{
			Email: "x@mailinator.com", SyntaxValid: true, Disposable: true,
			MX:     []string{},
			Status: types.StatusInvalid, Score: 0,
		},
	}
}

func TestWriteCSV_PlainJob(t *testing.T) {
	job := &Job{
		State:   StateCompleted,
		Emails:  []string{"a@example.com", "admin@example.com", "x@mailinator.com"},
		Results: exportResults(),
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, job))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "email,validation_status,validation_score,is_syntax_valid,is_disposable,is_role_account,mx_records,smtp_check", lines[0])
	assert.Equal(t, "a@example.com,valid,95,true,false,false,mx1.example.com;mx2.example.com,passed", lines[1])
	assert.Equal(t, "admin@example.com,risky,50,true,false,true,mx1.example.com,not_performed", lines[2])
	assert.Equal(t, "x@mailinator.com,invalid,0,true,true,false,,not_performed", lines[3])
}

func TestWriteCSV_RowJobKeepsOriginalColumns(t *testing.T) {
	results := exportResults()[:1]
	results[0].SMTP = &types.SMTPOutcome{OK: false, Code: types.ReasonRCPTRejected}
	job := &Job{
		State:   StateCompleted,
		Emails:  []string{"a@example.com"},
		Header:  []string{"name", "email", "note"},
		Rows:    [][]string{{"Ann", "a@example.com"}},
		Results: results,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, job))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "name,email,note,validation_status"))
	assert.Equal(t, "Ann,a@example.com,,valid,95,true,false,false,mx1.example.com;mx2.example.com,failed", lines[1])
}

func TestWriteCSV_RequiresCompletedJob(t *testing.T) {
	for _, st := range []State{StateQueued, StateRunning, StateFailed} {
		err := WriteCSV(&bytes.Buffer{}, &Job{State: st})
		assert.ErrorIs(t, err, ErrJobNotCompleted, st)
	}
}
