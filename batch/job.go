package batch

import (
	"time"

	"github.com/optimode/mailprobe"
	"github.com/optimode/mailprobe/types"
)

// State is a job's lifecycle position.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Options are applied to every email in a job.
type Options struct {
	SkipSMTP  bool `json:"skipSmtp"`
	ForceSMTP bool `json:"forceSmtp"`
}

func (o Options) validateOptions() mailprobe.ValidateOptions {
	return mailprobe.ValidateOptions{SkipSMTP: o.SkipSMTP, ForceSMTP: o.ForceSMTP}
}

// Row is one CSV record: the email to validate and the original fields,
// kept for export only.
type Row struct {
	Email  string
	Fields []string
}

// Job is the full record of a bulk validation. Results is index-aligned
// with Emails; a slot with an empty Status has not been processed yet.
// The engine's own copy carries no results; they live in the Store.
type Job struct {
	ID         string                   `json:"id"`
	State      State                    `json:"status"`
	Total      int                      `json:"total"`
	Completed  int                      `json:"completed"`
	Emails     []string                 `json:"emails"`
	Results    []types.ValidationResult `json:"results"`
	CreatedAt  time.Time                `json:"createdAt"`
	FinishedAt *time.Time               `json:"finishedAt"`
	Options    Options                  `json:"options"`
	Header     []string                 `json:"header,omitempty"`
	Rows       [][]string               `json:"rows,omitempty"`
	Error      string                   `json:"error,omitempty"`
}

// Status is the progress view of a job, without results.
type Status struct {
	ID         string     `json:"id"`
	Status     State      `json:"status"`
	Total      int        `json:"total"`
	Completed  int        `json:"completed"`
	CreatedAt  time.Time  `json:"createdAt"`
	FinishedAt *time.Time `json:"finishedAt"`
	Error      string     `json:"error,omitempty"`
}

// Status returns the progress view of j.
func (j *Job) Status() Status {
	return Status{
		ID:         j.ID,
		Status:     j.State,
		Total:      j.Total,
		Completed:  j.Completed,
		CreatedAt:  j.CreatedAt,
		FinishedAt: copyTime(j.FinishedAt),
		Error:      j.Error,
	}
}

// applyStatus copies the mutable fields of st onto j.
func (j *Job) applyStatus(st Status) {
	j.State = st.Status
	j.Completed = st.Completed
	j.FinishedAt = copyTime(st.FinishedAt)
	j.Error = st.Error
}

// Done reports whether the job reached a final state.
func (j *Job) Done() bool {
	return j.State == StateCompleted || j.State == StateFailed
}

// FilledResults returns the results recorded so far, in input order.
func (j *Job) FilledResults() []types.ValidationResult {
	out := make([]types.ValidationResult, 0, j.Completed)
	for _, r := range j.Results {
		if r.Status != "" {
			out = append(out, r)
		}
	}
	return out
}

// Clone returns a copy that shares no mutable state with j. Inputs are
// never modified after Create, so only Results is copied.
func (j *Job) Clone() *Job {
	cp := *j
	cp.Results = append([]types.ValidationResult(nil), j.Results...)
	cp.FinishedAt = copyTime(j.FinishedAt)
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
