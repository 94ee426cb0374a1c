package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/optimode/mailprobe"
	"github.com/optimode/mailprobe/types"
)

// fakeValidator answers valid/95 after an optional per-email delay.
type fakeValidator struct {
	delay    func(email string) time.Duration
	panicOn  string
	failOn   string
	calls    atomic.Int64
	inflight atomic.Int64
	peak     atomic.Int64

	mu   sync.Mutex
	opts []mailprobe.ValidateOptions
}

func (f *fakeValidator) Validate(_ context.Context, email string, opts ...mailprobe.ValidateOptions) (types.ValidationResult, error) {
	f.calls.Add(1)
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.opts = append(f.opts, opts...)
	f.mu.Unlock()

	if f.delay != nil {
		time.Sleep(f.delay(email))
	}
	if email == f.panicOn {
		panic("boom")
	}
	if email == f.failOn {
		return types.ValidationResult{}, errors.New("validator misconfigured")
	}
	return types.ValidationResult{
		Email:       email,
		SyntaxValid: true,
		MX:          []string{"mx.example.com"},
		SMTP:        &types.SMTPOutcome{OK: true, MXHost: "mx.example.com"},
		Status:      types.StatusValid,
		Score:       95,
	}, nil
}

func testConfig() Config {
	return Config{BatchSize: 10, Concurrency: 1, Pause: time.Millisecond}
}

func emailList(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("user%03d@example.com", i)
	}
	return out
}

func waitDone(t *testing.T, e *Engine, id string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, e.Wait(ctx, id))
}

func TestSubmit_CompletesInInputOrder(t *testing.T) {
	v := &fakeValidator{delay: func(email string) time.Duration {
		return time.Duration(len(email)%3) * time.Millisecond
	}}
	e := NewEngine(v, nil, Config{BatchSize: 4, Concurrency: 3}, zaptest.NewLogger(t))
	ctx := context.Background()

	emails := emailList(57)
	emails[5] = "x@example.com"
	emails[6] = "longer.address@example.com"

	id, err := e.Submit(ctx, emails, Options{})
	require.NoError(t, err)
	waitDone(t, e, id)

	st, err := e.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, st.Status)
	assert.Equal(t, 57, st.Total)
	assert.Equal(t, 57, st.Completed)
	require.NotNil(t, st.FinishedAt)

	results, err := e.GetResults(ctx, id)
	require.NoError(t, err)
	require.Len(t, results, len(emails))
	for i, r := range results {
		assert.Equal(t, emails[i], r.Email)
	}
	assert.Equal(t, int64(57), v.calls.Load())
	assert.Equal(t, 0, e.ActiveJobs())
}

func TestSubmit_RejectsBeforeCreatingJob(t *testing.T) {
	store := NewMemoryStore()
	e := NewEngine(&fakeValidator{}, store, testConfig(), nil)
	ctx := context.Background()

	_, err := e.Submit(ctx, nil, Options{})
	assert.ErrorIs(t, err, ErrEmptyBatch)

	_, err = e.Submit(ctx, make([]string, 100001), Options{})
	assert.ErrorIs(t, err, ErrTooManyEmails)

	_, err = e.SubmitRows(ctx, []string{"email"}, nil, Options{})
	assert.ErrorIs(t, err, ErrEmptyBatch)

	jobs, err := store.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestSubmit_AcceptsExactlyMax(t *testing.T) {
	e := NewEngine(&fakeValidator{}, nil, Config{MaxEmails: 3}, nil)

	_, err := e.Submit(context.Background(), emailList(3), Options{})
	assert.NoError(t, err)
	_, err = e.Submit(context.Background(), emailList(4), Options{})
	assert.ErrorIs(t, err, ErrTooManyEmails)
}

func TestSubmit_StoredAsQueuedBeforeReturning(t *testing.T) {
	store := &recordingStore{MemoryStore: NewMemoryStore()}
	e := NewEngine(&fakeValidator{}, store, testConfig(), nil)

	id, err := e.Submit(context.Background(), emailList(3), Options{})
	require.NoError(t, err)
	waitDone(t, e, id)

	states := store.states(id)
	require.NotEmpty(t, states)
	assert.Equal(t, StateQueued, states[0])
	assert.Equal(t, StateRunning, states[1])
	assert.Equal(t, StateCompleted, states[len(states)-1])
}

func TestUnknownJob(t *testing.T) {
	e := NewEngine(&fakeValidator{}, nil, testConfig(), nil)
	ctx := context.Background()

	_, err := e.GetStatus(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = e.GetResults(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, e.Wait(ctx, "missing"), ErrJobNotFound)
}

func TestItemFaultsAreIsolated(t *testing.T) {
	v := &fakeValidator{panicOn: "user003@example.com", failOn: "user007@example.com"}
	e := NewEngine(v, nil, testConfig(), zaptest.NewLogger(t))
	ctx := context.Background()

	id, err := e.Submit(ctx, emailList(12), Options{})
	require.NoError(t, err)
	waitDone(t, e, id)

	st, err := e.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, st.Status)
	assert.Equal(t, 12, st.Completed)

	results, err := e.GetResults(ctx, id)
	require.NoError(t, err)
	require.Len(t, results, 12)

	for _, i := range []int{3, 7} {
		assert.Equal(t, types.StatusInvalid, results[i].Status)
		assert.Equal(t, 0, results[i].Score)
		assert.NotEmpty(t, results[i].Error)
		assert.Equal(t, fmt.Sprintf("user%03d@example.com", i), results[i].Email)
	}
	assert.Contains(t, results[3].Error, "boom")
	assert.Equal(t, types.StatusValid, results[4].Status)
}

func TestProgressIsMonotonic(t *testing.T) {
	store := &recordingStore{MemoryStore: NewMemoryStore()}
	e := NewEngine(&fakeValidator{}, store, Config{BatchSize: 3, Concurrency: 4}, nil)

	id, err := e.Submit(context.Background(), emailList(31), Options{})
	require.NoError(t, err)
	waitDone(t, e, id)

	progress := store.progress(id)
	require.NotEmpty(t, progress)
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}
	assert.Equal(t, 31, progress[len(progress)-1])
}

func TestBatchConcurrencyLimit(t *testing.T) {
	tests := []struct {
		concurrency int
		maxInFlight int64
	}{
		{1, 2},
		{2, 4},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("concurrency=%d", tt.concurrency), func(t *testing.T) {
			v := &fakeValidator{delay: func(string) time.Duration { return 5 * time.Millisecond }}
			e := NewEngine(v, nil, Config{BatchSize: 2, Concurrency: tt.concurrency}, nil)

			id, err := e.Submit(context.Background(), emailList(12), Options{})
			require.NoError(t, err)
			waitDone(t, e, id)
			assert.LessOrEqual(t, v.peak.Load(), tt.maxInFlight)
		})
	}
}

func TestOptionsReachValidator(t *testing.T) {
	v := &fakeValidator{}
	e := NewEngine(v, nil, testConfig(), nil)

	id, err := e.Submit(context.Background(), emailList(2), Options{SkipSMTP: true})
	require.NoError(t, err)
	waitDone(t, e, id)

	v.mu.Lock()
	defer v.mu.Unlock()
	require.Len(t, v.opts, 2)
	for _, o := range v.opts {
		assert.True(t, o.SkipSMTP)
		assert.False(t, o.ForceSMTP)
	}
}

func TestStoreFailureFailsJob(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore()}
	e := NewEngine(&fakeValidator{}, store, testConfig(), zaptest.NewLogger(t))
	ctx := context.Background()

	id, err := e.Submit(ctx, emailList(25), Options{})
	require.NoError(t, err)
	waitDone(t, e, id)

	st, err := e.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, st.Status)
	assert.NotNil(t, st.FinishedAt)
	assert.Contains(t, st.Error, "disk full")
}

func TestSubmitStoreFailureCreatesNoJob(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore(), failAll: true}
	e := NewEngine(&fakeValidator{}, store, testConfig(), nil)

	_, err := e.Submit(context.Background(), emailList(2), Options{})
	assert.Error(t, err)
	assert.Equal(t, 0, e.ActiveJobs())
}

func TestSubmitRows(t *testing.T) {
	e := NewEngine(&fakeValidator{}, nil, testConfig(), nil)
	ctx := context.Background()

	header := []string{"name", "Email"}
	rows := []Row{
		{Email: "a@example.com", Fields: []string{"Ann", "a@example.com"}},
		{Email: "b@example.com", Fields: []string{"Bob", "b@example.com"}},
	}
	id, err := e.SubmitRows(ctx, header, rows, Options{})
	require.NoError(t, err)
	waitDone(t, e, id)

	job, err := e.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, header, job.Header)
	assert.Equal(t, [][]string{{"Ann", "a@example.com"}, {"Bob", "b@example.com"}}, job.Rows)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, job.Emails)
}

func TestJobsAndStats(t *testing.T) {
	e := NewEngine(&fakeValidator{}, nil, testConfig(), nil)
	ctx := context.Background()

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	e.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}

	var ids []string
	for range 3 {
		id, err := e.Submit(ctx, emailList(2), Options{})
		require.NoError(t, err)
		waitDone(t, e, id)
		ids = append(ids, id)
	}

	jobs, err := e.Jobs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, ids[2], jobs[0].ID)
	assert.Equal(t, ids[0], jobs[2].ID)

	jobs, err = e.Jobs(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 3, Completed: 3}, stats)
}

func TestShutdownFailsActiveJobs(t *testing.T) {
	v := &fakeValidator{delay: func(string) time.Duration { return 10 * time.Millisecond }}
	e := NewEngine(v, nil, Config{BatchSize: 1}, nil)
	ctx := context.Background()

	id, err := e.Submit(ctx, emailList(100), Options{})
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(shutdownCtx))

	st, err := e.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, st.Status)
	assert.Contains(t, st.Error, "shutting down")
	assert.Less(t, st.Completed, 100)

	_, err = e.Submit(ctx, emailList(1), Options{})
	assert.Error(t, err)
}

func TestProgressSavesOnlyTheBatch(t *testing.T) {
	store := &recordingStore{MemoryStore: NewMemoryStore()}
	e := NewEngine(&fakeValidator{}, store, Config{BatchSize: 4, Pause: -1}, nil)
	ctx := context.Background()

	id, err := e.Submit(ctx, emailList(40), Options{})
	require.NoError(t, err)
	waitDone(t, e, id)

	store.mu.Lock()
	widest := store.widest
	store.mu.Unlock()
	assert.Equal(t, 4, widest)

	results, err := e.GetResults(ctx, id)
	require.NoError(t, err)
	require.Len(t, results, 40)
	assert.Equal(t, "user039@example.com", results[39].Email)
}

func TestActiveJobsCountsRunningOnly(t *testing.T) {
	e := NewEngine(&fakeValidator{}, nil, testConfig(), nil)
	e.mu.Lock()
	e.active["queued"] = &run{job: &Job{ID: "queued", State: StateQueued}}
	e.active["running"] = &run{job: &Job{ID: "running", State: StateRunning}}
	e.mu.Unlock()

	assert.Equal(t, 1, e.ActiveJobs())
}

// recordingStore keeps every status it is given.
type recordingStore struct {
	*MemoryStore
	mu    sync.Mutex
	saved []Status
	// widest is the largest result range written by a single Update.
	widest int
}

func (s *recordingStore) Create(ctx context.Context, job *Job) error {
	s.mu.Lock()
	s.saved = append(s.saved, job.Status())
	s.mu.Unlock()
	return s.MemoryStore.Create(ctx, job)
}

func (s *recordingStore) Update(ctx context.Context, st Status, offset int, results []types.ValidationResult) error {
	s.mu.Lock()
	s.saved = append(s.saved, st)
	s.widest = max(s.widest, len(results))
	s.mu.Unlock()
	return s.MemoryStore.Update(ctx, st, offset, results)
}

func (s *recordingStore) states(id string) []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []State
	for _, st := range s.saved {
		if st.ID == id {
			out = append(out, st.Status)
		}
	}
	return out
}

func (s *recordingStore) progress(id string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for _, st := range s.saved {
		if st.ID == id {
			out = append(out, st.Completed)
		}
	}
	return out
}

// failingStore rejects progress saves once a batch has completed, but
// still records the final failed state.
type failingStore struct {
	*MemoryStore
	failAll bool
}

func (s *failingStore) Create(ctx context.Context, job *Job) error {
	if s.failAll {
		return errors.New("disk full")
	}
	return s.MemoryStore.Create(ctx, job)
}

func (s *failingStore) Update(ctx context.Context, st Status, offset int, results []types.ValidationResult) error {
	if st.Status == StateRunning && st.Completed > 0 {
		return errors.New("disk full")
	}
	return s.MemoryStore.Update(ctx, st, offset, results)
}
