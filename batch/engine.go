// Package batch runs bulk validation jobs in the background with bounded
// concurrency and keeps a queryable progress record for each.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/optimode/mailprobe"
	"github.com/optimode/mailprobe/types"
)

// Validator validates one email. *mailprobe.Validator implements it.
type Validator interface {
	Validate(ctx context.Context, email string, opts ...mailprobe.ValidateOptions) (types.ValidationResult, error)
}

// Config tunes the engine. Zero fields take the defaults.
type Config struct {
	// BatchSize is the number of emails validated together. Default: 10
	BatchSize int
	// Concurrency is the number of batches in flight per job. Default: 1
	Concurrency int
	// Pause is the delay after each batch. Default: 30ms; negative disables it.
	Pause time.Duration
	// MaxEmails caps a single submission. Default: 100000
	MaxEmails int
	// ProgressEvery logs progress each time this many more emails finish. Default: 1000
	ProgressEvery int
}

// DefaultConfig returns the default engine settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:     10,
		Concurrency:   1,
		Pause:         30 * time.Millisecond,
		MaxEmails:     100000,
		ProgressEvery: 1000,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	switch {
	case c.Pause == 0:
		c.Pause = def.Pause
	case c.Pause < 0:
		c.Pause = 0
	}
	if c.MaxEmails <= 0 {
		c.MaxEmails = def.MaxEmails
	}
	if c.ProgressEvery <= 0 {
		c.ProgressEvery = def.ProgressEvery
	}
	return c
}

// Stats counts jobs by state.
type Stats struct {
	Total     int `json:"totalJobs"`
	Active    int `json:"activeJobs"`
	Completed int `json:"completedJobs"`
	Failed    int `json:"failedJobs"`
}

// maxListed caps Jobs.
const maxListed = 1000

// Engine owns every job it accepts until the job finishes.
type Engine struct {
	validator Validator
	store     Store
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]*run
}

// run is the in-memory side of an active job.
type run struct {
	mu   sync.Mutex // guards job and serialises its store updates
	job  *Job
	done chan struct{}
}

// NewEngine creates an engine. A nil store means a fresh MemoryStore and
// a nil logger discards output.
func NewEngine(v Validator, store Store, cfg Config, logger *zap.Logger) *Engine {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Engine{
		validator: v,
		store:     store,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		now:       time.Now,
		base:      base,
		cancel:    cancel,
		active:    make(map[string]*run),
	}
}

// Submit creates a job for emails and starts it in the background. The
// job is stored as queued before Submit returns.
func (e *Engine) Submit(ctx context.Context, emails []string, opts Options) (string, error) {
	if err := e.checkSize(len(emails)); err != nil {
		return "", err
	}
	job := e.newJob(append([]string(nil), emails...), opts)
	return e.start(ctx, job)
}

// SubmitRows is Submit for CSV input. The header and fields are carried
// through to WriteCSV unchanged.
func (e *Engine) SubmitRows(ctx context.Context, header []string, rows []Row, opts Options) (string, error) {
	if err := e.checkSize(len(rows)); err != nil {
		return "", err
	}
	emails := make([]string, len(rows))
	fields := make([][]string, len(rows))
	for i, r := range rows {
		emails[i] = r.Email
		fields[i] = r.Fields
	}
	job := e.newJob(emails, opts)
	job.Header = append([]string(nil), header...)
	job.Rows = fields
	return e.start(ctx, job)
}

func (e *Engine) checkSize(n int) error {
	if n == 0 {
		return ErrEmptyBatch
	}
	if n > e.cfg.MaxEmails {
		return fmt.Errorf("%w: %d > %d", ErrTooManyEmails, n, e.cfg.MaxEmails)
	}
	return nil
}

func (e *Engine) newJob(emails []string, opts Options) *Job {
	return &Job{
		ID:        uuid.NewString(),
		State:     StateQueued,
		Total:     len(emails),
		Emails:    emails,
		CreatedAt: e.now().UTC(),
		Options:   opts,
	}
}

func (e *Engine) start(ctx context.Context, job *Job) (string, error) {
	if err := e.base.Err(); err != nil {
		return "", fmt.Errorf("batch: engine stopped: %w", err)
	}
	if err := e.store.Create(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	r := &run{job: job, done: make(chan struct{})}
	e.mu.Lock()
	e.active[job.ID] = r
	e.mu.Unlock()

	e.logger.Info("job queued", zap.String("job_id", job.ID), zap.Int("total", job.Total))

	e.wg.Add(1)
	go e.process(r)
	return job.ID, nil
}

// GetStatus returns the progress of a job.
func (e *Engine) GetStatus(ctx context.Context, id string) (Status, error) {
	return e.store.Status(ctx, id)
}

// GetResults returns the results recorded so far, in input order.
func (e *Engine) GetResults(ctx context.Context, id string) ([]types.ValidationResult, error) {
	job, err := e.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return job.FilledResults(), nil
}

// GetJob returns the full job with its results.
func (e *Engine) GetJob(ctx context.Context, id string) (*Job, error) {
	return e.store.Load(ctx, id)
}

// Jobs lists up to limit jobs, newest first. limit is capped at 1000.
func (e *Engine) Jobs(ctx context.Context, limit int) ([]Status, error) {
	if limit <= 0 || limit > maxListed {
		limit = maxListed
	}
	return e.store.List(ctx, limit)
}

// Stats counts the stored jobs by state. Active counts running jobs.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	jobs, err := e.store.List(ctx, 0)
	if err != nil {
		return Stats{}, err
	}
	s := Stats{Total: len(jobs)}
	for _, j := range jobs {
		switch j.Status {
		case StateRunning:
			s.Active++
		case StateCompleted:
			s.Completed++
		case StateFailed:
			s.Failed++
		}
	}
	return s, nil
}

// ActiveJobs returns the number of jobs this engine is running. Jobs
// still queued are not counted.
func (e *Engine) ActiveJobs() int {
	e.mu.Lock()
	runs := make([]*run, 0, len(e.active))
	for _, r := range e.active {
		runs = append(runs, r)
	}
	e.mu.Unlock()

	n := 0
	for _, r := range runs {
		r.mu.Lock()
		if r.job.State == StateRunning {
			n++
		}
		r.mu.Unlock()
	}
	return n
}

// Wait blocks until the job finishes or ctx is done. A job that is not
// active returns immediately, with ErrJobNotFound if it was never stored.
func (e *Engine) Wait(ctx context.Context, id string) error {
	e.mu.Lock()
	r, ok := e.active[id]
	e.mu.Unlock()
	if !ok {
		_, err := e.store.Status(ctx, id)
		return err
	}

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops active jobs at their next batch boundary, marking them
// failed, and waits for them to exit or ctx to end. In-flight probes run
// to their own timeouts.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.cancel()
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) process(r *run) {
	defer e.wg.Done()
	defer func() {
		e.mu.Lock()
		delete(e.active, r.job.ID)
		e.mu.Unlock()
		close(r.done)
	}()

	log := e.logger.With(zap.String("job_id", r.job.ID))
	defer func() {
		if p := recover(); p != nil {
			e.fail(r, log, fmt.Errorf("job aborted: %v", p))
		}
	}()

	if err := e.update(r, 0, nil, func(j *Job) { j.State = StateRunning }); err != nil {
		e.fail(r, log, err)
		return
	}
	log.Info("job started", zap.Int("total", r.job.Total))
	started := e.now()

	if err := e.runBatches(r, log); err != nil {
		e.fail(r, log, err)
		return
	}

	if err := e.update(r, 0, nil, func(j *Job) {
		j.State = StateCompleted
		now := e.now().UTC()
		j.FinishedAt = &now
	}); err != nil {
		e.fail(r, log, err)
		return
	}
	log.Info("job completed",
		zap.Int("total", r.job.Total),
		zap.Duration("elapsed", e.now().Sub(started)),
	)
}

func (e *Engine) runBatches(r *run, log *zap.Logger) error {
	total := r.job.Total
	size := e.cfg.BatchSize

	g, gctx := errgroup.WithContext(e.base)
	g.SetLimit(e.cfg.Concurrency)

	for start := 0; start < total; start += size {
		if gctx.Err() != nil {
			break
		}
		end := min(start+size, total)
		last := end == total
		g.Go(func() error {
			if err := e.runBatch(r, log, start, end); err != nil {
				return err
			}
			if !last {
				pause(gctx, e.cfg.Pause)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if err := e.base.Err(); err != nil {
		return fmt.Errorf("engine shutting down: %w", err)
	}
	return nil
}

// runBatch validates emails[start:end] concurrently, then saves the
// batch's results together with the new progress.
func (e *Engine) runBatch(r *run, log *zap.Logger, start, end int) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("batch %d-%d aborted: %v", start, end, p)
		}
	}()

	// Probes run to their own timeouts even while shutting down.
	ctx := context.WithoutCancel(e.base)
	emails := r.job.Emails[start:end]
	opts := r.job.Options.validateOptions()

	results := make([]types.ValidationResult, len(emails))
	var wg sync.WaitGroup
	for i, email := range emails {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = e.validateOne(ctx, log, email, opts)
		}()
	}
	wg.Wait()

	var before, after int
	err = e.update(r, start, results, func(j *Job) {
		before = j.Completed
		j.Completed += len(results)
		after = j.Completed
	})
	if err != nil {
		return err
	}

	every := e.cfg.ProgressEvery
	if after/every > before/every || after == r.job.Total {
		log.Info("job progress", zap.Int("completed", after), zap.Int("total", r.job.Total))
	}
	return nil
}

// validateOne isolates a single email: a fault becomes that item's result.
func (e *Engine) validateOne(ctx context.Context, log *zap.Logger, email string, opts mailprobe.ValidateOptions) (res types.ValidationResult) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("validation panicked", zap.String("email", email), zap.Any("panic", p))
			res = itemError(email, fmt.Errorf("validation panicked: %v", p))
		}
	}()

	res, err := e.validator.Validate(ctx, email, opts)
	if err != nil {
		log.Warn("validation failed", zap.String("email", email), zap.Error(err))
		return itemError(email, err)
	}
	return res
}

func itemError(email string, err error) types.ValidationResult {
	return types.ValidationResult{
		Email:  email,
		MX:     []string{},
		Status: types.StatusInvalid,
		Score:  0,
		Error:  err.Error(),
	}
}

// update applies fn to the job and saves its status, with results for
// the slots from offset, while still holding the job lock, so progress
// reaches the store in order.
func (e *Engine) update(r *run, offset int, results []types.ValidationResult, fn func(*Job)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.job)
	if err := e.store.Update(context.WithoutCancel(e.base), r.job.Status(), offset, results); err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

func (e *Engine) fail(r *run, log *zap.Logger, cause error) {
	log.Error("job failed", zap.Error(cause))

	r.mu.Lock()
	defer r.mu.Unlock()
	r.job.State = StateFailed
	now := e.now().UTC()
	r.job.FinishedAt = &now
	r.job.Error = cause.Error()
	if err := e.store.Update(context.WithoutCancel(e.base), r.job.Status(), 0, nil); err != nil {
		log.Error("saving failed job", zap.Error(err))
	}
}

func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
