package batch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/optimode/mailprobe/types"
)

// Store persists jobs. A job is written whole once by Create; after that
// only its Status and newly finished result ranges are written, so a
// progress save costs the size of one batch, not the job.
type Store interface {
	// Create stores a new job with its inputs. job.Results is ignored;
	// every result slot starts empty.
	Create(ctx context.Context, job *Job) error
	// Update replaces the job's status and writes results into the slots
	// starting at offset. results may be empty. ErrJobNotFound for an
	// unknown id.
	Update(ctx context.Context, st Status, offset int, results []types.ValidationResult) error
	// Status returns ErrJobNotFound for an unknown id.
	Status(ctx context.Context, id string) (Status, error)
	// Load returns the full job including results, or ErrJobNotFound.
	Load(ctx context.Context, id string) (*Job, error)
	// List returns up to limit job statuses, newest first. limit <= 0
	// means all.
	List(ctx context.Context, limit int) ([]Status, error)
}

// MemoryStore keeps jobs in process memory. Safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func (s *MemoryStore) Create(_ context.Context, job *Job) error {
	cp := *job
	cp.Results = make([]types.ValidationResult, job.Total)
	cp.FinishedAt = copyTime(job.FinishedAt)

	s.mu.Lock()
	s.jobs[job.ID] = &cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Update(_ context.Context, st Status, offset int, results []types.ValidationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[st.ID]
	if !ok {
		return ErrJobNotFound
	}
	if offset < 0 || offset+len(results) > len(j.Results) {
		return fmt.Errorf("results %d-%d out of range for job %s", offset, offset+len(results), st.ID)
	}
	copy(j.Results[offset:], results)
	j.applyStatus(st)
	return nil
}

func (s *MemoryStore) Status(_ context.Context, id string) (Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return Status{}, ErrJobNotFound
	}
	return j.Status(), nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]Status, error) {
	s.mu.RLock()
	out := make([]Status, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Status())
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// sortNewestFirst orders statuses by creation time, newest first, with
// ties broken by id.
func sortNewestFirst(sts []Status) {
	sort.Slice(sts, func(i, k int) bool {
		if sts[i].CreatedAt.Equal(sts[k].CreatedAt) {
			return sts[i].ID > sts[k].ID
		}
		return sts[i].CreatedAt.After(sts[k].CreatedAt)
	})
}
