package batch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimode/mailprobe/types"
)

func TestMemoryStore_UpdateWritesRangeAndStatus(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	job := &Job{ID: "j1", State: StateQueued, Total: 3, Emails: []string{"a@x.com", "b@x.com", "c@x.com"}}
	require.NoError(t, s.Create(ctx, job))

	st := job.Status()
	st.Status = StateRunning
	st.Completed = 2
	require.NoError(t, s.Update(ctx, st, 1, []types.ValidationResult{
		{Email: "b@x.com", Status: types.StatusValid},
		{Email: "c@x.com", Status: types.StatusRisky},
	}))

	got, err := s.Status(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, got.Status)
	assert.Equal(t, 2, got.Completed)
	assert.Equal(t, 3, got.Total)

	loaded, err := s.Load(ctx, "j1")
	require.NoError(t, err)
	require.Len(t, loaded.Results, 3)
	assert.Empty(t, loaded.Results[0].Status)
	assert.Equal(t, "c@x.com", loaded.Results[2].Email)
	assert.Equal(t, job.Emails, loaded.Emails)

	// status-only updates leave results alone
	st.Status = StateCompleted
	require.NoError(t, s.Update(ctx, st, 0, nil))
	loaded, err = s.Load(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, loaded.State)
	assert.Equal(t, "b@x.com", loaded.Results[1].Email)
}

func TestMemoryStore_UpdateRejectsBadInput(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &Job{ID: "j1", Total: 1}))

	err := s.Update(ctx, Status{ID: "nope"}, 0, nil)
	assert.ErrorIs(t, err, ErrJobNotFound)

	err = s.Update(ctx, Status{ID: "j1"}, 1, []types.ValidationResult{{Email: "a@x.com"}})
	assert.Error(t, err)
}

func TestMemoryStore_LoadReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &Job{ID: "j1", Total: 1}))

	loaded, err := s.Load(ctx, "j1")
	require.NoError(t, err)
	loaded.Results[0].Email = "changed@example.com"
	loaded.State = StateFailed

	again, err := s.Load(ctx, "j1")
	require.NoError(t, err)
	assert.Empty(t, again.Results[0].Email)
	assert.Empty(t, again.State)
}

func TestMemoryStore_Missing(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = s.Status(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Create(ctx, &Job{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
	}

	jobs, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "c", jobs[0].ID)
	assert.Equal(t, "a", jobs[2].ID)

	jobs, err = s.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "c", jobs[0].ID)
}

func TestJob_FilledResultsSkipsPendingSlots(t *testing.T) {
	job := &Job{
		Completed: 2,
		Results: []types.ValidationResult{
			{Email: "a@example.com", Status: types.StatusValid},
			{},
			{Email: "c@example.com", Status: types.StatusInvalid},
		},
	}
	got := job.FilledResults()
	require.Len(t, got, 2)
	assert.Equal(t, "a@example.com", got[0].Email)
	assert.Equal(t, "c@example.com", got[1].Email)
}
