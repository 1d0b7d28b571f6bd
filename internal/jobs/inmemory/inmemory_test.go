package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/bank-assistant/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noBackoff(int) time.Duration { return time.Millisecond }

func waitForStatus(t *testing.T, store *Store, id string, want jobs.JobStatus) *jobs.ArchiveTurnsJob {
	t.Helper()
	var got *jobs.ArchiveTurnsJob
	require.Eventually(t, func() bool {
		j, err := store.GetJob(context.Background(), id)
		if err != nil {
			return false
		}
		got = j
		return j.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestQueue_ProcessesJob(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := NewQueue(10, store, WithWorkers(2))

	var handled atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		assert.Equal(t, jobs.JobTypeArchiveTurns, job.GetType())
		handled.Add(1)
		return nil
	}))
	defer q.Close()

	job := &jobs.ArchiveTurnsJob{SessionID: "s1", Query: "balance", Response: "ok"}
	require.NoError(t, q.PublishArchiveTurns(ctx, job))
	id := job.JobID
	require.NotEmpty(t, id)

	done := waitForStatus(t, store, id, jobs.JobStatusCompleted)
	assert.Equal(t, int32(1), handled.Load())
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, jobs.DefaultMaxRetries, done.MaxRetries)
}

func TestQueue_RetriesThenSucceeds(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := NewQueue(10, store, WithBackoff(noBackoff))

	var attempts atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		if attempts.Add(1) < 3 {
			return errors.New("sink unavailable")
		}
		return nil
	}))
	defer q.Close()

	job := &jobs.ArchiveTurnsJob{SessionID: "s1"}
	require.NoError(t, q.PublishArchiveTurns(ctx, job))
	id := job.JobID

	done := waitForStatus(t, store, id, jobs.JobStatusCompleted)
	assert.Equal(t, 2, done.RetryCount)
	assert.Empty(t, done.Error)
}

func TestQueue_FailsAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := NewQueue(10, store, WithBackoff(noBackoff))

	var attempts atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		attempts.Add(1)
		return errors.New("always broken")
	}))
	defer q.Close()

	job := &jobs.ArchiveTurnsJob{SessionID: "s1", MaxRetries: 2}
	require.NoError(t, q.PublishArchiveTurns(ctx, job))
	id := job.JobID

	failed := waitForStatus(t, store, id, jobs.JobStatusFailed)
	assert.Equal(t, 2, failed.RetryCount)
	assert.Equal(t, "always broken", failed.Error)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestQueue_HandlerPanicIsAFailure(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := NewQueue(10, store, WithBackoff(noBackoff))

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		panic("boom")
	}))
	defer q.Close()

	job := &jobs.ArchiveTurnsJob{MaxRetries: -1}
	require.NoError(t, q.PublishArchiveTurns(ctx, job))
	id := job.JobID

	failed := waitForStatus(t, store, id, jobs.JobStatusFailed)
	assert.Contains(t, failed.Error, "boom")
}

func TestQueue_Closed(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(1, nil)
	require.NoError(t, q.Stop(ctx))
	require.NoError(t, q.Stop(ctx))

	err := q.PublishArchiveTurns(ctx, &jobs.ArchiveTurnsJob{})
	assert.ErrorIs(t, err, jobs.ErrQueueClosed)

	err = q.Start(ctx, func(context.Context, jobs.Job) error { return nil })
	assert.ErrorIs(t, err, jobs.ErrQueueClosed)
}

func TestQueue_PublishRespectsContext(t *testing.T) {
	q := NewQueue(0, nil)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.PublishArchiveTurns(ctx, &jobs.ArchiveTurnsJob{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_StopUnblocksPublisher(t *testing.T) {
	q := NewQueue(0, nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- q.PublishArchiveTurns(context.Background(), &jobs.ArchiveTurnsJob{})
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Stop(context.Background()))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, jobs.ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("publisher still blocked after Stop")
	}
}

func TestQueue_StopDrainsBufferedJobs(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := NewQueue(5, store, WithWorkers(1))

	ids := make([]string, 3)
	for i := range ids {
		job := &jobs.ArchiveTurnsJob{SessionID: "s1", TurnIndex: i * 2}
		require.NoError(t, q.PublishArchiveTurns(ctx, job))
		ids[i] = job.JobID
	}

	var handled atomic.Int32
	require.NoError(t, q.Start(ctx, func(context.Context, jobs.Job) error {
		handled.Add(1)
		return nil
	}))
	require.NoError(t, q.Stop(ctx))

	assert.Equal(t, int32(3), handled.Load())
	for _, id := range ids {
		j, err := store.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, jobs.JobStatusCompleted, j.Status)
	}
}

func TestStore_CopiesAndNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	assert.Error(t, s.SaveJob(ctx, &jobs.ArchiveTurnsJob{}))

	started := time.Now()
	job := &jobs.ArchiveTurnsJob{JobID: "j1", Status: jobs.JobStatusPending, StartedAt: &started}
	require.NoError(t, s.SaveJob(ctx, job))

	job.Status = jobs.JobStatusFailed
	got, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusPending, got.Status)

	got.StartedAt = nil
	again, _ := s.GetJob(ctx, "j1")
	assert.NotNil(t, again.StartedAt)

	_, err = s.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
	assert.ErrorIs(t, s.UpdateJobStatus(ctx, "missing", jobs.JobStatusFailed, ""), jobs.ErrJobNotFound)

	require.NoError(t, s.UpdateJobStatus(ctx, "j1", jobs.JobStatusFailed, "bad"))
	got, _ = s.GetJob(ctx, "j1")
	assert.Equal(t, jobs.JobStatusFailed, got.Status)
	assert.Equal(t, "bad", got.Error)
}

func TestStore_ListJobs(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	for i, tc := range []struct {
		id, session string
		status      jobs.JobStatus
	}{
		{"a", "s1", jobs.JobStatusCompleted},
		{"b", "s2", jobs.JobStatusFailed},
		{"c", "s1", jobs.JobStatusPending},
		{"d", "s1", jobs.JobStatusCompleted},
	} {
		require.NoError(t, s.SaveJob(ctx, &jobs.ArchiveTurnsJob{
			JobID:     tc.id,
			SessionID: tc.session,
			Status:    tc.status,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	ids := func(list []*jobs.ArchiveTurnsJob) []string {
		out := make([]string, len(list))
		for i, j := range list {
			out[i] = j.JobID
		}
		return out
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{"all oldest first", jobs.JobFilter{}, []string{"a", "b", "c", "d"}},
		{"by session", jobs.JobFilter{SessionID: "s1"}, []string{"a", "c", "d"}},
		{"by status", jobs.JobFilter{Status: jobs.JobStatusCompleted}, []string{"a", "d"}},
		{"limit", jobs.JobFilter{Limit: 2}, []string{"a", "b"}},
		{"offset", jobs.JobFilter{Offset: 3}, []string{"d"}},
		{"offset past end", jobs.JobFilter{Offset: 10}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}
