package async

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/doc-intake/constants"
	"github.com/joseph-ayodele/doc-intake/internal/entity"
	"github.com/joseph-ayodele/doc-intake/internal/pipeline"
	"github.com/joseph-ayodele/doc-intake/internal/repository"
)

type fakeProcessor struct {
	mu        sync.Mutex
	processed []uuid.UUID
	resumed   []uuid.UUID
	gate      chan struct{}
	sawCancel bool
}

func (f *fakeProcessor) wait(ctx context.Context) {
	if f.gate == nil {
		return
	}
	select {
	case <-f.gate:
	case <-ctx.Done():
		f.mu.Lock()
		f.sawCancel = true
		f.mu.Unlock()
	}
}

func (f *fakeProcessor) Process(ctx context.Context, id uuid.UUID) (pipeline.Outcome, error) {
	f.wait(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, id)
	return pipeline.OutcomeReady, nil
}

func (f *fakeProcessor) Resume(ctx context.Context, id uuid.UUID) (pipeline.Outcome, error) {
	f.wait(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumed = append(f.resumed, id)
	return pipeline.OutcomeReady, nil
}

func (f *fakeProcessor) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.processed), len(f.resumed)
}

func newRepo(t *testing.T) repository.JobRepository {
	t.Helper()
	db, err := repository.OpenSQLite("file:"+filepath.Join(t.TempDir(), "jobs.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(nil) })
	require.NoError(t, repository.Migrate(context.Background(), db, nil))
	return repository.NewJobRepository(db, nil)
}

func createJobs(t *testing.T, repo repository.JobRepository, n int) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		job, err := repo.CreateJob(context.Background(), entity.NewJob{Filename: "doc.pdf", MimeType: "application/pdf"})
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}
	return ids
}

func TestWorkerQueueRunsJobsAndDrainsOnShutdown(t *testing.T) {
	proc := &fakeProcessor{}
	q := NewWorkerQueue(proc, nil, WithWorkers(2), WithQueueSize(8))

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(context.Background(), Job{ID: uuid.New()}))
	}
	require.NoError(t, q.Enqueue(context.Background(), Job{ID: uuid.New(), Resume: true}))

	q.Shutdown(context.Background())
	processed, resumed := proc.counts()
	assert.Equal(t, 5, processed)
	assert.Equal(t, 1, resumed)
	assert.Zero(t, q.Busy())
	assert.ErrorIs(t, q.Enqueue(context.Background(), Job{ID: uuid.New()}), ErrQueueClosed)
}

func TestWorkerQueueDeduplicatesAndReportsFull(t *testing.T) {
	proc := &fakeProcessor{gate: make(chan struct{})}
	q := NewWorkerQueue(proc, nil, WithWorkers(1), WithQueueSize(1))

	first := uuid.New()
	require.NoError(t, q.Enqueue(context.Background(), Job{ID: first}))
	require.Eventually(t, func() bool { return q.Free() == 1 }, time.Second, 5*time.Millisecond)

	// first is running
	assert.ErrorIs(t, q.Enqueue(context.Background(), Job{ID: first}), ErrInFlight)
	assert.Equal(t, 1, q.Free())

	require.NoError(t, q.Enqueue(context.Background(), Job{ID: uuid.New()}))
	assert.ErrorIs(t, q.Enqueue(context.Background(), Job{ID: uuid.New()}), ErrQueueFull)
	assert.Equal(t, 2, q.Busy())

	close(proc.gate)
	q.Shutdown(context.Background())
	processed, _ := proc.counts()
	assert.Equal(t, 2, processed)
}

func TestWorkerQueueShutdownTimeoutInterruptsJobs(t *testing.T) {
	proc := &fakeProcessor{gate: make(chan struct{})}
	q := NewWorkerQueue(proc, nil, WithWorkers(1))
	require.NoError(t, q.Enqueue(context.Background(), Job{ID: uuid.New()}))
	require.Eventually(t, func() bool { return q.Free() == 64 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	q.Shutdown(ctx)

	proc.mu.Lock()
	defer proc.mu.Unlock()
	assert.True(t, proc.sawCancel)
}

func TestPollerEnqueuesQueuedJobsUpToCapacity(t *testing.T) {
	repo := newRepo(t)
	ids := createJobs(t, repo, 3)

	proc := &fakeProcessor{gate: make(chan struct{})}
	q := NewWorkerQueue(proc, nil, WithWorkers(1), WithQueueSize(1))
	p := NewPoller(repo, q, nil)

	// one slot: the first job goes to the channel and is picked up
	assert.Equal(t, 1, p.Poll(context.Background()))
	require.Eventually(t, func() bool { return q.Free() == 1 }, time.Second, 5*time.Millisecond)
	// the fake never claims, so the running job is listed again and skipped
	assert.Equal(t, 0, p.Poll(context.Background()))

	close(proc.gate)
	q.Shutdown(context.Background())
	processed, _ := proc.counts()
	assert.Equal(t, 1, processed)
	assert.Contains(t, ids, proc.processed[0])
}

func TestPollerRunResumesOwnClaimedJobs(t *testing.T) {
	repo := newRepo(t)
	ids := createJobs(t, repo, 2)
	require.NoError(t, repo.Claim(context.Background(), ids[0], "me"))
	require.NoError(t, repo.Claim(context.Background(), ids[1], "someone-else"))

	proc := &fakeProcessor{}
	q := NewWorkerQueue(proc, nil, WithWorkers(1))
	p := NewPoller(repo, q, nil, WithWorkerID("me"), WithPollInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, resumed := proc.counts()
		return resumed == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	q.Shutdown(context.Background())

	proc.mu.Lock()
	defer proc.mu.Unlock()
	assert.Equal(t, []uuid.UUID{ids[0]}, proc.resumed)
	assert.Empty(t, proc.processed)
}

func TestNewReaperRejectsBadSchedule(t *testing.T) {
	_, err := NewReaper(nil, time.Minute, "every minute", nil)
	assert.Error(t, err)

	for _, spec := range []string{"@every 1m", "*/5 * * * *", "@hourly"} {
		_, err := NewReaper(nil, time.Minute, spec, nil)
		assert.NoError(t, err, spec)
	}
}

func TestReaperSweepFailsStaleActiveJobs(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	ids := createJobs(t, repo, 2)
	require.NoError(t, repo.Claim(ctx, ids[0], "dead-worker"))
	time.Sleep(20 * time.Millisecond)

	r, err := NewReaper(repo, 10*time.Millisecond, "@every 1m", nil)
	require.NoError(t, err)
	n, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stale, err := repo.GetJob(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, stale.Status)
	require.NotNil(t, stale.ErrorCode)
	assert.Equal(t, constants.ErrorCodeUnknown, *stale.ErrorCode)

	queued, err := repo.GetJob(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusQueued, queued.Status)
}
