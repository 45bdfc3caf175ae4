package jobs_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"diary/internal/db/dbtest"
	"diary/internal/jobs"
	"diary/internal/logger"
)

// memBodies is an in-memory body store whose Remove can be made to fail.
type memBodies struct {
	mu      sync.Mutex
	removed []string
	fail    error
}

func (m *memBodies) Write(context.Context, string) (string, error) { return "", nil }
func (m *memBodies) Read(context.Context, string) (string, error)  { return "", nil }

func (m *memBodies) Remove(_ context.Context, locator string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.removed = append(m.removed, locator)
	return nil
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func setup(t *testing.T) (*gorm.DB, *jobs.Repo, *clock) {
	t.Helper()
	gdb := dbtest.Open(t)
	clk := &clock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	return gdb, &jobs.Repo{DB: gdb, Now: clk.Now}, clk
}

func enqueue(t *testing.T, gdb *gorm.DB, repo *jobs.Repo, locator string) uint64 {
	t.Helper()
	id, err := repo.EnqueueReclaim(gdb, 1, 7, locator)
	require.NoError(t, err)
	return id
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, jobs.Backoff(1))
	assert.Equal(t, 8*time.Second, jobs.Backoff(3))
	assert.Equal(t, 512*time.Second, jobs.Backoff(9))
	assert.Equal(t, 600*time.Second, jobs.Backoff(10))
	assert.Equal(t, 600*time.Second, jobs.Backoff(30))
}

func TestEnqueueRollsBackWithTransaction(t *testing.T) {
	gdb, repo, _ := setup(t)

	sentinel := errors.New("abort")
	err := gdb.Transaction(func(tx *gorm.DB) error {
		_, err := repo.EnqueueReclaim(tx, 1, 7, "a/b/c")
		require.NoError(t, err)
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	var count int64
	require.NoError(t, gdb.Model(&jobs.Job{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestClaim_OnlyOnce(t *testing.T) {
	gdb, repo, _ := setup(t)
	id := enqueue(t, gdb, repo, "a/b/c")

	j, err := repo.Claim(t.Context(), "w1")
	require.NoError(t, err)
	require.NotNil(t, j)
	assert.Equal(t, id, j.ID)
	assert.Equal(t, jobs.StatusRunning, j.Status)

	again, err := repo.Claim(t.Context(), "w2")
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestClaim_RequeuesStuckJobs(t *testing.T) {
	gdb, repo, clk := setup(t)
	id := enqueue(t, gdb, repo, "a/b/c")

	_, err := repo.Claim(t.Context(), "dead-worker")
	require.NoError(t, err)

	clk.now = clk.now.Add(10 * time.Minute)
	j, err := repo.Claim(t.Context(), "w2")
	require.NoError(t, err)
	require.NotNil(t, j)
	assert.Equal(t, id, j.ID)
	assert.Equal(t, "w2", *j.LockedBy)
}

func TestWorker_DrainReclaims(t *testing.T) {
	gdb, repo, _ := setup(t)
	first := enqueue(t, gdb, repo, "a/b/c")
	enqueue(t, gdb, repo, "d/e/f")

	bodies := &memBodies{}
	w := jobs.NewWorker(repo, bodies, time.Second, logger.Discard())

	n, err := w.Drain(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a/b/c", "d/e/f"}, bodies.removed)

	j, err := repo.Get(t.Context(), first)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusDone, j.Status)

	n, err = w.Drain(t.Context())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWorker_RetriesWithBackoffThenFails(t *testing.T) {
	gdb, repo, clk := setup(t)
	id := enqueue(t, gdb, repo, "a/b/c")

	bodies := &memBodies{fail: errors.New("disk unavailable")}
	w := jobs.NewWorker(repo, bodies, time.Second, logger.Discard())

	ok, err := w.RunOnce(t.Context())
	require.NoError(t, err)
	require.True(t, ok)

	j, err := repo.Get(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusPending, j.Status)
	assert.Equal(t, 1, j.Attempts)
	assert.True(t, j.RunAt.Equal(clk.now.Add(2*time.Second)))
	require.NotNil(t, j.LastError)
	assert.Equal(t, "disk unavailable", *j.LastError)

	// Not due yet.
	ok, err = w.RunOnce(t.Context())
	require.NoError(t, err)
	assert.False(t, ok)

	for range 20 {
		clk.now = clk.now.Add(time.Hour)
		if _, err := w.Drain(t.Context()); err != nil {
			t.Fatal(err)
		}
	}

	j, err = repo.Get(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, j.Status)
	assert.Equal(t, 7, j.Attempts)
}

func TestWorker_FailsUnknownTypeAndBadPayload(t *testing.T) {
	gdb, repo, clk := setup(t)

	odd := jobs.Job{UserID: 1, Type: "MYSTERY", Payload: []byte("{}"), RunAt: clk.now, Status: jobs.StatusPending, MaxAttempts: 3, CreatedAt: clk.now, UpdatedAt: clk.now}
	bad := jobs.Job{UserID: 1, Type: jobs.TypeBodyReclaim, Payload: []byte("not json"), RunAt: clk.now, Status: jobs.StatusPending, MaxAttempts: 3, CreatedAt: clk.now, UpdatedAt: clk.now}
	require.NoError(t, gdb.Create(&odd).Error)
	require.NoError(t, gdb.Create(&bad).Error)

	w := jobs.NewWorker(repo, &memBodies{}, time.Second, logger.Discard())
	n, err := w.Drain(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []uint64{odd.ID, bad.ID} {
		j, err := repo.Get(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, jobs.StatusFailed, j.Status)
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	_, repo, _ := setup(t)
	w := jobs.NewWorker(repo, &memBodies{}, 10*time.Millisecond, logger.Discard())

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
