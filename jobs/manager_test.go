package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photonest/photonestbackend/errdefs"
)

func waitForJob(t *testing.T, job *Job) Snapshot {
	t.Helper()
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish in time")
	}
	return job.Snapshot()
}

func TestStartBatchCompletes(t *testing.T) {
	m := NewManager()

	job := m.StartBatch(func(ctx context.Context, job *Job) error {
		job.SetTotal(3)
		for i := 0; i < 3; i++ {
			job.IncrProcessed()
		}
		return nil
	})

	snap := waitForJob(t, job)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 3, snap.ProcessedItems)
	assert.NotEmpty(t, snap.ID)
	assert.NotNil(t, snap.FinishedAt)
}

func TestPerItemErrorsDoNotFailJob(t *testing.T) {
	m := NewManager()

	job := m.StartBatch(func(ctx context.Context, job *Job) error {
		job.SetTotal(2)
		job.RecordError("item 1 exploded")
		job.IncrProcessed()
		job.IncrProcessed()
		return nil
	})

	snap := waitForJob(t, job)
	assert.Equal(t, StatusCompleted, snap.Status)
	require.Len(t, snap.Errors, 1)
	assert.Equal(t, "item 1 exploded", snap.Errors[0])
}

func TestFatalErrorMovesJobToError(t *testing.T) {
	m := NewManager()

	job := m.StartBatch(func(ctx context.Context, job *Job) error {
		return errors.New("store is gone")
	})

	snap := waitForJob(t, job)
	assert.Equal(t, StatusError, snap.Status)
	require.NotEmpty(t, snap.Errors)
	assert.Contains(t, snap.Errors[0], "store is gone")
}

func TestIndexSlotRejectsSecondStart(t *testing.T) {
	m := NewManager()
	release := make(chan struct{})

	first, err := m.StartIndex(func(ctx context.Context, job *Job) error {
		job.SetTotal(10)
		job.IncrProcessed()
		<-release
		return nil
	})
	require.NoError(t, err)

	// wait until the first job made progress so we can verify it is untouched
	require.Eventually(t, func() bool {
		return first.Snapshot().ProcessedItems == 1
	}, time.Second, 5*time.Millisecond)

	_, err = m.StartIndex(func(ctx context.Context, job *Job) error { return nil })
	assert.ErrorIs(t, err, errdefs.ErrAlreadyRunning)
	assert.Equal(t, 1, first.Snapshot().ProcessedItems)
	assert.Equal(t, StatusRunning, first.Snapshot().Status)

	close(release)
	waitForJob(t, first)

	// slot frees up after completion
	second, err := m.StartIndex(func(ctx context.Context, job *Job) error { return nil })
	require.NoError(t, err)
	waitForJob(t, second)
}

func TestCancelIsCooperativeAndTerminal(t *testing.T) {
	m := NewManager()
	started := make(chan struct{})

	job, err := m.StartIndex(func(ctx context.Context, job *Job) error {
		close(started)
		for i := 0; i < 100; i++ {
			select {
			case <-ctx.Done():
				return nil // stop dispatching new items
			case <-time.After(10 * time.Millisecond):
				job.IncrProcessed()
			}
		}
		return nil
	})
	require.NoError(t, err)

	<-started
	require.NoError(t, m.Cancel(job.ID()))

	snap := waitForJob(t, job)
	assert.Equal(t, StatusCancelled, snap.Status)

	// repeated polls must not regress to running
	for i := 0; i < 3; i++ {
		assert.Equal(t, StatusCancelled, job.Snapshot().Status)
	}
	assert.Nil(t, m.ActiveIndexJob())
}

func TestCancelUnknownJob(t *testing.T) {
	m := NewManager()
	err := m.Cancel("nope")
	assert.ErrorIs(t, err, errdefs.ErrJobNotFound)
}

func TestConcurrentBatchJobs(t *testing.T) {
	m := NewManager()

	blockA := make(chan struct{})
	a := m.StartBatch(func(ctx context.Context, job *Job) error {
		<-blockA
		return nil
	})
	b := m.StartBatch(func(ctx context.Context, job *Job) error {
		return nil
	})

	waitForJob(t, b)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, StatusCompleted, b.Snapshot().Status)

	close(blockA)
	waitForJob(t, a)
}

func TestSnapshotEstimatesCompletion(t *testing.T) {
	m := NewManager()
	release := make(chan struct{})

	job := m.StartBatch(func(ctx context.Context, job *Job) error {
		job.SetTotal(100)
		job.IncrProcessed()
		<-release
		return nil
	})

	require.Eventually(t, func() bool {
		return job.Snapshot().ProcessedItems == 1
	}, time.Second, 5*time.Millisecond)

	snap := job.Snapshot()
	require.NotNil(t, snap.EstimatedCompletion)
	assert.True(t, snap.EstimatedCompletion.After(snap.StartedAt))

	close(release)
	waitForJob(t, job)
	assert.Nil(t, job.Snapshot().EstimatedCompletion)
}
