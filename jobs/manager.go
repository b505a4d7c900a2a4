package jobs

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/photonest/photonestbackend/errdefs"
)

// Status is the lifecycle state of a tracked job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusError     Status = "error"
)

// Kind distinguishes the single-slot index job from batch jobs.
type Kind string

const (
	KindIndex Kind = "index"
	KindBatch Kind = "batch"
)

// ItemOutcome is the per-item result of a batch operation.
type ItemOutcome struct {
	ItemID  uint   `json:"item_id"`
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// Snapshot is the point-in-time view returned to pollers. Polling is
// non-blocking; a snapshot never changes after it is returned.
type Snapshot struct {
	ID                  string        `json:"job_id"`
	Kind                Kind          `json:"kind"`
	Status              Status        `json:"status"`
	CurrentPhase        string        `json:"current_phase,omitempty"`
	TotalItems          int           `json:"total_items"`
	ProcessedItems      int           `json:"processed_items"`
	Errors              []string      `json:"errors"`
	Outcomes            []ItemOutcome `json:"outcomes,omitempty"`
	StartedAt           time.Time     `json:"started_at"`
	FinishedAt          *time.Time    `json:"finished_at,omitempty"`
	EstimatedCompletion *time.Time    `json:"estimated_completion,omitempty"`
}

// Job is one tracked unit of asynchronous work. All mutators serialize on
// the internal mutex; readers always get a consistent snapshot.
type Job struct {
	id   string
	kind Kind

	mu         sync.Mutex
	status     Status
	phase      string
	total      int
	processed  int
	errs       []string
	outcomes   []ItemOutcome
	startedAt  time.Time
	finishedAt *time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newJob(kind Kind) *Job {
	ctx, cancel := context.WithCancel(context.Background())
	return &Job{
		id:        uuid.NewString(),
		kind:      kind,
		status:    StatusPending,
		startedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// ID returns the stable job identifier.
func (j *Job) ID() string { return j.id }

// Context is cancelled when the job is cancelled. Workers must check it
// before starting a new per-item unit of work; in-flight items finish.
func (j *Job) Context() context.Context { return j.ctx }

// Done is closed once the job reaches a terminal status.
func (j *Job) Done() <-chan struct{} { return j.done }

// BeginPhase resets the progress counters for a new pipeline phase.
func (j *Job) BeginPhase(phase string, total int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.phase = phase
	j.total = total
	j.processed = 0
}

// SetTotal sets the number of items the job will process.
func (j *Job) SetTotal(total int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.total = total
}

// IncrProcessed advances the progress counter by one finished item.
func (j *Job) IncrProcessed() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.processed++
}

// RecordError appends a per-item error to the job's structured error list.
func (j *Job) RecordError(msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errs = append(j.errs, msg)
}

// RecordOutcome appends one batch item outcome.
func (j *Job) RecordOutcome(outcome ItemOutcome) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.outcomes = append(j.outcomes, outcome)
}

// Cancelled reports whether cancellation has been requested.
func (j *Job) Cancelled() bool {
	select {
	case <-j.ctx.Done():
		return true
	default:
		return false
	}
}

func (j *Job) finish(status Status) {
	j.mu.Lock()
	if j.status == StatusCancelled || j.status == StatusCompleted || j.status == StatusError {
		j.mu.Unlock()
		return
	}
	now := time.Now()
	j.status = status
	j.finishedAt = &now
	j.mu.Unlock()
	j.cancel()
	close(j.done)
}

// Snapshot returns the latest known state of the job.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	snap := Snapshot{
		ID:             j.id,
		Kind:           j.kind,
		Status:         j.status,
		CurrentPhase:   j.phase,
		TotalItems:     j.total,
		ProcessedItems: j.processed,
		Errors:         append([]string(nil), j.errs...),
		Outcomes:       append([]ItemOutcome(nil), j.outcomes...),
		StartedAt:      j.startedAt,
		FinishedAt:     j.finishedAt,
	}
	if snap.Errors == nil {
		snap.Errors = []string{}
	}

	// naive linear estimate from the observed per-item rate
	if j.status == StatusRunning && j.processed > 0 && j.total > j.processed {
		elapsed := time.Since(j.startedAt)
		perItem := elapsed / time.Duration(j.processed)
		eta := time.Now().Add(perItem * time.Duration(j.total-j.processed))
		snap.EstimatedCompletion = &eta
	}
	return snap
}

// RunFunc is the unit of work executed by a job. It must return nil on
// success (including partial per-item failures already absorbed into the
// job's error list) and an error only for job-fatal failures.
type RunFunc func(ctx context.Context, job *Job) error

// Manager runs jobs and is the single source of truth for their state.
// Exactly one index job may run at a time; batch jobs run concurrently.
type Manager struct {
	mu        sync.RWMutex
	jobs      map[string]*Job
	indexSlot *Job // currently running index job, nil when idle
	lastIndex *Job // most recently finished index job, for status reporting
}

// NewManager creates an empty job manager.
func NewManager() *Manager {
	return &Manager{jobs: make(map[string]*Job)}
}

// StartBatch starts a new batch job. Multiple batch jobs may run at once.
func (m *Manager) StartBatch(run RunFunc) *Job {
	job := newJob(KindBatch)
	m.mu.Lock()
	m.jobs[job.id] = job
	m.mu.Unlock()

	m.launch(job, run, nil)
	return job
}

// StartIndex starts the single global index job. It returns
// errdefs.ErrAlreadyRunning if one is active; the running job's progress
// is left untouched in that case.
func (m *Manager) StartIndex(run RunFunc) (*Job, error) {
	job := newJob(KindIndex)

	m.mu.Lock()
	if m.indexSlot != nil {
		m.mu.Unlock()
		return nil, errdefs.ErrAlreadyRunning
	}
	m.indexSlot = job
	m.jobs[job.id] = job
	m.mu.Unlock()

	m.launch(job, run, func() {
		m.mu.Lock()
		if m.indexSlot == job {
			m.indexSlot = nil
			m.lastIndex = job
		}
		m.mu.Unlock()
	})
	return job, nil
}

func (m *Manager) launch(job *Job, run RunFunc, onFinish func()) {
	job.mu.Lock()
	job.status = StatusRunning
	job.startedAt = time.Now()
	job.mu.Unlock()

	go func() {
		err := run(job.ctx, job)
		switch {
		case err != nil:
			log.Printf("jobs: %s job %s failed: %v", job.kind, job.id, err)
			job.RecordError(err.Error())
			job.finish(StatusError)
		case job.Cancelled():
			log.Printf("jobs: %s job %s cancelled", job.kind, job.id)
			job.finish(StatusCancelled)
		default:
			job.finish(StatusCompleted)
		}
		if onFinish != nil {
			onFinish()
		}
	}()
}

// Get returns the job with the given id.
func (m *Manager) Get(id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, errdefs.ErrJobNotFound
	}
	return job, nil
}

// Cancel requests cooperative cancellation of a job. In-flight per-item
// work completes; no new items start.
func (m *Manager) Cancel(id string) error {
	job, err := m.Get(id)
	if err != nil {
		return err
	}
	job.cancel()
	return nil
}

// ActiveIndexJob returns the currently running index job, or nil.
func (m *Manager) ActiveIndexJob() *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indexSlot
}

// LastIndexJob returns the most recently finished index job, or nil.
func (m *Manager) LastIndexJob() *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastIndex
}
