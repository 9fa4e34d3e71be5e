package work

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HistorySink receives terminal job states for persistence. Recording is
// best effort; a sink failure never fails the job.
type HistorySink interface {
	RecordJob(ctx context.Context, job *Job) error
}

// Event is a job status transition, published to subscribers.
type Event struct {
	Job Job `json:"job"`
}

// Manager executes submitted jobs one at a time. Failed retryable jobs go
// back to the queue; exclusive job types reject concurrent submissions for
// the same subject. The loop mirrors a trigger/done/stop channel machine:
// every submission and every completion wakes it to consider the next item.
type Manager struct {
	registry *Registry
	sink     HistorySink
	log      zerolog.Logger

	trigger chan struct{}
	done    chan struct{}
	stop    chan struct{}
	stopped chan struct{}

	mu          sync.Mutex
	jobs        map[string]*Job
	queue       []string
	inFlight    string
	cancels     map[string]context.CancelFunc
	exclusive   map[string]string // exclusiveKey -> active job ID
	subscribers map[int]chan Event
	nextSub     int
}

// NewManager creates a job manager. sink may be nil.
func NewManager(registry *Registry, sink HistorySink, log zerolog.Logger) *Manager {
	return &Manager{
		registry:    registry,
		sink:        sink,
		log:         log.With().Str("service", "work").Logger(),
		trigger:     make(chan struct{}, 1),
		done:        make(chan struct{}, 1),
		stop:        make(chan struct{}),
		stopped:     make(chan struct{}),
		jobs:        make(map[string]*Job),
		cancels:     make(map[string]context.CancelFunc),
		exclusive:   make(map[string]string),
		subscribers: make(map[int]chan Event),
	}
}

// Run starts the manager loop. This blocks until Stop() is called.
func (m *Manager) Run() {
	defer close(m.stopped)

	for {
		select {
		case <-m.stop:
			return
		case <-m.trigger:
			m.processOne()
		case <-m.done:
			m.processOne()
		}
	}
}

// Stop stops the manager loop and cancels the running job, if any.
func (m *Manager) Stop() {
	m.mu.Lock()
	for _, cancel := range m.cancels {
		cancel()
	}
	m.mu.Unlock()

	close(m.stop)
	<-m.stopped
}

// Submit queues a new job and returns it immediately in pending state.
func (m *Manager) Submit(typeID, subject string, payload []byte) (*Job, error) {
	jt := m.registry.Get(typeID)
	if jt == nil {
		return nil, fmt.Errorf("unknown job type: %s", typeID)
	}

	m.mu.Lock()
	key := exclusiveKey(typeID, subject)
	if jt.Exclusive {
		if activeID, busy := m.exclusive[key]; busy {
			m.mu.Unlock()
			return nil, fmt.Errorf("job %s already in flight for %s", activeID, key)
		}
		m.exclusive[key] = ""
	}

	job := &Job{
		ID:        uuid.NewString(),
		Type:      typeID,
		Subject:   subject,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
		payload:   payload,
	}
	if jt.Exclusive {
		m.exclusive[key] = job.ID
	}
	m.jobs[job.ID] = job
	m.queue = append(m.queue, job.ID)
	m.mu.Unlock()

	m.publish(job)
	m.wake()

	m.log.Info().Str("job_id", job.ID).Str("type", typeID).Str("subject", subject).Msg("Job submitted")
	return m.snapshot(job.ID), nil
}

// GetJob returns a copy of the job, or nil if unknown.
func (m *Manager) GetJob(jobID string) *Job {
	return m.snapshot(jobID)
}

// ListJobs returns copies of all known jobs, newest first.
func (m *Manager) ListJobs() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Cancel cancels a running job's context. Pending jobs cannot be cancelled;
// they fail at execution time if their work observes a dead context.
func (m *Manager) Cancel(jobID string) bool {
	m.mu.Lock()
	cancel, ok := m.cancels[jobID]
	m.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Subscribe registers a job event listener. The returned stop function must
// be called to release it. Slow subscribers drop events rather than block
// job execution.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan Event, 32)
	m.subscribers[id] = ch
	m.mu.Unlock()

	return ch, func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
		close(ch)
	}
}

func (m *Manager) wake() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// processOne pops and executes the next queued job, if none is running.
func (m *Manager) processOne() {
	m.mu.Lock()
	if m.inFlight != "" || len(m.queue) == 0 {
		m.mu.Unlock()
		return
	}

	jobID := m.queue[0]
	m.queue = m.queue[1:]
	job := m.jobs[jobID]
	jt := m.registry.Get(job.Type)

	now := time.Now().UTC()
	job.Status = StatusRunning
	job.StartedAt = &now
	m.inFlight = jobID

	timeout := JobTimeout
	if jt.Timeout > 0 {
		timeout = jt.Timeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	m.cancels[jobID] = cancel
	m.mu.Unlock()

	m.publish(job)

	go func() {
		defer func() {
			cancel()

			m.mu.Lock()
			delete(m.cancels, jobID)
			m.inFlight = ""
			m.mu.Unlock()

			select {
			case m.done <- struct{}{}:
			default:
			}
		}()

		result, err := jt.Execute(ctx, job.Subject, job.payload)
		m.finish(job, jt, result, err, ctx.Err())
	}()
}

func (m *Manager) finish(job *Job, jt *JobType, result any, err, ctxErr error) {
	m.mu.Lock()
	now := time.Now().UTC()

	if err != nil {
		if ctxErr == context.DeadlineExceeded {
			m.log.Error().Str("job_id", job.ID).Msg("Job timed out")
		} else {
			m.log.Error().Err(err).Str("job_id", job.ID).Msg("Job failed")
		}

		job.Retries++
		if jt.Retryable && job.Retries < MaxRetries && ctxErr != context.Canceled {
			job.Status = StatusPending
			job.StartedAt = nil
			m.queue = append(m.queue, job.ID)
			m.mu.Unlock()
			m.publish(job)
			return
		}

		job.Status = StatusFailed
		job.Error = err.Error()
		job.FinishedAt = &now
	} else {
		job.Status = StatusCompleted
		job.Result = result
		job.FinishedAt = &now
	}

	if jt.Exclusive {
		delete(m.exclusive, exclusiveKey(job.Type, job.Subject))
	}
	m.mu.Unlock()

	m.publish(job)
	m.record(job)
}

func (m *Manager) record(job *Job) {
	if m.sink == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.sink.RecordJob(ctx, m.snapshot(job.ID)); err != nil {
		m.log.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to record job history")
	}
}

func (m *Manager) publish(job *Job) {
	m.mu.Lock()
	snapshot := *job
	for _, ch := range m.subscribers {
		select {
		case ch <- Event{Job: snapshot}:
		default:
		}
	}
	m.mu.Unlock()
}

func (m *Manager) snapshot(jobID string) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil
	}
	cp := *job
	return &cp
}
