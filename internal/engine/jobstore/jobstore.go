// Package jobstore implements the job store and state machine (C6): an
// in-memory map of job_id to Job, serialized per job, that rejects any
// mutation violating the allowed state transitions or the monotonic
// progress invariant, and raises the resulting events through C7.
//
// Grounded on the teacher's internal/db/jobs.go (Job persistence shape) and
// internal/models.JobStatus enum, reimplemented in-memory per spec §1's
// explicit non-goal of a durable job queue; optional best-effort
// persistence of finished artifacts is layered on separately in
// internal/platform/artifactstore, never in the hot update path.
package jobstore

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"sync"
	"time"

	"github.com/aura-video/studio-engine/internal/engine/model"
)

// EventPublisher is the C7 boundary: jobstore builds partial JobEvents
// (EventID left empty) and hands them to Publish, which assigns the
// monotonic per-job event id and fans them out to subscribers.
type EventPublisher interface {
	Publish(ev model.JobEvent)
}

// allowedTransitions is the state machine from spec §4.6. Any transition
// not listed here is rejected.
var allowedTransitions = map[model.JobStatus]map[model.JobStatus]bool{
	model.JobStatusQueued: {
		model.JobStatusRunning:  true,
		model.JobStatusCanceled: true,
	},
	model.JobStatusRunning: {
		model.JobStatusDone:     true,
		model.JobStatusFailed:   true,
		model.JobStatusCanceled: true,
	},
}

// ErrInvalidTransition is returned by Update when a mutator would move a
// job outside the allowed state machine.
type ErrInvalidTransition struct {
	From, To model.JobStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("jobstore: invalid transition %s -> %s", e.From, e.To)
}

// ErrTerminal is returned by Update when a mutator attempts to change a
// job that has already reached a terminal status.
var ErrTerminal = fmt.Errorf("jobstore: job already terminal")

// ErrNotFound is returned when an operation targets an unknown job id.
var ErrNotFound = fmt.Errorf("jobstore: job not found")

// ErrDraining is returned by Create when the store is shutting down.
var ErrDraining = fmt.Errorf("jobstore: store draining, not accepting new jobs")

type record struct {
	mu  sync.Mutex
	job *model.Job
}

// Store is the job store.
type Store struct {
	mu        sync.Mutex
	jobs      map[string]*record
	order     []string
	publisher EventPublisher
	draining  bool
}

// New returns an empty Store publishing lifecycle events through pub.
func New(pub EventPublisher) *Store {
	return &Store{jobs: make(map[string]*record), publisher: pub}
}

// Drain marks the store as no longer accepting new submissions, per C12
// step 1.
func (s *Store) Drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draining = true
}

// Create accepts job (expected to already carry Status=Queued and a fresh
// ID/CreatedUTC) into the store and publishes the initial job-status event.
func (s *Store) Create(job *model.Job) error {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return ErrDraining
	}
	if _, exists := s.jobs[job.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("jobstore: job %s already exists", job.ID)
	}
	r := &record{job: job.Clone()}
	s.jobs[job.ID] = r
	s.order = append(s.order, job.ID)
	s.mu.Unlock()

	s.publish(job, model.EventJobStatus, "job queued")
	return nil
}

// Get returns a read-only snapshot of job_id, or false if unknown.
func (s *Store) Get(jobID string) (*model.Job, bool) {
	s.mu.Lock()
	r, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.job.Clone(), true
}

// ListFilter narrows List's result set.
type ListFilter struct {
	Status *model.JobStatus
	Limit  int
	Offset int
}

// List returns a paginated, filtered snapshot in creation order.
func (s *Store) List(f ListFilter) ([]*model.Job, int) {
	s.mu.Lock()
	ids := append([]string(nil), s.order...)
	s.mu.Unlock()

	var matched []*model.Job
	for _, id := range ids {
		s.mu.Lock()
		r, ok := s.jobs[id]
		s.mu.Unlock()
		if !ok {
			continue
		}
		r.mu.Lock()
		snap := r.job.Clone()
		r.mu.Unlock()
		if f.Status != nil && snap.Status != *f.Status {
			continue
		}
		matched = append(matched, snap)
	}

	total := len(matched)
	offset := f.Offset
	if offset > total {
		offset = total
	}
	end := total
	if f.Limit > 0 && offset+f.Limit < end {
		end = offset + f.Limit
	}
	return matched[offset:end], total
}

// Mutator mutates a working copy of a job. It may set Status, Stage,
// Percent, append Warnings/Artifacts, set Failure, etc. Update enforces
// the state machine and monotonic progress after the mutator runs.
type Mutator func(job *model.Job) error

// Update takes the per-job lock, applies mutator to a working copy,
// enforces the allowed-transition and monotonic-progress invariants, and
// on success commits the copy and publishes the resulting diff as events.
func (s *Store) Update(jobID string, mutator Mutator) error {
	s.mu.Lock()
	r, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	before := r.job.Clone()
	working := r.job.Clone()

	if before.Status.IsTerminal() {
		// Only EndedUTC may still move once terminal.
		if err := mutator(working); err != nil {
			return err
		}
		workingSansEnded := *working
		workingSansEnded.EndedUTC = before.EndedUTC
		beforeCmp := *before
		if !reflect.DeepEqual(beforeCmp, workingSansEnded) {
			return ErrTerminal
		}
		r.job = working
		return nil
	}

	if err := mutator(working); err != nil {
		return err
	}

	if working.Status != before.Status {
		if !allowedTransitions[before.Status][working.Status] {
			return &ErrInvalidTransition{From: before.Status, To: working.Status}
		}
	}

	// Monotonic progress: never let percent regress.
	if working.Percent < before.Percent {
		working.Percent = before.Percent
	}
	working.Percent = clamp(working.Percent, 0, 100)

	now := time.Now().UTC()
	if working.Status.IsTerminal() && before.StartedUTC == nil {
		working.StartedUTC = &now
	}
	if !before.Status.IsTerminal() && working.Status.IsTerminal() {
		working.EndedUTC = &now
		switch working.Status {
		case model.JobStatusDone:
			working.CompletedUTC = &now
		case model.JobStatusCanceled:
			working.CanceledUTC = &now
		}
	}
	if before.Status == model.JobStatusQueued && working.Status == model.JobStatusRunning && working.StartedUTC == nil {
		working.StartedUTC = &now
	}

	r.job = working
	s.emitDiffEvents(before, working)
	return nil
}

// WithMonotonicProgress is a Mutator-friendly helper: it sets job.Percent
// to max(current, clamp(target, 0, 100)) without touching anything else.
func WithMonotonicProgress(job *model.Job, target float64) {
	clamped := clamp(target, 0, 100)
	if clamped > job.Percent {
		job.Percent = clamped
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Cancel transitions job_id to Canceled if it is Queued or Running; it is
// a no-op if the job is already terminal.
func (s *Store) Cancel(ctx context.Context, jobID string) (*model.Job, error) {
	err := s.Update(jobID, func(job *model.Job) error {
		if job.Status.IsTerminal() {
			return nil
		}
		job.Status = model.JobStatusCanceled
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(jobID)
}

func (s *Store) emitDiffEvents(before, after *model.Job) {
	if before.Status != after.Status {
		kind := model.EventJobStatus
		switch after.Status {
		case model.JobStatusDone:
			kind = model.EventJobCompleted
		case model.JobStatusFailed:
			kind = model.EventJobFailed
		case model.JobStatusCanceled:
			kind = model.EventJobCanceled
		}
		s.publish(after, kind, fmt.Sprintf("status -> %s", after.Status))
	}
	if before.Stage != after.Stage {
		s.publish(after, model.EventStepStatus, fmt.Sprintf("stage -> %s", after.Stage))
	}
	if len(after.Warnings) > len(before.Warnings) {
		for _, w := range after.Warnings[len(before.Warnings):] {
			s.publish(after, model.EventWarning, w)
		}
	}
	percentChanged := after.Percent != before.Percent
	stageChanged := before.Stage != after.Stage
	if percentChanged && (stageChanged || after.Percent-before.Percent >= 1 || after.Percent == 100) {
		s.publish(after, model.EventStepProgress, fmt.Sprintf("%.1f%%", after.Percent))
	}
}

func (s *Store) publish(job *model.Job, kind model.EventKind, message string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(model.JobEvent{
		JobID:          job.ID,
		Kind:           kind,
		Stage:          job.Stage,
		PercentOverall: job.Percent,
		Message:        message,
		CorrelationID:  job.CorrelationID,
		TimestampUTC:   time.Now().UTC(),
	})
}
