package jobstore

import (
	"context"
	"testing"
	"time"

	"github.com/aura-video/studio-engine/internal/engine/model"
)

type recordingPublisher struct {
	events []model.JobEvent
}

func (p *recordingPublisher) Publish(ev model.JobEvent) {
	p.events = append(p.events, ev)
}

func newJob(id string) *model.Job {
	return &model.Job{ID: id, Status: model.JobStatusQueued, CreatedUTC: time.Now().UTC()}
}

func TestCreatePublishesInitialStatusEvent(t *testing.T) {
	pub := &recordingPublisher{}
	store := New(pub)

	if err := store.Create(newJob("job-1")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(pub.events))
	}
	if pub.events[0].Kind != model.EventJobStatus {
		t.Errorf("event kind = %s, want job-status", pub.events[0].Kind)
	}
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	store := New(nil)
	store.Create(newJob("job-1"))
	if err := store.Create(newJob("job-1")); err == nil {
		t.Fatal("expected an error creating a duplicate job id")
	}
}

func TestCreateRejectedWhileDraining(t *testing.T) {
	store := New(nil)
	store.Drain()
	if err := store.Create(newJob("job-1")); err != ErrDraining {
		t.Fatalf("err = %v, want ErrDraining", err)
	}
}

func TestGetReturnsClonedSnapshot(t *testing.T) {
	store := New(nil)
	store.Create(newJob("job-1"))

	snap, ok := store.Get("job-1")
	if !ok {
		t.Fatal("expected job-1 to be found")
	}
	snap.Status = model.JobStatusDone

	fresh, _ := store.Get("job-1")
	if fresh.Status == model.JobStatusDone {
		t.Error("mutating a returned snapshot must not affect the stored job")
	}
}

func TestGetUnknownJobReturnsFalse(t *testing.T) {
	store := New(nil)
	if _, ok := store.Get("nope"); ok {
		t.Error("expected unknown job id to report not found")
	}
}

func TestUpdateAllowsQueuedToRunning(t *testing.T) {
	store := New(nil)
	store.Create(newJob("job-1"))

	err := store.Update("job-1", func(job *model.Job) error {
		job.Status = model.JobStatusRunning
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	snap, _ := store.Get("job-1")
	if snap.Status != model.JobStatusRunning {
		t.Errorf("status = %s, want Running", snap.Status)
	}
	if snap.StartedUTC == nil {
		t.Error("expected StartedUTC to be set on Queued->Running")
	}
}

func TestUpdateRejectsInvalidTransition(t *testing.T) {
	store := New(nil)
	store.Create(newJob("job-1"))

	err := store.Update("job-1", func(job *model.Job) error {
		job.Status = model.JobStatusDone
		return nil
	})
	if err == nil {
		t.Fatal("expected Queued->Done to be rejected")
	}
	if _, ok := err.(*ErrInvalidTransition); !ok {
		t.Fatalf("err = %v (%T), want *ErrInvalidTransition", err, err)
	}
}

func TestUpdateRejectsMutationAfterTerminal(t *testing.T) {
	store := New(nil)
	store.Create(newJob("job-1"))
	store.Update("job-1", func(job *model.Job) error { job.Status = model.JobStatusRunning; return nil })
	store.Update("job-1", func(job *model.Job) error { job.Status = model.JobStatusDone; return nil })

	err := store.Update("job-1", func(job *model.Job) error {
		job.Status = model.JobStatusRunning
		return nil
	})
	if err != ErrTerminal {
		t.Fatalf("err = %v, want ErrTerminal", err)
	}
}

func TestUpdateEnforcesMonotonicProgress(t *testing.T) {
	store := New(nil)
	store.Create(newJob("job-1"))
	store.Update("job-1", func(job *model.Job) error { job.Percent = 50; return nil })

	store.Update("job-1", func(job *model.Job) error { job.Percent = 10; return nil })
	snap, _ := store.Get("job-1")
	if snap.Percent != 50 {
		t.Errorf("Percent = %v, want progress to never regress below 50", snap.Percent)
	}
}

func TestUpdateUnknownJobReturnsNotFound(t *testing.T) {
	store := New(nil)
	err := store.Update("nope", func(job *model.Job) error { return nil })
	if err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCancelTransitionsQueuedJobToCanceled(t *testing.T) {
	store := New(nil)
	store.Create(newJob("job-1"))

	job, err := store.Cancel(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if job.Status != model.JobStatusCanceled {
		t.Errorf("status = %s, want Canceled", job.Status)
	}
}

func TestCancelOnTerminalJobIsNoop(t *testing.T) {
	store := New(nil)
	store.Create(newJob("job-1"))
	store.Update("job-1", func(job *model.Job) error { job.Status = model.JobStatusRunning; return nil })
	store.Update("job-1", func(job *model.Job) error { job.Status = model.JobStatusDone; return nil })

	job, err := store.Cancel(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if job.Status != model.JobStatusDone {
		t.Errorf("status = %s, want Done unchanged", job.Status)
	}
}

func TestListFiltersByStatusAndPaginates(t *testing.T) {
	store := New(nil)
	for _, id := range []string{"a", "b", "c"} {
		store.Create(newJob(id))
	}
	store.Update("b", func(job *model.Job) error { job.Status = model.JobStatusRunning; return nil })

	running := model.JobStatusRunning
	matched, total := store.List(ListFilter{Status: &running})
	if total != 1 || len(matched) != 1 || matched[0].ID != "b" {
		t.Fatalf("List(running) = %v (total %d), want [b] (total 1)", matched, total)
	}

	page, totalAll := store.List(ListFilter{Limit: 2})
	if totalAll != 3 || len(page) != 2 {
		t.Fatalf("List(limit=2) = %d items (total %d), want 2 items (total 3)", len(page), totalAll)
	}
}
