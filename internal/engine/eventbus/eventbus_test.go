package eventbus

import (
	"fmt"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/aura-video/studio-engine/internal/engine/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreCurrent())
}

func drain(t *testing.T, sub *Subscription, n int, timeout time.Duration) []model.JobEvent {
	t.Helper()
	var got []model.JobEvent
	deadline := time.After(timeout)
	for len(got) < n {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-deadline:
			t.Fatalf("timed out after %d/%d events", len(got), n)
		}
	}
	return got
}

func TestPublishAssignsOrderedEventIDs(t *testing.T) {
	bus := New(Config{})
	bus.Publish(model.JobEvent{JobID: "job-1", Kind: model.EventJobStatus})
	bus.Publish(model.JobEvent{JobID: "job-1", Kind: model.EventJobStatus})

	stats := bus.StatsFor("job-1")
	if stats.BufferedEvents != 2 {
		t.Fatalf("BufferedEvents = %d, want 2", stats.BufferedEvents)
	}

	buf := bus.jobChan("job-1").buffer
	var ms1, c1, ms2, c2 int64
	if _, err := fmt.Sscanf(buf[0].EventID, "%d-%d", &ms1, &c1); err != nil {
		t.Fatalf("parse first event id %q: %v", buf[0].EventID, err)
	}
	if _, err := fmt.Sscanf(buf[1].EventID, "%d-%d", &ms2, &c2); err != nil {
		t.Fatalf("parse second event id %q: %v", buf[1].EventID, err)
	}
	if ms2 < ms1 || (ms2 == ms1 && c2 <= c1) {
		t.Errorf("event ids not increasing: %q then %q", buf[0].EventID, buf[1].EventID)
	}
}

func TestSubscribeLiveOnlyDoesNotReplayPastEvents(t *testing.T) {
	bus := New(Config{})
	bus.Publish(model.JobEvent{JobID: "job-1", Kind: model.EventJobStatus, Message: "before"})

	sub := bus.Subscribe("job-1", "")
	defer sub.Close()

	bus.Publish(model.JobEvent{JobID: "job-1", Kind: model.EventJobStatus, Message: "after"})

	got := drain(t, sub, 1, time.Second)
	if got[0].Message != "after" {
		t.Errorf("expected only the post-subscribe event, got %q", got[0].Message)
	}
}

func TestSubscribeWithLastEventIDReplaysBacklog(t *testing.T) {
	bus := New(Config{})
	bus.Publish(model.JobEvent{JobID: "job-1", Kind: model.EventJobStatus, Message: "one"})
	firstID := bus.jobChan("job-1").buffer[0].EventID
	bus.Publish(model.JobEvent{JobID: "job-1", Kind: model.EventJobStatus, Message: "two"})
	bus.Publish(model.JobEvent{JobID: "job-1", Kind: model.EventJobStatus, Message: "three"})

	sub := bus.Subscribe("job-1", firstID)
	defer sub.Close()

	got := drain(t, sub, 2, time.Second)
	if got[0].Message != "two" || got[1].Message != "three" {
		t.Fatalf("expected replay of [two three], got %v", got)
	}
}

func TestSubscribeWithUnknownLastEventIDEmitsResyncWarning(t *testing.T) {
	bus := New(Config{})
	bus.Publish(model.JobEvent{JobID: "job-1", Kind: model.EventJobStatus, Message: "one"})

	sub := bus.Subscribe("job-1", "9999999999-0")
	defer sub.Close()

	got := drain(t, sub, 1, time.Second)
	if got[0].Kind != model.EventWarning {
		t.Fatalf("expected a resync warning event, got kind %s", got[0].Kind)
	}
}

func TestSubscribeAfterTerminalEventReturnsOnlyTerminal(t *testing.T) {
	bus := New(Config{})
	bus.Publish(model.JobEvent{JobID: "job-1", Kind: model.EventJobStatus, Message: "running"})
	bus.Publish(model.JobEvent{JobID: "job-1", Kind: model.EventJobCompleted, Message: "done"})

	sub := bus.Subscribe("job-1", "")
	got := drain(t, sub, 1, time.Second)
	if got[0].Kind != model.EventJobCompleted {
		t.Fatalf("expected only the terminal event, got %v", got[0])
	}
	if _, ok := <-sub.Events; ok {
		t.Error("expected the stream to end after delivering the terminal event")
	}
}

func TestBufferEvictsOldestWhenFull(t *testing.T) {
	bus := New(Config{BufferSize: 2})
	bus.Publish(model.JobEvent{JobID: "job-1", Kind: model.EventJobStatus, Message: "one"})
	bus.Publish(model.JobEvent{JobID: "job-1", Kind: model.EventJobStatus, Message: "two"})
	bus.Publish(model.JobEvent{JobID: "job-1", Kind: model.EventJobStatus, Message: "three"})

	stats := bus.StatsFor("job-1")
	if stats.BufferedEvents != 2 {
		t.Errorf("BufferedEvents = %d, want 2", stats.BufferedEvents)
	}
	if !stats.EvictedOld {
		t.Error("expected EvictedOld=true once the buffer exceeds capacity")
	}
}

func TestCloseAllEndsLiveSubscriptions(t *testing.T) {
	bus := New(Config{})
	bus.Publish(model.JobEvent{JobID: "job-1", Kind: model.EventJobStatus})
	sub := bus.Subscribe("job-1", "")

	bus.CloseAll()

	select {
	case _, ok := <-sub.Events:
		if ok {
			t.Error("expected the subscription channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for CloseAll to close the subscription")
	}
}
