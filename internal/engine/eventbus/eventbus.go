// Package eventbus implements the event bus and stream broker (C7): a
// bounded, strictly ordered per-job buffer of JobEvents with
// {unix_ms}-{counter} event ids, resumable subscriptions, and periodic
// heartbeats.
//
// The teacher has no precedent for this (it has no SSE/event surface); the
// shape follows spec §4.7 directly, built in the teacher's idiom of small
// mutex-guarded structs with no framework, the same way
// internal/worker/worker.go threads context.Context cancellation through
// its goroutines.
package eventbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/aura-video/studio-engine/internal/engine/model"
)

const (
	defaultBufferSize    = 1024
	defaultBacklogLimit  = 64
	defaultHeartbeat     = 10 * time.Second
)

// Config tunes the bus; zero values fall back to spec defaults.
type Config struct {
	BufferSize       int
	BacklogLimit     int
	HeartbeatInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.BacklogLimit <= 0 {
		c.BacklogLimit = defaultBacklogLimit
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeat
	}
	return c
}

type subscriber struct {
	ch       chan model.JobEvent
	done     chan struct{}
	stop     chan struct{}
	stopOnce *sync.Once
	closed   bool
}

type jobChannel struct {
	mu          sync.Mutex
	buffer      []model.JobEvent
	evictedOld  bool // true once at least one event has fallen out of buffer
	lastMs      int64
	counter     int
	subs        map[int]*subscriber
	nextSubID   int
	terminal    *model.JobEvent
	lastPublish time.Time
}

// Bus is the process-wide event bus; it owns one jobChannel per job id.
type Bus struct {
	cfg  Config
	mu   sync.Mutex
	jobs map[string]*jobChannel
}

// New returns a Bus with the given config (zero value uses spec defaults).
func New(cfg Config) *Bus {
	return &Bus{cfg: cfg.withDefaults(), jobs: make(map[string]*jobChannel)}
}

func (b *Bus) jobChan(jobID string) *jobChannel {
	b.mu.Lock()
	defer b.mu.Unlock()
	jc, ok := b.jobs[jobID]
	if !ok {
		jc = &jobChannel{subs: make(map[int]*subscriber)}
		b.jobs[jobID] = jc
	}
	return jc
}

// nextEventID assigns the monotonically increasing {unix_ms}-{counter} id.
// Must be called with jc.mu held.
func (jc *jobChannel) nextEventID(now time.Time) string {
	ms := now.UnixMilli()
	if ms == jc.lastMs {
		jc.counter++
	} else {
		jc.lastMs = ms
		jc.counter = 0
	}
	return fmt.Sprintf("%d-%d", ms, jc.counter)
}

// Publish assigns an event id to ev (ev.EventID is overwritten), appends it
// to the job's bounded buffer (evicting the oldest entry if full), and
// fans it out to every live subscriber, dropping any whose backlog is full
// past the configured limit.
func (b *Bus) Publish(ev model.JobEvent) {
	jc := b.jobChan(ev.JobID)
	jc.mu.Lock()

	now := time.Now().UTC()
	ev.TimestampUTC = now
	ev.EventID = jc.nextEventID(now)

	if len(jc.buffer) >= b.cfg.BufferSize {
		jc.buffer = jc.buffer[1:]
		jc.evictedOld = true
	}
	jc.buffer = append(jc.buffer, ev)
	jc.lastPublish = now

	isTerminal := ev.Kind == model.EventJobCompleted || ev.Kind == model.EventJobFailed || ev.Kind == model.EventJobCanceled
	if isTerminal {
		termCopy := ev
		jc.terminal = &termCopy
	}

	subsSnapshot := make([]*subscriber, 0, len(jc.subs))
	for id, s := range jc.subs {
		if s.closed {
			delete(jc.subs, id)
			continue
		}
		subsSnapshot = append(subsSnapshot, s)
	}
	jc.mu.Unlock()

	for _, s := range subsSnapshot {
		b.deliver(jc, s, ev)
	}
}

func (b *Bus) deliver(jc *jobChannel, s *subscriber, ev model.JobEvent) {
	select {
	case s.ch <- ev:
	default:
		// Backlog full: drop the subscriber per spec's bounded-backlog policy.
		jc.mu.Lock()
		if !s.closed {
			s.closed = true
			close(s.ch)
		}
		jc.mu.Unlock()
	}
}

// Subscription is returned by Subscribe; Events yields the ordered stream,
// Close releases the subscription and its goroutines.
type Subscription struct {
	Events <-chan model.JobEvent
	close  func()
}

// Close releases the subscription.
func (s *Subscription) Close() { s.close() }

// Subscribe opens a stream for jobID. If lastEventID is non-empty and still
// present in the retained buffer, every event with a strictly greater id is
// replayed before switching to live delivery. If lastEventID has been
// evicted, a resync warning event is emitted and the stream begins from the
// current tail (no backlog replay) exactly as specified in §4.7. Heartbeats
// are injected every HeartbeatInterval of silence; once a terminal event
// has been published for the job, a newly-subscribing caller receives only
// that terminal event and the stream ends.
func (b *Bus) Subscribe(jobID, lastEventID string) *Subscription {
	jc := b.jobChan(jobID)

	out := make(chan model.JobEvent, b.cfg.BacklogLimit)
	sub := &subscriber{ch: out, done: make(chan struct{}), stop: make(chan struct{}), stopOnce: &sync.Once{}}

	jc.mu.Lock()
	if jc.terminal != nil {
		term := *jc.terminal
		jc.mu.Unlock()
		ch := make(chan model.JobEvent, 1)
		ch <- term
		close(ch)
		return &Subscription{Events: ch, close: func() {}}
	}

	var replay []model.JobEvent
	if lastEventID != "" {
		found := -1
		for i, e := range jc.buffer {
			if e.EventID == lastEventID {
				found = i
				break
			}
		}
		if found >= 0 {
			replay = append(replay, jc.buffer[found+1:]...)
		} else {
			resync := model.JobEvent{
				JobID:        jobID,
				Kind:         model.EventWarning,
				Message:      "resync: requested event id no longer retained, resuming from current tail",
				TimestampUTC: time.Now().UTC(),
			}
			resync.EventID = jc.nextEventID(time.Now().UTC())
			replay = append(replay, resync)
		}
	}

	jc.nextSubID++
	id := jc.nextSubID
	jc.subs[id] = sub
	jc.mu.Unlock()

	go func() {
		for _, e := range replay {
			select {
			case out <- e:
			case <-sub.done:
				return
			}
		}
	}()

	go b.heartbeatLoop(jc, sub, jobID, sub.stop)

	closeFn := func() { stopSubscriber(jc, sub, id) }

	return &Subscription{Events: out, close: closeFn}
}

// stopSubscriber tears down one subscriber: it signals the heartbeat and
// replay goroutines to exit (via sub.stop/sub.done) and closes the event
// channel, guarded so a subscriber already stopped by the other path
// (explicit Subscription.Close vs. bus-wide CloseAll) is a no-op.
func stopSubscriber(jc *jobChannel, sub *subscriber, id int) {
	sub.stopOnce.Do(func() {
		close(sub.stop)
		jc.mu.Lock()
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
		delete(jc.subs, id)
		jc.mu.Unlock()
		close(sub.done)
	})
}

func (b *Bus) heartbeatLoop(jc *jobChannel, sub *subscriber, jobID string, stop <-chan struct{}) {
	ticker := time.NewTicker(b.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			jc.mu.Lock()
			silentFor := time.Since(jc.lastPublish)
			closed := sub.closed
			jc.mu.Unlock()
			if closed {
				return
			}
			if silentFor >= b.cfg.HeartbeatInterval {
				hb := model.JobEvent{JobID: jobID, Kind: model.EventHeartbeat, TimestampUTC: time.Now().UTC()}
				select {
				case sub.ch <- hb:
				case <-stop:
					return
				default:
				}
			}
		}
	}
}

// Stats reports buffer occupancy and eviction state, used by tests
// asserting the "ordering"/"resume" testable properties.
type Stats struct {
	BufferedEvents int
	EvictedOld     bool
	SubscriberCount int
}

// StatsFor returns a snapshot of bus state for jobID.
func (b *Bus) StatsFor(jobID string) Stats {
	jc := b.jobChan(jobID)
	jc.mu.Lock()
	defer jc.mu.Unlock()
	return Stats{
		BufferedEvents:  len(jc.buffer),
		EvictedOld:      jc.evictedOld,
		SubscriberCount: len(jc.subs),
	}
}

// CloseAll closes every live subscriber across every job, used by C12 step
// 5 ("close event bus subscribers") during shutdown. Subsequent Subscribe
// calls still work (the bus itself is not torn down), but every caller
// currently reading a stream sees it end.
func (b *Bus) CloseAll() {
	b.mu.Lock()
	jobs := make([]*jobChannel, 0, len(b.jobs))
	for _, jc := range b.jobs {
		jobs = append(jobs, jc)
	}
	b.mu.Unlock()

	for _, jc := range jobs {
		jc.mu.Lock()
		subs := make(map[int]*subscriber, len(jc.subs))
		for id, s := range jc.subs {
			subs[id] = s
		}
		jc.mu.Unlock()

		for id, s := range subs {
			stopSubscriber(jc, s, id)
		}
	}
}
