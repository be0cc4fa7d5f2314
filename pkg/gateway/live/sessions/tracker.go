// Package sessions keeps the set of calls in flight so the gateway can stop
// accepting new ones, cancel the rest, and wait for them on shutdown.
package sessions

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ErrDraining is returned by Register once Drain has been called.
var ErrDraining = errors.New("gateway is draining")

type Handle struct {
	Cancel    func()
	StreamSid func() string
}

// Call is a point-in-time view of one tracked call.
type Call struct {
	CallID    string    `json:"call_id"`
	StreamSid string    `json:"stream_sid,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

type Tracker struct {
	mu       sync.Mutex
	calls    map[string]*trackedCall
	wg       sync.WaitGroup
	draining atomic.Bool
	now      func() time.Time
}

type trackedCall struct {
	handle    Handle
	startedAt time.Time
	once      sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{
		calls: make(map[string]*trackedCall),
		now:   time.Now,
	}
}

// Register adds a call. The returned func removes it and is safe to call more
// than once. Registering an id that is already tracked replaces the old entry.
func (t *Tracker) Register(callID string, h Handle) (unregister func(), err error) {
	if t == nil {
		return func() {}, nil
	}

	t.mu.Lock()
	if t.draining.Load() {
		t.mu.Unlock()
		return func() {}, ErrDraining
	}
	if t.calls == nil {
		t.calls = make(map[string]*trackedCall)
	}
	now := time.Now
	if t.now != nil {
		now = t.now
	}
	entry := &trackedCall{handle: h, startedAt: now()}
	old := t.calls[callID]
	t.calls[callID] = entry
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		t.unregister(callID, old)
	}

	return func() { t.unregister(callID, entry) }, nil
}

func (t *Tracker) unregister(callID string, entry *trackedCall) {
	if t == nil || entry == nil {
		return
	}
	entry.once.Do(func() {
		t.mu.Lock()
		if t.calls != nil && t.calls[callID] == entry {
			delete(t.calls, callID)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// Calls returns the tracked calls ordered by start time.
func (t *Tracker) Calls() []Call {
	if t == nil {
		return nil
	}

	t.mu.Lock()
	out := make([]Call, 0, len(t.calls))
	sids := make([]func() string, 0, len(t.calls))
	for id, entry := range t.calls {
		out = append(out, Call{CallID: id, StartedAt: entry.startedAt})
		sids = append(sids, entry.handle.StreamSid)
	}
	t.mu.Unlock()

	for i, sid := range sids {
		if sid != nil {
			out[i].StreamSid = sid()
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].CallID < out[j].CallID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Drain makes every later Register fail with ErrDraining. Calls already in
// flight are left alone.
func (t *Tracker) Drain() {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.draining.Store(true)
	t.mu.Unlock()
}

func (t *Tracker) Draining() bool {
	if t == nil {
		return false
	}
	return t.draining.Load()
}

func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}

	var cancels []func()
	t.mu.Lock()
	for _, entry := range t.calls {
		if entry == nil || entry.handle.Cancel == nil {
			continue
		}
		cancels = append(cancels, entry.handle.Cancel)
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every registered call has been unregistered or ctx is
// done, and reports whether all calls finished.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}
	if ctx == nil {
		t.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
