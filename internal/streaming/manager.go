// Package streaming provides in-memory pub/sub for research progress events,
// with a per-run ring buffer so SSE/WebSocket clients can replay missed events
// via Last-Event-ID.
package streaming

import (
	"encoding/json"
	"sync"
	"time"
)

// Event types on the research progress stream.
const (
	EventLog      = "log"
	EventProgress = "storm_progress"
	EventComplete = "storm_complete"
	EventError    = "storm_error"
)

// Log levels for EventLog events.
const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Event is one research progress event. Exactly one terminal event
// (storm_complete or storm_error) ends every run's stream.
type Event struct {
	RunID          string    `json:"run_id,omitempty"`
	Type           string    `json:"type"`
	Level          string    `json:"level,omitempty"`
	Message        string    `json:"message,omitempty"`
	Stage          string    `json:"stage,omitempty"`
	Step           int       `json:"step,omitempty"`
	TotalSteps     int       `json:"total_steps,omitempty"`
	Content        string    `json:"content,omitempty"`
	ProcessingTime float64   `json:"processing_time,omitempty"`
	Error          string    `json:"error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Seq            uint64    `json:"seq"`
}

// Marshal returns the event's JSON for SSE payloads or logs.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Manager fans events out to subscribers keyed by run ID. Publish assigns
// monotonic sequence numbers per run; delivery to each subscriber channel is
// FIFO, and slow subscribers drop rather than block the publisher.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	history     map[string]*ring
	capacity    int
}

// NewManager creates a manager whose per-run replay buffers hold capacity
// events.
func NewManager(capacity int) *Manager {
	if capacity <= 0 {
		capacity = 256
	}
	return &Manager{
		subscribers: make(map[string]map[chan Event]struct{}),
		history:     make(map[string]*ring),
		capacity:    capacity,
	}
}

// Subscribe registers a subscriber channel for runID; the caller must drain it
// and call Unsubscribe when done.
func (m *Manager) Subscribe(runID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscribers[runID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		m.subscribers[runID] = subs
	}
	subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes the subscriber channel.
func (m *Manager) Unsubscribe(runID string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.subscribers[runID]; ok {
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(m.subscribers, runID)
		}
	}
}

// Publish assigns the next sequence number for the run, records the event in
// the replay ring and delivers it to current subscribers without blocking.
func (m *Manager) Publish(runID string, evt Event) {
	m.mu.Lock()
	rg := m.history[runID]
	if rg == nil {
		rg = newRing(m.capacity)
		m.history[runID] = rg
	}
	evt.RunID = runID
	// Sequences are 1-based so ReplaySince(runID, 0) returns the full buffer.
	rg.nextSeq++
	evt.Seq = rg.nextSeq
	rg.push(evt)
	// Delivery happens under the lock so Unsubscribe cannot close a channel
	// mid-send; the non-blocking send keeps the critical section short.
	for ch := range m.subscribers[runID] {
		select {
		case ch <- evt:
		default:
			// drop for slow subscribers
		}
	}
	m.mu.Unlock()
}

// ReplaySince returns buffered events with Seq > since, best-effort within
// ring capacity. The read lock is held across the ring scan; Publish mutates
// the ring under the write lock.
func (m *Manager) ReplaySince(runID string, since uint64) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rg := m.history[runID]
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

// Forget drops the replay history for a completed run.
func (m *Manager) Forget(runID string) {
	m.mu.Lock()
	delete(m.history, runID)
	m.mu.Unlock()
}

type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

func newRing(capacity int) *ring { return &ring{buf: make([]Event, capacity)} }

func (r *ring) push(e Event) {
	if len(r.buf) == 0 {
		return
	}
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Event {
	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
