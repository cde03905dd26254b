// Package progress delivers coarse progress of generation jobs to at most one
// subscriber per job key.
package progress

import (
	"math"
	"sync"
	"time"

	"github.com/saint0x/ggchangelog/pkg/log"
)

const (
	bufferSize  = 64
	defaultStep = "Processing..."
)

// Event is one progress update as sent to the client.
type Event struct {
	Progress int    `json:"progress"`
	Step     string `json:"step"`
	Error    string `json:"error,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Progress >= 100 || e.Error != ""
}

// Subscription receives the events of one job key until it is closed.
type Subscription struct {
	Key string

	ch     chan Event
	once   sync.Once
	closed bool
}

// Events is closed when the subscription ends.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

func (s *Subscription) close() {
	s.once.Do(func() {
		s.closed = true
		close(s.ch)
	})
}

// Registry holds the current subscriber of every job key.
type Registry struct {
	logger *log.Logger
	grace  time.Duration

	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool
}

// NewRegistry creates a registry. A subscription that received a 100%
// event is dropped after grace.
func NewRegistry(logger *log.Logger, grace time.Duration) *Registry {
	return &Registry{
		logger: logger,
		grace:  grace,
		subs:   make(map[string]*Subscription),
	}
}

// Subscribe registers a subscriber for key, replacing and closing any
// previous one.
func (r *Registry) Subscribe(key string) *Subscription {
	sub := &Subscription{Key: key, ch: make(chan Event, bufferSize)}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		sub.close()
		return sub
	}
	if old, ok := r.subs[key]; ok {
		r.logger.Debug("Replacing progress subscriber for %s", key)
		old.close()
	}
	r.subs[key] = sub
	return sub
}

// Unsubscribe removes sub if it is still the current subscriber of its key
// and closes it.
func (r *Registry) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.subs[sub.Key]; ok && cur == sub {
		delete(r.subs, sub.Key)
	}
	sub.close()
}

// Publish sends an update to the subscriber of key. It never blocks and
// returns false when nobody is listening.
func (r *Registry) Publish(key string, percent float64, step string) bool {
	if step == "" {
		step = defaultStep
	}
	return r.send(key, Event{Progress: Clamp(percent), Step: step})
}

// PublishError sends a terminal error event to the subscriber of key.
func (r *Registry) PublishError(key string, err error) bool {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return r.send(key, Event{Progress: 100, Step: "Error", Error: msg})
}

func (r *Registry) send(key string, ev Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[key]
	if !ok || sub.closed {
		r.logger.Debug("No progress subscriber for %s", key)
		return false
	}

	select {
	case sub.ch <- ev:
	default:
		if !ev.Terminal() {
			r.logger.Warning("Progress subscriber for %s is slow, dropping update", key)
			return false
		}
		// Make room so the final event always arrives.
		<-sub.ch
		sub.ch <- ev
	}

	if ev.Terminal() {
		time.AfterFunc(r.grace, func() { r.Unsubscribe(sub) })
	}
	return true
}

// Close drops every subscription.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for key, sub := range r.subs {
		sub.close()
		delete(r.subs, key)
	}
}

// Clamp rounds percent and bounds it to [0, 100].
func Clamp(percent float64) int {
	if math.IsNaN(percent) {
		return 0
	}
	return int(math.Min(math.Max(math.Round(percent), 0), 100))
}
