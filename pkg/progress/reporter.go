package progress

import "sync"

// Publisher is what a Reporter publishes to.
type Publisher interface {
	Publish(key string, percent float64, step string) bool
	PublishError(key string, err error) bool
}

// Reporter reports the progress of one job. Percentages never go back.
// A nil Reporter discards everything.
type Reporter struct {
	pub Publisher
	key string

	mu   sync.Mutex
	last int
	done bool
}

// NewReporter binds a reporter to a job key.
func NewReporter(pub Publisher, key string) *Reporter {
	return &Reporter{pub: pub, key: key}
}

// Report publishes percent and step unless percent is lower than what was
// already reported.
func (r *Reporter) Report(percent float64, step string) {
	if r == nil || r.pub == nil {
		return
	}
	p := Clamp(percent)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done || p < r.last {
		return
	}
	r.last = p
	r.done = p >= 100
	r.pub.Publish(r.key, float64(p), step)
}

// Fail publishes a terminal error.
func (r *Reporter) Fail(err error) {
	if r == nil || r.pub == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.done = true
	r.pub.PublishError(r.key, err)
}

// Last is the last reported percentage.
func (r *Reporter) Last() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
