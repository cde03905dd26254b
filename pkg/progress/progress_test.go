package progress

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saint0x/ggchangelog/pkg/log"
)

func newTestRegistry() *Registry {
	return NewRegistry(log.New(false), 10*time.Millisecond)
}

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed unexpectedly")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func waitClosed(t *testing.T, sub *Subscription) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-sub.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription was not closed")
		}
	}
}

func TestClamp(t *testing.T) {
	tests := map[float64]int{
		-5:    0,
		0:     0,
		17.5:  18,
		42.4:  42,
		100:   100,
		250.2: 100,
	}
	for in, want := range tests {
		assert.Equal(t, want, Clamp(in), "Clamp(%v)", in)
	}
}

func TestPublishWithoutSubscriberIsNoop(t *testing.T) {
	r := newTestRegistry()
	assert.NotPanics(t, func() {
		assert.False(t, r.Publish("acme/widgets", 50, "step"))
		assert.False(t, r.PublishError("acme/widgets", errors.New("boom")))
	})
}

func TestPublishDeliversClampedEvents(t *testing.T) {
	r := newTestRegistry()
	sub := r.Subscribe("acme/widgets")

	assert.True(t, r.Publish("acme/widgets", 12.6, ""))
	ev := receive(t, sub)
	assert.Equal(t, 13, ev.Progress)
	assert.Equal(t, "Processing...", ev.Step)

	r.Publish("other/repo", 50, "not for us")
	r.Publish("acme/widgets", 140, "Done")
	ev = receive(t, sub)
	assert.Equal(t, 100, ev.Progress)
	assert.True(t, ev.Terminal())

	// Dropped after the grace period.
	waitClosed(t, sub)
	assert.False(t, r.Publish("acme/widgets", 10, "late"))
}

func TestSubscribeReplacesPrevious(t *testing.T) {
	r := newTestRegistry()
	first := r.Subscribe("acme/widgets")
	second := r.Subscribe("acme/widgets")

	waitClosed(t, first)

	r.Publish("acme/widgets", 5, "Fetching repository info...")
	assert.Equal(t, 5, receive(t, second).Progress)

	// Unsubscribing the stale handle must not remove the current one.
	r.Unsubscribe(first)
	assert.True(t, r.Publish("acme/widgets", 10, "still here"))
}

func TestPublishErrorIsTerminal(t *testing.T) {
	r := newTestRegistry()
	sub := r.Subscribe("acme/widgets")

	r.PublishError("acme/widgets", errors.New("rate limited"))
	ev := receive(t, sub)
	assert.Equal(t, 100, ev.Progress)
	assert.Equal(t, "rate limited", ev.Error)
	waitClosed(t, sub)
}

func TestSlowSubscriberStillGetsFinalEvent(t *testing.T) {
	r := newTestRegistry()
	sub := r.Subscribe("acme/widgets")

	for i := 0; i < bufferSize+10; i++ {
		r.Publish("acme/widgets", 50, "busy")
	}
	r.Publish("acme/widgets", 100, "Done")

	var last Event
	for ev := range sub.Events() {
		last = ev
	}
	assert.Equal(t, 100, last.Progress)
	assert.Equal(t, "Done", last.Step)
}

func TestCloseDropsSubscriptions(t *testing.T) {
	r := newTestRegistry()
	sub := r.Subscribe("acme/widgets")
	r.Close()
	waitClosed(t, sub)

	after := r.Subscribe("acme/widgets")
	waitClosed(t, after)
}

func TestConcurrentPublish(t *testing.T) {
	r := newTestRegistry()
	sub := r.Subscribe("acme/widgets")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Publish("acme/widgets", float64(i), "step")
		}(i)
	}
	wg.Wait()
	r.Unsubscribe(sub)

	n := 0
	for range sub.Events() {
		n++
	}
	assert.Equal(t, 20, n)
}

// recordingPublisher implements Publisher for testing
type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(key string, percent float64, step string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, Event{Progress: Clamp(percent), Step: step})
	return true
}

func (p *recordingPublisher) PublishError(key string, err error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, Event{Progress: 100, Step: "Error", Error: err.Error()})
	return true
}

func TestReporterIsMonotonic(t *testing.T) {
	pub := &recordingPublisher{}
	rep := NewReporter(pub, "acme/widgets")

	rep.Report(10, "a")
	rep.Report(5, "goes back")
	rep.Report(10, "same percent, new step")
	rep.Report(80, "b")
	rep.Report(100, "done")
	rep.Report(100, "again")
	rep.Fail(errors.New("too late"))

	var got []int
	for _, ev := range pub.events {
		got = append(got, ev.Progress)
	}
	assert.Equal(t, []int{10, 10, 80, 100}, got)
	assert.Equal(t, 100, rep.Last())
}

func TestReporterFail(t *testing.T) {
	pub := &recordingPublisher{}
	rep := NewReporter(pub, "acme/widgets")
	rep.Report(30, "working")
	rep.Fail(errors.New("boom"))
	rep.Report(90, "ignored")

	require.Len(t, pub.events, 2)
	assert.Equal(t, "boom", pub.events[1].Error)

	var nilReporter *Reporter
	assert.NotPanics(t, func() {
		nilReporter.Report(50, "x")
		nilReporter.Fail(errors.New("x"))
	})
}
