package workflow

import (
	"context"
	"sync"

	"sitegrade/internal/history"
	"sitegrade/internal/recommend"
)

// Relay forwards a recommendation stream to one consumer. The session's
// Recommendations result is recorded after the stream is drained and before
// Done is forwarded, so a consumer that sees Done can read the completed
// session. Stop detaches the consumer; the stream still runs to completion.
type Relay struct {
	stream *recommend.Stream
	finish func(*recommend.Stream, bool) (history.PhaseResult, error)

	out      chan recommend.Event
	stop     chan struct{}
	stopOnce sync.Once
	finished chan struct{}

	mu     sync.Mutex
	err    error
	result history.PhaseResult
}

func newRelay(stream *recommend.Stream, finish func(*recommend.Stream, bool) (history.PhaseResult, error)) *Relay {
	// Update, one event per competitor, and Done: forwarding never blocks.
	capacity := len(stream.Tasks()) + 2
	return &Relay{
		stream:   stream,
		finish:   finish,
		out:      make(chan recommend.Event, capacity),
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

func (r *Relay) start() {
	go r.run()
}

func (r *Relay) run() {
	defer close(r.finished)
	defer close(r.out)

	sawDone := false
	for event := range r.stream.Events() {
		if _, ok := event.(recommend.Done); ok {
			sawDone = true
			continue
		}
		r.forward(event)
	}
	result, err := r.finish(r.stream, sawDone)
	r.mu.Lock()
	r.result = result
	r.err = err
	r.mu.Unlock()
	if err == nil {
		r.forward(recommend.Done{})
	}
}

func (r *Relay) forward(event recommend.Event) {
	select {
	case <-r.stop:
		return
	default:
	}
	select {
	case r.out <- event:
	case <-r.stop:
	}
}

// Events delivers the stream's events. It is closed once the stream ends;
// Done is the final event of a successful stream.
func (r *Relay) Events() <-chan recommend.Event {
	return r.out
}

// Finished is closed after the stream ends and its result is recorded.
func (r *Relay) Finished() <-chan struct{} {
	return r.finished
}

// Wait blocks until the relay finishes or ctx ends and returns Err.
func (r *Relay) Wait(ctx context.Context) error {
	select {
	case <-r.finished:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err reports why the stream failed: services.ErrStreamTimeout, a storage
// error, or an abandoned session. It is nil while running and on success.
func (r *Relay) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Result returns the recorded Recommendations result after a successful
// finish.
func (r *Relay) Result() history.PhaseResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Narrative returns the recommendation narrative.
func (r *Relay) Narrative() string {
	return r.stream.Narrative()
}

// Tasks returns the competitor task states.
func (r *Relay) Tasks() []recommend.CompetitorTask {
	return r.stream.Tasks()
}

// Stop stops forwarding events to the consumer.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}
