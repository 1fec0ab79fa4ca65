package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"sitegrade/internal/history"
	"sitegrade/internal/logging"
	"sitegrade/internal/services"
)

const (
	DefaultMaxConcurrency = 5
	DefaultTaskTimeout    = 45 * time.Second
	DefaultStreamTimeout  = 120 * time.Second
	DefaultMaxCompetitors = 5
)

// Request describes the evaluation the recommendations are for.
type Request struct {
	URL          string
	Results      []history.PhaseResult
	OverallScore *float64
	History      []history.Turn
}

// Recommendation is the collaborator's answer: a narrative and the
// competitor sites worth comparing against.
type Recommendation struct {
	Narrative   string
	Competitors []string
}

// Source produces the narrative and competitor list.
type Source interface {
	Recommend(ctx context.Context, req Request) (Recommendation, error)
}

// Fetcher captures a screenshot of a competitor page.
type Fetcher interface {
	Screenshot(ctx context.Context, url string) ([]byte, error)
}

// Options bounds a stream. Zero values take the package defaults.
type Options struct {
	MaxConcurrency int
	TaskTimeout    time.Duration
	StreamTimeout  time.Duration
	MaxCompetitors int
	Logger         *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = DefaultMaxConcurrency
	}
	if o.TaskTimeout <= 0 {
		o.TaskTimeout = DefaultTaskTimeout
	}
	if o.StreamTimeout <= 0 {
		o.StreamTimeout = DefaultStreamTimeout
	}
	if o.MaxCompetitors <= 0 {
		o.MaxCompetitors = DefaultMaxCompetitors
	}
	return o
}

// Stream delivers recommendation events. Consumers range over Events until
// it is closed, then consult Err.
type Stream struct {
	opts    Options
	fetcher Fetcher
	logger  *slog.Logger

	events chan Event
	cancel context.CancelFunc

	mu        sync.Mutex
	closed    bool
	err       error
	narrative string
	tasks     []CompetitorTask
}

// Open asks source for recommendations and starts one fetch per competitor.
// A source failure is returned directly and no stream is created. The
// stream is not bound to ctx cancellation; it ends on completion, on its own
// timeout, or on Close.
func Open(ctx context.Context, opts Options, source Source, fetcher Fetcher, req Request) (*Stream, error) {
	if source == nil || fetcher == nil {
		return nil, services.Wrap(services.ErrConfiguration, "recommend", "open", "source and fetcher are required", nil)
	}
	opts = opts.withDefaults()
	logger := logging.NewComponentLogger(opts.Logger, "recommend")

	streamCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.StreamTimeout)
	sourceCtx, stopSource := context.WithCancel(streamCtx)
	stopOnCaller := context.AfterFunc(ctx, stopSource)
	rec, err := source.Recommend(sourceCtx, req)
	stopOnCaller()
	stopSource()
	if err != nil {
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(streamCtx.Err(), context.DeadlineExceeded) {
			return nil, services.Wrap(services.ErrStreamTimeout, "recommend", "open", "recommendation source exceeded stream timeout", err)
		}
		return nil, services.Wrap(services.ErrCollaborator, "recommend", "recommend", req.URL, err)
	}

	urls := FilterCompetitors(req.URL, rec.Competitors, opts.MaxCompetitors)
	s := &Stream{
		opts:      opts,
		fetcher:   fetcher,
		logger:    logger,
		events:    make(chan Event, len(urls)+2),
		cancel:    cancel,
		narrative: strings.TrimSpace(rec.Narrative),
		tasks:     make([]CompetitorTask, len(urls)),
	}
	for i, u := range urls {
		s.tasks[i] = CompetitorTask{URL: u, Status: StatusLoading}
	}

	s.emit(Update{Narrative: s.narrative})
	logger.Info("recommendation stream opened",
		logging.String("url", req.URL),
		logging.Int("competitors", len(urls)),
		logging.Int("dropped", len(rec.Competitors)-len(urls)),
		logging.String(logging.FieldEventType, "recommendation_stream_open"),
	)
	go s.run(streamCtx, urls)
	return s, nil
}

// Events returns the ordered event channel. It is closed after Done or on
// failure.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Err reports why the stream ended without Done: services.ErrStreamTimeout
// or context.Canceled after Close. It is nil while running and after a
// successful Done.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Narrative returns the recommendation narrative.
func (s *Stream) Narrative() string {
	return s.narrative
}

// Tasks returns a copy of the current competitor task states.
func (s *Stream) Tasks() []CompetitorTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CompetitorTask, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Close stops the stream. In-flight fetches are cancelled and no further
// events are delivered.
func (s *Stream) Close() {
	s.cancel()
}

func (s *Stream) run(ctx context.Context, urls []string) {
	defer s.cancel()

	sem := make(chan struct{}, s.opts.MaxConcurrency)
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runTask(ctx, sem, i, u)
		}()
	}
	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		if ctx.Err() == nil {
			s.finish()
			return
		}
	case <-ctx.Done():
	}
	s.fail(ctx.Err())
}

func (s *Stream) runTask(ctx context.Context, sem chan struct{}, index int, url string) {
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-sem }()

	fetchCtx, cancelFetch := context.WithCancel(ctx)
	defer cancelFetch()

	type fetchResult struct {
		image []byte
		err   error
	}
	results := make(chan fetchResult, 1)
	go func() {
		image, err := s.fetcher.Screenshot(fetchCtx, url)
		results <- fetchResult{image: image, err: err}
	}()

	timer := time.NewTimer(s.opts.TaskTimeout)
	defer timer.Stop()

	select {
	case res := <-results:
		if res.err != nil {
			s.resolve(index, nil, fetchReason(res.err))
			return
		}
		if len(res.image) == 0 {
			s.resolve(index, nil, "empty screenshot")
			return
		}
		s.resolve(index, res.image, "")
	case <-timer.C:
		s.logger.Warn("competitor screenshot timed out",
			logging.String("url", url),
			logging.Duration("timeout", s.opts.TaskTimeout),
			logging.String(logging.FieldEventType, "competitor_timeout"),
		)
		s.resolve(index, nil, ReasonTimeout)
	case <-ctx.Done():
	}
}

// resolve moves a loading task to its final state and emits the matching
// event. Later resolutions of the same task are ignored.
func (s *Stream) resolve(index int, image []byte, reason string) {
	s.mu.Lock()
	task := &s.tasks[index]
	if task.Status != StatusLoading || s.closed {
		s.mu.Unlock()
		return
	}
	var event Event
	if reason != "" {
		task.Status = StatusError
		task.Reason = reason
		event = ScreenshotError{URL: task.URL, Reason: reason}
	} else {
		task.Status = StatusLoaded
		task.Image = image
		event = Screenshot{URL: task.URL, Image: image}
	}
	s.mu.Unlock()
	s.emit(event)
}

func (s *Stream) finish() {
	s.emit(Done{})
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	s.logger.Info("recommendation stream complete",
		logging.Int("competitors", len(s.tasks)),
		logging.String(logging.FieldEventType, "recommendation_stream_done"),
	)
}

func (s *Stream) fail(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if errors.Is(cause, context.DeadlineExceeded) {
		s.err = services.Wrap(services.ErrStreamTimeout, "recommend", "stream",
			fmt.Sprintf("stream exceeded %s", s.opts.StreamTimeout), cause)
		for i := range s.tasks {
			if s.tasks[i].Status == StatusLoading {
				s.tasks[i].Status = StatusError
				s.tasks[i].Reason = ReasonStreamTimeout
			}
		}
		logging.WarnWithContext(s.logger, "recommendation stream timed out", "recommendation_stream_timeout",
			logging.Duration("timeout", s.opts.StreamTimeout),
			logging.String(logging.FieldErrorHint, "competitor sites were too slow to capture"),
		)
	} else {
		s.err = context.Canceled
		for i := range s.tasks {
			if s.tasks[i].Status == StatusLoading {
				s.tasks[i].Status = StatusError
				s.tasks[i].Reason = "cancelled"
			}
		}
	}
	s.closeLocked()
}

func (s *Stream) emit(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- event
}

func (s *Stream) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

func fetchReason(err error) string {
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return "screenshot failed"
	}
	return msg
}
