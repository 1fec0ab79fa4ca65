package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sitegrade/internal/config"
	"sitegrade/internal/history"
	"sitegrade/internal/ledger"
	"sitegrade/internal/notifications"
	"sitegrade/internal/phase"
	"sitegrade/internal/recommend"
	"sitegrade/internal/report"
	"sitegrade/internal/store"
	"sitegrade/internal/testsupport"
	"sitegrade/internal/workflow"
)

type recordingNotifier struct {
	mu       sync.Mutex
	events   []notifications.Event
	payloads []notifications.Payload
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.payloads = append(r.payloads, payload)
	return nil
}

func (r *recordingNotifier) Events() []notifications.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notifications.Event(nil), r.events...)
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// rejectingRepo forwards to the real store but can refuse each multi-row
// write, as a store does when its transaction rolls back.
type rejectingRepo struct {
	*store.Store

	mu          sync.Mutex
	rejectStart bool
	rejectPhase bool
	rejectTurns bool
}

var errRejected = errors.New("write rejected")

func (r *rejectingRepo) set(start, phase, turns bool) {
	r.mu.Lock()
	r.rejectStart, r.rejectPhase, r.rejectTurns = start, phase, turns
	r.mu.Unlock()
}

func (r *rejectingRepo) StartEvaluation(ctx context.Context, eval history.Evaluation, opening history.Turn) error {
	r.mu.Lock()
	reject := r.rejectStart
	r.mu.Unlock()
	if reject {
		return errRejected
	}
	return r.Store.StartEvaluation(ctx, eval, opening)
}

func (r *rejectingRepo) RecordPhase(ctx context.Context, result history.PhaseResult, turns ...history.Turn) error {
	r.mu.Lock()
	reject := r.rejectPhase
	r.mu.Unlock()
	if reject {
		return errRejected
	}
	return r.Store.RecordPhase(ctx, result, turns...)
}

func (r *rejectingRepo) AppendTurns(ctx context.Context, turns ...history.Turn) error {
	r.mu.Lock()
	reject := r.rejectTurns
	r.mu.Unlock()
	if reject {
		return errRejected
	}
	return r.Store.AppendTurns(ctx, turns...)
}

type harness struct {
	cfg         *config.Config
	store       *store.Store
	ledger      *ledger.Ledger
	manager     *workflow.Manager
	capturer    *testsupport.StubCapturer
	analyzer    *testsupport.StubAnalyzer
	scorer      *testsupport.StubScorer
	advisor     *testsupport.StubAdvisor
	recommender *testsupport.StubRecommender
	fetcher     *testsupport.StubFetcher
	notifier    *recordingNotifier
}

var phaseScores = map[phase.Phase]float64{
	phase.Vision:        80,
	phase.UI:            71,
	phase.Functionality: 90,
	phase.Performance:   65,
	phase.SEO:           88,
}

// withRepo rebuilds the harness manager over repo.
func (h *harness) withRepo(repo workflow.Repository) {
	h.manager = workflow.NewManager(h.cfg, repo, h.ledger, workflow.Collaborators{
		Capturer:    h.capturer,
		Analyzer:    h.analyzer,
		Scorer:      h.scorer,
		Advisor:     h.advisor,
		Recommender: h.recommender,
		Fetcher:     h.fetcher,
	}, workflow.WithNotifier(h.notifier))
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	return newHarnessWithOptions(t, opts, nil)
}

func newHarnessWithOptions(t *testing.T, cfgOpts []testsupport.ConfigOption, mgrOpts []workflow.ManagerOption) *harness {
	t.Helper()
	base := []testsupport.ConfigOption{testsupport.WithPricing("1.00", "0.05", "0.50"), testsupport.WithStartingBalance("5.00")}
	cfg := testsupport.NewConfig(t, append(base, cfgOpts...)...)
	st := testsupport.MustOpenStore(t, cfg)
	led := testsupport.MustLedger(t, st, cfg)

	h := &harness{
		cfg:         cfg,
		store:       st,
		ledger:      led,
		capturer:    &testsupport.StubCapturer{Metrics: testsupport.SampleSnapshot(t)},
		analyzer:    &testsupport.StubAnalyzer{Fail: map[phase.Phase]error{}},
		scorer:      &testsupport.StubScorer{Scores: phaseScores, Default: 50},
		advisor:     &testsupport.StubAdvisor{},
		recommender: &testsupport.StubRecommender{Narrative: "Compare against these", Competitors: []string{"https://rival-one.example", "https://rival-two.example"}},
		fetcher:     &testsupport.StubFetcher{Hang: map[string]bool{}, Errs: map[string]error{}},
		notifier:    &recordingNotifier{},
	}
	reports := report.NewService(st, led, report.Options{Dir: cfg.Paths.ReportDir, Price: cfg.Prices().Report})
	opts := append([]workflow.ManagerOption{
		workflow.WithNotifier(h.notifier),
		workflow.WithReports(reports),
	}, mgrOpts...)
	h.manager = workflow.NewManager(cfg, st, led, workflow.Collaborators{
		Capturer:    h.capturer,
		Analyzer:    h.analyzer,
		Scorer:      h.scorer,
		Advisor:     h.advisor,
		Recommender: h.recommender,
		Fetcher:     h.fetcher,
	}, opts...)
	return h
}

func (h *harness) start(t *testing.T, user string) string {
	t.Helper()
	id, err := h.manager.StartSession(context.Background(), user, "https://shop.example.com")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	return id
}

// advanceThrough advances until target has completed.
func (h *harness) advanceThrough(t *testing.T, id string, target phase.Phase) {
	t.Helper()
	for {
		state, err := h.manager.State(id)
		if err != nil {
			t.Fatalf("State: %v", err)
		}
		if state.CurrentPhase == target {
			return
		}
		if _, err := h.manager.Advance(context.Background(), id); err != nil {
			t.Fatalf("Advance from %s: %v", state.CurrentPhase, err)
		}
	}
}

func (h *harness) balance(t *testing.T, user string) ledger.Credits {
	t.Helper()
	account, err := h.ledger.Balance(context.Background(), user)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	return account.Balance
}

func drain(t *testing.T, relay *workflow.Relay) []recommend.Event {
	t.Helper()
	var events []recommend.Event
	deadline := time.After(10 * time.Second)
	for {
		select {
		case event, ok := <-relay.Events():
			if !ok {
				return events
			}
			events = append(events, event)
		case <-deadline:
			t.Fatalf("relay did not close; got %d events", len(events))
		}
	}
}
