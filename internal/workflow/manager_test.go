package workflow_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"sitegrade/internal/history"
	"sitegrade/internal/ledger"
	"sitegrade/internal/notifications"
	"sitegrade/internal/phase"
	"sitegrade/internal/recommend"
	"sitegrade/internal/report"
	"sitegrade/internal/services"
	"sitegrade/internal/testsupport"
	"sitegrade/internal/validator"
	"sitegrade/internal/workflow"
)

func TestStartSessionChargesAndCaptures(t *testing.T) {
	h := newHarness(t)
	id := h.start(t, "alice")

	state, err := h.manager.State(id)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.CurrentPhase != phase.None || state.Complete {
		t.Fatalf("unexpected initial state: phase=%s complete=%v", state.CurrentPhase, state.Complete)
	}
	if state.URL != "https://shop.example.com" {
		t.Fatalf("URL = %q", state.URL)
	}
	if !state.Snapshot.HasScreenshot() || state.ScreenshotRef == "" {
		t.Fatalf("expected screenshot to be captured and stored, ref=%q", state.ScreenshotRef)
	}
	if got := h.balance(t, "alice"); got != ledger.MustParseCredits("4.00") {
		t.Fatalf("balance = %s, want 4.00", got)
	}
	if h.capturer.Calls() != 1 {
		t.Fatalf("capture calls = %d, want 1", h.capturer.Calls())
	}

	eval, err := h.store.GetEvaluation(context.Background(), "alice", state.EvaluationID)
	if err != nil {
		t.Fatalf("GetEvaluation: %v", err)
	}
	if eval.URL != state.URL {
		t.Fatalf("persisted URL = %q", eval.URL)
	}
	turns, err := h.store.ListTurns(context.Background(), "alice", state.EvaluationID)
	if err != nil {
		t.Fatalf("ListTurns: %v", err)
	}
	if len(turns) != 1 || turns[0].Role != history.RoleSystem {
		t.Fatalf("expected one system turn, got %+v", turns)
	}
}

func TestStartSessionNormalizesURL(t *testing.T) {
	h := newHarness(t)
	id, err := h.manager.StartSession(context.Background(), "alice", "  example.org/shop ")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	state, _ := h.manager.State(id)
	if state.URL != "https://example.org/shop" {
		t.Fatalf("URL = %q", state.URL)
	}
}

func TestStartSessionRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name string
		user string
		url  string
	}{
		{name: "empty url", user: "alice", url: "   "},
		{name: "bad scheme", user: "alice", url: "ftp://example.com"},
		{name: "no user", user: "", url: "https://example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.manager.StartSession(context.Background(), tt.user, tt.url)
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	if h.capturer.Calls() != 0 {
		t.Fatalf("capture should not run for invalid input")
	}
}

func TestStartSessionInsufficientBalanceSkipsCapture(t *testing.T) {
	h := newHarness(t, testsupport.WithStartingBalance("0.50"))
	_, err := h.manager.StartSession(context.Background(), "bob", "https://example.com")
	if !errors.Is(err, services.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if h.capturer.Calls() != 0 {
		t.Fatalf("capture calls = %d, want 0", h.capturer.Calls())
	}
	if h.manager.ActiveSessions() != 0 {
		t.Fatalf("no session should be live")
	}
}

func TestStartSessionRefundsOnCaptureFailure(t *testing.T) {
	h := newHarness(t)
	h.capturer.Err = errors.New("browser crashed")

	_, err := h.manager.StartSession(context.Background(), "carol", "https://example.com")
	if !errors.Is(err, services.ErrCollaborator) {
		t.Fatalf("expected collaborator error, got %v", err)
	}
	if got := h.balance(t, "carol"); got != ledger.MustParseCredits("5.00") {
		t.Fatalf("balance = %s, want refund to 5.00", got)
	}
	txns, err := h.ledger.Transactions(context.Background(), ledger.TransactionQuery{AccountID: "carol"})
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	kinds := map[ledger.Kind]int{}
	for _, txn := range txns {
		kinds[txn.Kind]++
	}
	if kinds[ledger.KindReserve] != 1 || kinds[ledger.KindRefund] != 1 {
		t.Fatalf("expected one reserve and one refund, got %v", kinds)
	}
}

func TestAdvanceWalksPhasesInOrder(t *testing.T) {
	h := newHarness(t)
	id := h.start(t, "alice")

	want := []struct {
		phase   phase.Phase
		overall float64
	}{
		{phase.Vision, 80},
		{phase.UI, 76},            // (80+71)/2 = 75.5
		{phase.Functionality, 80}, // 241/3
		{phase.Performance, 77},   // 306/4 = 76.5
		{phase.SEO, 79},           // 394/5 = 78.8
		{phase.Overall, 79},
	}
	for _, step := range want {
		outcome, err := h.manager.Advance(context.Background(), id)
		if err != nil {
			t.Fatalf("Advance to %s: %v", step.phase, err)
		}
		if outcome.Phase != step.phase {
			t.Fatalf("advanced to %s, want %s", outcome.Phase, step.phase)
		}
		if outcome.Result == nil || outcome.Result.Narrative != step.phase.Title()+" narrative" {
			t.Fatalf("unexpected result for %s: %+v", step.phase, outcome.Result)
		}
		if outcome.OverallScore == nil || *outcome.OverallScore != step.overall {
			t.Fatalf("overall after %s = %v, want %v", step.phase, outcome.OverallScore, step.overall)
		}
		if step.phase.IsScored() {
			if outcome.Result.Score == nil || *outcome.Result.Score != phaseScores[step.phase] {
				t.Fatalf("%s score = %v", step.phase, outcome.Result.Score)
			}
		} else if outcome.Result.Score != nil {
			t.Fatalf("%s should be unscored", step.phase)
		}
	}

	state, err := h.manager.State(id)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.CurrentPhase != phase.Overall || len(state.Results) != 6 {
		t.Fatalf("state after Overall: phase=%s results=%d", state.CurrentPhase, len(state.Results))
	}
	if next, ok := state.NextPhase(); !ok || next != phase.Recommendations {
		t.Fatalf("NextPhase = %s, %v", next, ok)
	}

	requests := h.analyzer.Requests()
	if len(requests[0].Screenshot) == 0 {
		t.Fatalf("Vision request should carry the screenshot")
	}
	if n := requests[0].Metrics.Len(); n != 0 {
		t.Fatalf("Vision request carried %d metric groups, want none", n)
	}
	overallReq := requests[len(requests)-1]
	if overallReq.Phase != phase.Overall || len(overallReq.Prior) != 5 {
		t.Fatalf("Overall request prior = %d results", len(overallReq.Prior))
	}
	if overallReq.OverallScore == nil || *overallReq.OverallScore != 79 {
		t.Fatalf("Overall request score = %v", overallReq.OverallScore)
	}

	results, err := h.store.ListPhaseResults(context.Background(), "alice", state.EvaluationID)
	if err != nil {
		t.Fatalf("ListPhaseResults: %v", err)
	}
	if len(results) != 6 {
		t.Fatalf("persisted %d results, want 6", len(results))
	}
}

func TestAdvanceRatesProjectedMetrics(t *testing.T) {
	h := newHarness(t)
	id := h.start(t, "alice")
	h.advanceThrough(t, id, phase.SEO)

	state, _ := h.manager.State(id)
	ratings := map[string]validator.MetricRating{}
	for _, result := range state.Results {
		for _, r := range result.Ratings {
			ratings[r.Metric] = r
		}
	}
	if r, ok := ratings["title_length"]; !ok || r.Rating != validator.Good {
		t.Fatalf("title_length rating = %+v", r)
	}
	if r, ok := ratings["load_time"]; !ok || r.Rating != validator.Good {
		t.Fatalf("load_time rating = %+v", r)
	}
}

func TestAdvanceCollaboratorFailureKeepsPhase(t *testing.T) {
	h := newHarness(t)
	id := h.start(t, "alice")
	if _, err := h.manager.Advance(context.Background(), id); err != nil {
		t.Fatalf("Advance Vision: %v", err)
	}
	h.analyzer.Fail[phase.UI] = errors.New("model overloaded")

	_, err := h.manager.Advance(context.Background(), id)
	var phaseErr *workflow.PhaseError
	if !errors.As(err, &phaseErr) {
		t.Fatalf("expected PhaseError, got %v", err)
	}
	if phaseErr.Phase != phase.UI || !errors.Is(err, services.ErrCollaborator) {
		t.Fatalf("unexpected phase error: %v", phaseErr)
	}
	if !phaseErr.Result.Failed() {
		t.Fatalf("error result should be tagged")
	}

	state, _ := h.manager.State(id)
	if state.CurrentPhase != phase.Vision {
		t.Fatalf("phase = %s, want Vision", state.CurrentPhase)
	}
	if len(state.PhaseScores) != 1 || state.OverallScore == nil || *state.OverallScore != 80 {
		t.Fatalf("scores changed: %v overall=%v", state.PhaseScores, state.OverallScore)
	}

	results, err := h.store.ListPhaseResults(context.Background(), "alice", state.EvaluationID)
	if err != nil {
		t.Fatalf("ListPhaseResults: %v", err)
	}
	if len(results) != 2 || !results[1].Failed() {
		t.Fatalf("expected persisted error-tagged result, got %+v", results)
	}

	outcome, err := h.manager.Advance(context.Background(), id)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if outcome.Phase != phase.UI {
		t.Fatalf("retry advanced to %s", outcome.Phase)
	}
}

func TestAdvanceRejectsOutOfRangeScore(t *testing.T) {
	h := newHarness(t)
	h.scorer.Scores = map[phase.Phase]float64{phase.Vision: 150}
	id := h.start(t, "alice")

	_, err := h.manager.Advance(context.Background(), id)
	if !errors.Is(err, services.ErrCollaborator) {
		t.Fatalf("expected collaborator error, got %v", err)
	}
	state, _ := h.manager.State(id)
	if state.CurrentPhase != phase.None || state.OverallScore != nil {
		t.Fatalf("session advanced: %s %v", state.CurrentPhase, state.OverallScore)
	}
}

func TestAdvanceRejectsConcurrentCalls(t *testing.T) {
	h := newHarness(t)
	id := h.start(t, "alice")
	block := make(chan struct{})
	h.analyzer.Block = block

	var (
		wg       sync.WaitGroup
		firstErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = h.manager.Advance(context.Background(), id)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for len(h.analyzer.Requests()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("first advance never reached the analyzer")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := h.manager.Advance(context.Background(), id); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	close(block)
	wg.Wait()
	if firstErr != nil {
		t.Fatalf("first advance: %v", firstErr)
	}
	state, _ := h.manager.State(id)
	if state.CurrentPhase != phase.Vision || len(state.Results) != 1 {
		t.Fatalf("expected exactly one Vision result, got phase=%s results=%d", state.CurrentPhase, len(state.Results))
	}
}

func TestRecommendationsStreamCompletesEvaluation(t *testing.T) {
	h := newHarness(t)
	h.fetcher.Errs["https://rival-two.example"] = errors.New("dns failure")
	id := h.start(t, "alice")
	h.advanceThrough(t, id, phase.Overall)

	outcome, err := h.manager.Advance(context.Background(), id)
	if err != nil {
		t.Fatalf("Advance Recommendations: %v", err)
	}
	if outcome.Stream == nil || outcome.Result != nil {
		t.Fatalf("expected a stream outcome, got %+v", outcome)
	}

	events := drain(t, outcome.Stream)
	if len(events) != 4 {
		t.Fatalf("got %d events, want update + 2 competitors + done", len(events))
	}
	if update, ok := events[0].(recommend.Update); !ok || update.Narrative != "Compare against these" {
		t.Fatalf("first event = %#v", events[0])
	}
	if _, ok := events[len(events)-1].(recommend.Done); !ok {
		t.Fatalf("last event = %#v, want Done", events[len(events)-1])
	}
	var shots, failures int
	for _, event := range events[1 : len(events)-1] {
		switch event.(type) {
		case recommend.Screenshot:
			shots++
		case recommend.ScreenshotError:
			failures++
		}
	}
	if shots != 1 || failures != 1 {
		t.Fatalf("shots=%d failures=%d", shots, failures)
	}
	if err := outcome.Stream.Err(); err != nil {
		t.Fatalf("relay error: %v", err)
	}

	state, _ := h.manager.State(id)
	if !state.Complete || state.CurrentPhase != phase.Recommendations || state.Streaming {
		t.Fatalf("state after stream: complete=%v phase=%s streaming=%v", state.Complete, state.CurrentPhase, state.Streaming)
	}
	if _, err := h.manager.Advance(context.Background(), id); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("advance past completion: %v", err)
	}

	results, _ := h.store.ListPhaseResults(context.Background(), "alice", state.EvaluationID)
	last := results[len(results)-1]
	if last.Phase != phase.Recommendations || last.Failed() {
		t.Fatalf("last persisted result = %+v", last)
	}
	competitors, ok := last.Metrics.Lookup("competitors")
	if !ok || competitors.Len() != 2 {
		t.Fatalf("competitors metrics = %v", last.Metrics)
	}

	events2 := h.notifier.Events()
	if len(events2) != 1 || events2[0] != notifications.EventEvaluationCompleted {
		t.Fatalf("notifications = %v", events2)
	}
}

func TestRecommendationsTaskTimeoutStillCompletes(t *testing.T) {
	h := newHarness(t, testsupport.WithRecommendationTimeouts(1, 10))
	h.fetcher.Hang["https://rival-one.example"] = true
	id := h.start(t, "alice")
	h.advanceThrough(t, id, phase.Overall)

	outcome, err := h.manager.Advance(context.Background(), id)
	if err != nil {
		t.Fatalf("Advance Recommendations: %v", err)
	}
	events := drain(t, outcome.Stream)
	var timedOut bool
	for _, event := range events {
		if failure, ok := event.(recommend.ScreenshotError); ok && failure.URL == "https://rival-one.example" {
			timedOut = true
		}
	}
	if !timedOut {
		t.Fatalf("expected a screenshot_error for the hanging competitor: %#v", events)
	}
	if _, ok := events[len(events)-1].(recommend.Done); !ok {
		t.Fatalf("stream should still finish with Done")
	}
	state, _ := h.manager.State(id)
	if !state.Complete {
		t.Fatalf("evaluation should be complete")
	}
}

func TestRecommendationsStreamTimeoutKeepsOverall(t *testing.T) {
	h := newHarness(t, testsupport.WithRecommendationTimeouts(30, 1))
	h.fetcher.Hang["https://rival-one.example"] = true
	id := h.start(t, "alice")
	h.advanceThrough(t, id, phase.Overall)

	outcome, err := h.manager.Advance(context.Background(), id)
	if err != nil {
		t.Fatalf("Advance Recommendations: %v", err)
	}
	events := drain(t, outcome.Stream)
	for _, event := range events {
		if _, ok := event.(recommend.Done); ok {
			t.Fatalf("Done must not be forwarded after a stream timeout")
		}
	}
	if err := outcome.Stream.Err(); !errors.Is(err, services.ErrStreamTimeout) {
		t.Fatalf("relay error = %v, want stream timeout", err)
	}
	state, _ := h.manager.State(id)
	if state.Complete || state.CurrentPhase != phase.Overall || state.Streaming {
		t.Fatalf("state after timeout: complete=%v phase=%s streaming=%v", state.Complete, state.CurrentPhase, state.Streaming)
	}
}

func TestAbandonDuringStreamStopsRelay(t *testing.T) {
	h := newHarness(t, testsupport.WithRecommendationTimeouts(1, 10))
	h.fetcher.Hang["https://rival-one.example"] = true
	id := h.start(t, "alice")
	h.advanceThrough(t, id, phase.Overall)

	outcome, err := h.manager.Advance(context.Background(), id)
	if err != nil {
		t.Fatalf("Advance Recommendations: %v", err)
	}
	if err := h.manager.Abandon(id); err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := outcome.Stream.Wait(ctx); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("relay error = %v, want not found", err)
	}
	if _, err := h.manager.State(id); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("abandoned session still visible: %v", err)
	}
	if len(h.notifier.Events()) != 0 {
		t.Fatalf("abandoned evaluation should not notify")
	}
}

func TestStartSessionReplacesPrevious(t *testing.T) {
	h := newHarness(t)
	first := h.start(t, "alice")
	second := h.start(t, "alice")

	if _, err := h.manager.State(first); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("first session should be gone, got %v", err)
	}
	if id, ok := h.manager.SessionForUser("alice"); !ok || id != second {
		t.Fatalf("SessionForUser = %q, %v", id, ok)
	}
	if h.manager.ActiveSessions() != 1 {
		t.Fatalf("ActiveSessions = %d", h.manager.ActiveSessions())
	}
	if _, err := h.manager.Advance(context.Background(), first); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("advance on replaced session: %v", err)
	}
}

func TestChatMessageBilledAndPersisted(t *testing.T) {
	h := newHarness(t)
	id := h.start(t, "alice")
	if _, err := h.manager.Advance(context.Background(), id); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	reply, err := h.manager.SubmitChatMessage(context.Background(), id, "  Why is the hero image slow? ")
	if err != nil {
		t.Fatalf("SubmitChatMessage: %v", err)
	}
	if reply.Message != "re: Why is the hero image slow?" || reply.Phase != phase.Vision {
		t.Fatalf("reply = %+v", reply)
	}
	if got := h.balance(t, "alice"); got != ledger.MustParseCredits("3.95") {
		t.Fatalf("balance = %s, want 3.95", got)
	}

	req := h.advisor.Requests()[0]
	if len(req.Results) != 1 || req.Results[0].Phase != phase.Vision {
		t.Fatalf("advisor saw results %+v", req.Results)
	}

	state, _ := h.manager.State(id)
	turns, err := h.store.ListTurns(context.Background(), "alice", state.EvaluationID)
	if err != nil {
		t.Fatalf("ListTurns: %v", err)
	}
	// system, Vision narrative, user, assistant
	if len(turns) != 4 {
		t.Fatalf("persisted %d turns, want 4", len(turns))
	}
	if turns[2].Role != history.RoleUser || turns[3].Role != history.RoleAssistant {
		t.Fatalf("unexpected turn roles: %s %s", turns[2].Role, turns[3].Role)
	}
}

func TestChatMessageRefundedOnAdvisorFailure(t *testing.T) {
	h := newHarness(t)
	id := h.start(t, "alice")
	h.advisor.Err = errors.New("rate limited")

	_, err := h.manager.SubmitChatMessage(context.Background(), id, "hello")
	if !errors.Is(err, services.ErrCollaborator) {
		t.Fatalf("expected collaborator error, got %v", err)
	}
	if got := h.balance(t, "alice"); got != ledger.MustParseCredits("4.00") {
		t.Fatalf("balance = %s, want 4.00", got)
	}
}

func TestChatMessageValidation(t *testing.T) {
	h := newHarness(t)
	id := h.start(t, "alice")
	long := make([]rune, 4001)
	for i := range long {
		long[i] = 'a'
	}
	for _, text := range []string{"   ", string(long)} {
		if _, err := h.manager.SubmitChatMessage(context.Background(), id, text); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected validation error for %d runes, got %v", len([]rune(text)), err)
		}
	}
	if len(h.advisor.Requests()) != 0 {
		t.Fatalf("advisor should not be called")
	}
}

func TestGenerateReportFromSession(t *testing.T) {
	h := newHarness(t)
	id := h.start(t, "alice")
	h.advanceThrough(t, id, phase.UI)

	handle, err := h.manager.GenerateReport(context.Background(), id, report.FormatMarkdown)
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	if handle.Format != report.FormatMarkdown || handle.Bytes == 0 {
		t.Fatalf("handle = %+v", handle)
	}
	if got := h.balance(t, "alice"); got != ledger.MustParseCredits("3.50") {
		t.Fatalf("balance = %s, want 3.50", got)
	}
}

func TestReapIdleAbandonsStaleSessions(t *testing.T) {
	clock := &manualClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	h := newHarnessWithOptions(t, nil, []workflow.ManagerOption{workflow.WithClock(clock.Now)})
	stale := h.start(t, "alice")
	clock.Advance(50 * time.Minute)
	fresh := h.start(t, "bob")
	clock.Advance(20 * time.Minute)

	if reaped := h.manager.ReapIdle(time.Hour); reaped != 1 {
		t.Fatalf("reaped %d sessions, want 1", reaped)
	}
	if _, err := h.manager.State(stale); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("stale session still live: %v", err)
	}
	if _, err := h.manager.State(fresh); err != nil {
		t.Fatalf("fresh session reaped: %v", err)
	}
}

func TestStatusReportsHealthProbes(t *testing.T) {
	h := newHarnessWithOptions(t, nil, []workflow.ManagerOption{
		workflow.WithHealthProbe("store", func(ctx context.Context) error { return nil }),
		workflow.WithHealthProbe("capture", func(ctx context.Context) error { return errors.New("sidecar unreachable") }),
	})
	if err := h.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(h.manager.Stop)
	h.start(t, "alice")

	status := h.manager.Status(context.Background())
	if !status.Running || status.ActiveSessions != 1 {
		t.Fatalf("status = %+v", status)
	}
	if status.Ready() {
		t.Fatalf("status should not be ready with a failing probe")
	}
	if len(status.Health) != 2 || status.Health[0].Name != "capture" || status.Health[0].Ready {
		t.Fatalf("health = %+v", status.Health)
	}
}

func TestLowBalanceHookPublishes(t *testing.T) {
	notifier := &recordingNotifier{}
	hook := workflow.LowBalanceHook(notifier, nil)
	hook(context.Background(), ledger.Account{ID: "alice", Balance: ledger.MustParseCredits("0.40")})

	if events := notifier.Events(); len(events) != 1 || events[0] != notifications.EventLowBalance {
		t.Fatalf("events = %v", events)
	}
	if notifier.payloads[0]["balance"] != "0.40" {
		t.Fatalf("payload = %v", notifier.payloads[0])
	}
}

func TestOverallScoreIsRoundedMean(t *testing.T) {
	h := newHarness(t)
	h.scorer.Scores = map[phase.Phase]float64{phase.Vision: 70.4, phase.UI: 71}
	id := h.start(t, "alice")
	h.advanceThrough(t, id, phase.UI)
	state, _ := h.manager.State(id)
	if state.OverallScore == nil || *state.OverallScore != math.Round((70.4+71)/2) {
		t.Fatalf("overall = %v", state.OverallScore)
	}
}

func TestStartSessionStorageFailureLeavesNothing(t *testing.T) {
	h := newHarness(t)
	h.capturer.Image = []byte("png-bytes")
	repo := &rejectingRepo{Store: h.store}
	repo.set(true, false, false)
	h.withRepo(repo)

	_, err := h.manager.StartSession(context.Background(), "gail", "https://example.com")
	if !errors.Is(err, services.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if got := h.balance(t, "gail"); got != ledger.MustParseCredits("5.00") {
		t.Fatalf("balance = %s, want refund to 5.00", got)
	}
	if _, ok := h.manager.SessionForUser("gail"); ok {
		t.Fatal("failed start left a live session")
	}
	evals, err := h.store.ListEvaluations(context.Background(), "gail", 0)
	if err != nil || len(evals) != 0 {
		t.Fatalf("expected no evaluations, got %d (err %v)", len(evals), err)
	}
	entries, err := os.ReadDir(filepath.Join(h.cfg.Paths.ScreenshotDir, "gail"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("screenshot left behind: %s", entries[0].Name())
	}
}

func TestAdvanceStorageFailureKeepsPhaseAndHistory(t *testing.T) {
	h := newHarness(t)
	repo := &rejectingRepo{Store: h.store}
	h.withRepo(repo)
	id := h.start(t, "hank")
	state, _ := h.manager.State(id)

	repo.set(false, true, false)
	_, err := h.manager.Advance(context.Background(), id)
	if !errors.Is(err, services.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	after, err := h.manager.State(id)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if after.CurrentPhase != phase.None || len(after.Results) != 0 {
		t.Fatalf("session moved to %s with %d results", after.CurrentPhase, len(after.Results))
	}
	results, err := h.store.ListPhaseResults(context.Background(), "hank", state.EvaluationID)
	if err != nil || len(results) != 0 {
		t.Fatalf("expected no stored results, got %d (err %v)", len(results), err)
	}
	turns, _ := h.store.ListTurns(context.Background(), "hank", state.EvaluationID)
	if len(turns) != 1 {
		t.Fatalf("expected only the opening turn, got %d", len(turns))
	}

	repo.set(false, false, false)
	if _, err := h.manager.Advance(context.Background(), id); err != nil {
		t.Fatalf("retry Advance: %v", err)
	}
	results, _ = h.store.ListPhaseResults(context.Background(), "hank", state.EvaluationID)
	turns, _ = h.store.ListTurns(context.Background(), "hank", state.EvaluationID)
	if len(results) != 1 || len(turns) != 2 {
		t.Fatalf("after retry: %d results, %d turns", len(results), len(turns))
	}
}

func TestChatStorageFailureRefundsAndStoresNoTurns(t *testing.T) {
	h := newHarness(t)
	repo := &rejectingRepo{Store: h.store}
	h.withRepo(repo)
	id := h.start(t, "ivy")
	state, _ := h.manager.State(id)

	repo.set(false, false, true)
	_, err := h.manager.SubmitChatMessage(context.Background(), id, "hello")
	if !errors.Is(err, services.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if got := h.balance(t, "ivy"); got != ledger.MustParseCredits("4.00") {
		t.Fatalf("balance = %s, want 4.00", got)
	}
	turns, _ := h.store.ListTurns(context.Background(), "ivy", state.EvaluationID)
	if len(turns) != 1 {
		t.Fatalf("expected only the opening turn, got %d", len(turns))
	}
}
