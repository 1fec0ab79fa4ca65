package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"sitegrade/internal/api"
	"sitegrade/internal/phase"
	"sitegrade/internal/report"
	"sitegrade/internal/store"
	"sitegrade/internal/testsupport"
	"sitegrade/internal/workflow"
)

const testToken = "s3cret"

type fixture struct {
	server   *httptest.Server
	manager  *workflow.Manager
	store    *store.Store
	analyzer *testsupport.StubAnalyzer
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	base := []testsupport.ConfigOption{
		testsupport.WithAPIToken(testToken),
		testsupport.WithPricing("1.00", "0.05", "0.50"),
		testsupport.WithStartingBalance("5.00"),
	}
	cfg := testsupport.NewConfig(t, append(base, opts...)...)
	st := testsupport.MustOpenStore(t, cfg)
	led := testsupport.MustLedger(t, st, cfg)
	analyzer := &testsupport.StubAnalyzer{Fail: map[phase.Phase]error{}}
	reports := report.NewService(st, led, report.Options{Dir: cfg.Paths.ReportDir, Price: cfg.Prices().Report})
	mgr := workflow.NewManager(cfg, st, led, workflow.Collaborators{
		Capturer:    &testsupport.StubCapturer{Metrics: testsupport.SampleSnapshot(t)},
		Analyzer:    analyzer,
		Scorer:      &testsupport.StubScorer{Default: 70},
		Advisor:     &testsupport.StubAdvisor{},
		Recommender: &testsupport.StubRecommender{Narrative: "Study these", Competitors: []string{"https://rival.example"}},
		Fetcher:     &testsupport.StubFetcher{},
	}, workflow.WithReports(reports), workflow.WithNotifier(noopNotifier{}))

	srv := api.New(mgr, led, st, api.Options{Token: cfg.API.Token})
	server := httptest.NewServer(srv.Handler())
	t.Cleanup(server.Close)
	return &fixture{server: server, manager: mgr, store: st, analyzer: analyzer}
}

func (f *fixture) do(t *testing.T, method, path, user string, body any) (*http.Response, api.Envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var env api.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp, env
}

func (f *fixture) startSession(t *testing.T, user string) api.Session {
	t.Helper()
	resp, env := f.do(t, http.MethodPost, "/api/sessions", user, api.StartSessionRequest{URL: "https://shop.example.com"})
	if resp.StatusCode != http.StatusCreated || !env.OK {
		t.Fatalf("start session: status=%d error=%+v", resp.StatusCode, env.Error)
	}
	var session api.Session
	decodeData(t, env, &session)
	return session
}

func decodeData(t *testing.T, env api.Envelope, dst any) {
	t.Helper()
	raw, err := json.Marshal(env.Data)
	if err != nil {
		t.Fatalf("re-marshal data: %v", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func TestHealthDoesNotRequireAuth(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.server.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
}

func TestAuthRejectsMissingOrWrongToken(t *testing.T) {
	f := newFixture(t)
	for _, header := range []string{"", "Bearer wrong", "Basic abc"} {
		req, _ := http.NewRequest(http.MethodGet, f.server.URL+"/api/accounts/alice", nil)
		req.Header.Set("X-User-ID", "alice")
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		var env api.Envelope
		_ = json.NewDecoder(resp.Body).Decode(&env)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized || env.Error == nil || env.Error.Code != "unauthorized" {
			t.Fatalf("header %q: status=%d env=%+v", header, resp.StatusCode, env)
		}
	}
}

func TestMissingUserIsValidationError(t *testing.T) {
	f := newFixture(t)
	resp, env := f.do(t, http.MethodPost, "/api/sessions", "", api.StartSessionRequest{URL: "https://example.com"})
	if resp.StatusCode != http.StatusBadRequest || env.Error.Code != "validation_error" {
		t.Fatalf("status=%d error=%+v", resp.StatusCode, env.Error)
	}
}

func TestStartSessionChargesAccount(t *testing.T) {
	f := newFixture(t)
	session := f.startSession(t, "alice")
	if session.CurrentPhase != "" || session.NextPhase != "vision" {
		t.Fatalf("session phases: current=%q next=%q", session.CurrentPhase, session.NextPhase)
	}

	resp, env := f.do(t, http.MethodGet, "/api/accounts/alice", "alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("account status = %d", resp.StatusCode)
	}
	var account api.Account
	decodeData(t, env, &account)
	if account.Balance != "4.00" {
		t.Fatalf("balance = %s, want 4.00", account.Balance)
	}

	resp, env = f.do(t, http.MethodGet, "/api/accounts/alice/transactions", "alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("transactions status = %d", resp.StatusCode)
	}
	var txns api.TransactionListResponse
	decodeData(t, env, &txns)
	if len(txns.Items) != 1 || txns.Items[0].Action != "evaluation" || txns.Items[0].Amount != "1.00" {
		t.Fatalf("transactions = %+v", txns.Items)
	}

	resp, env = f.do(t, http.MethodGet, "/api/users/alice/evaluations", "alice", nil)
	var evals api.EvaluationListResponse
	decodeData(t, env, &evals)
	if resp.StatusCode != http.StatusOK || len(evals.Items) != 1 || evals.Items[0].ID != session.EvaluationID {
		t.Fatalf("evaluations = %+v", evals.Items)
	}
}

func TestStartSessionInsufficientBalance(t *testing.T) {
	f := newFixture(t, testsupport.WithStartingBalance("0.25"))
	resp, env := f.do(t, http.MethodPost, "/api/sessions", "bob", api.StartSessionRequest{URL: "https://example.com"})
	if resp.StatusCode != http.StatusPaymentRequired || env.Error.Code != "insufficient_balance" || env.Error.Retryable {
		t.Fatalf("status=%d error=%+v", resp.StatusCode, env.Error)
	}
}

func TestOtherUsersCannotSeeSessionOrAccount(t *testing.T) {
	f := newFixture(t)
	session := f.startSession(t, "alice")

	resp, env := f.do(t, http.MethodGet, "/api/sessions/"+session.ID, "mallory", nil)
	if resp.StatusCode != http.StatusNotFound || env.Error.Code != "not_found" {
		t.Fatalf("session status=%d error=%+v", resp.StatusCode, env.Error)
	}
	resp, _ = f.do(t, http.MethodPost, "/api/sessions/"+session.ID+"/advance", "mallory", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("advance status = %d", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodGet, "/api/accounts/alice", "mallory", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("account status = %d", resp.StatusCode)
	}
}

func TestAdvanceReturnsPhaseResult(t *testing.T) {
	f := newFixture(t)
	session := f.startSession(t, "alice")

	resp, env := f.do(t, http.MethodPost, "/api/sessions/"+session.ID+"/advance", "alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("advance status=%d error=%+v", resp.StatusCode, env.Error)
	}
	var advance api.AdvanceResponse
	decodeData(t, env, &advance)
	if advance.Phase != "vision" || advance.Result == nil || advance.Result.Narrative != "Vision narrative" {
		t.Fatalf("advance = %+v", advance)
	}
	if advance.OverallScore == nil || *advance.OverallScore != 70 {
		t.Fatalf("overall = %v", advance.OverallScore)
	}
}

func TestAdvanceCollaboratorFailureIsBadGateway(t *testing.T) {
	f := newFixture(t)
	session := f.startSession(t, "alice")
	f.analyzer.Fail[phase.Vision] = errors.New("model overloaded")

	resp, env := f.do(t, http.MethodPost, "/api/sessions/"+session.ID+"/advance", "alice", nil)
	if resp.StatusCode != http.StatusBadGateway || env.Error.Code != "collaborator_error" || !env.Error.Retryable {
		t.Fatalf("status=%d error=%+v", resp.StatusCode, env.Error)
	}
	var advance api.AdvanceResponse
	decodeData(t, env, &advance)
	if advance.Result == nil || advance.Result.Error == "" {
		t.Fatalf("expected the error-tagged result, got %+v", advance)
	}

	_, env = f.do(t, http.MethodGet, "/api/sessions/"+session.ID, "alice", nil)
	var state api.Session
	decodeData(t, env, &state)
	if state.CurrentPhase != "" {
		t.Fatalf("session advanced to %q", state.CurrentPhase)
	}
}

func TestAdvanceStreamsRecommendationsAsNDJSON(t *testing.T) {
	f := newFixture(t)
	session := f.startSession(t, "alice")
	for range 6 {
		if _, err := f.manager.Advance(context.Background(), session.ID); err != nil {
			t.Fatalf("Advance: %v", err)
		}
	}

	req, _ := http.NewRequest(http.MethodPost, f.server.URL+"/api/sessions/"+session.ID+"/advance", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("X-User-ID", "alice")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/x-ndjson") {
		t.Fatalf("content type = %q", ct)
	}

	var types []string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for scanner.Scan() {
		var line struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("decode line %q: %v", scanner.Text(), err)
		}
		types = append(types, line.Type)
	}
	want := []string{"update", "screenshot", "done"}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("event types = %v, want %v", types, want)
	}

	state, err := f.manager.State(session.ID)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if !state.Complete {
		t.Fatalf("evaluation should be complete after done")
	}
}

func TestAdvanceOverWebsocket(t *testing.T) {
	f := newFixture(t)
	session := f.startSession(t, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/api/sessions/" + session.ID + "/ws"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+testToken)
	header.Set("X-User-ID", "alice")
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	var msg struct {
		Type   string           `json:"type"`
		Phase  string           `json:"phase"`
		Result *api.PhaseResult `json:"result"`
	}
	if err := wsjson.Read(ctx, conn, &msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "result" || msg.Phase != "vision" || msg.Result == nil {
		t.Fatalf("message = %+v", msg)
	}
}

func TestChatAndReportRoutes(t *testing.T) {
	f := newFixture(t)
	session := f.startSession(t, "alice")
	if _, err := f.manager.Advance(context.Background(), session.ID); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	resp, env := f.do(t, http.MethodPost, "/api/sessions/"+session.ID+"/chat", "alice", api.ChatRequest{Message: "what next?"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat status=%d error=%+v", resp.StatusCode, env.Error)
	}
	var chat api.ChatResponse
	decodeData(t, env, &chat)
	if chat.Message != "re: what next?" || chat.Phase != "vision" {
		t.Fatalf("chat = %+v", chat)
	}

	resp, env = f.do(t, http.MethodPost, "/api/sessions/"+session.ID+"/report", "alice", api.ReportRequest{Format: "json"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("report status=%d error=%+v", resp.StatusCode, env.Error)
	}
	var rep api.Report
	decodeData(t, env, &rep)
	if rep.Format != "json" || !strings.HasSuffix(rep.Path, ".json") || rep.Bytes == 0 {
		t.Fatalf("report = %+v", rep)
	}

	resp, env = f.do(t, http.MethodPost, "/api/sessions/"+session.ID+"/report", "alice", api.ReportRequest{Format: "pdf"})
	if resp.StatusCode != http.StatusBadRequest || env.Error.Code != "validation_error" {
		t.Fatalf("bad format: status=%d error=%+v", resp.StatusCode, env.Error)
	}
}

func TestUnknownBodyFieldsRejected(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, http.MethodPost, "/api/sessions", "alice", map[string]string{"site": "https://example.com"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
