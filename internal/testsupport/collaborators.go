package testsupport

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"sitegrade/internal/analysis"
	"sitegrade/internal/phase"
	"sitegrade/internal/recommend"
	"sitegrade/internal/snapshot"
)

// SampleSnapshotJSON is a capture sidecar payload covering every phase.
const SampleSnapshotJSON = `{
  "performance": {
    "loadTime": 500,
    "firstContentfulPaint": 900.456,
    "largestContentfulPaint": 1800,
    "cumulativeLayoutShift": 0.05,
    "totalBytes": 950000
  },
  "securityHeaders": {
    "Content-Security-Policy": "default-src 'self'",
    "Strict-Transport-Security": "max-age=63072000"
  },
  "seo": {
    "title": "Example Store - Handmade Ceramics Online",
    "titleLength": 45,
    "metaDescriptionLength": 140,
    "h1Count": 1
  },
  "lighthouse": {"performance": 92, "seo": 95, "accessibility": 88, "bestPractices": 100},
  "ui": {"viewport": "width=device-width", "colorScheme": "light"},
  "accessibility": {"imagesWithoutAlt": 1},
  "functionality": {"brokenLinks": 0, "consoleErrors": 2}
}`

// SampleSnapshot parses SampleSnapshotJSON.
func SampleSnapshot(t testing.TB) snapshot.Value {
	t.Helper()
	v, err := snapshot.Parse([]byte(SampleSnapshotJSON))
	if err != nil {
		t.Fatalf("parse sample snapshot: %v", err)
	}
	return v
}

// StubCapturer returns canned metrics and a screenshot.
type StubCapturer struct {
	Metrics       snapshot.Value
	Image         []byte
	Err           error
	ScreenshotErr error

	mu    sync.Mutex
	calls int
}

func (s *StubCapturer) CaptureMetrics(ctx context.Context, url string) (snapshot.Value, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.Err != nil {
		return snapshot.Value{}, s.Err
	}
	return s.Metrics, nil
}

func (s *StubCapturer) Screenshot(ctx context.Context, url string) ([]byte, error) {
	if s.ScreenshotErr != nil {
		return nil, s.ScreenshotErr
	}
	if s.Image == nil {
		return []byte("\x89PNG\r\n\x1a\nstub"), nil
	}
	return s.Image, nil
}

// Calls reports how many captures ran.
func (s *StubCapturer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// StubAnalyzer writes "<phase> narrative" and records every request. Fail
// maps a phase to the error its next call returns; the entry is consumed.
type StubAnalyzer struct {
	mu       sync.Mutex
	Fail     map[phase.Phase]error
	Block    chan struct{}
	requests []analysis.AnalyzeRequest
}

func (s *StubAnalyzer) Analyze(ctx context.Context, req analysis.AnalyzeRequest) (string, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	err := s.Fail[req.Phase]
	delete(s.Fail, req.Phase)
	block := s.Block
	s.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s narrative", req.Phase.Title()), nil
}

// Requests returns a copy of the recorded requests.
func (s *StubAnalyzer) Requests() []analysis.AnalyzeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]analysis.AnalyzeRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// StubScorer returns Scores[phase], or Default when absent.
type StubScorer struct {
	Scores  map[phase.Phase]float64
	Default float64
	Err     error
}

func (s *StubScorer) Score(ctx context.Context, req analysis.ScoreRequest) (float64, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	if score, ok := s.Scores[req.Phase]; ok {
		return score, nil
	}
	return s.Default, nil
}

// StubAdvisor echoes chat messages.
type StubAdvisor struct {
	Err error

	mu       sync.Mutex
	requests []analysis.ChatRequest
}

func (s *StubAdvisor) Reply(ctx context.Context, req analysis.ChatRequest) (string, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	return "re: " + req.Message, nil
}

// Requests returns a copy of the recorded chat requests.
func (s *StubAdvisor) Requests() []analysis.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]analysis.ChatRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// StubRecommender returns a fixed recommendation.
type StubRecommender struct {
	Narrative   string
	Competitors []string
	Err         error
}

func (s *StubRecommender) Recommend(ctx context.Context, req recommend.Request) (recommend.Recommendation, error) {
	if s.Err != nil {
		return recommend.Recommendation{}, s.Err
	}
	return recommend.Recommendation{Narrative: s.Narrative, Competitors: s.Competitors}, nil
}

// StubFetcher serves screenshots per URL. URLs in Hang block until the
// fetch context ends; URLs in Errs fail.
type StubFetcher struct {
	Hang map[string]bool
	Errs map[string]error
}

func (s *StubFetcher) Screenshot(ctx context.Context, url string) ([]byte, error) {
	if s.Hang[url] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := s.Errs[url]; err != nil {
		return nil, err
	}
	return []byte("shot:" + url), nil
}
