package recommend_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sitegrade/internal/recommend"
	"sitegrade/internal/services"
)

type stubSource struct {
	rec recommend.Recommendation
	err error
}

func (s stubSource) Recommend(context.Context, recommend.Request) (recommend.Recommendation, error) {
	return s.rec, s.err
}

type fetchFunc func(ctx context.Context, url string) ([]byte, error)

func (f fetchFunc) Screenshot(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

func collect(t *testing.T, stream *recommend.Stream) []recommend.Event {
	t.Helper()
	var events []recommend.Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatal("stream did not close")
		}
	}
}

func TestStreamEmitsUpdateScreenshotsAndDone(t *testing.T) {
	source := stubSource{rec: recommend.Recommendation{
		Narrative:   "Tighten the hero section.",
		Competitors: []string{"https://a.example", "https://b.example"},
	}}
	fetcher := fetchFunc(func(_ context.Context, url string) ([]byte, error) {
		return []byte("png:" + url), nil
	})

	stream, err := recommend.Open(context.Background(), recommend.Options{}, source, fetcher, recommend.Request{URL: "https://site.example"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	events := collect(t, stream)
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d: %#v", len(events), events)
	}
	if update, ok := events[0].(recommend.Update); !ok || update.Narrative != "Tighten the hero section." {
		t.Fatalf("first event should be the narrative update, got %#v", events[0])
	}
	if _, ok := events[3].(recommend.Done); !ok {
		t.Fatalf("last event should be done, got %#v", events[3])
	}
	for _, ev := range events[1:3] {
		shot, ok := ev.(recommend.Screenshot)
		if !ok || string(shot.Image) != "png:"+shot.URL {
			t.Fatalf("unexpected screenshot event %#v", ev)
		}
	}
	if stream.Err() != nil {
		t.Fatalf("expected nil Err after done, got %v", stream.Err())
	}
	for _, task := range stream.Tasks() {
		if task.Status != recommend.StatusLoaded {
			t.Fatalf("expected loaded task, got %+v", task)
		}
	}
}

func TestTaskTimeoutIsIsolated(t *testing.T) {
	source := stubSource{rec: recommend.Recommendation{
		Competitors: []string{"https://slow.example", "https://fast.example", "https://broken.example"},
	}}
	cancelled := make(chan struct{})
	fetcher := fetchFunc(func(ctx context.Context, url string) ([]byte, error) {
		switch {
		case strings.Contains(url, "slow"):
			<-ctx.Done()
			close(cancelled)
			return nil, ctx.Err()
		case strings.Contains(url, "broken"):
			return nil, errors.New("navigation failed")
		default:
			return []byte("img"), nil
		}
	})

	stream, err := recommend.Open(context.Background(), recommend.Options{TaskTimeout: 50 * time.Millisecond, StreamTimeout: 5 * time.Second},
		source, fetcher, recommend.Request{URL: "https://site.example"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	events := collect(t, stream)
	if _, ok := events[len(events)-1].(recommend.Done); !ok {
		t.Fatalf("stream should still finish with done, got %#v", events)
	}

	reasons := map[string]string{}
	for _, ev := range events {
		if e, ok := ev.(recommend.ScreenshotError); ok {
			reasons[e.URL] = e.Reason
		}
	}
	if reasons["https://slow.example"] != recommend.ReasonTimeout {
		t.Fatalf("expected timeout for slow competitor, got %v", reasons)
	}
	if reasons["https://broken.example"] != "navigation failed" {
		t.Fatalf("expected fetch failure reason, got %v", reasons)
	}
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("timed out fetch should have its context cancelled")
	}
}

func TestLateSuccessIsDiscarded(t *testing.T) {
	source := stubSource{rec: recommend.Recommendation{Competitors: []string{"https://late.example"}}}
	release := make(chan struct{})
	returned := make(chan struct{})
	fetcher := fetchFunc(func(context.Context, string) ([]byte, error) {
		<-release
		defer close(returned)
		return []byte("too late"), nil
	})

	stream, err := recommend.Open(context.Background(), recommend.Options{TaskTimeout: 20 * time.Millisecond},
		source, fetcher, recommend.Request{URL: "https://site.example"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	events := collect(t, stream)
	close(release)
	<-returned

	if len(events) != 3 {
		t.Fatalf("expected update, screenshot_error, done; got %#v", events)
	}
	if e, ok := events[1].(recommend.ScreenshotError); !ok || e.Reason != recommend.ReasonTimeout {
		t.Fatalf("expected timeout error event, got %#v", events[1])
	}
	tasks := stream.Tasks()
	if tasks[0].Status != recommend.StatusError || tasks[0].Image != nil {
		t.Fatalf("late success must not change task state, got %+v", tasks[0])
	}
}

func TestStreamTimeoutEndsWithoutDone(t *testing.T) {
	source := stubSource{rec: recommend.Recommendation{Competitors: []string{"https://hang.example"}}}
	fetcher := fetchFunc(func(ctx context.Context, _ string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	stream, err := recommend.Open(context.Background(), recommend.Options{TaskTimeout: time.Minute, StreamTimeout: 50 * time.Millisecond},
		source, fetcher, recommend.Request{URL: "https://site.example"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	events := collect(t, stream)
	for _, ev := range events {
		if ev.Type() == recommend.TypeDone {
			t.Fatal("timed out stream must not emit done")
		}
	}
	if !errors.Is(stream.Err(), services.ErrStreamTimeout) {
		t.Fatalf("expected stream timeout, got %v", stream.Err())
	}
	if task := stream.Tasks()[0]; task.Status != recommend.StatusError || task.Reason != recommend.ReasonStreamTimeout {
		t.Fatalf("unexpected task state %+v", task)
	}
}

func TestConcurrencyIsBounded(t *testing.T) {
	var competitors []string
	for i := 0; i < 12; i++ {
		competitors = append(competitors, fmt.Sprintf("https://c%d.example", i))
	}
	source := stubSource{rec: recommend.Recommendation{Competitors: competitors}}
	var active, peak int32
	var mu sync.Mutex
	fetcher := fetchFunc(func(context.Context, string) ([]byte, error) {
		n := atomic.AddInt32(&active, 1)
		mu.Lock()
		if n > peak {
			peak = n
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return []byte("x"), nil
	})

	stream, err := recommend.Open(context.Background(), recommend.Options{MaxConcurrency: 3, MaxCompetitors: 12},
		source, fetcher, recommend.Request{URL: "https://site.example"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	events := collect(t, stream)
	if len(events) != 14 {
		t.Fatalf("expected 14 events, got %d", len(events))
	}
	if peak > 3 {
		t.Fatalf("peak concurrency %d exceeds cap", peak)
	}
}

func TestOpenSurfacesSourceFailure(t *testing.T) {
	_, err := recommend.Open(context.Background(), recommend.Options{}, stubSource{err: errors.New("model overloaded")},
		fetchFunc(func(context.Context, string) ([]byte, error) { return nil, nil }), recommend.Request{URL: "https://site.example"})
	if !errors.Is(err, services.ErrCollaborator) {
		t.Fatalf("expected collaborator error, got %v", err)
	}
}

func TestFilterCompetitors(t *testing.T) {
	got := recommend.FilterCompetitors("https://www.site.example/", []string{
		"https://site.example",
		"ftp://files.example",
		"not a url",
		"https://a.example/",
		"http://www.a.example",
		"https://b.example/pricing",
		"https://c.example",
	}, 2)
	want := []string{"https://a.example/", "https://b.example/pricing"}
	if len(got) != len(want) {
		t.Fatalf("FilterCompetitors = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("FilterCompetitors = %v, want %v", got, want)
		}
	}
}

func TestEventJSONCarriesType(t *testing.T) {
	cases := []struct {
		event recommend.Event
		want  string
	}{
		{recommend.Update{Narrative: "n"}, `{"type":"update","narrative":"n"}`},
		{recommend.ScreenshotError{URL: "u", Reason: "timeout"}, `{"type":"screenshot_error","url":"u","reason":"timeout"}`},
		{recommend.Screenshot{URL: "u", Image: []byte("hi")}, `{"type":"screenshot","url":"u","image":"aGk="}`},
		{recommend.Done{}, `{"type":"done"}`},
	}
	for _, tc := range cases {
		data, err := json.Marshal(tc.event)
		if err != nil {
			t.Fatalf("marshal %T: %v", tc.event, err)
		}
		if string(data) != tc.want {
			t.Fatalf("marshal %T = %s, want %s", tc.event, data, tc.want)
		}
	}
}
