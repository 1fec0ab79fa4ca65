package notifications

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"sitegrade/internal/config"
)

const userAgent = "Sitegrade-Go/0.1.0"

// Event names a notification trigger.
type Event string

const (
	EventEvaluationCompleted Event = "evaluation_completed"
	EventReportReady         Event = "report_ready"
	EventLowBalance          Event = "low_balance"
	EventTest                Event = "test"
)

// Payload carries event-specific values keyed by name.
type Payload map[string]any

// Service publishes events to every configured backend.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
	url      string
}

type backend interface {
	name() string
	send(ctx context.Context, msg message) error
}

// NewService builds a notifier from cfg. Backends without configuration are
// skipped; with none left a noop service is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	settings := cfg.Notifications
	timeout := time.Duration(settings.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var backends []backend
	if topic := strings.TrimSpace(settings.NtfyTopic); topic != "" {
		backends = append(backends, newNtfyBackend(topic, timeout))
	}
	if token := strings.TrimSpace(settings.DiscordToken); token != "" && strings.TrimSpace(settings.DiscordChannel) != "" {
		discord, err := newDiscordBackend(token, settings.DiscordChannel, timeout)
		if err == nil {
			backends = append(backends, discord)
		}
	}
	if len(backends) == 0 {
		return noopService{}
	}
	return &fanout{backends: backends, enabled: enabledEvents(settings)}
}

func enabledEvents(settings config.Notifications) map[Event]bool {
	return map[Event]bool{
		EventEvaluationCompleted: settings.EvaluationComplete,
		EventReportReady:         settings.ReportReady,
		EventLowBalance:          settings.LowBalance,
		EventTest:                true,
	}
}

type fanout struct {
	backends []backend
	enabled  map[Event]bool
}

func (f *fanout) Publish(ctx context.Context, event Event, payload Payload) error {
	if f == nil || !f.enabled[event] {
		return nil
	}
	msg, ok := render(event, payload)
	if !ok {
		return nil
	}
	var errs []error
	for _, b := range f.backends {
		if err := b.send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.name(), err))
		}
	}
	return errors.Join(errs...)
}

func render(event Event, payload Payload) (message, bool) {
	switch event {
	case EventEvaluationCompleted:
		url := payload.str("url")
		body := fmt.Sprintf("✅ Evaluation complete: %s", url)
		if score, ok := payload.number("overallScore"); ok {
			body = fmt.Sprintf("%s (overall %d/100)", body, int(math.Round(score)))
		}
		return message{
			title:    "Sitegrade - Evaluation Complete",
			body:     body,
			tags:     []string{"sitegrade", "evaluation", "completed"},
			priority: "high",
			url:      url,
		}, true
	case EventReportReady:
		format := payload.str("format")
		if format == "" {
			format = "markdown"
		}
		body := fmt.Sprintf("📄 Report ready: %s (%s)", payload.str("url"), format)
		if path := payload.str("path"); path != "" {
			body = fmt.Sprintf("%s\nFile: %s", body, path)
		}
		return message{
			title: "Sitegrade - Report Ready",
			body:  body,
			tags:  []string{"sitegrade", "report", format},
		}, true
	case EventLowBalance:
		return message{
			title:    "Sitegrade - Low Balance",
			body:     fmt.Sprintf("⚠️ Account %s balance is %s credits", payload.str("accountId"), payload.str("balance")),
			tags:     []string{"sitegrade", "ledger", "low-balance"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Sitegrade - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"sitegrade", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (p Payload) str(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (p Payload) number(key string) (float64, bool) {
	if p == nil {
		return 0, false
	}
	switch v := p[key].(type) {
	case float64:
		return v, true
	case *float64:
		if v == nil {
			return 0, false
		}
		return *v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
