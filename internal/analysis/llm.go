package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"sitegrade/internal/history"
	"sitegrade/internal/phase"
	"sitegrade/internal/recommend"
	"sitegrade/internal/services"
	"sitegrade/internal/services/llm"
	"sitegrade/internal/snapshot"
	"sitegrade/internal/validator"
)

// Completer is the subset of llm.Client used here.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// LLM implements Analyzer, Scorer, Advisor and recommend.Source.
type LLM struct {
	client      Completer
	visionModel string
}

var (
	_ Analyzer         = (*LLM)(nil)
	_ Scorer           = (*LLM)(nil)
	_ Advisor          = (*LLM)(nil)
	_ recommend.Source = (*LLM)(nil)
)

// NewLLM wraps client. visionModel is used for screenshot inputs; empty
// means the client default.
func NewLLM(client Completer, visionModel string) *LLM {
	return &LLM{client: client, visionModel: strings.TrimSpace(visionModel)}
}

// Analyze writes the narrative for req.Phase.
func (a *LLM) Analyze(ctx context.Context, req AnalyzeRequest) (string, error) {
	focus, ok := phaseFocus[req.Phase]
	if !ok {
		return "", services.Wrap(services.ErrValidation, "analysis", "analyze", fmt.Sprintf("phase %q has no narrative", req.Phase), nil)
	}
	messages := []llm.Message{llm.System(analystPrompt + " " + focus)}
	messages = append(messages, conversation(req.History)...)

	var b strings.Builder
	fmt.Fprintf(&b, "Website: %s\nSection: %s\n", req.URL, req.Phase.Title())
	if req.Metrics.Len() > 0 {
		fmt.Fprintf(&b, "\nMetrics (JSON):\n%s\n", encodeMetrics(req.Metrics))
	}
	writeRatings(&b, req.Ratings)
	if req.Phase == phase.Overall {
		writeResults(&b, req.Prior)
		if req.OverallScore != nil {
			fmt.Fprintf(&b, "\nRunning overall score: %.0f/100\n", *req.OverallScore)
		}
	}

	request := llm.Request{Messages: messages, Temperature: 0.3}
	if len(req.Screenshot) > 0 {
		request.Model = a.visionModel
		request.Messages = append(request.Messages, llm.UserWithImage(b.String(), req.Screenshot, ""))
	} else {
		request.Messages = append(request.Messages, llm.User(b.String()))
	}
	narrative, err := a.client.Complete(ctx, request)
	if err != nil {
		return "", services.Wrap(services.ErrCollaborator, "analysis", "analyze", string(req.Phase), err)
	}
	return strings.TrimSpace(narrative), nil
}

// Score grades a scored phase, clamping the result to [0, 100].
func (a *LLM) Score(ctx context.Context, req ScoreRequest) (float64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Aspect: %s\n", req.Phase.Title())
	if req.Metrics.Len() > 0 {
		fmt.Fprintf(&b, "\nMetrics (JSON):\n%s\n", encodeMetrics(req.Metrics))
	}
	writeRatings(&b, req.Ratings)
	if req.Narrative != "" {
		fmt.Fprintf(&b, "\nAssessment:\n%s\n", req.Narrative)
	}

	request := llm.Request{Messages: []llm.Message{llm.System(scorerPrompt)}, JSON: true}
	if len(req.Screenshot) > 0 {
		request.Model = a.visionModel
		request.Messages = append(request.Messages, llm.UserWithImage(b.String(), req.Screenshot, ""))
	} else {
		request.Messages = append(request.Messages, llm.User(b.String()))
	}
	content, err := a.client.Complete(ctx, request)
	if err != nil {
		return 0, services.Wrap(services.ErrCollaborator, "analysis", "score", string(req.Phase), err)
	}
	var parsed struct {
		Score *float64 `json:"score"`
	}
	if err := llm.DecodeLLMJSON(content, &parsed); err != nil {
		return 0, services.Wrap(services.ErrCollaborator, "analysis", "score", "parse score", err)
	}
	if parsed.Score == nil || math.IsNaN(*parsed.Score) || math.IsInf(*parsed.Score, 0) {
		return 0, services.Wrap(services.ErrCollaborator, "analysis", "score", "response has no numeric score", nil)
	}
	return math.Max(0, math.Min(100, *parsed.Score)), nil
}

// Recommend produces the recommendation narrative and competitor URLs.
func (a *LLM) Recommend(ctx context.Context, req recommend.Request) (recommend.Recommendation, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Website: %s\n", req.URL)
	if req.OverallScore != nil {
		fmt.Fprintf(&b, "Overall score: %.0f/100\n", *req.OverallScore)
	}
	writeResults(&b, req.Results)

	messages := []llm.Message{llm.System(recommenderPrompt)}
	messages = append(messages, conversation(req.History)...)
	messages = append(messages, llm.User(b.String()))
	content, err := a.client.Complete(ctx, llm.Request{Messages: messages, JSON: true, Temperature: 0.4})
	if err != nil {
		return recommend.Recommendation{}, services.Wrap(services.ErrCollaborator, "analysis", "recommend", req.URL, err)
	}
	var parsed struct {
		Narrative   string   `json:"narrative"`
		Competitors []string `json:"competitors"`
	}
	if err := llm.DecodeLLMJSON(content, &parsed); err != nil {
		return recommend.Recommendation{}, services.Wrap(services.ErrCollaborator, "analysis", "recommend", "parse recommendations", err)
	}
	if strings.TrimSpace(parsed.Narrative) == "" {
		return recommend.Recommendation{}, services.Wrap(services.ErrCollaborator, "analysis", "recommend", "empty narrative", nil)
	}
	return recommend.Recommendation{Narrative: strings.TrimSpace(parsed.Narrative), Competitors: parsed.Competitors}, nil
}

// Reply answers a chat message.
func (a *LLM) Reply(ctx context.Context, req ChatRequest) (string, error) {
	var b strings.Builder
	b.WriteString(advisorPrompt)
	fmt.Fprintf(&b, "\n\nWebsite: %s\n", req.URL)
	if req.Phase != phase.None {
		fmt.Fprintf(&b, "Current section: %s\n", req.Phase.Title())
	}
	writeResults(&b, req.Results)

	messages := []llm.Message{llm.System(b.String())}
	messages = append(messages, conversation(req.History)...)
	messages = append(messages, llm.User(req.Message))
	reply, err := a.client.Complete(ctx, llm.Request{Messages: messages, Temperature: 0.5})
	if err != nil {
		return "", services.Wrap(services.ErrCollaborator, "analysis", "reply", "chat", err)
	}
	return strings.TrimSpace(reply), nil
}

func conversation(turns []history.Turn) []llm.Message {
	messages := make([]llm.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case history.RoleSystem:
			messages = append(messages, llm.System(turn.Content))
		case history.RoleAssistant:
			messages = append(messages, llm.Assistant(turn.Content))
		default:
			messages = append(messages, llm.User(turn.Content))
		}
	}
	return messages
}

func encodeMetrics(metrics snapshot.Value) string {
	data, err := json.Marshal(metrics)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func writeRatings(b *strings.Builder, ratings []validator.MetricRating) {
	if len(ratings) == 0 {
		return
	}
	b.WriteString("\nRatings:\n")
	for _, r := range ratings {
		fmt.Fprintf(b, "- %s = %g (%s, target %s)\n", r.Metric, r.Value, r.Rating, r.Target)
	}
}

func writeResults(b *strings.Builder, results []history.PhaseResult) {
	if len(results) == 0 {
		return
	}
	b.WriteString("\nEarlier sections:\n")
	for _, r := range results {
		if r.Failed() {
			continue
		}
		fmt.Fprintf(b, "\n## %s", r.Phase.Title())
		if r.Score != nil {
			fmt.Fprintf(b, " (%.0f/100)", *r.Score)
		}
		fmt.Fprintf(b, "\n%s\n", r.Narrative)
	}
}
