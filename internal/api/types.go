package api

import "sitegrade/internal/snapshot"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Envelope wraps every JSON response.
type Envelope struct {
	OK    bool       `json:"ok"`
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// StartSessionRequest is the body of POST /api/sessions.
type StartSessionRequest struct {
	URL string `json:"url"`
}

// ChatRequest is the body of POST /api/sessions/{id}/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ReportRequest is the body of POST /api/sessions/{id}/report.
type ReportRequest struct {
	Format string `json:"format"`
}

// Session is the transport view of a live evaluation session.
type Session struct {
	ID           string             `json:"id"`
	UserID       string             `json:"userId"`
	EvaluationID string             `json:"evaluationId"`
	URL          string             `json:"url"`
	CurrentPhase string             `json:"currentPhase"`
	NextPhase    string             `json:"nextPhase,omitempty"`
	PhaseScores  map[string]float64 `json:"phaseScores"`
	OverallScore *float64           `json:"overallScore,omitempty"`
	Streaming    bool               `json:"streaming"`
	Complete     bool               `json:"complete"`
	Results      []PhaseResult      `json:"results"`
	StartedAt    string             `json:"startedAt,omitempty"`
	UpdatedAt    string             `json:"updatedAt,omitempty"`
}

// PhaseResult is one recorded phase attempt.
type PhaseResult struct {
	ID        string         `json:"id"`
	Phase     string         `json:"phase"`
	Title     string         `json:"title"`
	Narrative string         `json:"narrative,omitempty"`
	Metrics   snapshot.Value `json:"metrics"`
	Ratings   []Rating       `json:"ratings,omitempty"`
	Score     *float64       `json:"score,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt string         `json:"createdAt,omitempty"`
}

// Rating is a rated metric.
type Rating struct {
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
	Rating string  `json:"rating"`
	Target string  `json:"target,omitempty"`
}

// AdvanceResponse is the JSON result of a non-streaming advance.
type AdvanceResponse struct {
	Phase        string       `json:"phase"`
	Result       *PhaseResult `json:"result,omitempty"`
	OverallScore *float64     `json:"overallScore,omitempty"`
}

// StreamError is the final NDJSON or websocket message of a failed stream.
type StreamError struct {
	Type      string `json:"type"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// ChatResponse carries the advisor's reply.
type ChatResponse struct {
	Message string `json:"message"`
	Phase   string `json:"phase"`
}

// Report describes a generated report file.
type Report struct {
	ID           string `json:"id"`
	EvaluationID string `json:"evaluationId"`
	Format       string `json:"format"`
	Path         string `json:"path"`
	Bytes        int64  `json:"bytes"`
	CreatedAt    string `json:"createdAt,omitempty"`
}

// Account is a user's balance and billing settings.
type Account struct {
	ID               string `json:"id"`
	Balance          string `json:"balance"`
	PayAsYouGo       bool   `json:"payAsYouGo"`
	HasPaymentMethod bool   `json:"hasPaymentMethod"`
	UpdatedAt        string `json:"updatedAt,omitempty"`
}

// Transaction is one ledger entry.
type Transaction struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	Action       string `json:"action"`
	Amount       string `json:"amount"`
	Metered      string `json:"metered,omitempty"`
	BalanceAfter string `json:"balanceAfter"`
	EvaluationID string `json:"evaluationId,omitempty"`
	RefundOf     string `json:"refundOf,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
}

// TransactionListResponse wraps an account's transactions.
type TransactionListResponse struct {
	Items []Transaction `json:"items"`
}

// Evaluation is a persisted evaluation summary.
type Evaluation struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	ScreenshotRef string `json:"screenshotRef,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty"`
}

// EvaluationListResponse wraps a user's evaluations.
type EvaluationListResponse struct {
	Items []Evaluation `json:"items"`
}

// Health summarizes daemon readiness.
type Health struct {
	Ready          bool          `json:"ready"`
	Running        bool          `json:"running"`
	ActiveSessions int           `json:"activeSessions"`
	LastError      string        `json:"lastError,omitempty"`
	Checks         []HealthCheck `json:"checks"`
}

// HealthCheck mirrors one workflow health probe.
type HealthCheck struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}
