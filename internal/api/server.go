package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"sitegrade/internal/history"
	"sitegrade/internal/ledger"
	"sitegrade/internal/logging"
	"sitegrade/internal/report"
	"sitegrade/internal/services"
	"sitegrade/internal/workflow"
)

const (
	maxBodyBytes      = 64 << 10
	defaultListLimit  = 20
	maxListLimit      = 200
	requestIDHeader   = "X-Request-ID"
	ndjsonContentType = "application/x-ndjson"
)

// Sessions is the workflow surface the API drives.
type Sessions interface {
	StartSession(ctx context.Context, userID, rawURL string) (string, error)
	State(id string) (workflow.SessionState, error)
	Advance(ctx context.Context, id string) (workflow.Outcome, error)
	SubmitChatMessage(ctx context.Context, id, text string) (workflow.Reply, error)
	GenerateReport(ctx context.Context, id string, format report.Format) (report.Handle, error)
	Status(ctx context.Context) workflow.StatusSummary
}

// Accounts reads balances and ledger history.
type Accounts interface {
	Balance(ctx context.Context, id string) (ledger.Account, error)
	Transactions(ctx context.Context, query ledger.TransactionQuery) ([]ledger.Transaction, error)
}

// Evaluations lists persisted evaluations.
type Evaluations interface {
	ListEvaluations(ctx context.Context, userID string, limit int) ([]history.Evaluation, error)
}

// Options configures a Server.
type Options struct {
	// Token is the bearer token required on every route but /api/health.
	// Empty disables authentication.
	Token  string
	Logger *slog.Logger
}

// Server is the HTTP API.
type Server struct {
	sessions    Sessions
	accounts    Accounts
	evaluations Evaluations
	token       string
	logger      *slog.Logger
	mux         *http.ServeMux
}

// New builds the API server and registers its routes.
func New(sessions Sessions, accounts Accounts, evaluations Evaluations, opts Options) *Server {
	s := &Server{
		sessions:    sessions,
		accounts:    accounts,
		evaluations: evaluations,
		token:       strings.TrimSpace(opts.Token),
		logger:      logging.NewComponentLogger(opts.Logger, "api"),
		mux:         http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("POST /api/sessions", s.authMiddleware(s.handleStartSession))
	s.mux.HandleFunc("GET /api/sessions/{id}", s.authMiddleware(s.handleGetSession))
	s.mux.HandleFunc("POST /api/sessions/{id}/advance", s.authMiddleware(s.handleAdvance))
	s.mux.HandleFunc("GET /api/sessions/{id}/ws", s.authMiddleware(s.handleAdvanceWS))
	s.mux.HandleFunc("POST /api/sessions/{id}/chat", s.authMiddleware(s.handleChat))
	s.mux.HandleFunc("POST /api/sessions/{id}/report", s.authMiddleware(s.handleReport))
	s.mux.HandleFunc("GET /api/accounts/{id}", s.authMiddleware(s.handleAccount))
	s.mux.HandleFunc("GET /api/accounts/{id}/transactions", s.authMiddleware(s.handleTransactions))
	s.mux.HandleFunc("GET /api/users/{id}/evaluations", s.authMiddleware(s.handleEvaluations))
	return s
}

// Handler returns the root handler with request ids attached.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		ctx := services.WithRequestID(r.Context(), requestID)
		if user := actingUser(r); user != "" {
			ctx = services.WithUserID(ctx, user)
		}
		start := time.Now()
		s.mux.ServeHTTP(w, r.WithContext(ctx))
		s.logger.Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Duration("duration", time.Since(start)),
			logging.String(logging.FieldCorrelationID, requestID),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := FromStatusSummary(s.sessions.Status(r.Context()))
	status := http.StatusOK
	if !health.Ready {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, Envelope{OK: health.Ready, Data: health})
}

// requireUser returns the acting user or writes a validation failure.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	user := actingUser(r)
	if user == "" {
		s.writeError(w, r, services.Wrap(services.ErrValidation, "api", "auth", userHeader+" header is required", nil))
		return "", false
	}
	return user, true
}

// ownedSession loads a session that belongs to user. Sessions of other users
// report not found.
func (s *Server) ownedSession(r *http.Request, user string) (workflow.SessionState, error) {
	id := r.PathValue("id")
	state, err := s.sessions.State(id)
	if err != nil {
		return workflow.SessionState{}, err
	}
	if state.UserID != user {
		return workflow.SessionState{}, services.Wrap(services.ErrNotFound, "api", "session", "session "+id, nil)
	}
	return state, nil
}

// ownAccount rejects account routes for another user's id.
func (s *Server) ownAccount(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return "", false
	}
	if id := r.PathValue("id"); id != user {
		s.writeError(w, r, services.Wrap(services.ErrNotFound, "api", "account", "account "+id, nil))
		return "", false
	}
	return user, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return services.Wrap(services.ErrValidation, "api", "decode body", "invalid JSON body", err)
	}
	return nil
}

func listLimit(r *http.Request) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return defaultListLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}

// statusFor maps a classification code onto an HTTP status.
func statusFor(code string) int {
	switch code {
	case "validation_error":
		return http.StatusBadRequest
	case "insufficient_balance":
		return http.StatusPaymentRequired
	case "not_found":
		return http.StatusNotFound
	case "conflict":
		return http.StatusConflict
	case "collaborator_error":
		return http.StatusBadGateway
	case "stream_timeout", "task_timeout":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(err error) ErrorBody {
	class := services.Classify(err)
	return ErrorBody{Code: class.Code, Message: err.Error(), Retryable: class.Retryable}
}

func (s *Server) writeOK(w http.ResponseWriter, status int, data any) {
	s.writeJSON(w, status, Envelope{OK: true, Data: data})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorData(w, r, err, nil)
}

func (s *Server) writeErrorData(w http.ResponseWriter, r *http.Request, err error, data any) {
	body := errorBody(err)
	status := statusFor(body.Code)
	if status >= http.StatusInternalServerError && !errors.Is(err, context.Canceled) {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "api request failed", "api_error",
			logging.String("path", r.URL.Path),
			logging.String("code", body.Code),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "see the wrapped error for the failing component"),
		)
	}
	s.writeJSON(w, status, Envelope{OK: false, Data: data, Error: &body})
}

func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, status int, body ErrorBody) {
	s.logger.Debug("api request rejected",
		logging.String("path", r.URL.Path),
		logging.String("code", body.Code),
	)
	s.writeJSON(w, status, Envelope{OK: false, Error: &body})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}
