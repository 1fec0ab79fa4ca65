package services

import "context"

type contextKey string

const (
	sessionIDKey    contextKey = "session_id"
	userIDKey       contextKey = "user_id"
	evaluationIDKey contextKey = "evaluation_id"
	phaseKey        contextKey = "phase"
	requestIDKey    contextKey = "request_id"
)

// WithSessionID annotates context with the evaluation session identifier.
func WithSessionID(ctx context.Context, id string) context.Context {
	return withString(ctx, sessionIDKey, id)
}

// SessionIDFromContext extracts the session identifier if present.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, sessionIDKey)
}

// WithUserID annotates context with the acting user.
func WithUserID(ctx context.Context, id string) context.Context {
	return withString(ctx, userIDKey, id)
}

// UserIDFromContext returns the acting user if present.
func UserIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, userIDKey)
}

// WithEvaluationID annotates context with the persisted evaluation identifier.
func WithEvaluationID(ctx context.Context, id string) context.Context {
	return withString(ctx, evaluationIDKey, id)
}

// EvaluationIDFromContext returns the evaluation identifier if present.
func EvaluationIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, evaluationIDKey)
}

// WithPhase annotates context with the phase being executed.
func WithPhase(ctx context.Context, phase string) context.Context {
	return withString(ctx, phaseKey, phase)
}

// PhaseFromContext returns the phase name if present.
func PhaseFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, phaseKey)
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, requestIDKey)
}

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
