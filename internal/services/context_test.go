package services_test

import (
	"context"
	"testing"

	"sitegrade/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithSessionID(ctx, "sess-1")
	ctx = services.WithUserID(ctx, "user-1")
	ctx = services.WithEvaluationID(ctx, "eval-1")
	ctx = services.WithPhase(ctx, "performance")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.SessionIDFromContext(ctx); !ok || id != "sess-1" {
		t.Fatalf("unexpected session id: %v %v", id, ok)
	}
	if id, ok := services.UserIDFromContext(ctx); !ok || id != "user-1" {
		t.Fatalf("unexpected user id: %v %v", id, ok)
	}
	if id, ok := services.EvaluationIDFromContext(ctx); !ok || id != "eval-1" {
		t.Fatalf("unexpected evaluation id: %v %v", id, ok)
	}
	if phase, ok := services.PhaseFromContext(ctx); !ok || phase != "performance" {
		t.Fatalf("unexpected phase: %v %v", phase, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithPhase(ctx, "")
	if _, ok := services.PhaseFromContext(ctx); ok {
		t.Fatal("expected no phase value")
	}
}
