package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrCollaborator        = errors.New("collaborator error")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrStreamTimeout       = errors.New("stream timeout")
	ErrTaskTimeout         = errors.New("task timeout")
	ErrStorage             = errors.New("storage error")
	ErrConfiguration       = errors.New("configuration error")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrCollaborator
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classification is the stable, transport-neutral view of an error.
type Classification struct {
	Code      string
	Retryable bool
}

// Classify maps an error onto a stable code. Unknown errors classify as
// internal_error.
func Classify(err error) Classification {
	switch {
	case err == nil:
		return Classification{}
	case errors.Is(err, ErrValidation):
		return Classification{Code: "validation_error"}
	case errors.Is(err, ErrInsufficientBalance):
		return Classification{Code: "insufficient_balance"}
	case errors.Is(err, ErrNotFound):
		return Classification{Code: "not_found"}
	case errors.Is(err, ErrConflict):
		return Classification{Code: "conflict", Retryable: true}
	case errors.Is(err, ErrStreamTimeout):
		return Classification{Code: "stream_timeout", Retryable: true}
	case errors.Is(err, ErrTaskTimeout):
		return Classification{Code: "task_timeout", Retryable: true}
	case errors.Is(err, ErrCollaborator):
		return Classification{Code: "collaborator_error", Retryable: true}
	case errors.Is(err, ErrStorage):
		return Classification{Code: "storage_error"}
	case errors.Is(err, ErrConfiguration):
		return Classification{Code: "configuration_error"}
	default:
		return Classification{Code: "internal_error"}
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
