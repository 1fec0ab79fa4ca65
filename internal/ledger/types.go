package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sitegrade/internal/services"
)

// Kind classifies a ledger transaction.
type Kind string

const (
	KindReserve Kind = "reserve"
	KindRefund  Kind = "refund"
	KindTopUp   Kind = "topup"
)

// Action names the billable operation behind a transaction.
type Action string

const (
	ActionEvaluation  Action = "evaluation"
	ActionChatMessage Action = "chat_message"
	ActionReport      Action = "report"
	ActionTopUp       Action = "topup"
)

// Account is a user's credit balance plus billing settings. Version increases
// on every committed change and guards concurrent updates.
type Account struct {
	ID               string    `json:"id"`
	Balance          Credits   `json:"balance"`
	PayAsYouGo       bool      `json:"pay_as_you_go"`
	HasPaymentMethod bool      `json:"has_payment_method"`
	Version          int64     `json:"version"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CanOverdraw reports whether reservations may exceed the balance, with the
// shortfall billed to the payment method.
func (a Account) CanOverdraw() bool {
	return a.PayAsYouGo && a.HasPaymentMethod
}

// Transaction is one durable ledger entry.
type Transaction struct {
	ID           string  `json:"id"`
	AccountID    string  `json:"account_id"`
	EvaluationID string  `json:"evaluation_id,omitempty"`
	Kind         Kind    `json:"kind"`
	Action       Action  `json:"action"`
	Amount       Credits `json:"amount"`
	// Metered is the part of Amount billed to the payment method rather than
	// the balance.
	Metered      Credits   `json:"metered"`
	BalanceAfter Credits   `json:"balance_after"`
	RefundOf     string    `json:"refund_of,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Reservation is the handle returned by Reserve and consumed by Refund.
type Reservation struct {
	ID           string  `json:"id"`
	AccountID    string  `json:"account_id"`
	EvaluationID string  `json:"evaluation_id,omitempty"`
	Action       Action  `json:"action"`
	Amount       Credits `json:"amount"`
	FromBalance  Credits `json:"from_balance"`
	Metered      Credits `json:"metered"`
}

// ReserveRequest describes a charge about to be attempted.
type ReserveRequest struct {
	AccountID    string
	EvaluationID string
	Action       Action
	Amount       Credits
}

// TransactionQuery filters Transactions. Zero fields match everything.
type TransactionQuery struct {
	AccountID    string
	EvaluationID string
	Limit        int
}

var (
	// ErrVersionConflict is returned by a Backend when the account changed
	// since it was loaded.
	ErrVersionConflict = fmt.Errorf("%w: account version changed", services.ErrConflict)
	// ErrAlreadyRefunded is returned when a reservation has been refunded before.
	ErrAlreadyRefunded = fmt.Errorf("%w: reservation already refunded", services.ErrConflict)
	// ErrAccountNotFound is returned by a Backend for unknown accounts.
	ErrAccountNotFound = fmt.Errorf("%w: account", services.ErrNotFound)
)

// IsVersionConflict reports whether err came from a lost optimistic update.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// Backend persists accounts and transactions. CommitAccount must apply the
// account update and append txn (when non-nil) atomically, and only if the
// stored version still equals expectedVersion.
type Backend interface {
	LoadAccount(ctx context.Context, id string) (Account, error)
	CreateAccount(ctx context.Context, account Account) error
	CommitAccount(ctx context.Context, expectedVersion int64, next Account, txn *Transaction) error
	ListTransactions(ctx context.Context, query TransactionQuery) ([]Transaction, error)
}
