package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"sitegrade/internal/logging"
	"sitegrade/internal/services"
)

// Options configures a Ledger.
type Options struct {
	StartingBalance     Credits
	LowBalanceThreshold Credits
	// MaxRetries bounds optimistic update attempts per operation.
	MaxRetries int
	// OnLowBalance runs after a reservation moves the balance below
	// LowBalanceThreshold.
	OnLowBalance func(ctx context.Context, account Account)
	Logger       *slog.Logger
	Clock        func() time.Time
}

// Ledger reserves and refunds credits. Updates to one account are serialized
// within a Ledger; the version compare-and-swap guards against other
// processes sharing the backend. Balances never go negative: pay-as-you-go
// accounts with a payment method meter the shortfall instead.
type Ledger struct {
	backend Backend
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
	locks   accountLocks
}

const defaultMaxRetries = 8

// New constructs a Ledger over backend.
func New(backend Backend, opts Options) *Ledger {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		backend: backend,
		opts:    opts,
		logger:  logging.NewComponentLogger(opts.Logger, "ledger"),
		now:     now,
		sleep:   sleepContext,
	}
}

// EnsureAccount returns the account, creating it with the starting balance on
// first use.
func (l *Ledger) EnsureAccount(ctx context.Context, id string) (Account, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Account{}, services.Wrap(services.ErrValidation, "ledger", "ensure account", "account id is required", nil)
	}
	account, err := l.backend.LoadAccount(ctx, id)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return Account{}, services.Wrap(services.ErrStorage, "ledger", "load account", id, err)
	}
	now := l.now().UTC()
	fresh := Account{ID: id, Balance: l.opts.StartingBalance, CreatedAt: now, UpdatedAt: now}
	if err := l.backend.CreateAccount(ctx, fresh); err != nil {
		return Account{}, services.Wrap(services.ErrStorage, "ledger", "create account", id, err)
	}
	account, err = l.backend.LoadAccount(ctx, id)
	if err != nil {
		return Account{}, services.Wrap(services.ErrStorage, "ledger", "load account", id, err)
	}
	l.logger.Info("account created",
		logging.String(logging.FieldUserID, id),
		logging.Credits("balance", account.Balance),
		logging.String(logging.FieldEventType, "ledger_account_created"),
	)
	return account, nil
}

// Balance returns the current account state.
func (l *Ledger) Balance(ctx context.Context, id string) (Account, error) {
	return l.EnsureAccount(ctx, id)
}

// Reserve atomically deducts req.Amount. It fails with ErrInsufficientBalance
// before any external work happens when the account cannot cover the amount.
// A zero amount returns an empty reservation without touching storage.
func (l *Ledger) Reserve(ctx context.Context, req ReserveRequest) (Reservation, error) {
	if req.Amount < 0 {
		return Reservation{}, services.Wrap(services.ErrValidation, "ledger", "reserve", fmt.Sprintf("negative amount %s", req.Amount), nil)
	}
	if req.Amount == 0 {
		return Reservation{AccountID: req.AccountID, EvaluationID: req.EvaluationID, Action: req.Action}, nil
	}

	var reservation Reservation
	var before, after Account
	err := l.update(ctx, req.AccountID, "reserve", func(account Account) (Account, *Transaction, error) {
		fromBalance := req.Amount
		var metered Credits
		if account.Balance < req.Amount {
			if !account.CanOverdraw() {
				return Account{}, nil, services.Wrap(services.ErrInsufficientBalance, "ledger", "reserve",
					fmt.Sprintf("balance %s is below %s for %s", account.Balance, req.Amount, req.Action), nil)
			}
			fromBalance = max(account.Balance, 0)
			metered = req.Amount - fromBalance
		}
		next := account
		next.Balance -= fromBalance
		txn := &Transaction{
			ID:           uuid.NewString(),
			AccountID:    account.ID,
			EvaluationID: req.EvaluationID,
			Kind:         KindReserve,
			Action:       req.Action,
			Amount:       req.Amount,
			Metered:      metered,
			BalanceAfter: next.Balance,
		}
		reservation = Reservation{
			ID:           txn.ID,
			AccountID:    account.ID,
			EvaluationID: req.EvaluationID,
			Action:       req.Action,
			Amount:       req.Amount,
			FromBalance:  fromBalance,
			Metered:      metered,
		}
		before, after = account, next
		return next, txn, nil
	})
	if err != nil {
		return Reservation{}, err
	}

	l.logger.Info("credits reserved",
		logging.String(logging.FieldUserID, reservation.AccountID),
		logging.String(logging.FieldEvaluationID, reservation.EvaluationID),
		logging.String("action", string(reservation.Action)),
		logging.Credits("amount", reservation.Amount),
		logging.Credits("metered", reservation.Metered),
		logging.Credits("balance", after.Balance),
		logging.String(logging.FieldEventType, "ledger_reserve"),
	)
	threshold := l.opts.LowBalanceThreshold
	if l.opts.OnLowBalance != nil && threshold > 0 && before.Balance >= threshold && after.Balance < threshold {
		l.opts.OnLowBalance(ctx, after)
	}
	return reservation, nil
}

// Refund reverses a reservation, restoring exactly the balance portion it
// consumed and voiding its metered portion. Refunding an empty reservation is
// a no-op; refunding twice returns ErrAlreadyRefunded.
func (l *Ledger) Refund(ctx context.Context, reservation Reservation) error {
	if reservation.ID == "" || reservation.Amount == 0 {
		return nil
	}
	var after Account
	err := l.update(ctx, reservation.AccountID, "refund", func(account Account) (Account, *Transaction, error) {
		next := account
		next.Balance += reservation.FromBalance
		after = next
		return next, &Transaction{
			ID:           uuid.NewString(),
			AccountID:    account.ID,
			EvaluationID: reservation.EvaluationID,
			Kind:         KindRefund,
			Action:       reservation.Action,
			Amount:       reservation.Amount,
			Metered:      reservation.Metered,
			BalanceAfter: next.Balance,
			RefundOf:     reservation.ID,
		}, nil
	})
	if err != nil {
		return err
	}
	l.logger.Info("credits refunded",
		logging.String(logging.FieldUserID, reservation.AccountID),
		logging.String(logging.FieldEvaluationID, reservation.EvaluationID),
		logging.String("action", string(reservation.Action)),
		logging.Credits("amount", reservation.Amount),
		logging.Credits("balance", after.Balance),
		logging.String(logging.FieldEventType, "ledger_refund"),
	)
	return nil
}

// TopUp credits an account.
func (l *Ledger) TopUp(ctx context.Context, accountID string, amount Credits) (Account, error) {
	if amount <= 0 {
		return Account{}, services.Wrap(services.ErrValidation, "ledger", "top up", "amount must be positive", nil)
	}
	var after Account
	err := l.update(ctx, accountID, "top up", func(account Account) (Account, *Transaction, error) {
		next := account
		next.Balance += amount
		after = next
		return next, &Transaction{
			ID:           uuid.NewString(),
			AccountID:    account.ID,
			Kind:         KindTopUp,
			Action:       ActionTopUp,
			Amount:       amount,
			BalanceAfter: next.Balance,
		}, nil
	})
	if err != nil {
		return Account{}, err
	}
	return after, nil
}

// SetPayAsYouGo updates billing settings without recording a transaction.
func (l *Ledger) SetPayAsYouGo(ctx context.Context, accountID string, enabled, hasPaymentMethod bool) (Account, error) {
	var after Account
	err := l.update(ctx, accountID, "billing settings", func(account Account) (Account, *Transaction, error) {
		next := account
		next.PayAsYouGo = enabled
		next.HasPaymentMethod = hasPaymentMethod
		after = next
		return next, nil, nil
	})
	if err != nil {
		return Account{}, err
	}
	return after, nil
}

// Transactions lists ledger entries, newest first.
func (l *Ledger) Transactions(ctx context.Context, query TransactionQuery) ([]Transaction, error) {
	txns, err := l.backend.ListTransactions(ctx, query)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "ledger", "list transactions", query.AccountID, err)
	}
	return txns, nil
}

// Charge runs fn under a reservation: reserve first, attempt fn, refund if fn
// fails. The refund is not bound to ctx cancellation.
func (l *Ledger) Charge(ctx context.Context, req ReserveRequest, fn func(context.Context, Reservation) error) error {
	reservation, err := l.Reserve(ctx, req)
	if err != nil {
		return err
	}
	if err := fn(ctx, reservation); err != nil {
		if refundErr := l.Refund(context.WithoutCancel(ctx), reservation); refundErr != nil {
			logging.ErrorWithContext(l.logger, "refund after failed action", "ledger_refund_failed",
				logging.String(logging.FieldUserID, reservation.AccountID),
				logging.String("reservation_id", reservation.ID),
				logging.Error(refundErr),
				logging.String(logging.FieldErrorHint, "reconcile the account balance manually"),
			)
			return errors.Join(err, refundErr)
		}
		return err
	}
	return nil
}

type mutation func(Account) (Account, *Transaction, error)

// update applies mutate with compare-and-swap on the account version,
// retrying on races lost to another process.
func (l *Ledger) update(ctx context.Context, accountID, operation string, mutate mutation) error {
	unlock, err := l.locks.acquire(ctx, accountID)
	if err != nil {
		return err
	}
	defer unlock()

	for attempt := 1; attempt <= l.opts.MaxRetries; attempt++ {
		account, err := l.EnsureAccount(ctx, accountID)
		if err != nil {
			return err
		}
		next, txn, err := mutate(account)
		if err != nil {
			return err
		}
		now := l.now().UTC()
		next.Version = account.Version + 1
		next.UpdatedAt = now
		if txn != nil {
			txn.CreatedAt = now
		}
		err = l.backend.CommitAccount(ctx, account.Version, next, txn)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrAlreadyRefunded):
			return err
		case IsVersionConflict(err):
			l.logger.Debug("ledger update lost race",
				logging.String(logging.FieldUserID, accountID),
				logging.String("operation", operation),
				logging.Int("attempt", attempt),
			)
			if err := l.sleep(ctx, retryDelay(attempt)); err != nil {
				return err
			}
		default:
			return services.Wrap(services.ErrStorage, "ledger", operation, accountID, err)
		}
	}
	return services.Wrap(services.ErrConflict, "ledger", operation,
		fmt.Sprintf("gave up after %d concurrent updates", l.opts.MaxRetries), nil)
}

// retryDelay grows linearly with jitter so competing writers fall out of step.
func retryDelay(attempt int) time.Duration {
	base := time.Duration(attempt) * 5 * time.Millisecond
	return base + rand.N(base)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
