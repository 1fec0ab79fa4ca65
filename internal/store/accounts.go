package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"sitegrade/internal/ledger"
)

var _ ledger.Backend = (*Store)(nil)

const accountColumns = "id, balance, pay_as_you_go, has_payment_method, version, created_at, updated_at"

const transactionColumns = "id, account_id, evaluation_id, kind, action, amount, metered, balance_after, refund_of, created_at"

const defaultTransactionLimit = 100

func scanAccount(scanner rowScanner) (ledger.Account, error) {
	var (
		account      ledger.Account
		payg, method int
		created      string
		updated      string
	)
	if err := scanner.Scan(&account.ID, &account.Balance, &payg, &method, &account.Version, &created, &updated); err != nil {
		return ledger.Account{}, err
	}
	account.PayAsYouGo = payg != 0
	account.HasPaymentMethod = method != 0
	account.CreatedAt = parseTime(created)
	account.UpdatedAt = parseTime(updated)
	return account, nil
}

// LoadAccount returns the stored account or ledger.ErrAccountNotFound.
func (s *Store) LoadAccount(ctx context.Context, id string) (ledger.Account, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	if err != nil {
		return ledger.Account{}, fmt.Errorf("load account %s: %w", id, err)
	}
	return account, nil
}

// CreateAccount inserts the account unless one with the same id exists.
func (s *Store) CreateAccount(ctx context.Context, account ledger.Account) error {
	_, err := s.execWithRetry(ctx,
		s.dialect.insertIgnore()+` INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		int64(account.Balance),
		boolToInt(account.PayAsYouGo),
		boolToInt(account.HasPaymentMethod),
		account.Version,
		formatTime(account.CreatedAt),
		formatTime(account.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create account %s: %w", account.ID, err)
	}
	return nil
}

// CommitAccount writes next only if the stored version still equals
// expectedVersion, appending txn in the same transaction.
func (s *Store) CommitAccount(ctx context.Context, expectedVersion int64, next ledger.Account, txn *ledger.Transaction) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE accounts SET balance = ?, pay_as_you_go = ?, has_payment_method = ?, version = ?, updated_at = ?
             WHERE id = ? AND version = ?`,
			int64(next.Balance),
			boolToInt(next.PayAsYouGo),
			boolToInt(next.HasPaymentMethod),
			next.Version,
			formatTime(next.UpdatedAt),
			next.ID,
			expectedVersion,
		)
		if err != nil {
			return fmt.Errorf("update account %s: %w", next.ID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update account %s: %w", next.ID, err)
		}
		if affected == 0 {
			return ledger.ErrVersionConflict
		}
		if txn == nil {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO ledger_transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			txn.ID,
			txn.AccountID,
			nullableString(txn.EvaluationID),
			string(txn.Kind),
			string(txn.Action),
			int64(txn.Amount),
			int64(txn.Metered),
			int64(txn.BalanceAfter),
			nullableString(txn.RefundOf),
			formatTime(txn.CreatedAt),
		)
		if err != nil {
			if txn.RefundOf != "" && isDuplicate(err) {
				return ledger.ErrAlreadyRefunded
			}
			return fmt.Errorf("append ledger transaction: %w", err)
		}
		return nil
	})
}

// ListTransactions returns matching ledger entries, newest first.
func (s *Store) ListTransactions(ctx context.Context, query ledger.TransactionQuery) ([]ledger.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if query.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, query.AccountID)
	}
	if query.EvaluationID != "" {
		where = append(where, "evaluation_id = ?")
		args = append(args, query.EvaluationID)
	}
	stmt := "SELECT " + transactionColumns + " FROM ledger_transactions"
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY seq DESC LIMIT ?"
	args = append(args, clampLimit(query.Limit, defaultTransactionLimit))

	rows, err := s.db.QueryContext(ensureContext(ctx), stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []ledger.Transaction
	for rows.Next() {
		var (
			txn          ledger.Transaction
			evaluationID sql.NullString
			refundOf     sql.NullString
			kind, action string
			created      string
		)
		if err := rows.Scan(&txn.ID, &txn.AccountID, &evaluationID, &kind, &action,
			&txn.Amount, &txn.Metered, &txn.BalanceAfter, &refundOf, &created); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txn.EvaluationID = evaluationID.String
		txn.RefundOf = refundOf.String
		txn.Kind = ledger.Kind(kind)
		txn.Action = ledger.Action(action)
		txn.CreatedAt = parseTime(created)
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}
