package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eventpay/backend/internal/ledger"
	"github.com/eventpay/backend/internal/models"
	"github.com/lib/pq"
)

// PostgresStore implements ledger.Store on database/sql. Writes use a
// conditional UPDATE on the account version (rows-affected check) instead of
// row locks, and a partial unique index on active event charges backs the
// one-charge-per-(account,event) invariant under races.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Account(ctx context.Context, id string) (models.Account, error) {
	var acc models.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, balance, version, status, created_at, updated_at
		FROM accounts
		WHERE id = $1`, id).
		Scan(&acc.ID, &acc.Balance, &acc.Version, &acc.Status, &acc.CreatedAt, &acc.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.Account{}, ledger.ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("failed to load account: %w", err)
	}
	return acc, nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, acc models.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, balance, version, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		acc.ID, acc.Balance, acc.Version, acc.Status, acc.CreatedAt, acc.UpdatedAt)
	if isUniqueViolation(err) {
		return ledger.ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (s *PostgresStore) Apply(ctx context.Context, acc models.Account, expectedVersion int64, txn models.Transaction, reverseID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, version = $2, status = $3, updated_at = $4
		WHERE id = $5 AND version = $6`,
		acc.Balance, acc.Version, acc.Status, acc.UpdatedAt, acc.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ledger.ErrVersionConflict
	}

	if reverseID != "" {
		result, err = tx.ExecContext(ctx, `
			UPDATE transactions
			SET status = $1
			WHERE id = $2 AND status = $3`,
			models.TxnReversed, reverseID, models.TxnCompleted)
		if err != nil {
			return fmt.Errorf("failed to reverse charge: %w", err)
		}
		rows, err = result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			// Charge was reversed by a racing refund; force a re-read.
			return ledger.ErrVersionConflict
		}
	}

	if txn.ID != "" {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO transactions (id, account_id, kind, amount, balance, status, event_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			txn.ID, txn.AccountID, txn.Kind, txn.Amount, txn.Balance, txn.Status, txn.EventID, txn.CreatedAt)
		if isUniqueViolation(err) {
			// A racing charge for the same (account, event) won; the retry
			// will find it and return it idempotently.
			return ledger.ErrVersionConflict
		}
		if err != nil {
			return fmt.Errorf("failed to insert transaction: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) ActiveEventCharge(ctx context.Context, accountID, eventID string) (models.Transaction, error) {
	var t models.Transaction
	err := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, kind, amount, balance, status, event_id, created_at
		FROM transactions
		WHERE account_id = $1 AND event_id = $2 AND kind = $3 AND status = $4`,
		accountID, eventID, models.KindEventCharge, models.TxnCompleted).
		Scan(&t.ID, &t.AccountID, &t.Kind, &t.Amount, &t.Balance, &t.Status, &t.EventID, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return models.Transaction{}, ledger.ErrNoChargeFound
	}
	if err != nil {
		return models.Transaction{}, fmt.Errorf("failed to query charge: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) Transactions(ctx context.Context, accountID string, limit, offset int) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, kind, amount, balance, status, event_id, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Kind, &t.Amount, &t.Balance, &t.Status, &t.EventID, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
