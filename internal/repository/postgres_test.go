package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/eventpay/backend/internal/ledger"
	"github.com/eventpay/backend/internal/models"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_Account(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	ctx := context.Background()

	t.Run("existing account", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery("SELECT id, balance, version, status, created_at, updated_at FROM accounts WHERE id = \\$1").
			WithArgs("acc-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "version", "status", "created_at", "updated_at"}).
				AddRow("acc-1", 5000, 3, "open", now, now))

		acc, err := store.Account(ctx, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, int64(5000), acc.Balance)
		assert.Equal(t, int64(3), acc.Version)
		assert.Equal(t, models.AccountOpen, acc.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing account", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, balance, version, status, created_at, updated_at FROM accounts WHERE id = \\$1").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "version", "status", "created_at", "updated_at"}))

		_, err := store.Account(ctx, "ghost")
		assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	})
}

func TestPostgresStore_Apply(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now()

	acc := models.Account{
		ID: "acc-1", Balance: 7000, Version: 4,
		Status: models.AccountOpen, UpdatedAt: now,
	}
	eventID := "event-1"
	txn := models.Transaction{
		ID: "txn-1", AccountID: "acc-1", Kind: models.KindEventCharge,
		Amount: -3000, Balance: 7000, Status: models.TxnCompleted,
		EventID: &eventID, CreatedAt: now,
	}

	t.Run("successful apply", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE accounts SET balance = \\$1, version = \\$2, status = \\$3, updated_at = \\$4 WHERE id = \\$5 AND version = \\$6").
			WithArgs(acc.Balance, acc.Version, string(acc.Status), sqlmock.AnyArg(), acc.ID, int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO transactions").
			WithArgs(txn.ID, txn.AccountID, string(txn.Kind), txn.Amount, txn.Balance, string(txn.Status), txn.EventID, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err := store.Apply(ctx, acc, 3, txn, "")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale version", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE accounts SET balance = \\$1, version = \\$2, status = \\$3, updated_at = \\$4 WHERE id = \\$5 AND version = \\$6").
			WithArgs(acc.Balance, acc.Version, string(acc.Status), sqlmock.AnyArg(), acc.ID, int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 0)) // no rows matched
		mock.ExpectRollback()

		err := store.Apply(ctx, acc, 3, txn, "")
		assert.ErrorIs(t, err, ledger.ErrVersionConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate active charge maps to conflict", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE accounts SET balance = \\$1, version = \\$2, status = \\$3, updated_at = \\$4 WHERE id = \\$5 AND version = \\$6").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO transactions").
			WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		err := store.Apply(ctx, acc, 3, txn, "")
		assert.ErrorIs(t, err, ledger.ErrVersionConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("refund marks original charge reversed", func(t *testing.T) {
		refund := txn
		refund.ID = "txn-2"
		refund.Kind = models.KindEventRefund
		refund.Amount = 3000

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE accounts SET balance = \\$1, version = \\$2, status = \\$3, updated_at = \\$4 WHERE id = \\$5 AND version = \\$6").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE transactions SET status = \\$1 WHERE id = \\$2 AND status = \\$3").
			WithArgs(string(models.TxnReversed), "txn-1", string(models.TxnCompleted)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO transactions").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err := store.Apply(ctx, acc, 3, refund, "txn-1")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("racing refund already reversed the charge", func(t *testing.T) {
		refund := txn
		refund.ID = "txn-3"

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE accounts SET balance = \\$1, version = \\$2, status = \\$3, updated_at = \\$4 WHERE id = \\$5 AND version = \\$6").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE transactions SET status = \\$1 WHERE id = \\$2 AND status = \\$3").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := store.Apply(ctx, acc, 3, refund, "txn-1")
		assert.ErrorIs(t, err, ledger.ErrVersionConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_ActiveEventCharge(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	ctx := context.Background()

	t.Run("active charge found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, account_id, kind, amount, balance, status, event_id, created_at FROM transactions").
			WithArgs("acc-1", "event-1", string(models.KindEventCharge), string(models.TxnCompleted)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "kind", "amount", "balance", "status", "event_id", "created_at"}).
				AddRow("txn-1", "acc-1", "event_charge", -3000, 7000, "completed", "event-1", time.Now()))

		charge, err := store.ActiveEventCharge(ctx, "acc-1", "event-1")
		require.NoError(t, err)
		assert.Equal(t, "txn-1", charge.ID)
		assert.Equal(t, int64(-3000), charge.Amount)
	})

	t.Run("no active charge", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, account_id, kind, amount, balance, status, event_id, created_at FROM transactions").
			WithArgs("acc-1", "event-2", string(models.KindEventCharge), string(models.TxnCompleted)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "kind", "amount", "balance", "status", "event_id", "created_at"}))

		_, err := store.ActiveEventCharge(ctx, "acc-1", "event-2")
		assert.ErrorIs(t, err, ledger.ErrNoChargeFound)
	})
}

func TestPostgresStore_Transactions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery("SELECT id, account_id, kind, amount, balance, status, event_id, created_at FROM transactions WHERE account_id = \\$1 ORDER BY created_at DESC, id DESC LIMIT \\$2 OFFSET \\$3").
		WithArgs("acc-1", 2, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "kind", "amount", "balance", "status", "event_id", "created_at"}).
			AddRow("txn-2", "acc-1", "withdrawal", -500, 1500, "completed", nil, now).
			AddRow("txn-1", "acc-1", "deposit", 2000, 2000, "completed", nil, now.Add(-time.Minute)))

	txns, err := store.Transactions(ctx, "acc-1", 2, 0)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "txn-2", txns[0].ID)
	assert.Nil(t, txns[0].EventID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
