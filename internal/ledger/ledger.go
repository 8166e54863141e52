package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/eventpay/backend/internal/models"
	"github.com/google/uuid"
)

const (
	// maxAttempts bounds the optimistic-concurrency retry loop. Contention on
	// a single account is expected to be brief, so no backoff between tries.
	maxAttempts = 5

	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

// Store is the persistence collaborator. Apply must persist the account,
// append the transaction and (optionally) mark a prior charge reversed as a
// single atomic unit, failing with ErrVersionConflict when expectedVersion no
// longer matches the stored account. A transaction with an empty ID means
// there is nothing to append (account-only updates such as closing).
type Store interface {
	Account(ctx context.Context, id string) (models.Account, error)
	CreateAccount(ctx context.Context, acc models.Account) error
	Apply(ctx context.Context, acc models.Account, expectedVersion int64, txn models.Transaction, reverseID string) error
	ActiveEventCharge(ctx context.Context, accountID, eventID string) (models.Transaction, error)
	Transactions(ctx context.Context, accountID string, limit, offset int) ([]models.Transaction, error)
}

// Engine serializes balance-affecting operations per account through
// optimistic concurrency on Account.Version. Operations on different accounts
// never contend; conflicting writes to the same account are retried against a
// freshly loaded snapshot.
type Engine struct {
	store Store
	now   func() time.Time
	newID func() string
}

func NewEngine(store Store) *Engine {
	return &Engine{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// OpenAccount creates a new account with a zero balance.
func (e *Engine) OpenAccount(ctx context.Context, id string) (models.Account, error) {
	if id == "" {
		id = e.newID()
	}
	acc := models.Account{
		ID:        id,
		Balance:   0,
		Version:   1,
		Status:    models.AccountOpen,
		CreatedAt: e.now(),
		UpdatedAt: e.now(),
	}
	if err := e.store.CreateAccount(ctx, acc); err != nil {
		if errors.Is(err, ErrAccountExists) {
			return models.Account{}, err
		}
		return models.Account{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	log.Printf("[LEDGER] Opened account %s", acc.ID)
	return acc, nil
}

// Deposit credits amount to the account and appends a deposit transaction.
func (e *Engine) Deposit(ctx context.Context, accountID string, amount int64) (models.Transaction, error) {
	if amount <= 0 {
		return models.Transaction{}, ErrInvalidAmount
	}
	return e.mutate(ctx, accountID, func(acc models.Account) (models.Transaction, string, error) {
		return models.Transaction{
			ID:        e.newID(),
			AccountID: acc.ID,
			Kind:      models.KindDeposit,
			Amount:    amount,
			Balance:   acc.Balance + amount,
			Status:    models.TxnCompleted,
			CreatedAt: e.now(),
		}, "", nil
	})
}

// Withdraw debits amount from the account, failing with ErrInsufficientFunds
// if the balance would go negative.
func (e *Engine) Withdraw(ctx context.Context, accountID string, amount int64) (models.Transaction, error) {
	if amount <= 0 {
		return models.Transaction{}, ErrInvalidAmount
	}
	return e.mutate(ctx, accountID, func(acc models.Account) (models.Transaction, string, error) {
		if acc.Balance < amount {
			return models.Transaction{}, "", ErrInsufficientFunds
		}
		return models.Transaction{
			ID:        e.newID(),
			AccountID: acc.ID,
			Kind:      models.KindWithdrawal,
			Amount:    -amount,
			Balance:   acc.Balance - amount,
			Status:    models.TxnCompleted,
			CreatedAt: e.now(),
		}, "", nil
	})
}

// ChargeForEvent debits the event fee once per (account, event) pair. The
// operation is idempotent: if an active charge already exists for the pair,
// the existing transaction is returned and nothing is deducted again.
func (e *Engine) ChargeForEvent(ctx context.Context, accountID, eventID string, amount int64) (models.Transaction, error) {
	if amount <= 0 {
		return models.Transaction{}, ErrInvalidAmount
	}
	if eventID == "" {
		return models.Transaction{}, fmt.Errorf("event id is required")
	}
	return e.mutate(ctx, accountID, func(acc models.Account) (models.Transaction, string, error) {
		existing, err := e.store.ActiveEventCharge(ctx, accountID, eventID)
		if err == nil {
			return existing, "", errAlreadyApplied
		}
		if !errors.Is(err, ErrNoChargeFound) {
			return models.Transaction{}, "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		if acc.Balance < amount {
			return models.Transaction{}, "", ErrInsufficientFunds
		}
		return models.Transaction{
			ID:        e.newID(),
			AccountID: acc.ID,
			Kind:      models.KindEventCharge,
			Amount:    -amount,
			Balance:   acc.Balance - amount,
			Status:    models.TxnCompleted,
			EventID:   &eventID,
			CreatedAt: e.now(),
		}, "", nil
	})
}

// RefundEventCharge reverses the active charge for the pair: the original
// amount is credited back, an event_refund transaction is appended and the
// charge is marked reversed.
func (e *Engine) RefundEventCharge(ctx context.Context, accountID, eventID string) (models.Transaction, error) {
	return e.mutate(ctx, accountID, func(acc models.Account) (models.Transaction, string, error) {
		charge, err := e.store.ActiveEventCharge(ctx, accountID, eventID)
		if errors.Is(err, ErrNoChargeFound) {
			return models.Transaction{}, "", ErrNoChargeFound
		}
		if err != nil {
			return models.Transaction{}, "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		refund := -charge.Amount // charge amounts are negative
		return models.Transaction{
			ID:        e.newID(),
			AccountID: acc.ID,
			Kind:      models.KindEventRefund,
			Amount:    refund,
			Balance:   acc.Balance + refund,
			Status:    models.TxnCompleted,
			EventID:   &eventID,
			CreatedAt: e.now(),
		}, charge.ID, nil
	})
}

// EventCharge returns the active charge for the (account, event) pair with
// no side effects. Callers use it to tell "already charged" apart from a
// fresh charge before invoking ChargeForEvent.
func (e *Engine) EventCharge(ctx context.Context, accountID, eventID string) (models.Transaction, error) {
	txn, err := e.store.ActiveEventCharge(ctx, accountID, eventID)
	if err != nil {
		if errors.Is(err, ErrNoChargeFound) {
			return models.Transaction{}, err
		}
		return models.Transaction{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return txn, nil
}

// Balance returns the current balance with no side effects.
func (e *Engine) Balance(ctx context.Context, accountID string) (int64, error) {
	acc, err := e.store.Account(ctx, accountID)
	if err != nil {
		return 0, e.storeErr(err)
	}
	return acc.Balance, nil
}

// History returns a page of the account's transactions in descending
// (created_at, id) order. The read is stable: repeated calls with the same
// page return the same records while no new transactions are appended.
func (e *Engine) History(ctx context.Context, accountID string, limit, offset int) ([]models.Transaction, error) {
	if _, err := e.store.Account(ctx, accountID); err != nil {
		return nil, e.storeErr(err)
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	txns, err := e.store.Transactions(ctx, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return txns, nil
}

// CloseAccount freezes the account. The balance must already be zero;
// accounts are never physically deleted.
func (e *Engine) CloseAccount(ctx context.Context, accountID string) error {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		acc, err := e.store.Account(ctx, accountID)
		if err != nil {
			return e.storeErr(err)
		}
		if !acc.Open() {
			return ErrAccountClosed
		}
		if acc.Balance != 0 {
			return ErrAccountNotClosable
		}
		expected := acc.Version
		acc.Status = models.AccountClosed
		acc.Version++
		acc.UpdatedAt = e.now()
		err = e.store.Apply(ctx, acc, expected, models.Transaction{}, "")
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		log.Printf("[LEDGER] Closed account %s", accountID)
		return nil
	}
	return fmt.Errorf("%w: close conflict retries exhausted", ErrStorageUnavailable)
}

// errAlreadyApplied short-circuits the mutate loop when an idempotent
// operation finds its effect already recorded.
var errAlreadyApplied = errors.New("operation already applied")

// mutate runs one atomic read-validate-write cycle, retrying on version
// conflicts. build receives the current account snapshot and returns the
// transaction to append plus, optionally, the id of a charge to mark
// reversed. Validation errors abort with no state change.
func (e *Engine) mutate(ctx context.Context, accountID string, build func(models.Account) (models.Transaction, string, error)) (models.Transaction, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		acc, err := e.store.Account(ctx, accountID)
		if err != nil {
			return models.Transaction{}, e.storeErr(err)
		}
		if !acc.Open() {
			return models.Transaction{}, ErrAccountClosed
		}

		txn, reverseID, err := build(acc)
		if errors.Is(err, errAlreadyApplied) {
			return txn, nil
		}
		if err != nil {
			return models.Transaction{}, err
		}

		expected := acc.Version
		acc.Balance = txn.Balance
		acc.Version++
		acc.UpdatedAt = txn.CreatedAt

		err = e.store.Apply(ctx, acc, expected, txn, reverseID)
		if errors.Is(err, ErrVersionConflict) {
			log.Printf("[LEDGER] Version conflict on account %s (attempt %d), retrying", accountID, attempt+1)
			continue
		}
		if err != nil {
			return models.Transaction{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		return txn, nil
	}
	return models.Transaction{}, fmt.Errorf("%w: conflict retries exhausted for account %s", ErrStorageUnavailable, accountID)
}

func (e *Engine) storeErr(err error) error {
	if errors.Is(err, ErrAccountNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
