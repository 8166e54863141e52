package ledger

import (
	"context"

	"github.com/eventpay/backend/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Account(ctx context.Context, id string) (models.Account, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Account), args.Error(1)
}

func (m *MockStore) CreateAccount(ctx context.Context, acc models.Account) error {
	args := m.Called(ctx, acc)
	return args.Error(0)
}

func (m *MockStore) Apply(ctx context.Context, acc models.Account, expectedVersion int64, txn models.Transaction, reverseID string) error {
	args := m.Called(ctx, acc, expectedVersion, txn, reverseID)
	return args.Error(0)
}

func (m *MockStore) ActiveEventCharge(ctx context.Context, accountID, eventID string) (models.Transaction, error) {
	args := m.Called(ctx, accountID, eventID)
	return args.Get(0).(models.Transaction), args.Error(1)
}

func (m *MockStore) Transactions(ctx context.Context, accountID string, limit, offset int) ([]models.Transaction, error) {
	args := m.Called(ctx, accountID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Transaction), args.Error(1)
}
