package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/eventpay/backend/internal/models"
)

// MemoryStore is an in-process Store. A single mutex guards the maps; Apply
// performs the version compare-and-swap under it, so the optimistic-concurrency
// contract matches the Postgres store exactly.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]models.Account
	txns     map[string][]models.Transaction // by account id, append order
	seq      int64                           // tie-break for identical timestamps
	order    map[string]int64                // transaction id -> insert sequence
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]models.Account),
		txns:     make(map[string][]models.Transaction),
		order:    make(map[string]int64),
	}
}

func (m *MemoryStore) Account(ctx context.Context, id string) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[id]
	if !ok {
		return models.Account{}, ErrAccountNotFound
	}
	return acc, nil
}

func (m *MemoryStore) CreateAccount(ctx context.Context, acc models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[acc.ID]; ok {
		return ErrAccountExists
	}
	m.accounts[acc.ID] = acc
	return nil
}

func (m *MemoryStore) Apply(ctx context.Context, acc models.Account, expectedVersion int64, txn models.Transaction, reverseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.accounts[acc.ID]
	if !ok {
		return ErrAccountNotFound
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}

	if reverseID != "" {
		if !m.markReversed(acc.ID, reverseID) {
			return ErrVersionConflict
		}
	}

	m.accounts[acc.ID] = acc
	if txn.ID != "" {
		m.seq++
		m.order[txn.ID] = m.seq
		m.txns[acc.ID] = append(m.txns[acc.ID], txn)
	}
	return nil
}

func (m *MemoryStore) markReversed(accountID, txnID string) bool {
	list := m.txns[accountID]
	for i := range list {
		if list[i].ID == txnID && list[i].Status == models.TxnCompleted {
			list[i].Status = models.TxnReversed
			return true
		}
	}
	return false
}

func (m *MemoryStore) ActiveEventCharge(ctx context.Context, accountID, eventID string) (models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.txns[accountID] {
		if t.Kind == models.KindEventCharge && t.Status == models.TxnCompleted &&
			t.EventID != nil && *t.EventID == eventID {
			return t, nil
		}
	}
	return models.Transaction{}, ErrNoChargeFound
}

func (m *MemoryStore) Transactions(ctx context.Context, accountID string, limit, offset int) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]models.Transaction, len(m.txns[accountID]))
	copy(all, m.txns[accountID])
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return m.order[all[i].ID] > m.order[all[j].ID]
	})

	if offset >= len(all) {
		return []models.Transaction{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}
