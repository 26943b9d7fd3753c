package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/pennywise/backend/internal/models"
)

// MemoryStore is a Store without multi-write atomicity. It follows the
// fallback strategy for such stores: exclusive per-record leases acquired for
// the duration of the scope, plus a compensation journal that undoes every
// applied write when the scope fails. Used by tests and as a reference for
// the locking protocol; production runs on PostgresStore.
//
// Callers must not lock the same record twice within one scope. The engine
// guarantees this by de-duplicating the affected account set.
type MemoryStore struct {
	mu       sync.Mutex
	leases   map[uuid.UUID]*sync.Mutex
	accounts map[uuid.UUID]models.Account
	txs      map[uuid.UUID]models.Transaction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		leases:   make(map[uuid.UUID]*sync.Mutex),
		accounts: make(map[uuid.UUID]models.Account),
		txs:      make(map[uuid.UUID]models.Transaction),
	}
}

// SeedAccount installs an account, for test setup.
func (m *MemoryStore) SeedAccount(a models.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = a
}

// AccountBalance reads a balance outside any scope, for assertions.
func (m *MemoryStore) AccountBalance(id uuid.UUID) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[id].Balance
}

// TransactionCount reports the number of stored transactions.
func (m *MemoryStore) TransactionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.txs)
}

// Transactions snapshots all stored transactions, for assertions.
func (m *MemoryStore) Transactions() []models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Transaction, 0, len(m.txs))
	for _, t := range m.txs {
		out = append(out, t)
	}
	return out
}

func (m *MemoryStore) WithinScope(ctx context.Context, fn func(Scope) error) error {
	sc := &memScope{store: m}
	defer sc.releaseLeases()

	if err := fn(sc); err != nil {
		sc.compensate()
		return err
	}
	return nil
}

func (m *MemoryStore) leaseFor(id uuid.UUID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lease, ok := m.leases[id]
	if !ok {
		lease = &sync.Mutex{}
		m.leases[id] = lease
	}
	return lease
}

type memScope struct {
	store *MemoryStore
	held  []*sync.Mutex
	undo  []func()
}

func (s *memScope) acquire(id uuid.UUID) {
	lease := s.store.leaseFor(id)
	lease.Lock()
	s.held = append(s.held, lease)
}

func (s *memScope) releaseLeases() {
	for i := len(s.held) - 1; i >= 0; i-- {
		s.held[i].Unlock()
	}
	s.held = nil
}

// compensate undoes applied writes in reverse order. In-memory compensation
// cannot fail, but the recover guard keeps the invariant-violation signal
// alive should an undo step ever panic.
func (s *memScope) compensate() {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"event": "balance_compensation_failed",
				"cause": r,
			}).Error("ledger compensation failed; manual reconciliation required")
		}
	}()
	for i := len(s.undo) - 1; i >= 0; i-- {
		s.undo[i]()
	}
	s.undo = nil
}

func (s *memScope) AccountForUpdate(_ context.Context, accountID, userID uuid.UUID) (*models.Account, error) {
	s.acquire(accountID)

	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	account, ok := s.store.accounts[accountID]
	if !ok || account.UserID != userID {
		return nil, &NotFoundError{Resource: "account", ID: accountID}
	}
	copied := account
	return &copied, nil
}

func (s *memScope) Transaction(_ context.Context, txID, userID uuid.UUID) (*models.Transaction, error) {
	s.acquire(txID)

	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	t, ok := s.store.txs[txID]
	if !ok || t.UserID != userID {
		return nil, &NotFoundError{Resource: "transaction", ID: txID}
	}
	copied := t
	return &copied, nil
}

func (s *memScope) IncrementBalance(_ context.Context, accountID, userID uuid.UUID, delta decimal.Decimal) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	account, ok := s.store.accounts[accountID]
	if !ok || account.UserID != userID {
		return &NotFoundError{Resource: "account", ID: accountID}
	}
	account.Balance = account.Balance.Add(delta)
	s.store.accounts[accountID] = account

	s.undo = append(s.undo, func() {
		s.store.mu.Lock()
		defer s.store.mu.Unlock()
		reverted := s.store.accounts[accountID]
		reverted.Balance = reverted.Balance.Sub(delta)
		s.store.accounts[accountID] = reverted
	})
	return nil
}

func (s *memScope) InsertTransaction(_ context.Context, t *models.Transaction) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.txs[t.ID] = *t

	id := t.ID
	s.undo = append(s.undo, func() {
		s.store.mu.Lock()
		defer s.store.mu.Unlock()
		delete(s.store.txs, id)
	})
	return nil
}

func (s *memScope) UpdateTransaction(_ context.Context, t *models.Transaction) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	prev, ok := s.store.txs[t.ID]
	if !ok || prev.UserID != t.UserID {
		return &NotFoundError{Resource: "transaction", ID: t.ID}
	}
	if prev.Version != t.Version {
		return &ConflictError{Resource: "transaction", ID: t.ID}
	}
	next := *t
	next.Version = prev.Version + 1
	s.store.txs[t.ID] = next

	s.undo = append(s.undo, func() {
		s.store.mu.Lock()
		defer s.store.mu.Unlock()
		s.store.txs[t.ID] = prev
	})
	return nil
}

func (s *memScope) DeleteTransaction(_ context.Context, txID, userID uuid.UUID) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	prev, ok := s.store.txs[txID]
	if !ok || prev.UserID != userID {
		return &NotFoundError{Resource: "transaction", ID: txID}
	}
	delete(s.store.txs, txID)

	s.undo = append(s.undo, func() {
		s.store.mu.Lock()
		defer s.store.mu.Unlock()
		s.store.txs[txID] = prev
	})
	return nil
}
