package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/coupondeck/entitlement-ledger/internal/domain"
	"github.com/jackc/pgx/v5"
)

// MemoryStore is an in-process Store used for local development
// (DB_DRIVER=memory) and tests. A single mutex guards all records; ExecTx
// holds it for the whole callback, so everything composed inside one
// transaction is atomic with respect to every other store call. It returns
// pgx.ErrNoRows where the postgres store would, so callers need no
// driver-specific handling.
type MemoryStore struct {
	mu      sync.Mutex
	records []domain.Entitlement
}

func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

// memQuerier is the unsynchronized view handed to ExecTx callbacks while the
// store mutex is already held.
type memQuerier struct {
	s *MemoryStore
}

func (m *MemoryStore) ExecTx(ctx context.Context, fn func(Querier) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Restore the pre-transaction records on error so a failed callback
	// leaves no visible change, matching the pgx store's rollback.
	snapshot := make([]domain.Entitlement, len(m.records))
	copy(snapshot, m.records)

	if err := fn(memQuerier{s: m}); err != nil {
		m.records = snapshot
		return err
	}
	return nil
}

func (m *MemoryStore) AcquireKeyLock(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil
}

func (m *MemoryStore) ExistsByOrderKey(ctx context.Context, orderKey string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.existsByOrderKey(orderKey), nil
}

func (m *MemoryStore) ExistsByUserBetween(ctx context.Context, userID string, from, to time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.existsByUserBetween(userID, from, to), nil
}

func (m *MemoryStore) InsertEntitlement(ctx context.Context, arg InsertEntitlementParams) (domain.Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insert(arg), nil
}

func (m *MemoryStore) RedeemOldest(ctx context.Context, userID string) (domain.Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.redeemOldest(userID)
}

func (m *MemoryStore) SumBalance(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var balance int64
	for i := range m.records {
		if m.records[i].UserID == userID {
			balance += int64(m.records[i].Granted)
		}
	}
	return balance, nil
}

func (m *MemoryStore) ZeroOut(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var affected int64
	for i := range m.records {
		if m.records[i].UserID == userID && m.records[i].Granted > 0 {
			m.records[i].Granted = 0
			affected++
		}
	}
	return affected, nil
}

func (q memQuerier) AcquireKeyLock(ctx context.Context, key string) error {
	// ExecTx already holds the store mutex, which is stricter than any
	// per-key lock.
	return nil
}

func (q memQuerier) ExistsByOrderKey(ctx context.Context, orderKey string) (bool, error) {
	return q.s.existsByOrderKey(orderKey), nil
}

func (q memQuerier) ExistsByUserBetween(ctx context.Context, userID string, from, to time.Time) (bool, error) {
	return q.s.existsByUserBetween(userID, from, to), nil
}

func (q memQuerier) InsertEntitlement(ctx context.Context, arg InsertEntitlementParams) (domain.Entitlement, error) {
	return q.s.insert(arg), nil
}

func (q memQuerier) RedeemOldest(ctx context.Context, userID string) (domain.Entitlement, error) {
	return q.s.redeemOldest(userID)
}

func (m *MemoryStore) existsByOrderKey(orderKey string) bool {
	for i := range m.records {
		if m.records[i].OrderKey == orderKey {
			return true
		}
	}
	return false
}

func (m *MemoryStore) existsByUserBetween(userID string, from, to time.Time) bool {
	for i := range m.records {
		rec := &m.records[i]
		if rec.UserID != userID {
			continue
		}
		if !rec.IssuedAt.Before(from) && rec.IssuedAt.Before(to) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) insert(arg InsertEntitlementParams) domain.Entitlement {
	rec := domain.Entitlement{
		ID:         arg.ID,
		UserID:     arg.UserID,
		OrderKey:   arg.OrderKey,
		AmountPaid: arg.AmountPaid,
		Granted:    arg.Granted,
		IssuedAt:   arg.IssuedAt,
	}
	m.records = append(m.records, rec)
	return rec
}

func (m *MemoryStore) redeemOldest(userID string) (domain.Entitlement, error) {
	eligible := make([]int, 0, 4)
	for i := range m.records {
		if m.records[i].UserID == userID && m.records[i].Granted > 0 {
			eligible = append(eligible, i)
		}
	}
	if len(eligible) == 0 {
		return domain.Entitlement{}, pgx.ErrNoRows
	}

	// Oldest first, record ID as tie-break, same as the SQL ORDER BY.
	sort.Slice(eligible, func(a, b int) bool {
		ra, rb := &m.records[eligible[a]], &m.records[eligible[b]]
		if ra.IssuedAt.Equal(rb.IssuedAt) {
			return ra.ID < rb.ID
		}
		return ra.IssuedAt.Before(rb.IssuedAt)
	})

	rec := &m.records[eligible[0]]
	rec.Granted--
	return *rec, nil
}

var _ Store = (*MemoryStore)(nil)
var _ Querier = memQuerier{}
