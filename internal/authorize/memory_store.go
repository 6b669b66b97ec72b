package authorize

import (
	"context"
	"sync"

	"github.com/cardcore/authd/internal/pagination"
)

// maxPerAccount caps the audit history kept in memory per account.
const maxPerAccount = 1000

// MemoryStore is an in-memory decision audit store for demo/development mode.
type MemoryStore struct {
	mu        sync.RWMutex
	byAccount map[string][]*Result
}

// NewMemoryStore creates a new in-memory decision store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byAccount: make(map[string][]*Result)}
}

func (m *MemoryStore) Record(ctx context.Context, res *Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := res.Request.AccountID
	list := append(m.byAccount[id], res)
	if len(list) > maxPerAccount {
		list = list[len(list)-maxPerAccount:]
	}
	m.byAccount[id] = list
	return nil
}

func (m *MemoryStore) ListByAccount(ctx context.Context, accountID string, limit int, before *pagination.Cursor) ([]*Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.byAccount[accountID]
	if limit <= 0 {
		limit = len(list)
	}
	// Most recent first.
	out := make([]*Result, 0, limit)
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		res := list[i]
		if before != nil && !before.Before(res.DecidedAt, res.ID) {
			continue
		}
		out = append(out, res)
	}
	return out, nil
}
