package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/banksec/backend/internal/models"
)

// MemoryStore keeps all state in process. Every read returns a copy so
// callers never hold pointers into the store.
type MemoryStore struct {
	mu        sync.RWMutex
	accounts  map[string]*models.Account
	loans     map[string]*models.Loan
	transfers map[string]*models.Transfer
	entries   []models.AuditEntry
	byKey     map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[string]*models.Account),
		loans:     make(map[string]*models.Loan),
		transfers: make(map[string]*models.Transfer),
		byKey:     make(map[string]int),
	}
}

func (s *MemoryStore) CreateAccount(ctx context.Context, a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[a.ID]; ok {
		return models.ErrDuplicateAccount
	}
	cp := *a
	if cp.Version == 0 {
		cp.Version = 1
	}
	s.accounts[a.ID] = &cp
	return nil
}

func (s *MemoryStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) ListAccounts(ctx context.Context) ([]models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateIdentity(ctx context.Context, id string, rec models.IdentityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return models.ErrAccountNotFound
	}
	a.Identity = rec
	a.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Commit(ctx context.Context, c Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate everything before touching state.
	for _, b := range c.Balances {
		a, ok := s.accounts[b.AccountID]
		if !ok {
			return models.ErrAccountNotFound
		}
		if a.Version != b.Version {
			return fmt.Errorf("optimistic lock failed for account %s", b.AccountID)
		}
		if b.Balance < 0 {
			return models.ErrInsufficientFunds
		}
	}
	for _, f := range c.Frozen {
		if _, ok := s.accounts[f.AccountID]; !ok {
			return models.ErrAccountNotFound
		}
	}
	if c.Entry.IdempotencyKey != "" {
		if _, ok := s.byKey[c.Entry.IdempotencyKey]; ok {
			return fmt.Errorf("duplicate idempotency key %s", c.Entry.IdempotencyKey)
		}
	}

	now := time.Now()
	for _, b := range c.Balances {
		a := s.accounts[b.AccountID]
		a.Balance = b.Balance
		a.Version++
		a.UpdatedAt = now
	}
	for _, f := range c.Frozen {
		a := s.accounts[f.AccountID]
		a.Frozen = f.Frozen
		a.Version++
		a.UpdatedAt = now
	}
	if c.Loan != nil {
		cp := copyLoan(c.Loan)
		s.loans[cp.ID] = cp
	}

	s.entries = append(s.entries, c.Entry)
	if c.Entry.IdempotencyKey != "" {
		s.byKey[c.Entry.IdempotencyKey] = len(s.entries) - 1
	}
	return nil
}

func (s *MemoryStore) EntryByKey(ctx context.Context, key string) (*models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byKey[key]
	if !ok {
		return nil, ErrNoEntry
	}
	e := s.entries[idx]
	return &e, nil
}

func (s *MemoryStore) AuditPage(ctx context.Context, f AuditFilter) ([]models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.AuditEntry
	for _, e := range s.entries {
		if f.AccountID != "" && !e.Involves(f.AccountID) {
			continue
		}
		if f.Kind != "" && e.Kind != f.Kind {
			continue
		}
		if f.BeforeSeq != 0 && e.Sequence >= f.BeforeSeq {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence > out[j].Sequence })

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) SaveLoan(ctx context.Context, l *models.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[l.AccountID]; !ok {
		return models.ErrAccountNotFound
	}
	s.loans[l.ID] = copyLoan(l)
	return nil
}

func (s *MemoryStore) GetLoan(ctx context.Context, id string) (*models.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.loans[id]
	if !ok {
		return nil, models.ErrLoanNotFound
	}
	return copyLoan(l), nil
}

func (s *MemoryStore) ListLoans(ctx context.Context, accountID string) ([]models.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Loan
	for _, l := range s.loans {
		if l.AccountID == accountID {
			out = append(out, *copyLoan(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) LoansByStatus(ctx context.Context, status models.LoanStatus) ([]models.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Loan
	for _, l := range s.loans {
		if l.Status == status {
			out = append(out, *copyLoan(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) SaveTransfer(ctx context.Context, t *models.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *t
	s.transfers[t.ID] = &cp
	return nil
}

func (s *MemoryStore) GetTransfer(ctx context.Context, id string) (*models.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.transfers[id]
	if !ok {
		return nil, models.ErrTransferNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) ListTransfers(ctx context.Context, accountID string, limit int) ([]models.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Transfer
	for _, t := range s.transfers {
		if t.From == accountID || t.To == accountID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyLoan(l *models.Loan) *models.Loan {
	cp := *l
	if l.Collateral != nil {
		c := *l.Collateral
		cp.Collateral = &c
	}
	if l.NextPaymentDue != nil {
		t := *l.NextPaymentDue
		cp.NextPaymentDue = &t
	}
	if l.LastAccrualDue != nil {
		t := *l.LastAccrualDue
		cp.LastAccrualDue = &t
	}
	return &cp
}
