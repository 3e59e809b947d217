// Package store holds committed account, loan, transfer and audit state.
// Implementations must apply a Commit atomically: either every balance,
// frozen flag, loan and audit entry in it becomes visible, or none does.
package store

import (
	"context"
	"errors"

	"github.com/banksec/backend/internal/models"
)

var ErrNoEntry = errors.New("audit entry not found")

type BalanceChange struct {
	AccountID string
	Balance   int64
	Version   int // version the change was computed from
}

type FrozenChange struct {
	AccountID string
	Frozen    bool
}

// Commit is one ledger mutation together with its audit entry.
type Commit struct {
	Balances []BalanceChange
	Frozen   []FrozenChange
	Loan     *models.Loan
	Entry    models.AuditEntry
}

// AuditFilter selects audit entries in descending sequence order.
type AuditFilter struct {
	AccountID string
	Kind      models.AuditKind
	BeforeSeq uint64 // 0 starts from the newest entry
	Limit     int
}

type Store interface {
	CreateAccount(ctx context.Context, a *models.Account) error
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	UpdateIdentity(ctx context.Context, id string, rec models.IdentityRecord) error

	Commit(ctx context.Context, c Commit) error
	EntryByKey(ctx context.Context, key string) (*models.AuditEntry, error)
	AuditPage(ctx context.Context, f AuditFilter) ([]models.AuditEntry, error)

	SaveLoan(ctx context.Context, l *models.Loan) error
	GetLoan(ctx context.Context, id string) (*models.Loan, error)
	ListLoans(ctx context.Context, accountID string) ([]models.Loan, error)
	LoansByStatus(ctx context.Context, status models.LoanStatus) ([]models.Loan, error)

	SaveTransfer(ctx context.Context, t *models.Transfer) error
	GetTransfer(ctx context.Context, id string) (*models.Transfer, error)
	ListTransfers(ctx context.Context, accountID string, limit int) ([]models.Transfer, error)
}
