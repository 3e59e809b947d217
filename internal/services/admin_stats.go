package services

import (
	"context"

	"github.com/banksec/backend/internal/models"
)

// BankStats is the aggregate view of the admin dashboard. Admin accounts
// are left out of every figure.
type BankStats struct {
	TotalCustomers        int   `json:"totalCustomers"`
	TotalDeposits         int64 `json:"totalDeposits"`
	TotalOutstandingLoans int64 `json:"totalOutstandingLoans"`
	ActiveLoanCount       int   `json:"activeLoanCount"`
	FrozenAccounts        int   `json:"frozenAccounts"`
}

// Stats sums customer balances and the payoff of active loans.
func (s *DirectoryService) Stats(ctx context.Context) (BankStats, error) {
	var stats BankStats

	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return stats, err
	}
	customers := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		if a.IsAdmin() {
			continue
		}
		customers[a.ID] = true
		stats.TotalCustomers++
		stats.TotalDeposits += a.Balance
		if a.Frozen {
			stats.FrozenAccounts++
		}
	}

	active, err := s.store.LoansByStatus(ctx, models.LoanActive)
	if err != nil {
		return stats, err
	}
	for _, l := range active {
		if !customers[l.AccountID] {
			continue
		}
		stats.ActiveLoanCount++
		stats.TotalOutstandingLoans += l.Payoff()
	}
	return stats, nil
}
