package models

import (
	"time"
)

type LoanStatus string

const (
	LoanPending   LoanStatus = "pending"
	LoanActive    LoanStatus = "active"
	LoanCompleted LoanStatus = "completed"
	LoanDefaulted LoanStatus = "defaulted"
)

// Outstanding reports whether the loan blocks a new application.
func (s LoanStatus) Outstanding() bool {
	return s == LoanPending || s == LoanActive
}

// CanTransition enforces the forward-only lifecycle
// pending -> active -> {completed | defaulted}.
func (s LoanStatus) CanTransition(next LoanStatus) bool {
	switch s {
	case LoanPending:
		return next == LoanActive
	case LoanActive:
		return next == LoanCompleted || next == LoanDefaulted
	}
	return false
}

type Collateral struct {
	Type  string `json:"type" db:"collateral_type"`
	Value int64  `json:"value" db:"collateral_value"`
}

type Loan struct {
	ID                  string      `json:"id" db:"id"`
	AccountID           string      `json:"account" db:"account_id"`
	Principal           int64       `json:"principal" db:"principal"`
	TermMonths          int         `json:"termMonths" db:"term_months"`
	InterestRate        float64     `json:"interestRate" db:"interest_rate"` // annual, e.g. 0.085
	MonthlyPayment      int64       `json:"monthlyPayment" db:"monthly_payment"`
	RemainingBalance    int64       `json:"remainingBalance" db:"remaining_balance"`
	OutstandingInterest int64       `json:"outstandingInterest" db:"outstanding_interest"`
	Status              LoanStatus  `json:"status" db:"status"`
	NextPaymentDue      *time.Time  `json:"nextPaymentDue,omitempty" db:"next_payment_due"`
	LastAccrualDue      *time.Time  `json:"-" db:"last_accrual_due"`
	SettlementRef       string      `json:"settlementRef,omitempty" db:"settlement_ref"`
	Collateral          *Collateral `json:"collateral,omitempty"`
	CreatedAt           time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt           time.Time   `json:"updatedAt" db:"updated_at"`
}

// Payoff is the amount that settles the loan in full.
func (l *Loan) Payoff() int64 {
	return l.RemainingBalance + l.OutstandingInterest
}
