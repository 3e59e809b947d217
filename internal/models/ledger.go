package models

import (
	"time"
)

type AuditKind string

const (
	KindDeposit          AuditKind = "deposit"
	KindWithdrawal       AuditKind = "withdrawal"
	KindTransfer         AuditKind = "transfer"
	KindLoanDisbursement AuditKind = "loan_disbursement"
	KindLoanPayment      AuditKind = "loan_payment"
	KindFreeze           AuditKind = "freeze"
	KindUnfreeze         AuditKind = "unfreeze"
)

func (k AuditKind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdrawal, KindTransfer, KindLoanDisbursement, KindLoanPayment, KindFreeze, KindUnfreeze:
		return true
	}
	return false
}

// AuditEntry is the immutable record of one committed ledger mutation.
// Entries are ordered by Sequence, which the settlement environment assigns.
type AuditEntry struct {
	ID             string    `json:"id" db:"id"`
	AccountID      string    `json:"account" db:"account_id"`
	Kind           AuditKind `json:"kind" db:"kind"`
	Amount         int64     `json:"amount" db:"amount"` // in minor units
	Counterparty   string    `json:"counterparty,omitempty" db:"counterparty"`
	LoanID         string    `json:"loanId,omitempty" db:"loan_id"`
	SettlementRef  string    `json:"settlementRef" db:"settlement_ref"`
	Sequence       uint64    `json:"sequence" db:"sequence"`
	IdempotencyKey string    `json:"-" db:"idempotency_key"`
	Signature      string    `json:"signature" db:"signature"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}

// Involves reports whether the entry belongs to the account's history.
func (e *AuditEntry) Involves(accountID string) bool {
	return e.AccountID == accountID || e.Counterparty == accountID
}
