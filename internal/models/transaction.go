package models

import (
	"time"
)

type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferCompleted TransferStatus = "completed"
	TransferRejected  TransferStatus = "rejected"
	TransferFailed    TransferStatus = "failed"
)

// Transfer represents a peer-to-peer payment request and its outcome
type Transfer struct {
	ID               string         `json:"id" db:"id"`
	From             string         `json:"from" db:"from_account"`
	To               string         `json:"to" db:"to_account"`
	Amount           int64          `json:"amount" db:"amount"`
	Description      string         `json:"description,omitempty" db:"description"`
	IdentityVerified bool           `json:"identityVerified" db:"identity_verified"`
	RiskVerdict      string         `json:"riskVerdict,omitempty" db:"risk_verdict"`
	RiskReason       string         `json:"riskReason,omitempty" db:"risk_reason"`
	Status           TransferStatus `json:"status" db:"status"`
	FailureReason    string         `json:"failureReason,omitempty" db:"failure_reason"`
	SettlementRef    string         `json:"settlementRef,omitempty" db:"settlement_ref"`
	Sequence         uint64         `json:"sequence,omitempty" db:"sequence"`
	IdempotencyKey   string         `json:"idempotencyKey" db:"idempotency_key"`
	CreatedAt        time.Time      `json:"createdAt" db:"created_at"`
	CompletedAt      *time.Time     `json:"completedAt,omitempty" db:"completed_at"`
}

// RiskVerdict is the answer of the risk-scoring collaborator.
type RiskVerdict struct {
	Verdict string `json:"verdict"`
	Reason  string `json:"reason,omitempty"`
}

const (
	VerdictOK    = "OK"
	VerdictFraud = "FRAUD"
)

func (v RiskVerdict) Approved() bool {
	return v.Verdict == VerdictOK
}

// IdentityProof is a fresh proof-of-presence produced by the identity-capture collaborator.
type IdentityProof struct {
	Verified     bool      `json:"verified"`
	Method       string    `json:"method,omitempty"`
	Confidence   float64   `json:"confidence"`
	SessionToken string    `json:"sessionToken,omitempty"`
	CapturedAt   time.Time `json:"capturedAt"`
}
