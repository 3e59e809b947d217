package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banksec/backend/internal/models"
)

// TestBorrowRepayTransfer walks a customer through a full loan cycle
// and a blocked high-value transfer.
func TestBorrowRepayTransfer(t *testing.T) {
	b := newTestBank(t)
	b.open(t, "alice", 100)
	b.open(t, "bob", 0)
	ctx := context.Background()

	loan, err := b.loans.Apply(ctx, LoanApplication{Account: "alice", Amount: 50, TermMonths: 12})
	require.NoError(t, err)
	assert.Equal(t, int64(150), b.balance(t, "alice"))

	repaid, err := b.loans.MakePayment(ctx, LoanPayment{LoanID: loan.ID, Account: "alice", Amount: 50, Proof: b.proof(t, "alice")})
	require.NoError(t, err)
	assert.Equal(t, models.LoanCompleted, repaid.Status)
	assert.Equal(t, int64(100), b.balance(t, "alice"))

	_, err = b.transfers.Transfer(ctx, TransferRequest{From: "alice", To: "bob", Amount: 30, Proof: b.proof(t, "alice")})
	require.NoError(t, err)
	assert.Equal(t, int64(70), b.balance(t, "alice"))
	assert.Equal(t, int64(30), b.balance(t, "bob"))

	record, err := b.transfers.Transfer(ctx, TransferRequest{From: "alice", To: "bob", Amount: 1000, Proof: b.proof(t, "alice")})
	assert.ErrorIs(t, err, models.ErrRiskRejected)
	assert.Equal(t, models.VerdictFraud, record.RiskVerdict)
	assert.Equal(t, "amount exceeds threshold", record.RiskReason)
	assert.Equal(t, int64(70), b.balance(t, "alice"))
	assert.Equal(t, int64(30), b.balance(t, "bob"))

	entries, err := b.trail.Collect(ctx, AuditQuery{Account: "alice"})
	require.NoError(t, err)
	kinds := make([]models.AuditKind, 0, len(entries))
	for _, e := range entries {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []models.AuditKind{
		models.KindTransfer,
		models.KindLoanPayment,
		models.KindLoanDisbursement,
		models.KindDeposit,
	}, kinds)
}
