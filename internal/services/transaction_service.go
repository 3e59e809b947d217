package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/banksec/backend/internal/models"
	"github.com/banksec/backend/internal/store"
)

type TransferRequest struct {
	From           string                `json:"-"`
	To             string                `json:"to" validate:"required,min=3,max=64"`
	Amount         int64                 `json:"amount" validate:"required,gt=0"`
	Description    string                `json:"description,omitempty" validate:"max=140"`
	IdempotencyKey string                `json:"idempotencyKey,omitempty" validate:"omitempty,max=128"`
	Proof          *models.IdentityProof `json:"-"`
}

// TransactionService runs a peer-to-peer transfer through the gate and the
// ledger and keeps a record of every attempt, including rejected ones.
type TransactionService struct {
	store     store.Store
	gate      *AuthorizationGate
	ledger    *LedgerService
	validator *ValidationHelper
	now       func() time.Time
}

func NewTransactionService(st store.Store, gate *AuthorizationGate, ledger *LedgerService) *TransactionService {
	return &TransactionService{
		store:     st,
		gate:      gate,
		ledger:    ledger,
		validator: NewValidationHelper(),
		now:       time.Now,
	}
}

// Transfer returns the stored record alongside any error so callers can
// report the verdict of a rejected attempt.
func (ts *TransactionService) Transfer(ctx context.Context, req TransferRequest) (*models.Transfer, error) {
	req.From = models.NormalizeAccountID(req.From)
	req.To = models.NormalizeAccountID(req.To)

	if req.Amount <= 0 {
		return nil, models.ErrInvalidAmount
	}
	if req.From == req.To {
		return nil, models.ErrSelfTransfer
	}
	if err := ts.validator.ValidateStruct(&req); err != nil {
		return nil, err
	}

	ledgerKey := uuid.New().String()
	if req.IdempotencyKey != "" {
		ledgerKey = fmt.Sprintf("transfer:%s:%s", req.From, req.IdempotencyKey)
		if prior, err := ts.replay(ctx, req, ledgerKey); err != nil || prior != nil {
			return prior, err
		}
	}

	record := &models.Transfer{
		ID:             uuid.New().String(),
		From:           req.From,
		To:             req.To,
		Amount:         req.Amount,
		Description:    req.Description,
		IdempotencyKey: req.IdempotencyKey,
		Status:         models.TransferPending,
		CreatedAt:      ts.now().UTC(),
	}

	decision, err := ts.gate.Authorize(ctx, AuthorizationRequest{
		Action:       ActionTransfer,
		Account:      req.From,
		Counterparty: req.To,
		Amount:       req.Amount,
		Proof:        req.Proof,
	})
	record.IdentityVerified = decision.IdentityVerified
	record.RiskVerdict = decision.Verdict.Verdict
	if err != nil {
		record.Status = models.TransferRejected
		record.FailureReason = err.Error()
		if reason, ok := models.RiskReason(err); ok {
			record.RiskVerdict = models.VerdictFraud
			record.RiskReason = reason
		}
		ts.save(ctx, record)
		return record, err
	}

	entry, err := ts.ledger.Post(ctx, Posting{
		Kind:         models.KindTransfer,
		Account:      req.From,
		Counterparty: req.To,
		Amount:       req.Amount,
		Key:          ledgerKey,
	})
	if err != nil {
		record.Status = models.TransferFailed
		record.FailureReason = err.Error()
		ts.save(ctx, record)
		return record, err
	}

	completed := entry.CreatedAt
	record.Status = models.TransferCompleted
	record.SettlementRef = entry.SettlementRef
	record.Sequence = entry.Sequence
	record.CompletedAt = &completed
	ts.save(ctx, record)

	log.Printf("[TRANSFER] %s %s -> %s amount=%d ref=%s", record.ID, record.From, record.To, record.Amount, record.SettlementRef)
	return record, nil
}

// replay returns the completed record for a key that already committed.
func (ts *TransactionService) replay(ctx context.Context, req TransferRequest, ledgerKey string) (*models.Transfer, error) {
	entry, err := ts.ledger.Replayed(ctx, ledgerKey)
	if err != nil || entry == nil {
		return nil, err
	}

	history, err := ts.store.ListTransfers(ctx, req.From, 0)
	if err != nil {
		return nil, err
	}
	for i := range history {
		t := history[i]
		if t.IdempotencyKey == req.IdempotencyKey && t.Status == models.TransferCompleted {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("transfer for key %s committed at %s but its record is missing", req.IdempotencyKey, entry.SettlementRef)
}

func (ts *TransactionService) save(ctx context.Context, t *models.Transfer) {
	if err := ts.store.SaveTransfer(ctx, t); err != nil {
		log.Printf("[TRANSFER] failed to store record %s (%s): %v", t.ID, t.Status, err)
	}
}

// Get returns a transfer visible to viewer: a participant or an admin.
func (ts *TransactionService) Get(ctx context.Context, id, viewer string) (*models.Transfer, error) {
	t, err := ts.store.GetTransfer(ctx, id)
	if err != nil {
		return nil, err
	}

	viewer = models.NormalizeAccountID(viewer)
	if t.From == viewer || t.To == viewer {
		return t, nil
	}
	account, err := ts.store.GetAccount(ctx, viewer)
	if err != nil && !errors.Is(err, models.ErrAccountNotFound) {
		return nil, err
	}
	if account != nil && account.IsAdmin() {
		return t, nil
	}
	return nil, models.ErrTransferNotFound
}

func (ts *TransactionService) ListForAccount(ctx context.Context, account string, limit int) ([]models.Transfer, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return ts.store.ListTransfers(ctx, models.NormalizeAccountID(account), limit)
}
