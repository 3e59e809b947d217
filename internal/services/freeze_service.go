package services

import (
	"context"
	"log"

	"github.com/banksec/backend/internal/hsm"
	"github.com/banksec/backend/internal/models"
	"github.com/banksec/backend/internal/store"
)

// FreezeService holds the administrative overrides: freezing accounts
// and funding them regardless of their frozen flag.
type FreezeService struct {
	store  store.Store
	ledger *LedgerService
	audit  *hsm.AuditLogger
}

func NewFreezeService(st store.Store, ledger *LedgerService, audit *hsm.AuditLogger) *FreezeService {
	return &FreezeService{store: st, ledger: ledger, audit: audit}
}

func (s *FreezeService) Freeze(ctx context.Context, actor, account string) error {
	return s.setFrozen(ctx, actor, account, true)
}

func (s *FreezeService) Unfreeze(ctx context.Context, actor, account string) error {
	return s.setFrozen(ctx, actor, account, false)
}

func (s *FreezeService) setFrozen(ctx context.Context, actor, account string, frozen bool) error {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return err
	}

	entry, err := s.ledger.SetFrozen(ctx, account, frozen)
	if err != nil {
		return err
	}
	if entry == nil {
		log.Printf("[FREEZE] %s already frozen=%t", models.NormalizeAccountID(account), frozen)
		return nil
	}

	s.audit.LogFreeze(models.NormalizeAccountID(actor), entry.AccountID, frozen, entry.SettlementRef)
	return nil
}

// Fund credits an account on an administrator's behalf.
func (s *FreezeService) Fund(ctx context.Context, actor, account string, amount int64) (*models.AuditEntry, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}

	entry, err := s.ledger.AdminCredit(ctx, account, amount)
	if err != nil {
		return nil, err
	}

	s.audit.LogAdminCredit(models.NormalizeAccountID(actor), entry.AccountID, amount, entry.SettlementRef)
	return entry, nil
}

func (s *FreezeService) requireAdmin(ctx context.Context, actor string) error {
	a, err := s.store.GetAccount(ctx, models.NormalizeAccountID(actor))
	if err != nil {
		return models.ErrPermissionDenied
	}
	if !a.IsAdmin() {
		return models.ErrPermissionDenied
	}
	return nil
}
