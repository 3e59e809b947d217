package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/banksec/backend/internal/models"
	"github.com/banksec/backend/internal/settlement"
	"github.com/banksec/backend/internal/store"
)

// Submitter is the part of the settlement environment the ledger needs.
type Submitter interface {
	Submit(ctx context.Context, req settlement.Request) (settlement.Receipt, error)
}

// Posting describes one ledger mutation. Key makes it idempotent: a key
// that already committed returns the original entry unchanged.
type Posting struct {
	Kind         models.AuditKind
	Account      string
	Counterparty string
	Amount       int64
	Key          string
	LoanID       string
	Loan         *models.Loan // committed together with the entry
	Override     bool         // administrative credit ignores the frozen flag
}

var errNoChange = errors.New("state unchanged")

// LedgerService is the only writer of balances and frozen flags.
type LedgerService struct {
	store store.Store
	env   Submitter
	trail *AuditTrail
	locks *keyedMutex
	now   func() time.Time
}

func NewLedgerService(st store.Store, env Submitter, trail *AuditTrail) *LedgerService {
	return &LedgerService{
		store: st,
		env:   env,
		trail: trail,
		locks: newKeyedMutex(),
		now:   time.Now,
	}
}

func (s *LedgerService) Credit(ctx context.Context, account string, amount int64) (*models.AuditEntry, error) {
	return s.Post(ctx, Posting{Kind: models.KindDeposit, Account: account, Amount: amount})
}

// AdminCredit funds an account even while it is frozen.
func (s *LedgerService) AdminCredit(ctx context.Context, account string, amount int64) (*models.AuditEntry, error) {
	return s.Post(ctx, Posting{Kind: models.KindDeposit, Account: account, Amount: amount, Override: true})
}

func (s *LedgerService) Debit(ctx context.Context, account string, amount int64) (*models.AuditEntry, error) {
	return s.Post(ctx, Posting{Kind: models.KindWithdrawal, Account: account, Amount: amount})
}

func (s *LedgerService) Transfer(ctx context.Context, from, to string, amount int64) (*models.AuditEntry, error) {
	return s.Post(ctx, Posting{Kind: models.KindTransfer, Account: from, Counterparty: to, Amount: amount})
}

func (s *LedgerService) Balance(ctx context.Context, account string) (int64, error) {
	a, err := s.store.GetAccount(ctx, models.NormalizeAccountID(account))
	if err != nil {
		return 0, err
	}
	return a.Balance, nil
}

// SetFrozen changes the frozen flag. Setting the current state is a
// no-op that returns a nil entry.
func (s *LedgerService) SetFrozen(ctx context.Context, account string, frozen bool) (*models.AuditEntry, error) {
	kind := models.KindUnfreeze
	if frozen {
		kind = models.KindFreeze
	}
	entry, err := s.Post(ctx, Posting{Kind: kind, Account: account})
	if errors.Is(err, errNoChange) {
		return nil, nil
	}
	return entry, err
}

// Replayed returns the entry already committed under key, if any.
func (s *LedgerService) Replayed(ctx context.Context, key string) (*models.AuditEntry, error) {
	if key == "" {
		return nil, nil
	}
	e, err := s.store.EntryByKey(ctx, key)
	if errors.Is(err, store.ErrNoEntry) {
		return nil, nil
	}
	return e, err
}

// Post validates, settles and commits a mutation under the locks of every
// account it touches.
func (s *LedgerService) Post(ctx context.Context, p Posting) (*models.AuditEntry, error) {
	p.Account = models.NormalizeAccountID(p.Account)
	p.Counterparty = models.NormalizeAccountID(p.Counterparty)
	if err := validatePosting(p); err != nil {
		return nil, err
	}
	if p.Key == "" {
		p.Key = uuid.New().String()
	}

	unlock := s.locks.Lock(p.Account, p.Counterparty)
	defer unlock()

	if prior, err := s.Replayed(ctx, p.Key); err != nil || prior != nil {
		return prior, err
	}

	commit, req, err := s.prepare(ctx, p)
	if err != nil {
		return nil, err
	}

	receipt, err := s.env.Submit(ctx, req)
	if err != nil {
		log.Printf("[LEDGER] settlement of %s %s failed: %v", p.Kind, p.Key, err)
		return nil, fmt.Errorf("settling %s: %w", p.Kind, err)
	}

	entry := models.AuditEntry{
		ID:             uuid.New().String(),
		AccountID:      p.Account,
		Kind:           p.Kind,
		Amount:         p.Amount,
		Counterparty:   p.Counterparty,
		LoanID:         p.LoanID,
		SettlementRef:  receipt.Reference,
		Sequence:       receipt.Sequence,
		IdempotencyKey: p.Key,
		CreatedAt:      s.now().UTC(),
	}
	s.trail.seal(&entry)
	commit.Entry = entry

	if p.Loan != nil {
		loan := *p.Loan
		if p.Kind == models.KindLoanDisbursement {
			loan.SettlementRef = receipt.Reference
		}
		loan.UpdatedAt = entry.CreatedAt
		commit.Loan = &loan
	}

	if err := s.store.Commit(ctx, commit); err != nil {
		log.Printf("[LEDGER] commit of %s (%s) failed after settlement: %v", p.Key, receipt.Reference, err)
		return nil, fmt.Errorf("committing %s: %w", p.Kind, err)
	}

	log.Printf("[LEDGER] %s %s amount=%d seq=%d ref=%s", p.Kind, p.Account, p.Amount, receipt.Sequence, receipt.Reference)
	return &entry, nil
}

func validatePosting(p Posting) error {
	if p.Account == "" {
		return models.ErrAccountNotFound
	}
	switch p.Kind {
	case models.KindFreeze, models.KindUnfreeze:
		return nil
	case models.KindTransfer:
		if p.Counterparty == "" {
			return models.ErrAccountNotFound
		}
		if p.Account == p.Counterparty {
			return models.ErrSelfTransfer
		}
	case models.KindDeposit, models.KindWithdrawal, models.KindLoanDisbursement, models.KindLoanPayment:
	default:
		return fmt.Errorf("unknown posting kind %q", p.Kind)
	}
	if p.Amount <= 0 {
		return models.ErrInvalidAmount
	}
	return nil
}

// prepare computes the store commit and settlement request from the
// current committed state. Callers hold the account locks.
func (s *LedgerService) prepare(ctx context.Context, p Posting) (store.Commit, settlement.Request, error) {
	var commit store.Commit

	account, err := s.store.GetAccount(ctx, p.Account)
	if err != nil {
		return commit, settlement.Request{}, err
	}

	req := settlement.Request{Key: p.Key, Account: p.Account, Amount: p.Amount, LoanID: p.LoanID}

	switch p.Kind {
	case models.KindDeposit, models.KindLoanDisbursement:
		if account.Frozen && !p.Override {
			return commit, req, models.ErrAccountFrozen
		}
		req.Op = settlement.OpCreditBalance
		if p.Kind == models.KindLoanDisbursement {
			req.Op = settlement.OpRegisterLoan
		}
		commit.Balances = []store.BalanceChange{{AccountID: account.ID, Balance: account.Balance + p.Amount, Version: account.Version}}

	case models.KindWithdrawal, models.KindLoanPayment:
		if account.Frozen {
			return commit, req, models.ErrAccountFrozen
		}
		if p.Amount > account.Balance {
			return commit, req, models.ErrInsufficientFunds
		}
		req.Op = settlement.OpDebit
		if p.Kind == models.KindLoanPayment {
			req.Op = settlement.OpRepayLoan
		}
		commit.Balances = []store.BalanceChange{{AccountID: account.ID, Balance: account.Balance - p.Amount, Version: account.Version}}

	case models.KindTransfer:
		receiver, err := s.store.GetAccount(ctx, p.Counterparty)
		if err != nil {
			return commit, req, err
		}
		if account.Frozen || receiver.Frozen {
			return commit, req, models.ErrAccountFrozen
		}
		if p.Amount > account.Balance {
			return commit, req, models.ErrInsufficientFunds
		}
		req.Op = settlement.OpTransfer
		req.Counterparty = receiver.ID
		commit.Balances = []store.BalanceChange{
			{AccountID: account.ID, Balance: account.Balance - p.Amount, Version: account.Version},
			{AccountID: receiver.ID, Balance: receiver.Balance + p.Amount, Version: receiver.Version},
		}

	case models.KindFreeze, models.KindUnfreeze:
		target := p.Kind == models.KindFreeze
		if account.Frozen == target {
			return commit, req, errNoChange
		}
		req.Op = settlement.OpSetFrozen
		req.Frozen = target
		commit.Frozen = []store.FrozenChange{{AccountID: account.ID, Frozen: target}}
	}

	return commit, req, nil
}
