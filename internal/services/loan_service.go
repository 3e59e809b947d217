package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banksec/backend/internal/config"
	"github.com/banksec/backend/internal/hsm"
	"github.com/banksec/backend/internal/models"
	"github.com/banksec/backend/internal/store"
)

type LoanApplication struct {
	Account    string             `json:"-"`
	Amount     int64              `json:"amount" validate:"required,gt=0"`
	TermMonths int                `json:"termMonths" validate:"required,gt=0"`
	Collateral *models.Collateral `json:"collateral,omitempty"`
	Key        string             `json:"idempotencyKey,omitempty" validate:"omitempty,max=128"`
}

type LoanPayment struct {
	LoanID  string                `json:"-"`
	Account string                `json:"-"`
	Amount  int64                 `json:"amount" validate:"required,gt=0"`
	Proof   *models.IdentityProof `json:"-"`
	Key     string                `json:"idempotencyKey,omitempty" validate:"omitempty,max=128"`
}

type SweepReport struct {
	Checked   int `json:"checked"`
	Accrued   int `json:"accrued"`
	Defaulted int `json:"defaulted"`
}

// LoanService owns loan records. Balances only move through the ledger,
// and the per-account loan lock is always taken before any ledger lock.
type LoanService struct {
	store  store.Store
	ledger *LedgerService
	gate   *AuthorizationGate
	cfg    config.LoanConfig
	audit  *hsm.AuditLogger
	locks  *keyedMutex
	now    func() time.Time

	// liquidity spans the cap check through disbursement across all
	// accounts. Taken after the account lock.
	liquidity sync.Mutex
}

func applyKey(account, key string) string {
	if key == "" {
		return ""
	}
	return fmt.Sprintf("loan:apply:%s:%s", account, key)
}

func paymentKey(loanID, key string) string {
	if key == "" {
		return ""
	}
	return fmt.Sprintf("loan:pay:%s:%s", loanID, key)
}

func NewLoanService(st store.Store, ledger *LedgerService, gate *AuthorizationGate, cfg config.LoanConfig, audit *hsm.AuditLogger) *LoanService {
	return &LoanService{
		store:  st,
		ledger: ledger,
		gate:   gate,
		cfg:    cfg,
		audit:  audit,
		locks:  newKeyedMutex(),
		now:    time.Now,
	}
}

func (s *LoanService) Apply(ctx context.Context, app LoanApplication) (*models.Loan, error) {
	account := models.NormalizeAccountID(app.Account)

	if app.Amount <= 0 {
		return nil, models.ErrInvalidAmount
	}
	if !s.cfg.TermAllowed(app.TermMonths) {
		return nil, models.ErrInvalidTerm
	}
	if app.Amount > s.cfg.MaxAmount {
		return nil, models.ErrAmountExceedsLimit
	}

	unlock := s.locks.Lock(account)
	defer unlock()

	key := applyKey(account, app.Key)
	if prior, err := s.ledger.Replayed(ctx, key); err != nil {
		return nil, err
	} else if prior != nil {
		if prior.AccountID != account || prior.LoanID == "" {
			return nil, fmt.Errorf("idempotency key %q already used for another operation", app.Key)
		}
		return s.store.GetLoan(ctx, prior.LoanID)
	}

	if _, err := s.store.GetAccount(ctx, account); err != nil {
		return nil, err
	}

	existing, err := s.Outstanding(ctx, account)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.ErrLoanAlreadyOutstanding
	}

	s.liquidity.Lock()
	defer s.liquidity.Unlock()

	if err := s.checkLiquidity(ctx, app.Amount); err != nil {
		return nil, err
	}

	if _, err := s.gate.Authorize(ctx, AuthorizationRequest{
		Action:  ActionLoanDisbursement,
		Account: account,
		Amount:  app.Amount,
	}); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	loan := &models.Loan{
		ID:               uuid.New().String(),
		AccountID:        account,
		Principal:        app.Amount,
		TermMonths:       app.TermMonths,
		InterestRate:     s.cfg.InterestRate,
		MonthlyPayment:   MonthlyPayment(app.Amount, s.cfg.InterestRate, app.TermMonths),
		RemainingBalance: app.Amount,
		Status:           models.LoanPending,
		Collateral:       app.Collateral,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if !s.cfg.InstantDisbursement {
		if err := s.store.SaveLoan(ctx, loan); err != nil {
			return nil, err
		}
		log.Printf("[LOAN] %s pending approval for %s amount=%d", loan.ID, account, loan.Principal)
		return loan, nil
	}

	return s.disburse(ctx, loan, key)
}

// Approve disburses a pending loan.
func (s *LoanService) Approve(ctx context.Context, loanID string) (*models.Loan, error) {
	loan, err := s.store.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(loan.AccountID)
	defer unlock()

	loan, err = s.store.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if !loan.Status.CanTransition(models.LoanActive) {
		return nil, models.ErrLoanNotActive
	}

	if _, err := s.gate.Authorize(ctx, AuthorizationRequest{
		Action:  ActionLoanDisbursement,
		Account: loan.AccountID,
		Amount:  loan.Principal,
	}); err != nil {
		return nil, err
	}

	return s.disburse(ctx, loan, "approve-"+loan.ID)
}

func (s *LoanService) disburse(ctx context.Context, loan *models.Loan, key string) (*models.Loan, error) {
	activated := *loan
	activated.Status = models.LoanActive
	due := s.now().UTC().AddDate(0, 1, 0)
	activated.NextPaymentDue = &due

	entry, err := s.ledger.Post(ctx, Posting{
		Kind:    models.KindLoanDisbursement,
		Account: loan.AccountID,
		Amount:  loan.Principal,
		Key:     key,
		LoanID:  loan.ID,
		Loan:    &activated,
	})
	if err != nil {
		return nil, err
	}

	if entry.LoanID != loan.ID {
		// The key was already used for another disbursement of this account.
		if entry.AccountID != loan.AccountID || entry.LoanID == "" {
			return nil, fmt.Errorf("disbursement key %q belongs to another operation", key)
		}
		return s.store.GetLoan(ctx, entry.LoanID)
	}

	activated.SettlementRef = entry.SettlementRef
	activated.UpdatedAt = entry.CreatedAt
	log.Printf("[LOAN] %s disbursed to %s amount=%d monthly=%d", loan.ID, loan.AccountID, loan.Principal, loan.MonthlyPayment)
	s.audit.LogLoanStatus(loan.ID, loan.AccountID, string(models.LoanActive), loan.Principal)
	return &activated, nil
}

func (s *LoanService) MakePayment(ctx context.Context, pay LoanPayment) (*models.Loan, error) {
	loan, err := s.store.GetLoan(ctx, pay.LoanID)
	if err != nil {
		return nil, err
	}
	if pay.Account != "" && loan.AccountID != models.NormalizeAccountID(pay.Account) {
		return nil, models.ErrLoanNotFound
	}

	unlock := s.locks.Lock(loan.AccountID)
	defer unlock()

	key := paymentKey(loan.ID, pay.Key)
	if prior, err := s.ledger.Replayed(ctx, key); err != nil {
		return nil, err
	} else if prior != nil {
		if prior.AccountID != loan.AccountID || prior.LoanID != loan.ID || prior.Kind != models.KindLoanPayment {
			return nil, fmt.Errorf("idempotency key %q already used for another operation", pay.Key)
		}
		return s.store.GetLoan(ctx, loan.ID)
	}

	loan, err = s.store.GetLoan(ctx, pay.LoanID)
	if err != nil {
		return nil, err
	}

	if _, err := s.gate.Authorize(ctx, AuthorizationRequest{
		Action:  ActionLoanPayment,
		Account: loan.AccountID,
		Amount:  pay.Amount,
		Proof:   pay.Proof,
	}); err != nil {
		return nil, err
	}

	if loan.Status != models.LoanActive {
		return nil, models.ErrLoanNotActive
	}

	payoff := loan.Payoff()
	if pay.Amount <= 0 || pay.Amount > payoff {
		return nil, models.ErrInvalidAmount
	}
	if s.cfg.RepaymentPolicy != config.RepaymentPartial && pay.Amount != payoff {
		return nil, fmt.Errorf("%w: full repayment of %d required", models.ErrInvalidAmount, payoff)
	}

	updated := applyPayment(*loan, pay.Amount)

	if _, err := s.ledger.Post(ctx, Posting{
		Kind:    models.KindLoanPayment,
		Account: loan.AccountID,
		Amount:  pay.Amount,
		Key:     key,
		LoanID:  loan.ID,
		Loan:    &updated,
	}); err != nil {
		return nil, err
	}

	log.Printf("[LOAN] %s payment=%d remaining=%d status=%s", loan.ID, pay.Amount, updated.RemainingBalance, updated.Status)
	if updated.Status == models.LoanCompleted {
		s.audit.LogLoanStatus(loan.ID, loan.AccountID, string(models.LoanCompleted), 0)
	}
	return &updated, nil
}

// applyPayment settles outstanding interest first, then principal.
func applyPayment(loan models.Loan, amount int64) models.Loan {
	interest := amount
	if interest > loan.OutstandingInterest {
		interest = loan.OutstandingInterest
	}
	loan.OutstandingInterest -= interest
	loan.RemainingBalance -= amount - interest

	if loan.Payoff() == 0 {
		loan.Status = models.LoanCompleted
		loan.NextPaymentDue = nil
		return loan
	}

	if amount >= loan.MonthlyPayment && loan.NextPaymentDue != nil {
		next := loan.NextPaymentDue.AddDate(0, 1, 0)
		loan.NextPaymentDue = &next
	}
	return loan
}

// Sweep accrues one period of interest for every missed due date and
// defaults loans overdue longer than the configured grace period.
func (s *LoanService) Sweep(ctx context.Context, now time.Time) (SweepReport, error) {
	var report SweepReport

	active, err := s.store.LoansByStatus(ctx, models.LoanActive)
	if err != nil {
		return report, err
	}

	for _, l := range active {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		accrued, defaulted, err := s.service(ctx, l.ID, now)
		if err != nil {
			log.Printf("[LOAN] sweep of %s failed: %v", l.ID, err)
			continue
		}
		if accrued {
			report.Accrued++
		}
		if defaulted {
			report.Defaulted++
		}
	}

	if report.Accrued > 0 || report.Defaulted > 0 {
		log.Printf("[LOAN] sweep checked=%d accrued=%d defaulted=%d", report.Checked, report.Accrued, report.Defaulted)
	}
	return report, nil
}

func (s *LoanService) service(ctx context.Context, loanID string, now time.Time) (accrued, defaulted bool, err error) {
	loan, err := s.store.GetLoan(ctx, loanID)
	if err != nil {
		return false, false, err
	}

	unlock := s.locks.Lock(loan.AccountID)
	defer unlock()

	loan, err = s.store.GetLoan(ctx, loanID)
	if err != nil {
		return false, false, err
	}
	if loan.Status != models.LoanActive || loan.NextPaymentDue == nil || !now.After(*loan.NextPaymentDue) {
		return false, false, nil
	}

	cursor := *loan.NextPaymentDue
	if loan.LastAccrualDue != nil && !loan.LastAccrualDue.Before(cursor) {
		cursor = loan.LastAccrualDue.AddDate(0, 1, 0)
	}
	for !cursor.After(now) {
		loan.OutstandingInterest += MonthlyInterest(loan.RemainingBalance, loan.InterestRate)
		due := cursor
		loan.LastAccrualDue = &due
		cursor = cursor.AddDate(0, 1, 0)
		accrued = true
	}

	if s.cfg.DefaultAfter > 0 && now.Sub(*loan.NextPaymentDue) > s.cfg.DefaultAfter && loan.Status.CanTransition(models.LoanDefaulted) {
		loan.Status = models.LoanDefaulted
		defaulted = true
	}

	if !accrued && !defaulted {
		return false, false, nil
	}

	loan.UpdatedAt = now.UTC()
	if err := s.store.SaveLoan(ctx, loan); err != nil {
		return false, false, err
	}
	if defaulted {
		log.Printf("[LOAN] %s defaulted, overdue since %s", loan.ID, loan.NextPaymentDue.Format(time.RFC3339))
		s.audit.LogLoanStatus(loan.ID, loan.AccountID, string(models.LoanDefaulted), loan.Payoff())
	}
	return accrued, defaulted, nil
}

func (s *LoanService) checkLiquidity(ctx context.Context, amount int64) error {
	if s.cfg.LiquidityCap <= 0 {
		return nil
	}

	var committed int64
	for _, status := range []models.LoanStatus{models.LoanPending, models.LoanActive} {
		loans, err := s.store.LoansByStatus(ctx, status)
		if err != nil {
			return err
		}
		for _, l := range loans {
			if l.Status == models.LoanPending {
				committed += l.Principal
			} else {
				committed += l.RemainingBalance
			}
		}
	}

	if committed+amount > s.cfg.LiquidityCap {
		return models.ErrInsufficientLiquidity
	}
	return nil
}

func (s *LoanService) Get(ctx context.Context, loanID string) (*models.Loan, error) {
	return s.store.GetLoan(ctx, loanID)
}

func (s *LoanService) ListForAccount(ctx context.Context, account string) ([]models.Loan, error) {
	return s.store.ListLoans(ctx, models.NormalizeAccountID(account))
}

// Outstanding returns the account's pending or active loan, or nil.
func (s *LoanService) Outstanding(ctx context.Context, account string) (*models.Loan, error) {
	loans, err := s.store.ListLoans(ctx, models.NormalizeAccountID(account))
	if err != nil {
		return nil, err
	}
	for i := range loans {
		if loans[i].Status.Outstanding() {
			return &loans[i], nil
		}
	}
	return nil, nil
}

// ScheduleFor returns the remaining installment plan of a loan.
func (s *LoanService) ScheduleFor(ctx context.Context, loanID string) ([]Installment, error) {
	loan, err := s.store.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != models.LoanActive && loan.Status != models.LoanPending {
		return nil, nil
	}
	start := loan.CreatedAt
	if loan.NextPaymentDue != nil {
		start = loan.NextPaymentDue.AddDate(0, -1, 0)
	}
	remaining := loan.TermMonths - monthsBetween(loan.CreatedAt, start)
	if remaining < 1 {
		remaining = 1
	}
	return Schedule(loan.RemainingBalance, loan.InterestRate, remaining, start), nil
}

func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()-a.Month())
}
