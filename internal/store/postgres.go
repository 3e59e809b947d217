package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/banksec/backend/internal/models"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the tables when they do not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("error applying schema: %w", err)
	}
	return nil
}

const accountColumns = `id, name, email, role, balance, frozen, kyc_verified,
		identity_verified, identity_method, credential_hash, enrolled_at,
		version, created_at, updated_at`

func (s *PostgresStore) CreateAccount(ctx context.Context, a *models.Account) error {
	version := a.Version
	if version == 0 {
		version = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		a.ID, a.Profile.Name, a.Profile.Email, string(a.Profile.Role), a.Balance, a.Frozen, a.KYCVerified,
		a.Identity.Verified, a.Identity.Method, a.Identity.CredentialHash, nullTime(a.Identity.EnrolledAt),
		version, a.CreatedAt, a.UpdatedAt)
	if isUniqueViolation(err) {
		return models.ErrDuplicateAccount
	}
	return err
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrAccountNotFound
	}
	return a, err
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateIdentity(ctx context.Context, id string, rec models.IdentityRecord) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET identity_verified = $1, identity_method = $2, credential_hash = $3, enrolled_at = $4, updated_at = $5
		WHERE id = $6`,
		rec.Verified, rec.Method, rec.CredentialHash, nullTime(rec.EnrolledAt), time.Now(), id)
	if err != nil {
		return err
	}
	return expectRow(result, models.ErrAccountNotFound)
}

// Commit writes balances, frozen flags, the loan and the audit entry in one transaction.
func (s *PostgresStore) Commit(ctx context.Context, c Commit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	for _, b := range c.Balances {
		result, err := tx.ExecContext(ctx, `
			UPDATE accounts
			SET balance = $1, version = version + 1, updated_at = $2
			WHERE id = $3 AND version = $4`,
			b.Balance, now, b.AccountID, b.Version)
		if err != nil {
			return err
		}
		if err := expectRow(result, fmt.Errorf("optimistic lock failed for account %s", b.AccountID)); err != nil {
			return err
		}
	}

	for _, f := range c.Frozen {
		result, err := tx.ExecContext(ctx, `
			UPDATE accounts
			SET frozen = $1, version = version + 1, updated_at = $2
			WHERE id = $3`,
			f.Frozen, now, f.AccountID)
		if err != nil {
			return err
		}
		if err := expectRow(result, models.ErrAccountNotFound); err != nil {
			return err
		}
	}

	if c.Loan != nil {
		if err := upsertLoan(ctx, tx, c.Loan); err != nil {
			return err
		}
	}

	e := c.Entry
	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_entries (id, account_id, kind, amount, counterparty, loan_id,
			settlement_ref, sequence, idempotency_key, signature, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.AccountID, string(e.Kind), e.Amount, e.Counterparty, e.LoanID,
		e.SettlementRef, int64(e.Sequence), nullString(e.IdempotencyKey), e.Signature, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("error inserting audit entry: %w", err)
	}

	return tx.Commit()
}

const entryColumns = `id, account_id, kind, amount, counterparty, loan_id,
		settlement_ref, sequence, idempotency_key, signature, created_at`

func (s *PostgresStore) EntryByKey(ctx context.Context, key string) (*models.AuditEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM audit_entries WHERE idempotency_key = $1`, key)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoEntry
	}
	return e, err
}

func (s *PostgresStore) AuditPage(ctx context.Context, f AuditFilter) ([]models.AuditEntry, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.AccountID != "" {
		args = append(args, f.AccountID)
		where = append(where, fmt.Sprintf("(account_id = $%d OR counterparty = $%d)", len(args), len(args)))
	}
	if f.Kind != "" {
		args = append(args, string(f.Kind))
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if f.BeforeSeq != 0 {
		args = append(args, int64(f.BeforeSeq))
		where = append(where, fmt.Sprintf("sequence < $%d", len(args)))
	}

	query := `SELECT ` + entryColumns + ` FROM audit_entries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY sequence DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

const loanColumns = `id, account_id, principal, term_months, interest_rate, monthly_payment,
		remaining_balance, outstanding_interest, status, next_payment_due, last_accrual_due,
		settlement_ref, collateral_type, collateral_value, created_at, updated_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func upsertLoan(ctx context.Context, ex execer, l *models.Loan) error {
	var (
		collType  sql.NullString
		collValue sql.NullInt64
	)
	if l.Collateral != nil {
		collType = sql.NullString{String: l.Collateral.Type, Valid: true}
		collValue = sql.NullInt64{Int64: l.Collateral.Value, Valid: true}
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO loans (`+loanColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			remaining_balance = EXCLUDED.remaining_balance,
			outstanding_interest = EXCLUDED.outstanding_interest,
			status = EXCLUDED.status,
			next_payment_due = EXCLUDED.next_payment_due,
			last_accrual_due = EXCLUDED.last_accrual_due,
			settlement_ref = EXCLUDED.settlement_ref,
			updated_at = EXCLUDED.updated_at`,
		l.ID, l.AccountID, l.Principal, l.TermMonths, l.InterestRate, l.MonthlyPayment,
		l.RemainingBalance, l.OutstandingInterest, string(l.Status), nullTime(l.NextPaymentDue), nullTime(l.LastAccrualDue),
		l.SettlementRef, collType, collValue, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error saving loan %s: %w", l.ID, err)
	}
	return nil
}

func (s *PostgresStore) SaveLoan(ctx context.Context, l *models.Loan) error {
	return upsertLoan(ctx, s.db, l)
}

func (s *PostgresStore) GetLoan(ctx context.Context, id string) (*models.Loan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id)
	l, err := scanLoan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrLoanNotFound
	}
	return l, err
}

func (s *PostgresStore) ListLoans(ctx context.Context, accountID string) ([]models.Loan, error) {
	return s.queryLoans(ctx, `SELECT `+loanColumns+` FROM loans WHERE account_id = $1 ORDER BY created_at DESC`, accountID)
}

func (s *PostgresStore) LoansByStatus(ctx context.Context, status models.LoanStatus) ([]models.Loan, error) {
	return s.queryLoans(ctx, `SELECT `+loanColumns+` FROM loans WHERE status = $1 ORDER BY created_at`, string(status))
}

func (s *PostgresStore) queryLoans(ctx context.Context, query string, arg interface{}) ([]models.Loan, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

const transferColumns = `id, from_account, to_account, amount, description, identity_verified,
		risk_verdict, risk_reason, status, failure_reason, settlement_ref, sequence,
		idempotency_key, created_at, completed_at`

func (s *PostgresStore) SaveTransfer(ctx context.Context, t *models.Transfer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transfers (`+transferColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			identity_verified = EXCLUDED.identity_verified,
			risk_verdict = EXCLUDED.risk_verdict,
			risk_reason = EXCLUDED.risk_reason,
			status = EXCLUDED.status,
			failure_reason = EXCLUDED.failure_reason,
			settlement_ref = EXCLUDED.settlement_ref,
			sequence = EXCLUDED.sequence,
			completed_at = EXCLUDED.completed_at`,
		t.ID, t.From, t.To, t.Amount, t.Description, t.IdentityVerified,
		t.RiskVerdict, t.RiskReason, string(t.Status), t.FailureReason, t.SettlementRef, int64(t.Sequence),
		t.IdempotencyKey, t.CreatedAt, nullTime(t.CompletedAt))
	return err
}

func (s *PostgresStore) GetTransfer(ctx context.Context, id string) (*models.Transfer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id = $1`, id)
	t, err := scanTransfer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrTransferNotFound
	}
	return t, err
}

func (s *PostgresStore) ListTransfers(ctx context.Context, accountID string, limit int) ([]models.Transfer, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transferColumns+` FROM transfers
		WHERE from_account = $1 OR to_account = $1
		ORDER BY created_at DESC
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(sc scanner) (*models.Account, error) {
	var (
		a        models.Account
		role     string
		enrolled sql.NullTime
	)
	err := sc.Scan(&a.ID, &a.Profile.Name, &a.Profile.Email, &role, &a.Balance, &a.Frozen, &a.KYCVerified,
		&a.Identity.Verified, &a.Identity.Method, &a.Identity.CredentialHash, &enrolled,
		&a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Profile.Role = models.Role(role)
	if enrolled.Valid {
		a.Identity.EnrolledAt = &enrolled.Time
	}
	return &a, nil
}

func scanEntry(sc scanner) (*models.AuditEntry, error) {
	var (
		e    models.AuditEntry
		kind string
		seq  int64
		key  sql.NullString
	)
	err := sc.Scan(&e.ID, &e.AccountID, &kind, &e.Amount, &e.Counterparty, &e.LoanID,
		&e.SettlementRef, &seq, &key, &e.Signature, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Kind = models.AuditKind(kind)
	e.Sequence = uint64(seq)
	e.IdempotencyKey = key.String
	return &e, nil
}

func scanLoan(sc scanner) (*models.Loan, error) {
	var (
		l         models.Loan
		status    string
		next      sql.NullTime
		accrual   sql.NullTime
		collType  sql.NullString
		collValue sql.NullInt64
	)
	err := sc.Scan(&l.ID, &l.AccountID, &l.Principal, &l.TermMonths, &l.InterestRate, &l.MonthlyPayment,
		&l.RemainingBalance, &l.OutstandingInterest, &status, &next, &accrual,
		&l.SettlementRef, &collType, &collValue, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	l.Status = models.LoanStatus(status)
	if next.Valid {
		l.NextPaymentDue = &next.Time
	}
	if accrual.Valid {
		l.LastAccrualDue = &accrual.Time
	}
	if collType.Valid {
		l.Collateral = &models.Collateral{Type: collType.String, Value: collValue.Int64}
	}
	return &l, nil
}

func scanTransfer(sc scanner) (*models.Transfer, error) {
	var (
		t         models.Transfer
		status    string
		seq       int64
		completed sql.NullTime
	)
	err := sc.Scan(&t.ID, &t.From, &t.To, &t.Amount, &t.Description, &t.IdentityVerified,
		&t.RiskVerdict, &t.RiskReason, &status, &t.FailureReason, &t.SettlementRef, &seq,
		&t.IdempotencyKey, &t.CreatedAt, &completed)
	if err != nil {
		return nil, err
	}
	t.Status = models.TransferStatus(status)
	t.Sequence = uint64(seq)
	if completed.Valid {
		t.CompletedAt = &completed.Time
	}
	return &t, nil
}

func expectRow(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
