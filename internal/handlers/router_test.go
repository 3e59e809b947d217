package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banksec/backend/internal/config"
	"github.com/banksec/backend/internal/hsm"
	"github.com/banksec/backend/internal/middleware"
	"github.com/banksec/backend/internal/models"
	"github.com/banksec/backend/internal/services"
	"github.com/banksec/backend/internal/settlement"
	"github.com/banksec/backend/internal/store"
)

const (
	adminAddress = "ops"
	adminPIN     = "9999"
)

type testServer struct {
	t      *testing.T
	server *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	signer, err := hsm.InitSigner(hsm.Config{MasterKey: "test-master-key", Salt: []byte("0123456789abcdef")})
	require.NoError(t, err)
	audit := hsm.NewAuditLogger()

	st := store.NewMemoryStore()
	trail := services.NewAuditTrail(st, signer)
	ledger := services.NewLedgerService(st, settlement.NewReliable(settlement.NewMemoryEnvironment(), 3, time.Second, time.Millisecond), trail)
	capture := services.NewCaptureService(st, signer, services.NewMemorySessionStore(), nil, 5*time.Minute, 0.8)
	gate := services.NewAuthorizationGate(st, capture, services.ThresholdScorer{Threshold: 500}, config.GateConfig{
		IdentityTimeout:   time.Second,
		RiskTimeout:       time.Second,
		ProofFreshness:    5 * time.Minute,
		RequireEnrollment: true,
	}, audit)
	directory := services.NewDirectoryService(st, signer)
	loans := services.NewLoanService(st, ledger, gate, config.LoanConfig{
		MaxAmount:           1000,
		AllowedTerms:        []int{12, 24},
		LiquidityCap:        10_000,
		InstantDisbursement: true,
		RepaymentPolicy:     config.RepaymentExact,
		DefaultAfter:        90 * 24 * time.Hour,
	}, audit)

	svc := Services{
		Auth:         services.NewAuthService(st, signer, nil, "test-secret", time.Hour),
		Directory:    directory,
		Capture:      capture,
		Transactions: services.NewTransactionService(st, gate, ledger),
		Loans:        loans,
		Freeze:       services.NewFreezeService(st, ledger, audit),
		Audit:        trail,
		ISO20022:     services.NewISO20022Service("USD", ""),
	}
	require.NoError(t, directory.EnsureAdmin(context.Background(), adminAddress, adminPIN))

	srv := httptest.NewServer(NewRouter(svc, middleware.NewRateLimiter(1000, 1000)))
	t.Cleanup(srv.Close)
	return &testServer{t: t, server: srv}
}

// do sends a JSON request and decodes the JSON response into out when set.
func (s *testServer) do(method, path, token string, body any, out any, headers ...string) int {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.server.URL+path, &buf)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *testServer) signup(address string) string {
	s.t.Helper()
	var resp services.AuthResponse
	status := s.do(http.MethodPost, "/api/v1/accounts", "", map[string]string{
		"address": address,
		"name":    "Customer " + address,
		"pin":     "1234",
	}, &resp)
	require.Equal(s.t, http.StatusCreated, status)
	require.NotEmpty(s.t, resp.Token)
	return resp.Token
}

func (s *testServer) login(address, pin string) string {
	s.t.Helper()
	var resp services.AuthResponse
	status := s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"address": address,
		"method":  "pin",
		"sample":  pin,
	}, &resp)
	require.Equal(s.t, http.StatusOK, status)
	return resp.Token
}

// identitySession captures a fresh pin identity for the token's account.
func (s *testServer) identitySession(token string) string {
	s.t.Helper()
	var res services.CaptureResult
	status := s.do(http.MethodPost, "/api/v1/identity/authenticate", token, map[string]string{
		"method":    "pin",
		"rawSample": "1234",
	}, &res)
	require.Equal(s.t, http.StatusOK, status)
	require.True(s.t, res.Success)
	return res.SessionToken
}

func (s *testServer) credit(adminToken, address string, amount int64) {
	s.t.Helper()
	status := s.do(http.MethodPost, "/api/v1/admin/accounts/"+address+"/credit", adminToken, map[string]int64{"amount": amount}, nil)
	require.Equal(s.t, http.StatusOK, status)
}

func (s *testServer) balance(token string) int64 {
	s.t.Helper()
	var acct models.Account
	require.Equal(s.t, http.StatusOK, s.do(http.MethodGet, "/api/v1/accounts/me", token, nil, &acct))
	return acct.Balance
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	var body map[string]string
	status := s.do(http.MethodGet, "/health", "", nil, &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	var body services.ErrorResponse
	status := s.do(http.MethodGet, "/api/v1/accounts/me", "", nil, &body)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", body.Code)

	status = s.do(http.MethodGet, "/api/v1/accounts/me", "not-a-jwt", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestSignup_Validation(t *testing.T) {
	s := newTestServer(t)

	var body services.ErrorResponse
	status := s.do(http.MethodPost, "/api/v1/accounts", "", map[string]string{
		"address": "alice",
		"name":    "Alice",
		"pin":     "12ab",
	}, &body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_failed", body.Code)
	assert.Contains(t, body.Details, "pin")
}

func TestSignup_UnknownField(t *testing.T) {
	s := newTestServer(t)

	var body services.ErrorResponse
	status := s.do(http.MethodPost, "/api/v1/accounts", "", map[string]string{
		"address": "alice",
		"name":    "Alice",
		"pin":     "1234",
		"balance": "1000000",
	}, &body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_request", body.Code)
}

func TestSignup_Duplicate(t *testing.T) {
	s := newTestServer(t)
	s.signup("alice")

	var body services.ErrorResponse
	status := s.do(http.MethodPost, "/api/v1/accounts", "", map[string]string{
		"address": "ALICE",
		"name":    "Alice Again",
		"pin":     "1234",
	}, &body)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "duplicate_account", body.Code)
}

func TestLogin_WrongPIN(t *testing.T) {
	s := newTestServer(t)
	s.signup("alice")

	var body services.ErrorResponse
	status := s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"address": "alice",
		"method":  "pin",
		"sample":  "0000",
	}, &body)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid_credentials", body.Code)
}

func TestTransferFlow(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice")
	bob := s.signup("bob")
	admin := s.login(adminAddress, adminPIN)

	s.credit(admin, "alice", 100)
	assert.Equal(t, int64(100), s.balance(alice))

	// Without an identity session the gate refuses.
	var rejected rejectedTransfer
	status := s.do(http.MethodPost, "/api/v1/transfers", alice, map[string]any{"to": "bob", "amount": 30}, &rejected)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "identity_not_verified", rejected.Code)
	require.NotNil(t, rejected.Transfer)
	assert.Equal(t, models.TransferRejected, rejected.Transfer.Status)
	assert.False(t, rejected.Transfer.IdentityVerified)

	session := s.identitySession(alice)
	var transfer models.Transfer
	status = s.do(http.MethodPost, "/api/v1/transfers", alice, map[string]any{"to": "bob", "amount": 30}, &transfer, IdentitySessionHeader, session)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, models.TransferCompleted, transfer.Status)
	assert.True(t, transfer.IdentityVerified)

	assert.Equal(t, int64(70), s.balance(alice))
	assert.Equal(t, int64(30), s.balance(bob))

	var got models.Transfer
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/transfers/"+transfer.ID, bob, nil, &got))
	assert.Equal(t, transfer.ID, got.ID)

	var export services.ISO20022Export
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/transfers/"+transfer.ID+"/iso20022", alice, nil, &export))
	assert.Equal(t, services.MessagePacs008, export.MessageType)
	assert.Contains(t, export.XML, "BANKSECXXXX")

	// A third party cannot see the transfer.
	carol := s.signup("carol")
	var notFound services.ErrorResponse
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/transfers/"+transfer.ID, carol, nil, &notFound))
	assert.Equal(t, "transfer_not_found", notFound.Code)

	var audit struct {
		Entries []models.AuditEntry `json:"entries"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/audit", alice, nil, &audit))
	require.NotEmpty(t, audit.Entries)
	assert.Equal(t, models.KindTransfer, audit.Entries[0].Kind)
}

func TestTransfer_RiskRejected(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice")
	s.signup("bob")
	admin := s.login(adminAddress, adminPIN)
	s.credit(admin, "alice", 1000)

	var rejected rejectedTransfer
	status := s.do(http.MethodPost, "/api/v1/transfers", alice, map[string]any{"to": "bob", "amount": 800}, &rejected,
		IdentitySessionHeader, s.identitySession(alice))
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "risk_rejected", rejected.Code)
	require.NotNil(t, rejected.Transfer)
	assert.Equal(t, models.VerdictFraud, rejected.Transfer.RiskVerdict)
	assert.Equal(t, "amount exceeds threshold", rejected.Transfer.RiskReason)
	assert.Equal(t, int64(1000), s.balance(alice))
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice")
	s.signup("bob")

	var body services.ErrorResponse
	status := s.do(http.MethodPost, "/api/v1/transfers", alice, map[string]any{"to": "bob", "amount": 30}, &body,
		IdentitySessionHeader, s.identitySession(alice))
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "insufficient_funds", body.Code)
}

func TestAdminRoutesRequireRole(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice")

	var body services.ErrorResponse
	status := s.do(http.MethodPost, "/api/v1/admin/accounts/alice/freeze", alice, nil, &body)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "permission_denied", body.Code)
}

func TestFreezeBlocksTransfer(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice")
	s.signup("bob")
	admin := s.login(adminAddress, adminPIN)
	s.credit(admin, "alice", 100)

	var frozen models.Account
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/v1/admin/accounts/alice/freeze", admin, nil, &frozen))
	assert.True(t, frozen.Frozen)

	var body services.ErrorResponse
	status := s.do(http.MethodPost, "/api/v1/transfers", alice, map[string]any{"to": "bob", "amount": 10}, &body,
		IdentitySessionHeader, s.identitySession(alice))
	assert.Equal(t, http.StatusLocked, status)
	assert.Equal(t, "account_frozen", body.Code)

	// Admin funding still lands on a frozen account.
	s.credit(admin, "alice", 5)
	assert.Equal(t, int64(105), s.balance(alice))

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/v1/admin/accounts/alice/unfreeze", admin, nil, &frozen))
	assert.False(t, frozen.Frozen)
}

func TestLoanFlow(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice")

	var loan models.Loan
	status := s.do(http.MethodPost, "/api/v1/loans", alice, map[string]any{"amount": 120, "termMonths": 12}, &loan)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, models.LoanActive, loan.Status)
	assert.Equal(t, int64(120), s.balance(alice))

	var again services.ErrorResponse
	status = s.do(http.MethodPost, "/api/v1/loans", alice, map[string]any{"amount": 50, "termMonths": 12}, &again)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "loan_already_outstanding", again.Code)

	var plan struct {
		LoanID       string                 `json:"loanId"`
		Installments []services.Installment `json:"installments"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/loans/"+loan.ID+"/schedule", alice, nil, &plan))
	assert.Equal(t, loan.ID, plan.LoanID)
	assert.Len(t, plan.Installments, 12)

	var paid models.Loan
	status = s.do(http.MethodPost, "/api/v1/loans/"+loan.ID+"/payments", alice, map[string]any{"amount": 120}, &paid,
		IdentitySessionHeader, s.identitySession(alice))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.LoanCompleted, paid.Status)
	assert.Equal(t, int64(0), s.balance(alice))

	// Other customers do not see the loan.
	bob := s.signup("bob")
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/loans/"+loan.ID, bob, nil, nil))
}

func TestLoanApply_InvalidTerm(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice")

	var body services.ErrorResponse
	status := s.do(http.MethodPost, "/api/v1/loans", alice, map[string]any{"amount": 100, "termMonths": 7}, &body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_term", body.Code)
}

func TestAccountGet_PublicView(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice")
	s.signup("bob")

	var view map[string]any
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/accounts/bob", alice, nil, &view))
	assert.Equal(t, "bob", view["address"])
	assert.NotContains(t, view, "balance")

	admin := s.login(adminAddress, adminPIN)
	view = nil
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/accounts/bob", admin, nil, &view))
	assert.Contains(t, view, "balance")
}

func TestQRRoutesDisabledWithoutRedis(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice")

	status := s.do(http.MethodPost, "/api/v1/qr/generate", alice, map[string]int64{"amount": 10}, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAdminStats(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice")
	s.signup("bob")
	admin := s.login(adminAddress, adminPIN)
	s.credit(admin, "bob", 40)

	var loan models.Loan
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/v1/loans", alice, map[string]any{"amount": 100, "termMonths": 24}, &loan))

	var stats services.BankStats
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/admin/stats", admin, nil, &stats))
	assert.Equal(t, 2, stats.TotalCustomers)
	assert.Equal(t, int64(140), stats.TotalDeposits)
	assert.Equal(t, int64(100), stats.TotalOutstandingLoans)
	assert.Equal(t, 1, stats.ActiveLoanCount)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/v1/admin/stats", alice, nil, nil))
}
