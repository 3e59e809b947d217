package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/banksec/backend/internal/config"
	"github.com/banksec/backend/internal/hsm"
	"github.com/banksec/backend/internal/models"
	"github.com/banksec/backend/internal/settlement"
	"github.com/banksec/backend/internal/store"
)

type MockIdentityVerifier struct {
	mock.Mock
}

func (m *MockIdentityVerifier) VerifyProof(ctx context.Context, accountID string, proof models.IdentityProof) error {
	args := m.Called(ctx, accountID, proof)
	return args.Error(0)
}

type MockRiskScorer struct {
	mock.Mock
}

func (m *MockRiskScorer) Score(ctx context.Context, amount int64) (models.RiskVerdict, error) {
	args := m.Called(ctx, amount)
	return args.Get(0).(models.RiskVerdict), args.Error(1)
}

const testPIN = "1234"

// testBank wires every service over in-memory backends.
type testBank struct {
	store     *store.MemoryStore
	env       *settlement.MemoryEnvironment
	signer    *hsm.Signer
	audit     *hsm.AuditLogger
	trail     *AuditTrail
	ledger    *LedgerService
	gate      *AuthorizationGate
	capture   *CaptureService
	directory *DirectoryService
	loans     *LoanService
	freeze    *FreezeService
	transfers *TransactionService
}

func testGateConfig() config.GateConfig {
	return config.GateConfig{
		IdentityTimeout:   time.Second,
		RiskTimeout:       time.Second,
		ProofFreshness:    5 * time.Minute,
		RequireEnrollment: true,
	}
}

func testLoanConfig() config.LoanConfig {
	return config.LoanConfig{
		MaxAmount:           1000,
		AllowedTerms:        []int{12, 24},
		InterestRate:        0,
		LiquidityCap:        10_000,
		InstantDisbursement: true,
		RepaymentPolicy:     config.RepaymentExact,
		DefaultAfter:        90 * 24 * time.Hour,
	}
}

func newTestBank(t *testing.T) *testBank {
	return newTestBankWith(t, ThresholdScorer{Threshold: 500}, testLoanConfig())
}

func newTestBankWith(t *testing.T, risk RiskScorer, loanCfg config.LoanConfig) *testBank {
	t.Helper()

	signer, err := hsm.InitSigner(hsm.Config{MasterKey: "test-master-key", Salt: []byte("0123456789abcdef")})
	require.NoError(t, err)

	b := &testBank{
		store:  store.NewMemoryStore(),
		env:    settlement.NewMemoryEnvironment(),
		signer: signer,
		audit:  hsm.NewAuditLogger(),
	}
	b.trail = NewAuditTrail(b.store, signer)
	b.ledger = NewLedgerService(b.store, settlement.NewReliable(b.env, 3, time.Second, time.Millisecond), b.trail)
	b.capture = NewCaptureService(b.store, signer, NewMemorySessionStore(), nil, 5*time.Minute, 0.8)
	b.gate = NewAuthorizationGate(b.store, b.capture, risk, testGateConfig(), b.audit)
	b.directory = NewDirectoryService(b.store, signer)
	b.loans = NewLoanService(b.store, b.ledger, b.gate, loanCfg, b.audit)
	b.freeze = NewFreezeService(b.store, b.ledger, b.audit)
	b.transfers = NewTransactionService(b.store, b.gate, b.ledger)
	return b
}

// open creates an enrolled customer account holding balance.
func (b *testBank) open(t *testing.T, id string, balance int64) {
	t.Helper()
	ctx := context.Background()

	_, err := b.directory.Create(ctx, id, models.Profile{Name: id})
	require.NoError(t, err)
	require.NoError(t, b.directory.Enroll(ctx, id, "pin", testPIN))
	if balance > 0 {
		_, err = b.ledger.Credit(ctx, id, balance)
		require.NoError(t, err)
	}
}

func (b *testBank) openAdmin(t *testing.T, id string) {
	t.Helper()
	_, err := b.directory.Create(context.Background(), id, models.Profile{Name: id, Role: models.RoleAdmin})
	require.NoError(t, err)
}

// proof captures a fresh identity for id.
func (b *testBank) proof(t *testing.T, id string) *models.IdentityProof {
	t.Helper()
	ctx := context.Background()

	res, err := b.capture.Authenticate(ctx, CaptureRequest{Account: id, Method: "pin", RawSample: testPIN})
	require.NoError(t, err)
	require.True(t, res.Success)

	p := b.capture.Proof(ctx, res.SessionToken)
	return &p
}

func (b *testBank) balance(t *testing.T, id string) int64 {
	t.Helper()
	bal, err := b.ledger.Balance(context.Background(), id)
	require.NoError(t, err)
	return bal
}
