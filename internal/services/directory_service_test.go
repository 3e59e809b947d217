package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banksec/backend/internal/models"
	"github.com/banksec/backend/internal/store"
)

// flakyIdentityStore rejects separate identity updates and the first
// account insert.
type flakyIdentityStore struct {
	*store.MemoryStore
	failCreate bool
}

func (f *flakyIdentityStore) UpdateIdentity(ctx context.Context, id string, rec models.IdentityRecord) error {
	return errors.New("identity write failed")
}

func (f *flakyIdentityStore) CreateAccount(ctx context.Context, a *models.Account) error {
	if f.failCreate {
		f.failCreate = false
		return errors.New("connection reset")
	}
	return f.MemoryStore.CreateAccount(ctx, a)
}

func TestDirectoryService(t *testing.T) {
	b := newTestBank(t)
	ctx := context.Background()

	account, err := b.directory.Create(ctx, " Alice ", models.Profile{Name: "Alice", Email: "alice@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "alice", account.ID)
	assert.Equal(t, models.RoleCustomer, account.Profile.Role)
	assert.Equal(t, int64(0), account.Balance)
	assert.False(t, account.Identity.Verified)

	_, err = b.directory.Create(ctx, "ALICE", models.Profile{Name: "Other"})
	assert.ErrorIs(t, err, models.ErrDuplicateAccount)

	_, err = b.directory.Create(ctx, "  ", models.Profile{Name: "Blank"})
	assert.Error(t, err)

	require.NoError(t, b.directory.Enroll(ctx, "alice", "pin", "4321"))
	found, err := b.directory.Lookup(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, found.Identity.Verified)
	assert.Equal(t, "pin", found.Identity.Method)
	assert.NotEqual(t, "4321", found.Identity.CredentialHash)
	assert.NotNil(t, found.Identity.EnrolledAt)

	ok, err := b.signer.VerifyCredential("4321", found.Identity.CredentialHash)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.ErrorIs(t, b.directory.Enroll(ctx, "nobody", "pin", "4321"), models.ErrAccountNotFound)

	_, err = b.directory.Lookup(ctx, "nobody")
	assert.ErrorIs(t, err, models.ErrAccountNotFound)

	b.openAdmin(t, "root")
	all, err := b.directory.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDirectoryService_Signup(t *testing.T) {
	b := newTestBank(t)
	ctx := context.Background()

	account, err := b.directory.Signup(ctx, SignupRequest{Address: "Dave", Name: "Dave", Pin: "9876"})
	require.NoError(t, err)
	assert.Equal(t, "dave", account.ID)
	assert.True(t, account.Identity.Verified)
	assert.Equal(t, "pin", account.Identity.Method)

	_, err = b.directory.Signup(ctx, SignupRequest{Address: "dave", Name: "Dave", Pin: "9876"})
	assert.ErrorIs(t, err, models.ErrDuplicateAccount)

	require.NoError(t, b.directory.EnsureAdmin(ctx, "root", "0000"))
	require.NoError(t, b.directory.EnsureAdmin(ctx, "root", "1111"))
	admin, err := b.directory.Lookup(ctx, "root")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin())
	ok, err := b.signer.VerifyCredential("0000", admin.Identity.CredentialHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDirectoryService_SignupIsAtomic(t *testing.T) {
	b := newTestBank(t)
	st := &flakyIdentityStore{MemoryStore: store.NewMemoryStore(), failCreate: true}
	directory := NewDirectoryService(st, b.signer)
	ctx := context.Background()

	_, err := directory.Signup(ctx, SignupRequest{Address: "erin", Name: "Erin", Pin: "2468"})
	require.Error(t, err)
	_, err = directory.Lookup(ctx, "erin")
	assert.ErrorIs(t, err, models.ErrAccountNotFound)

	// The retry is not blocked by a half-created account, and the
	// credential lands without a separate identity write.
	account, err := directory.Signup(ctx, SignupRequest{Address: "erin", Name: "Erin", Pin: "2468"})
	require.NoError(t, err)
	assert.True(t, account.Identity.Verified)

	stored, err := directory.Lookup(ctx, "erin")
	require.NoError(t, err)
	ok, err := b.signer.VerifyCredential("2468", stored.Identity.CredentialHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDirectoryService_Stats(t *testing.T) {
	b := newTestBank(t)
	b.open(t, "alice", 100)
	b.open(t, "bob", 20)
	b.open(t, "carol", 0)
	b.openAdmin(t, "ops")
	ctx := context.Background()

	_, err := b.ledger.AdminCredit(ctx, "ops", 1000)
	require.NoError(t, err)
	_, err = b.loans.Apply(ctx, LoanApplication{Account: "bob", Amount: 50, TermMonths: 12})
	require.NoError(t, err)
	require.NoError(t, b.freeze.Freeze(ctx, "ops", "carol"))

	stats, err := b.directory.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, BankStats{
		TotalCustomers:        3,
		TotalDeposits:         170,
		TotalOutstandingLoans: 50,
		ActiveLoanCount:       1,
		FrozenAccounts:        1,
	}, stats)
}
