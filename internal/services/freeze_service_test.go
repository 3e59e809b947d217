package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banksec/backend/internal/models"
)

func TestFreezeService(t *testing.T) {
	b := newTestBank(t)
	b.openAdmin(t, "admin")
	b.open(t, "alice", 100)
	b.open(t, "bob", 0)
	ctx := context.Background()

	t.Run("customers cannot freeze", func(t *testing.T) {
		assert.ErrorIs(t, b.freeze.Freeze(ctx, "bob", "alice"), models.ErrPermissionDenied)
		assert.ErrorIs(t, b.freeze.Freeze(ctx, "ghost", "alice"), models.ErrPermissionDenied)
		_, err := b.freeze.Fund(ctx, "bob", "bob", 10)
		assert.ErrorIs(t, err, models.ErrPermissionDenied)
	})

	require.NoError(t, b.freeze.Freeze(ctx, "admin", "alice"))
	require.NoError(t, b.freeze.Freeze(ctx, "admin", "alice"))

	freezes, err := b.trail.Collect(ctx, AuditQuery{Account: "alice", Kind: models.KindFreeze})
	require.NoError(t, err)
	assert.Len(t, freezes, 1)

	t.Run("frozen account cannot send", func(t *testing.T) {
		_, err := b.transfers.Transfer(ctx, TransferRequest{From: "alice", To: "bob", Amount: 10, Proof: b.proof(t, "alice")})
		assert.ErrorIs(t, err, models.ErrAccountFrozen)
	})

	t.Run("admin funding ignores freeze", func(t *testing.T) {
		entry, err := b.freeze.Fund(ctx, "admin", "alice", 25)
		require.NoError(t, err)
		assert.Equal(t, models.KindDeposit, entry.Kind)
		assert.Equal(t, int64(125), b.balance(t, "alice"))
	})

	require.NoError(t, b.freeze.Unfreeze(ctx, "admin", "alice"))

	_, err = b.transfers.Transfer(ctx, TransferRequest{From: "alice", To: "bob", Amount: 10, Proof: b.proof(t, "alice")})
	require.NoError(t, err)
	assert.Equal(t, int64(115), b.balance(t, "alice"))
	assert.Equal(t, int64(10), b.balance(t, "bob"))
}
