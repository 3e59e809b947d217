package services

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banksec/backend/internal/models"
)

func TestAuthService_Login(t *testing.T) {
	b := newTestBank(t)
	b.open(t, "alice", 0)
	auth := NewAuthService(b.store, b.signer, nil, "test-secret", time.Hour)
	ctx := context.Background()

	t.Run("valid credential", func(t *testing.T) {
		resp, err := auth.Login(ctx, LoginRequest{Address: "ALICE", Method: "pin", Sample: testPIN})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "alice", resp.Account.ID)

		claims, err := auth.ParseToken(ctx, resp.Token)
		require.NoError(t, err)
		assert.Equal(t, "alice", claims.Address)
		assert.Equal(t, models.RoleCustomer, claims.Role)
	})

	tests := []struct {
		name string
		req  LoginRequest
	}{
		{"wrong pin", LoginRequest{Address: "alice", Method: "pin", Sample: "9999"}},
		{"wrong method", LoginRequest{Address: "alice", Method: "facial", Sample: testPIN}},
		{"unknown address", LoginRequest{Address: "nobody", Method: "pin", Sample: testPIN}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.Login(ctx, tt.req)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}

func TestAuthService_ParseToken(t *testing.T) {
	b := newTestBank(t)
	auth := NewAuthService(b.store, b.signer, nil, "test-secret", time.Hour)
	ctx := context.Background()
	account := &models.Account{ID: "alice", Profile: models.Profile{Role: models.RoleAdmin}}

	resp, err := auth.IssueToken(account)
	require.NoError(t, err)

	other := NewAuthService(b.store, b.signer, nil, "other-secret", time.Hour)
	_, err = other.ParseToken(ctx, resp.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = auth.ParseToken(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	auth.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = auth.ParseToken(ctx, resp.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_Logout(t *testing.T) {
	b := newTestBank(t)
	rdb, mock := redismock.NewClientMock()
	auth := NewAuthService(b.store, b.signer, rdb, "test-secret", time.Hour)
	fixed := time.Now().Truncate(time.Second)
	auth.now = func() time.Time { return fixed }
	ctx := context.Background()

	resp, err := auth.IssueToken(&models.Account{ID: "alice"})
	require.NoError(t, err)
	key := "blacklist:" + resp.Token

	mock.ExpectExists(key).SetVal(0)
	mock.ExpectSet(key, "1", time.Hour).SetVal("OK")
	mock.ExpectExists(key).SetVal(1)

	require.NoError(t, auth.Logout(ctx, resp.Token))
	_, err = auth.ParseToken(ctx, resp.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}
