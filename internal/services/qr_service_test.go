package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banksec/backend/internal/models"
	"github.com/banksec/backend/internal/store"
)

func TestQRService_Generate(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.CreateAccount(ctx, &models.Account{ID: "bob", Version: 1}))

	rdb, mock := redismock.NewClientMock()
	svc := NewQRService(st, rdb)
	fixed := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	mock.Regexp().ExpectSet(`qr:.+`, `.*`, qrRequestTTL).SetVal("OK")

	code, err := svc.GenerateQRCode(ctx, "BOB", 250)
	require.NoError(t, err)
	assert.NotEmpty(t, code.Token)
	assert.NotEmpty(t, code.Image)
	assert.Equal(t, fixed.Add(qrRequestTTL), code.ExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = svc.GenerateQRCode(ctx, "bob", 0)
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	_, err = svc.GenerateQRCode(ctx, "nobody", 10)
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
}

func TestQRService_Process(t *testing.T) {
	ctx := context.Background()
	rdb, mock := redismock.NewClientMock()
	svc := NewQRService(store.NewMemoryStore(), rdb)

	want := PaymentRequest{Receiver: "bob", Amount: 250, CreatedAt: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
	data, _ := json.Marshal(want)

	mock.ExpectGet("qr:tok1").SetVal(string(data))
	mock.ExpectDel("qr:tok1").SetVal(1)

	got, err := svc.ProcessQRCode(ctx, "tok1")
	require.NoError(t, err)
	assert.Equal(t, want, *got)

	mock.ExpectGet("qr:tok1").RedisNil()
	_, err = svc.ProcessQRCode(ctx, "tok1")
	assert.ErrorIs(t, err, ErrQRExpired)

	mock.ExpectGet("qr:tok2").SetVal(string(data))
	mock.ExpectDel("qr:tok2").SetVal(0)
	_, err = svc.ProcessQRCode(ctx, "tok2")
	assert.ErrorIs(t, err, ErrQRExpired)

	assert.NoError(t, mock.ExpectationsWereMet())
}
