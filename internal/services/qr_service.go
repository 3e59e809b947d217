package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"

	"github.com/banksec/backend/internal/models"
	"github.com/banksec/backend/internal/store"
)

const qrRequestTTL = 5 * time.Minute

var ErrQRExpired = errors.New("invalid or expired QR code")

// PaymentRequest is what a scanned QR code resolves to.
type PaymentRequest struct {
	Receiver  string    `json:"receiver"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
}

type QRCode struct {
	Token     string    `json:"qrCode"`
	Image     string    `json:"qrImage"` // base64 PNG
	ExpiresAt time.Time `json:"expiresAt"`
}

type QRService struct {
	store store.Store
	redis *redis.Client
	now   func() time.Time
}

func NewQRService(st store.Store, redis *redis.Client) *QRService {
	return &QRService{
		store: st,
		redis: redis,
		now:   time.Now,
	}
}

func qrKey(token string) string {
	return fmt.Sprintf("qr:%s", token)
}

// GenerateQRCode stores a one-time payment request for receiver.
func (s *QRService) GenerateQRCode(ctx context.Context, receiver string, amount int64) (*QRCode, error) {
	if amount <= 0 {
		return nil, models.ErrInvalidAmount
	}
	receiver = models.NormalizeAccountID(receiver)
	if _, err := s.store.GetAccount(ctx, receiver); err != nil {
		return nil, err
	}

	token, err := s.generateNonce()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	data, err := json.Marshal(PaymentRequest{Receiver: receiver, Amount: amount, CreatedAt: now})
	if err != nil {
		return nil, err
	}
	if err := s.redis.Set(ctx, qrKey(token), data, qrRequestTTL).Err(); err != nil {
		return nil, err
	}

	image, err := renderQR(token)
	if err != nil {
		return nil, err
	}
	return &QRCode{Token: token, Image: image, ExpiresAt: now.Add(qrRequestTTL)}, nil
}

// ProcessQRCode consumes a payment request. A token resolves only once.
func (s *QRService) ProcessQRCode(ctx context.Context, token string) (*PaymentRequest, error) {
	key := qrKey(token)

	data, err := s.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrQRExpired
	}
	if err != nil {
		return nil, err
	}

	deleted, err := s.redis.Del(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if deleted == 0 {
		// consumed concurrently
		return nil, ErrQRExpired
	}

	var req PaymentRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func renderQR(content string) (string, error) {
	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (s *QRService) generateNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
