package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"

	"github.com/banksec/backend/internal/hsm"
	"github.com/banksec/backend/internal/models"
	"github.com/banksec/backend/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// LoginRequest represents the login request payload
type LoginRequest struct {
	Address string `json:"address" validate:"required,min=3,max=64"`
	Method  string `json:"method" validate:"required,oneof=fingerprint facial pin"`
	Sample  string `json:"sample" validate:"required,min=4"`
}

// AuthResponse represents the authentication response
type AuthResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Account   *models.Account `json:"account"`
}

// Claims are carried by every access token.
type Claims struct {
	Address string      `json:"address"`
	Role    models.Role `json:"role"`
	jwt.RegisteredClaims
}

// AuthService issues and checks access tokens. Revoked tokens are kept
// in redis until they would have expired anyway.
type AuthService struct {
	store  store.Store
	signer *hsm.Signer
	redis  *redis.Client
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

func NewAuthService(st store.Store, signer *hsm.Signer, redisClient *redis.Client, secret string, expiry time.Duration) *AuthService {
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &AuthService{
		store:  st,
		signer: signer,
		redis:  redisClient,
		secret: []byte(secret),
		expiry: expiry,
		now:    time.Now,
	}
}

// Login checks the sample against the account's enrolled credential.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	account, err := s.store.GetAccount(ctx, models.NormalizeAccountID(req.Address))
	if err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			log.Printf("[AUTH] Login for unknown address %s", req.Address)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !account.Identity.Verified || account.Identity.Method != req.Method {
		log.Printf("[AUTH] No %s credential enrolled for %s", req.Method, account.ID)
		return nil, ErrInvalidCredentials
	}
	ok, err := s.signer.VerifyCredential(normalizeSample(req.Method, req.Sample), account.Identity.CredentialHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Printf("[AUTH] Invalid credential for %s", account.ID)
		return nil, ErrInvalidCredentials
	}

	resp, err := s.IssueToken(account)
	if err != nil {
		return nil, err
	}
	log.Printf("[AUTH] Login successful for %s", account.ID)
	return resp, nil
}

func (s *AuthService) IssueToken(account *models.Account) (*AuthResponse, error) {
	now := s.now()
	expires := now.Add(s.expiry)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Address: account.ID,
		Role:    account.Profile.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &AuthResponse{Token: signed, ExpiresAt: expires.UTC(), Account: account}, nil
}

// ParseToken validates signature, expiry and revocation.
func (s *AuthService) ParseToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid || claims.Address == "" {
		return nil, ErrInvalidToken
	}

	if s.redis != nil {
		n, err := s.redis.Exists(ctx, blacklistKey(tokenString)).Result()
		if err != nil {
			log.Printf("[AUTH] Failed to check token blacklist: %v", err)
			return nil, err
		}
		if n > 0 {
			return nil, ErrInvalidToken
		}
	}
	return claims, nil
}

// Logout blacklists the token for the rest of its lifetime.
func (s *AuthService) Logout(ctx context.Context, tokenString string) error {
	if s.redis == nil {
		return nil
	}
	claims, err := s.ParseToken(ctx, tokenString)
	if err != nil {
		return err
	}

	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, blacklistKey(tokenString), "1", ttl).Err(); err != nil {
		log.Printf("[AUTH] Failed to blacklist token: %v", err)
		return err
	}
	return nil
}

func blacklistKey(token string) string {
	return fmt.Sprintf("blacklist:%s", token)
}
