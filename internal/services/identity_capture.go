package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode"

	"github.com/banksec/backend/internal/hsm"
	"github.com/banksec/backend/internal/models"
	"github.com/banksec/backend/internal/store"
)

const MethodVoice = "voice"

type CaptureRequest struct {
	Account   string `json:"-"`
	Method    string `json:"method" validate:"required,oneof=fingerprint facial voice pin"`
	RawSample string `json:"rawSample" validate:"required"`
	DeviceID  string `json:"deviceId" validate:"omitempty,max=128"`
}

type CaptureResult struct {
	Success      bool      `json:"success"`
	Method       string    `json:"method"`
	Confidence   float64   `json:"confidence"`
	SessionToken string    `json:"sessionToken,omitempty"`
	CapturedAt   time.Time `json:"capturedAt"`
	ExpiresAt    time.Time `json:"expiresAt,omitempty"`
}

// CaptureService stands in for the identity-capture device. A successful
// capture opens a short-lived session whose token is the fresh proof the
// authorization gate asks for.
type CaptureService struct {
	store         store.Store
	signer        *hsm.Signer
	sessions      SessionStore
	transcriber   Transcriber
	freshness     time.Duration
	minConfidence float64
	now           func() time.Time
}

func NewCaptureService(st store.Store, signer *hsm.Signer, sessions SessionStore, transcriber Transcriber, freshness time.Duration, minConfidence float64) *CaptureService {
	return &CaptureService{
		store:         st,
		signer:        signer,
		sessions:      sessions,
		transcriber:   transcriber,
		freshness:     freshness,
		minConfidence: minConfidence,
		now:           time.Now,
	}
}

func (s *CaptureService) Authenticate(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	account, err := s.store.GetAccount(ctx, models.NormalizeAccountID(req.Account))
	if err != nil {
		return nil, err
	}
	if !account.Identity.Verified || account.Identity.CredentialHash == "" {
		return nil, fmt.Errorf("%w: no enrolled identity", models.ErrIdentityNotVerified)
	}

	sample, confidence, err := s.extract(ctx, req)
	if err != nil {
		return nil, err
	}

	match := false
	if req.Method == account.Identity.Method {
		match, err = s.signer.VerifyCredential(normalizeSample(req.Method, sample), account.Identity.CredentialHash)
		if err != nil {
			return nil, err
		}
	}

	result := &CaptureResult{
		Success:    match && confidence >= s.minConfidence,
		Method:     req.Method,
		Confidence: confidence,
		CapturedAt: s.now().UTC(),
	}
	if !match {
		result.Confidence = 0
	}

	if err := s.sessions.AppendHistory(ctx, account.ID, CaptureRecord{
		Method:     req.Method,
		Success:    result.Success,
		Confidence: result.Confidence,
		DeviceID:   req.DeviceID,
		CapturedAt: result.CapturedAt,
	}); err != nil {
		log.Printf("[IDENTITY] failed to record capture for %s: %v", account.ID, err)
	}

	if !result.Success {
		log.Printf("[IDENTITY] capture rejected for %s method=%s", account.ID, req.Method)
		return result, nil
	}

	token, err := s.signer.GenerateSessionToken()
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, token, IdentitySession{
		Account:    account.ID,
		Method:     req.Method,
		Confidence: result.Confidence,
		CapturedAt: result.CapturedAt,
	}, s.freshness); err != nil {
		return nil, fmt.Errorf("failed to open identity session: %w", err)
	}

	result.SessionToken = token
	result.ExpiresAt = result.CapturedAt.Add(s.freshness)
	return result, nil
}

// extract turns the raw capture into the comparable sample. Voice audio
// is transcribed; other methods carry the sample directly.
func (s *CaptureService) extract(ctx context.Context, req CaptureRequest) (string, float64, error) {
	if req.Method != MethodVoice {
		return req.RawSample, 1.0, nil
	}
	if s.transcriber == nil {
		return "", 0, errors.New("voice capture unavailable")
	}

	audio, err := base64.StdEncoding.DecodeString(req.RawSample)
	if err != nil {
		return "", 0, fmt.Errorf("failed to decode audio: %w", err)
	}
	transcript, confidence, err := s.transcriber.Transcribe(ctx, audio)
	if err != nil {
		return "", 0, err
	}
	return transcript, confidence, nil
}

// Proof resolves a session token into the proof the gate evaluates. An
// unknown or expired token yields an unverified proof.
func (s *CaptureService) Proof(ctx context.Context, token string) models.IdentityProof {
	if token == "" {
		return models.IdentityProof{}
	}
	session, err := s.sessions.Load(ctx, token)
	if err != nil {
		return models.IdentityProof{SessionToken: token}
	}
	return models.IdentityProof{
		Verified:     true,
		Method:       session.Method,
		Confidence:   session.Confidence,
		SessionToken: token,
		CapturedAt:   session.CapturedAt,
	}
}

// VerifyProof confirms the proof's session is live and bound to the account.
func (s *CaptureService) VerifyProof(ctx context.Context, accountID string, proof models.IdentityProof) error {
	if proof.SessionToken == "" {
		return models.ErrIdentityNotVerified
	}
	session, err := s.sessions.Load(ctx, proof.SessionToken)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrIdentityNotVerified, err)
	}
	if session.Account != models.NormalizeAccountID(accountID) {
		return fmt.Errorf("%w: session belongs to another account", models.ErrIdentityNotVerified)
	}
	return nil
}

func (s *CaptureService) History(ctx context.Context, account string, limit int) ([]CaptureRecord, error) {
	return s.sessions.History(ctx, models.NormalizeAccountID(account), limit)
}

// normalizeSample makes spoken passphrases comparable regardless of
// punctuation and case.
func normalizeSample(method, sample string) string {
	if method != MethodVoice {
		return sample
	}
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, sample)
	return strings.Join(strings.Fields(cleaned), " ")
}
