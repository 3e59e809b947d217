package hsm

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/argon2"

	"github.com/banksec/backend/internal/models"
)

const saltLen = 16

// Signer seals audit entries and hashes identity credentials. The master
// key never leaves the process.
type Signer struct {
	masterKey   []byte
	auditLogger *AuditLogger
}

// Config holds signer configuration
type Config struct {
	MasterKey   string
	Salt        []byte // Optional: if nil, will be generated
	AuditLogger *AuditLogger
}

// InitSigner derives the sealing key from the configured master key.
func InitSigner(config Config) (*Signer, error) {
	if config.MasterKey == "" {
		return nil, errors.New("master key required")
	}

	salt := config.Salt
	if salt == nil {
		salt = make([]byte, saltLen)
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("failed to generate salt: %w", err)
		}
	}

	logger := config.AuditLogger
	if logger == nil {
		logger = NewAuditLogger()
	}

	s := &Signer{
		masterKey:   deriveKey(config.MasterKey, string(salt), 32),
		auditLogger: logger,
	}
	logger.LogOperation("system", "SIGNER_INIT", "audit sealing key derived")
	return s, nil
}

// SignEntry returns the base64 HMAC-SHA256 seal over the entry's committed fields.
func (s *Signer) SignEntry(e *models.AuditEntry) string {
	mac := hmac.New(sha256.New, s.masterKey)
	mac.Write([]byte(entryPayload(e)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyEntry reports whether the entry still matches its seal.
func (s *Signer) VerifyEntry(e *models.AuditEntry) bool {
	sig, err := base64.StdEncoding.DecodeString(e.Signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.masterKey)
	mac.Write([]byte(entryPayload(e)))
	return hmac.Equal(sig, mac.Sum(nil))
}

func entryPayload(e *models.AuditEntry) string {
	return fmt.Sprintf("%s:%s:%s:%d:%s:%s:%s:%d:%s",
		e.ID,
		e.AccountID,
		e.Kind,
		e.Amount,
		e.Counterparty,
		e.LoanID,
		e.SettlementRef,
		e.Sequence,
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
}

// HashCredential hashes an identity sample (PIN, template digest or
// passphrase) with Argon2id. The result is base64(salt || hash).
func (s *Signer) HashCredential(sample string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(sample), salt, 1, 64*1024, 4, 32)

	result := make([]byte, len(salt)+len(hash))
	copy(result, salt)
	copy(result[len(salt):], hash)

	return base64.StdEncoding.EncodeToString(result), nil
}

// VerifyCredential checks a sample against a hash from HashCredential.
func (s *Signer) VerifyCredential(sample, hashed string) (bool, error) {
	decoded, err := base64.StdEncoding.DecodeString(hashed)
	if err != nil {
		return false, fmt.Errorf("invalid credential hash format: %w", err)
	}

	if len(decoded) <= saltLen {
		return false, errors.New("credential hash too short")
	}

	salt := decoded[:saltLen]
	storedHash := decoded[saltLen:]

	inputHash := argon2.IDKey([]byte(sample), salt, 1, 64*1024, 4, 32)

	return subtle.ConstantTimeCompare(inputHash, storedHash) == 1, nil
}

// GenerateSessionToken returns an unguessable identity session token.
func (s *Signer) GenerateSessionToken() (string, error) {
	random := make([]byte, 24)
	if _, err := rand.Read(random); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return "IDS" + hex.EncodeToString(random), nil
}

func deriveKey(password, salt string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), []byte(salt), 3, 32*1024, 4, keyLen)
}
