package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/banksec/backend/internal/hsm"
	"github.com/banksec/backend/internal/models"
	"github.com/banksec/backend/internal/store"
)

type SignupRequest struct {
	Address string `json:"address" validate:"required,min=3,max=64,alphanum"`
	Name    string `json:"name" validate:"required,min=2,max=255"`
	Email   string `json:"email" validate:"omitempty,email"`
	Pin     string `json:"pin" validate:"required,min=4,max=12,numeric"`
}

type EnrollRequest struct {
	Method string `json:"method" validate:"required,oneof=fingerprint facial voice pin"`
	Sample string `json:"sample" validate:"required,min=4"`
}

// DirectoryService is the off-chain mirror of account identities.
type DirectoryService struct {
	store  store.Store
	signer *hsm.Signer
	now    func() time.Time
}

func NewDirectoryService(st store.Store, signer *hsm.Signer) *DirectoryService {
	return &DirectoryService{store: st, signer: signer, now: time.Now}
}

func (s *DirectoryService) Lookup(ctx context.Context, id string) (*models.Account, error) {
	return s.store.GetAccount(ctx, models.NormalizeAccountID(id))
}

func (s *DirectoryService) Create(ctx context.Context, id string, profile models.Profile) (*models.Account, error) {
	return s.create(ctx, id, profile, models.IdentityRecord{})
}

// create writes the account and its identity record in one insert, so an
// account never exists without the credential it was opened with.
func (s *DirectoryService) create(ctx context.Context, id string, profile models.Profile, identity models.IdentityRecord) (*models.Account, error) {
	id = models.NormalizeAccountID(id)
	if id == "" {
		return nil, fmt.Errorf("%w: empty address", models.ErrAccountNotFound)
	}
	if profile.Role == "" {
		profile.Role = models.RoleCustomer
	}

	now := s.now().UTC()
	account := &models.Account{
		ID:        id,
		Profile:   profile,
		Identity:  identity,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	log.Printf("[DIRECTORY] account %s created role=%s", id, profile.Role)
	return account, nil
}

// Signup opens a customer account with a PIN credential.
func (s *DirectoryService) Signup(ctx context.Context, req SignupRequest) (*models.Account, error) {
	identity, err := s.credential("pin", req.Pin)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, req.Address, models.Profile{Name: req.Name, Email: req.Email}, identity)
}

// EnsureAdmin creates the bootstrap administrator if it does not exist.
func (s *DirectoryService) EnsureAdmin(ctx context.Context, id, pin string) error {
	identity, err := s.credential("pin", pin)
	if err != nil {
		return err
	}
	_, err = s.create(ctx, id, models.Profile{Name: "Administrator", Role: models.RoleAdmin}, identity)
	if errors.Is(err, models.ErrDuplicateAccount) {
		return nil
	}
	return err
}

func (s *DirectoryService) List(ctx context.Context) ([]models.Account, error) {
	return s.store.ListAccounts(ctx)
}

// Enroll stores a hashed identity credential for the account. Voice
// samples are the enrolment passphrase as text.
func (s *DirectoryService) Enroll(ctx context.Context, id, method, sample string) error {
	id = models.NormalizeAccountID(id)
	if _, err := s.store.GetAccount(ctx, id); err != nil {
		return err
	}

	identity, err := s.credential(method, sample)
	if err != nil {
		return err
	}
	if err := s.store.UpdateIdentity(ctx, id, identity); err != nil {
		return err
	}

	log.Printf("[DIRECTORY] identity enrolled for %s method=%s", id, method)
	return nil
}

func (s *DirectoryService) credential(method, sample string) (models.IdentityRecord, error) {
	hash, err := s.signer.HashCredential(normalizeSample(method, sample))
	if err != nil {
		return models.IdentityRecord{}, err
	}
	now := s.now().UTC()
	return models.IdentityRecord{
		Verified:       true,
		Method:         method,
		CredentialHash: hash,
		EnrolledAt:     &now,
	}, nil
}
