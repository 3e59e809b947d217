package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Profile is the display record mirrored from the identity directory.
type Profile struct {
	Name  string `json:"name" db:"name"`
	Email string `json:"email,omitempty" db:"email"`
	Role  Role   `json:"role" db:"role"`
}

// IdentityRecord holds the enrolled proof-of-identity credential for an account.
type IdentityRecord struct {
	Verified       bool       `json:"verified" db:"identity_verified"`
	Method         string     `json:"method,omitempty" db:"identity_method"`
	CredentialHash string     `json:"-" db:"credential_hash"`
	EnrolledAt     *time.Time `json:"enrolledAt,omitempty" db:"enrolled_at"`
}

// Account is a custodial account keyed by its lowercased address.
type Account struct {
	ID          string         `json:"address" db:"id"`
	Profile     Profile        `json:"profile"`
	Balance     int64          `json:"balance" db:"balance"` // minor units
	Frozen      bool           `json:"frozen" db:"frozen"`
	Identity    IdentityRecord `json:"identity"`
	KYCVerified bool           `json:"kycVerified" db:"kyc_verified"`
	Version     int            `json:"-" db:"version"`
	CreatedAt   time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time      `json:"updatedAt" db:"updated_at"`
}

func (a *Account) IsAdmin() bool {
	return a.Profile.Role == RoleAdmin
}

// NormalizeAccountID lowercases an address so lookups are case-insensitive.
func NormalizeAccountID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
