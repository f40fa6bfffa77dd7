package domain

import (
	"errors"
	"time"
)

// User is the core account entity. ID is the internal row id and never leaves
// the service; ExternalID is the only handle clients see.
type User struct {
	ID             int64
	ExternalID     string
	Email          string
	Mobile         string
	Provider       Provider
	ProviderUID    string // upstream uid for delegated accounts; empty for password accounts
	PasswordHash   string // empty for delegated accounts
	DisplayName    string
	AvatarURL      string
	EmailVerified  bool
	MobileVerified bool
	Active         bool
	LastDeviceID   string // audit signal only, overwritten on every login
	LastLoginAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Provider tags how the account authenticates. Password accounts carry a
// bcrypt hash; every other provider delegates verification upstream.
type Provider string

const (
	ProviderPassword Provider = "password"
	ProviderGoogle   Provider = "google"
	ProviderFirebase Provider = "firebase"
	ProviderOTP      Provider = "otp"
)

// Delegated reports whether the provider relies on an upstream identity
// assertion instead of a local password.
func (p Provider) Delegated() bool {
	return p != ProviderPassword && p != ""
}

// Validate validates the user for persistence. Returns an error describing the
// first validation failure.
func (u *User) Validate() error {
	if u.ExternalID == "" {
		return errors.New("external id is required")
	}
	if u.Email == "" && u.Mobile == "" {
		return errors.New("at least one of email or mobile is required")
	}
	if u.Provider == "" {
		return errors.New("provider is required")
	}
	if u.Provider == ProviderPassword && u.PasswordHash == "" {
		return errors.New("password hash is required for password accounts")
	}
	if u.Provider.Delegated() && u.ProviderUID == "" {
		return errors.New("provider uid is required for delegated accounts")
	}
	return nil
}
