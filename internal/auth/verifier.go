package auth

import (
	"context"
	"strings"
)

// Credential is a stored login record from one of the identity spaces.
type Credential struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
}

// CredentialStore spans the two identity spaces that may mint tokens.
// Email uniqueness across spaces is assumed, not enforced here.
type CredentialStore interface {
	FindAdminByEmail(ctx context.Context, email string) (Credential, error)
	FindDoctorByEmail(ctx context.Context, email string) (Credential, error)
}

// Verifier resolves an email/password pair to a principal.
type Verifier struct {
	store CredentialStore
}

// NewVerifier constructs a Verifier over the given credential store.
func NewVerifier(store CredentialStore) *Verifier {
	return &Verifier{store: store}
}

// Verify checks the credentials against the admin space first, then the
// doctor space; the first matching email wins. Every failure collapses to
// ErrInvalidCredentials. No side effects.
func (v *Verifier) Verify(ctx context.Context, email, password string) (Principal, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return Principal{}, ErrInvalidCredentials
	}

	cred, role, err := v.resolve(ctx, email)
	if err != nil {
		return Principal{}, ErrInvalidCredentials
	}
	if err := VerifyPassword(cred.PasswordHash, password); err != nil {
		return Principal{}, ErrInvalidCredentials
	}
	return Principal{Subject: cred.Email, Role: role}, nil
}

func (v *Verifier) resolve(ctx context.Context, email string) (Credential, Role, error) {
	if cred, err := v.store.FindAdminByEmail(ctx, email); err == nil {
		return cred, RoleAdmin, nil
	}
	cred, err := v.store.FindDoctorByEmail(ctx, email)
	if err != nil {
		return Credential{}, "", err
	}
	return cred, RoleDoctor, nil
}
