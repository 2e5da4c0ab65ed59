package auth

import "errors"

var (
	// ErrInvalidCredentials covers both unknown subjects and wrong passwords;
	// callers must not learn which one failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken indicates the token is malformed, unverifiable or expired.
	ErrInvalidToken = errors.New("invalid token")
)
