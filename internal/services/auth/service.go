// Package auth checks operator credentials for the admin endpoints.
package auth

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAdminDisabled      = errors.New("admin access is not configured")
)

// Config holds the single operator account
type Config struct {
	Username     string
	PasswordHash string // bcrypt
}

// Service verifies admin credentials
type Service struct {
	username     string
	passwordHash []byte
}

// New creates a Service. An empty username or hash disables admin access.
func New(cfg Config) *Service {
	return &Service{
		username:     cfg.Username,
		passwordHash: []byte(cfg.PasswordHash),
	}
}

// Enabled reports whether an operator account is configured
func (s *Service) Enabled() bool {
	return s.username != "" && len(s.passwordHash) > 0
}

// Verify checks a username and password pair
func (s *Service) Verify(username, password string) error {
	if !s.Enabled() {
		return ErrAdminDisabled
	}

	userMatch := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	// bcrypt runs even when the username is wrong
	passErr := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password))
	if !userMatch || passErr != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword produces a hash suitable for ADMIN_PASSWORD_HASH
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
