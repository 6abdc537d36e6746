package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

const (
	MinPasswordLength = 8
	// bcrypt only looks at the first 72 bytes
	MaxPasswordLength = 72
)

var (
	ErrWeakPassword       = errors.New("password too weak")
	ErrPasswordTooLong    = errors.New("password too long")
	ErrPasswordIsUsername = errors.New("password matches username")
)

// HashPassword checks the password length and returns its bcrypt hash
func HashPassword(password string) (string, error) {
	if err := ValidatePasswordStrength(password); err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword compares a password with its hash
func VerifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// ValidatePasswordStrength enforces the length bounds.
func ValidatePasswordStrength(password string) error {
	switch {
	case len(password) < MinPasswordLength:
		return ErrWeakPassword
	case len(password) > MaxPasswordLength:
		return ErrPasswordTooLong
	}
	return nil
}

// ValidatePassword checks a password chosen at registration for username.
func ValidatePassword(username, password string) error {
	if err := ValidatePasswordStrength(password); err != nil {
		return err
	}
	if username != "" && strings.EqualFold(strings.TrimSpace(password), strings.TrimSpace(username)) {
		return ErrPasswordIsUsername
	}
	return nil
}

// PasswordMessage returns the text shown to the client for a validation
// error, or "" when err is not one.
func PasswordMessage(err error) string {
	switch {
	case errors.Is(err, ErrWeakPassword):
		return fmt.Sprintf("Password must be at least %d characters long", MinPasswordLength)
	case errors.Is(err, ErrPasswordTooLong):
		return fmt.Sprintf("Password must be at most %d bytes long", MaxPasswordLength)
	case errors.Is(err, ErrPasswordIsUsername):
		return "Password must not be the same as the username"
	}
	return ""
}
