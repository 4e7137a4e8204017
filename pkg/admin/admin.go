// Package admin manages the kiosk administrator password that gates
// enrollment and user removal.
package admin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 4

var (
	// ErrNotConfigured is returned when no admin password has been set.
	ErrNotConfigured = errors.New("admin password not configured")

	// ErrWrongPassword is returned when a password does not match.
	ErrWrongPassword = errors.New("wrong admin password")

	// ErrPasswordTooShort is returned by Set for passwords below MinPasswordLength.
	ErrPasswordTooShort = fmt.Errorf("admin password must be at least %d characters", MinPasswordLength)
)

// Store keeps the bcrypt hash of the admin password in a single file.
type Store struct {
	path string
	cost int
}

// NewStore creates a Store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path, cost: bcrypt.DefaultCost}
}

// Path returns the secret file location.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a password has been set.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.path)
	return err == nil && info.Size() > 0
}

// Set replaces the admin password.
func (s *Store) Set(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create secret directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(hash, '\n'), 0600); err != nil {
		return fmt.Errorf("failed to write secret: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to save secret: %w", err)
	}
	return nil
}

// Verify checks password against the stored hash.
func (s *Store) Verify(password string) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotConfigured
		}
		return fmt.Errorf("failed to read secret: %w", err)
	}

	hash := []byte(strings.TrimSpace(string(data)))
	if len(hash) == 0 {
		return ErrNotConfigured
	}

	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrWrongPassword
		}
		return fmt.Errorf("corrupt admin secret: %w", err)
	}
	return nil
}
