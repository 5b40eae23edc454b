package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoToken means no usable session token is stored.
var ErrNoToken = errors.New("not logged in")

// Token is an opaque bearer token. The client never verifies it; the
// backend does.
type Token string

// Claims returns the subject and expiry without verifying the signature.
// A token without exp has a zero expiry.
func (t Token) Claims() (subject string, expiresAt time.Time, err error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(string(t), claims); err != nil {
		return "", time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}
	subject, _ = claims.GetSubject()
	if email, ok := claims["email"].(string); ok && email != "" {
		subject = email
	}
	return subject, expiresAt, nil
}

// ExpiresAt returns the exp claim, or the zero time when absent or unreadable.
func (t Token) ExpiresAt() time.Time {
	_, exp, err := t.Claims()
	if err != nil {
		return time.Time{}
	}
	return exp
}

// Expired reports whether the token's exp is at or before now.
func (t Token) Expired(now time.Time) bool {
	exp := t.ExpiresAt()
	return !exp.IsZero() && !now.Before(exp)
}

// TokenFile is the store's file name inside the data dir.
const TokenFile = "token"

// FileStore keeps the token in a 0600 file.
type FileStore struct {
	path string
	now  func() time.Time
}

// NewFileStore stores the token under dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{path: filepath.Join(dir, TokenFile), now: time.Now}
}

// Path returns the token file location.
func (s *FileStore) Path() string { return s.path }

// Save writes the token, creating the directory if needed.
func (s *FileStore) Save(t Token) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(string(t)+"\n"), 0600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// Load returns the stored token, expired or not.
func (s *FileStore) Load() (Token, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	t := Token(strings.TrimSpace(string(data)))
	if t == "" {
		return "", ErrNoToken
	}
	return t, nil
}

// Token returns the stored token unless it has expired.
func (s *FileStore) Token() (string, error) {
	t, err := s.Load()
	if err != nil {
		return "", err
	}
	if t.Expired(s.now()) {
		return "", fmt.Errorf("token expired at %s: %w", t.ExpiresAt().Format(time.RFC3339), ErrNoToken)
	}
	return string(t), nil
}

// Clear removes the stored token. Clearing an empty store is not an error.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}
