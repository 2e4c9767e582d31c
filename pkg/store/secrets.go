package store

import (
	"crypto/rand"
	"encoding/base64"
)

// GenerateToken returns a URL-safe random token with n bytes of entropy.
func GenerateToken(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}

// EnsureSecret returns the stored value for service/key, generating and
// persisting one when absent or empty.
func (s *Store) EnsureSecret(service, key string, generate func() string) (string, bool, error) {
	secrets, err := s.LoadSecrets()
	if err != nil {
		return "", false, err
	}
	if value := secrets.Get(service, key); value != "" {
		return value, false, nil
	}
	value := generate()
	secrets.Set(service, key, value)
	if err := s.SaveSecrets(secrets); err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetSecret stores a secret value.
func (s *Store) SetSecret(service, key, value string) error {
	secrets, err := s.LoadSecrets()
	if err != nil {
		return err
	}
	secrets.Set(service, key, value)
	return s.SaveSecrets(secrets)
}

// GetSecret reads a secret value, empty when absent.
func (s *Store) GetSecret(service, key string) (string, error) {
	secrets, err := s.LoadSecrets()
	if err != nil {
		return "", err
	}
	return secrets.Get(service, key), nil
}
