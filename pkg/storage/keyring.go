package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/zalando/go-keyring"
)

const (
	// ServiceName is the identifier used for all galeview credentials in the system keyring.
	ServiceName = "galeview"

	// BrokerTokenKey holds the id token sent to the broker
	BrokerTokenKey = "broker-token"

	// TokenEnvVar overrides the stored broker token
	TokenEnvVar = "GALEVIEW_TOKEN"

	indexKey = "__galeview_index__"
)

// ErrCredentialNotFound is returned when no credential is stored under a key
var ErrCredentialNotFound = errors.New("credential not found")

// CredentialStore defines the interface for secure credential storage.
type CredentialStore interface {
	// Set stores a credential securely
	Set(key string, value string) error
	// Get retrieves a credential
	Get(key string) (string, error)
	// Delete removes a credential
	Delete(key string) error
	// List returns all credential keys (not the values)
	List() ([]string, error)
}

// KeyringCredentialStore implements CredentialStore using the system keyring.
// - macOS: Uses Keychain
// - Windows: Uses Credential Manager
// - Linux: Uses Secret Service (GNOME Keyring, KWallet)
type KeyringCredentialStore struct {
	service string
}

// NewKeyringCredentialStore creates a new keyring-based credential store.
func NewKeyringCredentialStore() *KeyringCredentialStore {
	return &KeyringCredentialStore{
		service: ServiceName,
	}
}

// Set stores a credential securely in the system keyring.
// The key is used as the account name, and value is the password.
func (s *KeyringCredentialStore) Set(key string, value string) error {
	if key == "" {
		return fmt.Errorf("credential key cannot be empty")
	}

	if err := keyring.Set(s.service, key, value); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}

	// the credential is stored even when the index cannot be updated
	_ = s.updateIndex(func(keys []string) []string {
		if slices.Contains(keys, key) {
			return keys
		}
		return append(keys, key)
	})

	return nil
}

// Get retrieves a credential from the system keyring.
func (s *KeyringCredentialStore) Get(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("credential key cannot be empty")
	}

	value, err := keyring.Get(s.service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrCredentialNotFound, key)
		}
		return "", fmt.Errorf("failed to retrieve credential: %w", err)
	}

	return value, nil
}

// Delete removes a credential from the system keyring.
func (s *KeyringCredentialStore) Delete(key string) error {
	if key == "" {
		return fmt.Errorf("credential key cannot be empty")
	}

	if err := keyring.Delete(s.service, key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrCredentialNotFound, key)
		}
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	_ = s.updateIndex(func(keys []string) []string {
		return slices.DeleteFunc(keys, func(k string) bool { return k == key })
	})

	return nil
}

// List returns all credential keys stored by galeview.
// The index is kept in the keyring as a special entry.
func (s *KeyringCredentialStore) List() ([]string, error) {
	indexJSON, err := keyring.Get(s.service, indexKey)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to retrieve credential index: %w", err)
	}

	var keys []string
	if err := json.Unmarshal([]byte(indexJSON), &keys); err != nil {
		return nil, fmt.Errorf("failed to parse credential index: %w", err)
	}

	return keys, nil
}

func (s *KeyringCredentialStore) updateIndex(update func([]string) []string) error {
	keys, err := s.List()
	if err != nil {
		return err
	}

	indexJSON, err := json.Marshal(update(keys))
	if err != nil {
		return fmt.Errorf("failed to marshal credential index: %w", err)
	}

	if err := keyring.Set(s.service, indexKey, string(indexJSON)); err != nil {
		return fmt.Errorf("failed to save credential index: %w", err)
	}

	return nil
}

// BrokerTokenSource resolves the broker token from the environment first,
// then from a credential store. A missing token is not an error.
type BrokerTokenSource struct {
	Store CredentialStore
}

// Token returns the broker token, or "" when none is configured
func (t BrokerTokenSource) Token() (string, error) {
	if token := os.Getenv(TokenEnvVar); token != "" {
		return token, nil
	}
	if t.Store == nil {
		return "", nil
	}

	token, err := t.Store.Get(BrokerTokenKey)
	if errors.Is(err, ErrCredentialNotFound) {
		return "", nil
	}
	return token, err
}

// TokenSourceName reports where the broker token would come from: "env",
// "keyring" or "" when no token is available.
func (t BrokerTokenSource) TokenSourceName() string {
	if os.Getenv(TokenEnvVar) != "" {
		return "env"
	}
	if t.Store == nil {
		return ""
	}
	if token, err := t.Store.Get(BrokerTokenKey); err == nil && token != "" {
		return "keyring"
	}
	return ""
}
