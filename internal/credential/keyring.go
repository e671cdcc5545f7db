package credential

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/99designs/keyring"
)

const serviceName = "orgpulse"

// Keys of the secrets collectors and the insight layer need.
const (
	KeyIMAPPassword = "imap-password"
	KeyJiraToken    = "jira-token"
	KeyLLMAPIKey    = "llm-api-key"
)

// Keys lists every known credential key.
var Keys = []string{KeyIMAPPassword, KeyJiraToken, KeyLLMAPIKey}

// ErrNotFound is returned when a credential is neither in the environment
// nor in the keyring.
var ErrNotFound = errors.New("credential not found")

// Store reads secrets from environment variables first and falls back to
// the OS keyring.
type Store struct {
	ring   keyring.Keyring
	open   func() (keyring.Keyring, error)
	getenv func(string) string
}

// New returns a Store backed by the system keyring. The keyring is opened
// on first use.
func New() *Store {
	return &Store{open: openKeyring, getenv: os.Getenv}
}

// NewWithKeyring returns a Store over ring; getenv may be nil to ignore
// the environment.
func NewWithKeyring(ring keyring.Keyring, getenv func(string) string) *Store {
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	return &Store{ring: ring, getenv: getenv}
}

// EnvName is the environment variable overriding key, e.g.
// ORGPULSE_JIRA_TOKEN.
func EnvName(key string) string {
	return "ORGPULSE_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/orgpulse/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("orgpulse-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

func (s *Store) keyring() (keyring.Keyring, error) {
	if s.ring != nil {
		return s.ring, nil
	}
	if s.open == nil {
		return nil, errors.New("no keyring configured")
	}
	ring, err := s.open()
	if err != nil {
		return nil, err
	}
	s.ring = ring
	return ring, nil
}

// Get retrieves a credential by key.
func (s *Store) Get(key string) (string, error) {
	if v := s.getenv(EnvName(key)); v != "" {
		return v, nil
	}

	ring, err := s.keyring()
	if err != nil {
		return "", err
	}
	item, err := ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("%w: %s (set %s or store it in the keyring)", ErrNotFound, key, EnvName(key))
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential in the keyring.
func (s *Store) Set(key, value string) error {
	ring, err := s.keyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: serviceName + " " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential from the keyring.
func (s *Store) Delete(key string) error {
	ring, err := s.keyring()
	if err != nil {
		return err
	}

	if err := ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}
