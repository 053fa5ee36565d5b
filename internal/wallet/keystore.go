package wallet

import (
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"strings"
	"sync"

	"github.com/99designs/keyring"
)

const keychainService = "lsdredeem"

var (
	// ErrLocked is returned when a stored key cannot be unlocked, including
	// when the user declines the keychain prompt.
	ErrLocked = errors.New("wallet key could not be unlocked")
	// ErrKeyMissing means the keychain holds nothing under a wallet's key
	// reference.
	ErrKeyMissing = errors.New("wallet key missing from keychain")
)

// KeystoreBackend stores private keys out of band from wallets.json.
type KeystoreBackend interface {
	Store(name, hexKey string) (ref string, err error)
	Retrieve(ref string) (string, error)
	Delete(ref string) error
}

// Keystore wraps OS keychain access.
type Keystore struct {
	ring keyring.Keyring
}

// OpenKeystore opens the OS keychain. On Linux without a desktop keyring the
// encrypted file backend under fileDir is used and prompt supplies its
// password; nil means keyring.TerminalPrompt. The file backend asks at most
// once per Keystore.
func OpenKeystore(fileDir string, prompt keyring.PromptFunc) (*Keystore, error) {
	if prompt == nil {
		prompt = keyring.TerminalPrompt
	}
	cfg := keyring.Config{
		ServiceName:              keychainService,
		KeychainTrustApplication: true,
		FileDir:                  fileDir,
		FilePasswordFunc:         prompt,
	}
	if runtime.GOOS == "linux" {
		cfg.AllowedBackends = []keyring.BackendType{
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.FileBackend,
		}
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		cfg.AllowedBackends = []keyring.BackendType{keyring.FileBackend}
		ring, err = keyring.Open(cfg)
		if err != nil {
			return nil, fmt.Errorf("opening keychain: %w", err)
		}
	}
	return &Keystore{ring: ring}, nil
}

// NewKeystore wraps an already-open keyring.
func NewKeystore(ring keyring.Keyring) *Keystore {
	return &Keystore{ring: ring}
}

// Store saves a private key for a wallet name and returns a reference key.
func (k *Keystore) Store(name, hexKey string) (string, error) {
	ref := keyRef(name)
	err := k.ring.Set(keyring.Item{
		Key:         ref,
		Data:        []byte(normaliseHexKey(hexKey)),
		Label:       "lsdredeem wallet " + name,
		Description: "EVM private key",
	})
	if err != nil {
		return "", fmt.Errorf("keychain store: %w", err)
	}
	return ref, nil
}

// Retrieve fetches a private key by its reference.
func (k *Keystore) Retrieve(ref string) (string, error) {
	item, err := k.ring.Get(ref)
	if errors.Is(err, keyring.ErrKeyNotFound) || errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrKeyMissing, ref)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLocked, err)
	}
	return string(item.Data), nil
}

// Delete removes a stored key. Deleting a missing key is not an error.
func (k *Keystore) Delete(ref string) error {
	err := k.ring.Remove(ref)
	if errors.Is(err, keyring.ErrKeyNotFound) || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// InMemoryKeystore keeps keys in memory (for tests).
type InMemoryKeystore struct {
	mu   sync.Mutex
	data map[string]string
}

// NewInMemoryKeystore creates an in-memory keystore.
func NewInMemoryKeystore() *InMemoryKeystore {
	return &InMemoryKeystore{data: make(map[string]string)}
}

func (k *InMemoryKeystore) Store(name, hexKey string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	ref := keyRef(name)
	k.data[ref] = normaliseHexKey(hexKey)
	return ref, nil
}

func (k *InMemoryKeystore) Retrieve(ref string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.data[ref]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrKeyMissing, ref)
	}
	return v, nil
}

func (k *InMemoryKeystore) Delete(ref string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.data, ref)
	return nil
}

func keyRef(name string) string { return keychainService + "." + name }

// normaliseHexKey trims whitespace and a 0x prefix.
func normaliseHexKey(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}
