package secret

import (
	"errors"
	"os/exec"
	"strings"
)

const keychainService = "swissdamed"

// KeychainStore reads secrets from the macOS Keychain via the
// `security` CLI tool. Items are generic passwords with service
// "swissdamed" and the key as account.
type KeychainStore struct {
	// run executes the command and returns stdout; replaced in tests.
	run func(name string, args ...string) ([]byte, error)
}

// NewKeychainStore creates a new KeychainStore.
func NewKeychainStore() *KeychainStore {
	return &KeychainStore{run: func(name string, args ...string) ([]byte, error) {
		return exec.Command(name, args...).Output()
	}}
}

// Get retrieves a secret from the Keychain.
// Returns "" and nil error if the item doesn't exist.
func (k *KeychainStore) Get(key string) (string, error) {
	out, err := k.run("security", "find-generic-password",
		"-a", key,
		"-s", keychainService,
		"-w", // output only the password
	)
	if err != nil {
		// "security" exits with 44 when the item is not found.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 44 {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
