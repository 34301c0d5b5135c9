package secret

import (
	"fmt"
	"strings"
)

// SecretStore looks up sensitive values such as database and SSH
// passwords. Get returns "" and a nil error when the key is unknown.
type SecretStore interface {
	Get(key string) (string, error)
}

// EnvStore reads secrets from environment variables.
type EnvStore struct {
	Getenv func(string) string
}

func (e EnvStore) Get(key string) (string, error) {
	return e.Getenv(key), nil
}

// Resolver maps a secret reference to its value. References look like
// "keychain:<account>", "env:<VAR>", or a bare variable name.
type Resolver struct {
	Env      SecretStore
	Keychain SecretStore
}

// Resolve returns the value behind ref. An empty ref resolves to "".
func (r Resolver) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", nil
	}
	scheme, key, ok := strings.Cut(ref, ":")
	if !ok {
		return r.Env.Get(ref)
	}
	switch scheme {
	case "env":
		return r.Env.Get(key)
	case "keychain":
		if r.Keychain == nil {
			return "", fmt.Errorf("keychain is not available for %q", ref)
		}
		return r.Keychain.Get(key)
	default:
		return "", fmt.Errorf("unknown secret reference %q", ref)
	}
}
