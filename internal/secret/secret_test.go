package secret

import (
	"errors"
	"reflect"
	"testing"
)

func TestResolver(t *testing.T) {
	env := map[string]string{"PG_PASSWORD": "from-env"}
	var gotArgs []string
	keychain := &KeychainStore{run: func(name string, args ...string) ([]byte, error) {
		gotArgs = append([]string{name}, args...)
		return []byte("from-keychain\n"), nil
	}}
	r := Resolver{Env: EnvStore{Getenv: func(k string) string { return env[k] }}, Keychain: keychain}

	tests := map[string]string{
		"":                  "",
		"PG_PASSWORD":       "from-env",
		"env:PG_PASSWORD":   "from-env",
		"env:MISSING":       "",
		"keychain:deploy":   "from-keychain",
		" keychain:deploy ": "from-keychain",
	}
	for ref, want := range tests {
		got, err := r.Resolve(ref)
		if err != nil {
			t.Errorf("Resolve(%q): %v", ref, err)
			continue
		}
		if got != want {
			t.Errorf("Resolve(%q) = %q, want %q", ref, got, want)
		}
	}

	want := []string{"security", "find-generic-password", "-a", "deploy", "-s", "swissdamed", "-w"}
	if !reflect.DeepEqual(gotArgs, want) {
		t.Fatalf("keychain args = %v", gotArgs)
	}

	if _, err := r.Resolve("vault:x"); err == nil {
		t.Fatal("expected error for unknown scheme")
	}
}

func TestResolver_NoKeychain(t *testing.T) {
	r := Resolver{Env: EnvStore{Getenv: func(string) string { return "" }}}
	if _, err := r.Resolve("keychain:x"); err == nil {
		t.Fatal("expected error without a keychain")
	}
}

func TestKeychainStore_Error(t *testing.T) {
	k := &KeychainStore{run: func(string, ...string) ([]byte, error) {
		return nil, errors.New("security: not found in PATH")
	}}
	if _, err := k.Get("x"); err == nil {
		t.Fatal("expected error")
	}
}
