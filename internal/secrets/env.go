package secrets

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"filippo.io/age"
)

// Set encrypts value under the key at keyPath (created on first use) and
// writes it to the .env file at envPath as name=ENC[age:...].
func Set(envPath, keyPath, name, value string) error {
	if name == "" {
		return errors.New("secret name is required")
	}
	identity, err := EnsureIdentity(keyPath)
	if err != nil {
		return err
	}
	enc, err := Encrypt(value, identity.Recipient())
	if err != nil {
		return err
	}
	return SetEntry(envPath, name, enc)
}

// DecryptEnv replaces every ENC[age:...] environment variable with its
// plaintext and returns the names it decrypted. Values that fail to decrypt
// are left untouched and reported in the joined error.
func DecryptEnv(identity *age.X25519Identity) ([]string, error) {
	var (
		names []string
		errs  []error
	)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !IsEncrypted(value) {
			continue
		}
		plain, err := Decrypt(value, identity)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if err := os.Setenv(name, plain); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, errors.Join(errs...)
}

// HasEncrypted reports whether any environment variable holds an
// ENC[age:...] value.
func HasEncrypted() bool {
	for _, kv := range os.Environ() {
		if _, value, ok := strings.Cut(kv, "="); ok && IsEncrypted(value) {
			return true
		}
	}
	return false
}
