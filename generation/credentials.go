package generation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// KeySource yields an API key. An empty key with a nil error means the source
// has nothing to offer and the next one should be tried.
type KeySource interface {
	Key(ctx context.Context) (string, error)
}

// KeySourceFunc adapts a function to KeySource
type KeySourceFunc func(ctx context.Context) (string, error)

func (f KeySourceFunc) Key(ctx context.Context) (string, error) { return f(ctx) }

// EnvKey reads the key from an environment variable at call time
func EnvKey(name string) KeySource {
	return KeySourceFunc(func(context.Context) (string, error) {
		return strings.TrimSpace(os.Getenv(name)), nil
	})
}

// StaticKey always returns key
func StaticKey(key string) KeySource {
	return KeySourceFunc(func(context.Context) (string, error) {
		return key, nil
	})
}

// CredentialStore is where a user selected key is persisted
type CredentialStore interface {
	Credential(ctx context.Context) (string, error)
}

// StoredKey reads the key a user selected through the credential flow
func StoredKey(cs CredentialStore) KeySource {
	return KeySourceFunc(func(ctx context.Context) (string, error) {
		key, err := cs.Credential(ctx)
		return strings.TrimSpace(key), err
	})
}

// KeyResolver walks its sources in order and returns the first key found.
// Keys are never cached so a re-authenticated key is picked up on the next call.
type KeyResolver struct {
	sources []KeySource
}

// NewKeyResolver creates a resolver over ordered sources
func NewKeyResolver(sources ...KeySource) *KeyResolver {
	return &KeyResolver{sources: sources}
}

// Resolve returns the first non-empty key or ErrMissingCredential
func (r *KeyResolver) Resolve(ctx context.Context) (string, error) {
	if r == nil {
		return "", ErrMissingCredential
	}
	var errs []error
	for i, src := range r.sources {
		key, err := src.Key(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("key source %d: %w", i, err))
			continue
		}
		if key != "" {
			return key, nil
		}
	}
	return "", errors.Join(append([]error{ErrMissingCredential}, errs...)...)
}
