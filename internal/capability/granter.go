package capability

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoCredential is returned by RequestGrant when the selection flow was
// started without a credential in the context.
var ErrNoCredential = errors.New("no credential selected")

type credentialKey struct{}

// WithCredential attaches the credential chosen by the user to ctx. The
// selection flow reads it back in RequestGrant.
func WithCredential(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, credentialKey{}, key)
}

// CredentialFromContext returns the credential attached by WithCredential.
func CredentialFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(credentialKey{}).(string)
	return key, ok && key != ""
}

// SecretStore reads and writes one named secret.
type SecretStore interface {
	Get(account string) (string, error)
	Set(account, value string) error
}

// SecretGranter grants the capability by storing a credential in a secret
// store. HasGrant reports whether a credential is stored; it does not verify
// the credential with the remote service.
type SecretGranter struct {
	store   SecretStore
	account string
}

// NewSecretGranter stores grants under account.
func NewSecretGranter(store SecretStore, account string) *SecretGranter {
	return &SecretGranter{store: store, account: account}
}

// HasGrant reports whether a non-empty credential is stored. A missing entry
// is not an error.
func (g *SecretGranter) HasGrant(ctx context.Context) (bool, error) {
	v, err := g.store.Get(g.account)
	if err != nil {
		return false, nil
	}
	return strings.TrimSpace(v) != "", nil
}

// RequestGrant stores the credential carried by ctx.
func (g *SecretGranter) RequestGrant(ctx context.Context) error {
	key, ok := CredentialFromContext(ctx)
	if !ok {
		return ErrNoCredential
	}
	if err := g.store.Set(g.account, strings.TrimSpace(key)); err != nil {
		return fmt.Errorf("storing credential: %w", err)
	}
	return nil
}

// Key returns the stored credential. It satisfies the key source used by the
// generation client.
func (g *SecretGranter) Key(ctx context.Context) (string, error) {
	v, err := g.store.Get(g.account)
	if err != nil || strings.TrimSpace(v) == "" {
		return "", ErrNoCredential
	}
	return strings.TrimSpace(v), nil
}
