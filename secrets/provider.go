// Package secrets fetches dealer credentials from a secrets manager.
package secrets

import "context"

// Provider retrieves a secret by key and returns it as a key-value map.
// It satisfies evm.SecretSource.
type Provider interface {
	GetSecret(ctx context.Context, key string) (map[string]string, error)
}
