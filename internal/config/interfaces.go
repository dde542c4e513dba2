package config

import "context"

// SecretProvider resolves secret references (SSM parameter paths in
// deployed environments) to plaintext values.
type SecretProvider interface {
	// GetParametersBatch returns key -> value for every key it could resolve.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
