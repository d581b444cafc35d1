package auth

import (
	"context"
	"crypto/subtle"
	"strings"
)

// APIKeyAuthenticator authenticates internal callers (such as the SSH daemon
// bridge) using static API keys
type APIKeyAuthenticator struct {
	validKeys map[string]string
}

// NewAPIKeyAuthenticator creates a new API key authenticator. Keys may be given as
// "name:key" to attribute requests to a caller; bare keys are attributed to "internal".
func NewAPIKeyAuthenticator(keys []string) *APIKeyAuthenticator {
	validKeys := make(map[string]string)
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		name, secret, found := strings.Cut(key, ":")
		if !found || name == "" || secret == "" {
			validKeys[key] = "internal"
			continue
		}
		validKeys[secret] = name
	}

	return &APIKeyAuthenticator{
		validKeys: validKeys,
	}
}

// Authenticate validates a key and returns the caller name
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, token string) (string, error) {
	// Remove "Bearer " prefix if present
	token = strings.TrimPrefix(token, "Bearer ")
	token = strings.TrimSpace(token)

	if token == "" {
		return "", ErrAuthenticationFailed
	}

	for key, name := range a.validKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1 {
			return name, nil
		}
	}
	return "", ErrAuthenticationFailed
}
