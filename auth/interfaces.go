// Package auth issues and verifies the short-lived encrypted tokens that gate LFS object
// transfers. It includes the content-access authorizer used by the filesystem backend,
// the transfer-session authorizer used to bridge SSH pre-authorization into HTTP requests,
// and API key authentication for the internal endpoints.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Operation is the LFS transfer direction a token is bound to
type Operation string

const (
	OperationUpload   Operation = "upload"
	OperationDownload Operation = "download"
)

// ParseOperation parses an operation name case-insensitively
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(strings.ToLower(strings.TrimSpace(s))); op {
	case OperationUpload, OperationDownload:
		return op, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOperation, s)
	}
}

// Common authentication/authorization errors
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrInvalidToken         = errors.New("invalid token")
	ErrInvalidOperation     = errors.New("invalid operation")
	ErrDelimiterInField     = errors.New("token field contains reserved delimiter")
)

// Authenticator defines the interface for caller authentication
type Authenticator interface {
	// Authenticate validates a credential and returns the associated user ID
	Authenticate(ctx context.Context, token string) (userID string, err error)
}

// AccountLookup resolves a username carried by a transfer token to a known account
type AccountLookup interface {
	// LookupUser returns the canonical account name, or false if the user is unknown
	LookupUser(ctx context.Context, username string) (string, bool)
}
