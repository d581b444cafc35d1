// Package backends defines the LFS storage backend descriptors and the repository
// handle interface implemented by the local filesystem and S3 adapters.
package backends

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ebogdum/lfsauth/auth"
)

// DefaultName is the display name of the unnamed default backend
const DefaultName = "default"

// Type identifies a storage backend implementation
type Type string

const (
	TypeFS Type = "fs"
	TypeS3 Type = "s3"
)

// ParseType parses a backend type name, case-insensitively
func ParseType(s string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case TypeFS:
		return TypeFS, nil
	case TypeS3:
		return TypeS3, nil
	default:
		return "", fmt.Errorf("unknown backend type %q", s)
	}
}

// Backend describes a configured storage backend. An empty Name denotes the
// default backend of its type.
type Backend struct {
	Name string
	Type Type
}

// DisplayName returns the backend name, or DefaultName for the default backend
func (b Backend) DisplayName() string {
	if b.Name == "" {
		return DefaultName
	}
	return b.Name
}

// Key identifies the backend for caching; the default backend and a backend
// explicitly named "default" of the same type share a key.
func (b Backend) Key() string {
	return string(b.Type) + ":" + b.DisplayName()
}

func (b Backend) String() string {
	return b.DisplayName() + " (" + string(b.Type) + ")"
}

var (
	// ErrRepositoryNotFound is returned when a backend is not configured or cannot be built
	ErrRepositoryNotFound = errors.New("repository not found")

	// ErrObjectNotFound is returned when an object is absent from a backend
	ErrObjectNotFound = errors.New("object not found")

	// ErrInvalidObjectID is returned for object ids that are not SHA-256 hex digests
	ErrInvalidObjectID = errors.New("invalid object id")
)

// NotFoundError names the backend that could not be resolved
type NotFoundError struct {
	Backend string
	Err     error
}

func (e *NotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("repository for backend %q not found: %v", e.Backend, e.Err)
	}
	return fmt.Sprintf("repository for backend %q not found", e.Backend)
}

// Is matches ErrRepositoryNotFound
func (e *NotFoundError) Is(target error) bool {
	return target == ErrRepositoryNotFound
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// Repository is a handle onto one backend's object store. Handles are shared
// between goroutines and must be safe for concurrent use.
type Repository interface {
	// Backend returns the descriptor this handle was built for
	Backend() Backend

	// Size returns the stored size of an object, or ErrObjectNotFound
	Size(ctx context.Context, oid string) (int64, error)

	// Action returns the client-facing transfer action for an object
	Action(ctx context.Context, op auth.Operation, oid string, size int64) (*auth.ExpiringAction, error)

	// Close releases any resources held by the handle
	Close() error
}

// ValidateObjectID checks that oid is a lowercase hex SHA-256 digest
func ValidateObjectID(oid string) error {
	if len(oid) != 64 {
		return fmt.Errorf("%w: %q", ErrInvalidObjectID, oid)
	}
	for i := 0; i < len(oid); i++ {
		c := oid[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("%w: %q", ErrInvalidObjectID, oid)
		}
	}
	return nil
}
