// Package localfs implements LFS object storage on a local filesystem.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/ebogdum/lfsauth/auth"
	"github.com/ebogdum/lfsauth/backends"
	"github.com/ebogdum/lfsauth/config"
	"github.com/ebogdum/lfsauth/internal/pathutil"
)

// ContentPathPrefix is the URL path under which object content is served
const ContentPathPrefix = "/content"

// Repository implements backends.Repository for a local data directory. Transfers
// are served by the content endpoint and gated by content tokens.
type Repository struct {
	backend     backends.Backend
	dataDir     string
	externalURL string
	expiresIn   int64
	authorizer  *auth.ContentAuthorizer
	logger      *zap.Logger
}

// NewRepository creates a repository for backend, making sure its data directory exists
func NewRepository(
	backend backends.Backend,
	cfg config.FSBackendConfig,
	defaultDataDir string,
	externalURL string,
	authorizer *auth.ContentAuthorizer,
	logger *zap.Logger,
) (*Repository, error) {
	dataDir := ResolveDataDirectory(cfg, defaultDataDir)
	if err := EnsureDataDirectory(dataDir); err != nil {
		return nil, err
	}

	expiresIn := int64(cfg.ExpirationSeconds)
	if expiresIn <= 0 {
		expiresIn = config.DefaultFSExpirationSeconds
	}

	logger.Info("Filesystem repository ready",
		zap.String("backend", backend.DisplayName()),
		zap.String("data_dir", dataDir))

	return &Repository{
		backend:     backend,
		dataDir:     dataDir,
		externalURL: strings.TrimSuffix(externalURL, "/"),
		expiresIn:   expiresIn,
		authorizer:  authorizer,
		logger:      logger,
	}, nil
}

// Backend implements backends.Repository
func (r *Repository) Backend() backends.Backend {
	return r.backend
}

// DataDirectory returns the directory objects are stored under
func (r *Repository) DataDirectory() string {
	return r.dataDir
}

// ObjectPath returns the on-disk location of an object, laid out as aa/bb/<oid>
func (r *Repository) ObjectPath(oid string) (string, error) {
	if err := backends.ValidateObjectID(oid); err != nil {
		return "", err
	}
	return pathutil.SafeJoin(r.dataDir, path.Join(oid[0:2], oid[2:4], oid))
}

// Size implements backends.Repository
func (r *Repository) Size(ctx context.Context, oid string) (int64, error) {
	p, err := r.ObjectPath(oid)
	if err != nil {
		return 0, err
	}

	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, backends.ErrObjectNotFound
		}
		return 0, fmt.Errorf("failed to stat object %s: %w", oid, err)
	}
	return info.Size(), nil
}

// ContentHref returns the URL an object's content is transferred through
func (r *Repository) ContentHref(oid string) string {
	return r.externalURL + ContentPathPrefix + "/" + url.PathEscape(r.backend.DisplayName()) + "/" + oid
}

// Action implements backends.Repository. The action carries a content token bound
// to exactly this object and direction.
func (r *Repository) Action(ctx context.Context, op auth.Operation, oid string, size int64) (*auth.ExpiringAction, error) {
	if err := backends.ValidateObjectID(oid); err != nil {
		return nil, err
	}

	info, err := r.authorizer.Issue(op, oid, r.expiresIn)
	if err != nil {
		return nil, fmt.Errorf("failed to issue content token: %w", err)
	}

	r.logger.Debug("Issued filesystem action",
		zap.String("backend", r.backend.DisplayName()),
		zap.String("operation", string(op)),
		zap.String("oid", oid),
		zap.Int64("size", size))

	return auth.NewExpiringAction(r.ContentHref(oid), info), nil
}

// Close implements backends.Repository
func (r *Repository) Close() error {
	return nil
}
