// Package core maps projects onto storage backends and keeps the shared
// repository handles for those backends.
package core

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/ebogdum/lfsauth/auth"
	"github.com/ebogdum/lfsauth/backends"
	"github.com/ebogdum/lfsauth/config"
	corelog "github.com/ebogdum/lfsauth/core/log"
	"github.com/ebogdum/lfsauth/metrics"
)

var (
	// ErrLFSUnavailable is returned for projects without an enabled namespace section
	ErrLFSUnavailable = errors.New("LFS is not available for this project")

	// ErrReadOnly is returned for uploads into a read-only namespace
	ErrReadOnly = errors.New("LFS repository is read-only")

	// ErrObjectTooLarge is matched by ObjectTooLargeError
	ErrObjectTooLarge = errors.New("object exceeds size limit")
)

// ObjectTooLargeError reports an upload exceeding the namespace size limit
type ObjectTooLargeError struct {
	OID   string
	Size  int64
	Limit int64
}

func (e *ObjectTooLargeError) Error() string {
	return fmt.Sprintf("size of object %s (%d bytes) exceeds limit (%d bytes)", e.OID, e.Size, e.Limit)
}

// Is matches ErrObjectTooLarge
func (e *ObjectTooLargeError) Is(target error) bool {
	return target == ErrObjectTooLarge
}

// Object is an object named in a transfer request
type Object struct {
	OID  string
	Size int64
}

// Resolver decides which backend serves a project and hands out its repository
type Resolver struct {
	rules          []NamespaceRule
	projects       map[string]string
	defaultBackend backends.Backend
	named          map[string]backends.Backend
	cache          *RepositoryCache
	logger         *zap.Logger
}

// NewResolver creates a resolver over cfg. Namespace patterns are compiled here,
// so an invalid pattern fails construction.
func NewResolver(cfg *config.AppConfig, cache *RepositoryCache, logger *zap.Logger) (*Resolver, error) {
	defaultType, err := backends.ParseType(cfg.Storage.Backend)
	if err != nil {
		return nil, fmt.Errorf("storage.backend: %w", err)
	}

	rules, err := ParseNamespaceRules(cfg.LFS.Namespaces)
	if err != nil {
		return nil, err
	}

	// First declaration of a project wins
	projects := make(map[string]string, len(cfg.LFS.Projects))
	for _, p := range cfg.LFS.Projects {
		if _, seen := projects[p.Name]; !seen {
			projects[p.Name] = p.Backend
		}
	}

	named := make(map[string]backends.Backend)
	for name := range cfg.FS {
		if name != config.DefaultBackendKey {
			named[name] = backends.Backend{Name: name, Type: backends.TypeFS}
		}
	}
	for name := range cfg.S3 {
		if name != config.DefaultBackendKey {
			named[name] = backends.Backend{Name: name, Type: backends.TypeS3}
		}
	}

	return &Resolver{
		rules:          rules,
		projects:       projects,
		defaultBackend: backends.Backend{Type: defaultType},
		named:          named,
		cache:          cache,
		logger:         logger,
	}, nil
}

// DefaultBackend returns the global default backend
func (r *Resolver) DefaultBackend() backends.Backend {
	return r.defaultBackend
}

// Backends returns the default backend followed by every named backend, sorted by name
func (r *Resolver) Backends() []backends.Backend {
	names := make([]string, 0, len(r.named))
	for name := range r.named {
		names = append(names, name)
	}
	sort.Strings(names)

	result := []backends.Backend{r.defaultBackend}
	for _, name := range names {
		result = append(result, r.named[name])
	}
	return result
}

// LookupBackend returns the backend configured under name. Empty and "default"
// select the global default.
func (r *Resolver) LookupBackend(name string) (backends.Backend, error) {
	if name == "" || name == backends.DefaultName {
		return r.defaultBackend, nil
	}
	if b, ok := r.named[name]; ok {
		return b, nil
	}
	return backends.Backend{}, &backends.NotFoundError{Backend: name}
}

// Section returns the first namespace section matching project
func (r *Resolver) Section(project string) (config.NamespaceConfig, bool) {
	return MatchNamespace(r.rules, project)
}

// BackendFor resolves the backend of project: an explicit project entry wins,
// then the matching namespace section's backend, then the global default.
func (r *Resolver) BackendFor(project string) (backends.Backend, error) {
	if name, ok := r.projects[project]; ok {
		metrics.BackendResolutionsTotal.WithLabelValues("project").Inc()
		return r.LookupBackend(name)
	}
	if section, ok := r.Section(project); ok && section.Backend != "" {
		metrics.BackendResolutionsTotal.WithLabelValues("namespace").Inc()
		return r.LookupBackend(section.Backend)
	}
	metrics.BackendResolutionsTotal.WithLabelValues("default").Inc()
	return r.defaultBackend, nil
}

// Repository returns the handle for the backend named backendName; an empty
// name selects the default backend. project is only used for diagnostics.
func (r *Resolver) Repository(ctx context.Context, project, backendName string) (backends.Repository, error) {
	backend, err := r.LookupBackend(backendName)
	if err != nil {
		r.logger.Error("Project refers to unknown backend",
			zap.String("project", corelog.SanitizeProject(project)),
			zap.String("backend", backendName))
		return nil, err
	}
	return r.cache.Get(ctx, backend)
}

// RepositoryFor returns the handle of the backend resolved for project
func (r *Resolver) RepositoryFor(ctx context.Context, project string) (backends.Repository, error) {
	backend, err := r.BackendFor(project)
	if err != nil {
		r.logger.Error("Failed to resolve backend",
			zap.String("project", corelog.SanitizeProject(project)),
			zap.Error(err))
		return nil, err
	}
	return r.cache.Get(ctx, backend)
}

// RepositoryForRequest applies the namespace policy to a transfer request and
// returns the repository serving it. LFS must be enabled for the project; uploads
// are refused for read-only namespaces and for objects above the size limit.
func (r *Resolver) RepositoryForRequest(ctx context.Context, project string, op auth.Operation, objects []Object) (backends.Repository, error) {
	section, ok := r.Section(project)
	if !ok || !section.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrLFSUnavailable, project)
	}

	if op == auth.OperationUpload {
		if section.ReadOnly {
			return nil, fmt.Errorf("%w: %s", ErrReadOnly, project)
		}
		if section.MaxObjectSize > 0 {
			for _, obj := range objects {
				if obj.Size > section.MaxObjectSize {
					return nil, &ObjectTooLargeError{OID: obj.OID, Size: obj.Size, Limit: section.MaxObjectSize}
				}
			}
		}
	}

	return r.RepositoryFor(ctx, project)
}

// Warmup builds the repository of every configured backend. Failures are logged
// and returned together; successfully built handles stay cached.
func (r *Resolver) Warmup(ctx context.Context) error {
	var result *multierror.Error
	for _, backend := range r.Backends() {
		if _, err := r.cache.Get(ctx, backend); err != nil {
			r.logger.Warn("Backend warmup failed",
				zap.Stringer("backend", backend),
				zap.Error(err))
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
