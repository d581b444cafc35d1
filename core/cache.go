package core

import (
	"context"
	"errors"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ebogdum/lfsauth/backends"
	"github.com/ebogdum/lfsauth/metrics"
)

// LoaderFunc builds the repository handle for a backend
type LoaderFunc func(ctx context.Context, backend backends.Backend) (backends.Repository, error)

// RepositoryCache memoizes one repository handle per backend. Concurrent first
// lookups of the same backend share a single construction.
type RepositoryCache struct {
	mu      sync.RWMutex
	entries map[string]backends.Repository
	group   singleflight.Group
	load    LoaderFunc
	logger  *zap.Logger
}

// NewRepositoryCache creates an empty cache backed by load
func NewRepositoryCache(load LoaderFunc, logger *zap.Logger) *RepositoryCache {
	return &RepositoryCache{
		entries: make(map[string]backends.Repository),
		load:    load,
		logger:  logger,
	}
}

// Get returns the handle for backend, constructing it on first use. Construction
// failures are not cached and are reported as a NotFoundError naming the backend.
// The shared construction outlives any single caller: a caller whose ctx ends
// stops waiting with ctx.Err() while the others still receive the handle.
func (c *RepositoryCache) Get(ctx context.Context, backend backends.Backend) (backends.Repository, error) {
	key := backend.Key()
	if repo, ok := c.lookup(key); ok {
		metrics.RepositoryCacheHitsTotal.Inc()
		return repo, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		// A previous flight may have stored the handle after our first lookup
		if repo, ok := c.lookup(key); ok {
			return repo, nil
		}

		repo, err := c.load(loadCtx, backend)
		if err != nil {
			metrics.RepositoryCacheLoadsTotal.WithLabelValues(string(backend.Type), "failure").Inc()
			c.logger.Error("Failed to build repository",
				zap.Stringer("backend", backend),
				zap.Error(err))
			return nil, err
		}

		c.mu.Lock()
		if existing, ok := c.entries[key]; ok {
			c.mu.Unlock()
			c.closeQuietly(repo)
			return existing, nil
		}
		c.entries[key] = repo
		c.mu.Unlock()

		metrics.RepositoryCacheLoadsTotal.WithLabelValues(string(backend.Type), "success").Inc()
		c.logger.Debug("Repository cached", zap.Stringer("backend", backend))
		return repo, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}

	if err := res.Err; err != nil {
		var nf *backends.NotFoundError
		if errors.As(err, &nf) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &backends.NotFoundError{Backend: backend.DisplayName(), Err: err}
	}
	return res.Val.(backends.Repository), nil
}

// Put stores repo for backend, closing any handle it replaces
func (c *RepositoryCache) Put(backend backends.Backend, repo backends.Repository) {
	key := backend.Key()

	c.mu.Lock()
	old, ok := c.entries[key]
	c.entries[key] = repo
	c.mu.Unlock()

	if ok && old != repo {
		c.closeQuietly(old)
	}
}

// Invalidate drops and closes the handle for backend, if any
func (c *RepositoryCache) Invalidate(backend backends.Backend) {
	key := backend.Key()

	c.mu.Lock()
	repo, ok := c.entries[key]
	delete(c.entries, key)
	c.mu.Unlock()

	if ok {
		c.closeQuietly(repo)
	}
}

// Len returns the number of cached handles
func (c *RepositoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close closes and drops every cached handle
func (c *RepositoryCache) Close() error {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[string]backends.Repository)
	c.mu.Unlock()

	var result *multierror.Error
	for _, repo := range entries {
		if err := repo.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (c *RepositoryCache) lookup(key string) (backends.Repository, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	repo, ok := c.entries[key]
	return repo, ok
}

func (c *RepositoryCache) closeQuietly(repo backends.Repository) {
	if err := repo.Close(); err != nil {
		c.logger.Warn("Failed to close repository",
			zap.Stringer("backend", repo.Backend()),
			zap.Error(err))
	}
}
