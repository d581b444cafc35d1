package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ebogdum/lfsauth/auth"
	"github.com/ebogdum/lfsauth/backends"
)

type fakeRepository struct {
	backend backends.Backend
	closed  atomic.Bool
}

func (f *fakeRepository) Backend() backends.Backend { return f.backend }

func (f *fakeRepository) Size(ctx context.Context, oid string) (int64, error) {
	return 0, backends.ErrObjectNotFound
}

func (f *fakeRepository) Action(ctx context.Context, op auth.Operation, oid string, size int64) (*auth.ExpiringAction, error) {
	return &auth.ExpiringAction{Href: "fake://" + f.backend.DisplayName() + "/" + oid}, nil
}

func (f *fakeRepository) Close() error {
	f.closed.Store(true)
	return nil
}

// countingLoader builds fake repositories and counts constructions per backend key
type countingLoader struct {
	mu    sync.Mutex
	calls map[string]int
	delay time.Duration
	fail  map[string]error
}

func newCountingLoader() *countingLoader {
	return &countingLoader{calls: make(map[string]int), fail: make(map[string]error)}
}

func (l *countingLoader) load(ctx context.Context, b backends.Backend) (backends.Repository, error) {
	l.mu.Lock()
	l.calls[b.Key()]++
	err := l.fail[b.Key()]
	l.mu.Unlock()

	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	if err != nil {
		return nil, err
	}
	return &fakeRepository{backend: b}, nil
}

func (l *countingLoader) count(b backends.Backend) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[b.Key()]
}

var (
	fsDefault = backends.Backend{Type: backends.TypeFS}
	fsArchive = backends.Backend{Name: "archive", Type: backends.TypeFS}
	s3Cloud   = backends.Backend{Name: "cloud", Type: backends.TypeS3}
)

func TestRepositoryCacheReturnsSameHandle(t *testing.T) {
	loader := newCountingLoader()
	cache := NewRepositoryCache(loader.load, zap.NewNop())
	ctx := context.Background()

	first, err := cache.Get(ctx, fsDefault)
	require.NoError(t, err)
	second, err := cache.Get(ctx, backends.Backend{Name: "default", Type: backends.TypeFS})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, loader.count(fsDefault))
}

func TestRepositoryCacheDistinctBackendsGetDistinctHandles(t *testing.T) {
	loader := newCountingLoader()
	cache := NewRepositoryCache(loader.load, zap.NewNop())
	ctx := context.Background()

	a, err := cache.Get(ctx, fsDefault)
	require.NoError(t, err)
	b, err := cache.Get(ctx, fsArchive)
	require.NoError(t, err)
	c, err := cache.Get(ctx, s3Cloud)
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.NotSame(t, b, c)
	assert.Equal(t, fsArchive, b.Backend())
	assert.Equal(t, 3, cache.Len())
}

func TestRepositoryCacheConcurrentFirstAccessLoadsOnce(t *testing.T) {
	loader := newCountingLoader()
	loader.delay = 20 * time.Millisecond
	cache := NewRepositoryCache(loader.load, zap.NewNop())

	const workers = 32
	results := make([]backends.Repository, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			repo, err := cache.Get(context.Background(), s3Cloud)
			if err == nil {
				results[i] = repo
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, loader.count(s3Cloud))
	for i := 1; i < workers; i++ {
		require.NotNil(t, results[i])
		assert.Same(t, results[0], results[i])
	}
}

func TestRepositoryCacheDoesNotCacheFailures(t *testing.T) {
	loader := newCountingLoader()
	loader.fail[s3Cloud.Key()] = errors.New("bucket unreachable")
	cache := NewRepositoryCache(loader.load, zap.NewNop())
	ctx := context.Background()

	_, err := cache.Get(ctx, s3Cloud)
	require.Error(t, err)
	assert.ErrorIs(t, err, backends.ErrRepositoryNotFound)
	var nf *backends.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "cloud", nf.Backend)

	loader.mu.Lock()
	delete(loader.fail, s3Cloud.Key())
	loader.mu.Unlock()

	repo, err := cache.Get(ctx, s3Cloud)
	require.NoError(t, err)
	assert.NotNil(t, repo)
	assert.Equal(t, 2, loader.count(s3Cloud))
}

func TestRepositoryCachePutAndInvalidate(t *testing.T) {
	loader := newCountingLoader()
	cache := NewRepositoryCache(loader.load, zap.NewNop())
	ctx := context.Background()

	preset := &fakeRepository{backend: fsArchive}
	cache.Put(fsArchive, preset)

	got, err := cache.Get(ctx, fsArchive)
	require.NoError(t, err)
	assert.Same(t, preset, got)
	assert.Equal(t, 0, loader.count(fsArchive))

	replacement := &fakeRepository{backend: fsArchive}
	cache.Put(fsArchive, replacement)
	assert.True(t, preset.closed.Load())

	cache.Invalidate(fsArchive)
	assert.True(t, replacement.closed.Load())

	rebuilt, err := cache.Get(ctx, fsArchive)
	require.NoError(t, err)
	assert.NotSame(t, replacement, rebuilt)
	assert.Equal(t, 1, loader.count(fsArchive))
}

func TestRepositoryCacheClose(t *testing.T) {
	loader := newCountingLoader()
	cache := NewRepositoryCache(loader.load, zap.NewNop())
	ctx := context.Background()

	a, err := cache.Get(ctx, fsDefault)
	require.NoError(t, err)
	b, err := cache.Get(ctx, s3Cloud)
	require.NoError(t, err)

	require.NoError(t, cache.Close())
	assert.True(t, a.(*fakeRepository).closed.Load())
	assert.True(t, b.(*fakeRepository).closed.Load())
	assert.Equal(t, 0, cache.Len())
}

func TestRepositoryCacheCancelledCallerDoesNotFailOthers(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var loaderCtxErr atomic.Value

	cache := NewRepositoryCache(func(ctx context.Context, b backends.Backend) (backends.Repository, error) {
		close(started)
		<-release
		loaderCtxErr.Store(fmt.Sprint(ctx.Err()))
		return &fakeRepository{backend: b}, nil
	}, zap.NewNop())

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.Get(firstCtx, fsDefault)
		firstErr <- err
	}()
	<-started

	secondRepo := make(chan backends.Repository, 1)
	go func() {
		repo, err := cache.Get(context.Background(), fsDefault)
		assert.NoError(t, err)
		secondRepo <- repo
	}()

	cancel()
	err := <-firstErr
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, backends.ErrRepositoryNotFound)

	close(release)
	repo := <-secondRepo
	require.NotNil(t, repo)
	assert.Equal(t, fsDefault, repo.Backend())
	assert.Equal(t, "<nil>", loaderCtxErr.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestRepositoryCacheKeepsLoaderContextErrors(t *testing.T) {
	cache := NewRepositoryCache(func(ctx context.Context, b backends.Backend) (backends.Repository, error) {
		return nil, fmt.Errorf("head bucket: %w", context.DeadlineExceeded)
	}, zap.NewNop())

	_, err := cache.Get(context.Background(), s3Cloud)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, backends.ErrRepositoryNotFound)
}
