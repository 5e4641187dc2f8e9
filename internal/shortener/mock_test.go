package shortener

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/linknote/internal/model"
	"github.com/hitoshi/linknote/internal/repository"
)

type mockRepo struct {
	createFn          func(ctx context.Context, u *model.ShortURL) error
	findByKeyFn       func(ctx context.Context, key string) (*model.ShortURL, error)
	listByOwnerFn     func(ctx context.Context, owner int64, q model.ListQuery) ([]*model.ShortURL, error)
	countByOwnerFn    func(ctx context.Context, owner int64) (int, error)
	updateFn          func(ctx context.Context, owner int64, key string, patch repository.ShortURLPatch) (*model.ShortURL, error)
	deleteFn          func(ctx context.Context, owner int64, key string) error
	incrementClicksFn func(ctx context.Context, key string) error

	mu      sync.Mutex
	clicked []string
}

func (m *mockRepo) Create(ctx context.Context, u *model.ShortURL) error {
	if m.createFn != nil {
		return m.createFn(ctx, u)
	}
	return nil
}

func (m *mockRepo) Exists(ctx context.Context, key string) (bool, error) {
	return false, nil
}

func (m *mockRepo) FindByKey(ctx context.Context, key string) (*model.ShortURL, error) {
	if m.findByKeyFn != nil {
		return m.findByKeyFn(ctx, key)
	}
	return nil, nil
}

func (m *mockRepo) ListByOwner(ctx context.Context, owner int64, q model.ListQuery) ([]*model.ShortURL, error) {
	if m.listByOwnerFn != nil {
		return m.listByOwnerFn(ctx, owner, q)
	}
	return nil, nil
}

func (m *mockRepo) CountByOwner(ctx context.Context, owner int64) (int, error) {
	if m.countByOwnerFn != nil {
		return m.countByOwnerFn(ctx, owner)
	}
	return 0, nil
}

func (m *mockRepo) Update(ctx context.Context, owner int64, key string, patch repository.ShortURLPatch) (*model.ShortURL, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, owner, key, patch)
	}
	return nil, nil
}

func (m *mockRepo) Delete(ctx context.Context, owner int64, key string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, owner, key)
	}
	return nil
}

func (m *mockRepo) IncrementClicks(ctx context.Context, key string) error {
	m.mu.Lock()
	m.clicked = append(m.clicked, key)
	m.mu.Unlock()
	if m.incrementClicksFn != nil {
		return m.incrementClicksFn(ctx, key)
	}
	return nil
}

func (m *mockRepo) ListPendingTitles(ctx context.Context, limit int) ([]*model.ShortURL, error) {
	return nil, nil
}

func (m *mockRepo) UpdateTitle(ctx context.Context, key string, title *string, fetchedAt time.Time) error {
	return nil
}

func (m *mockRepo) clickedKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.clicked...)
}

var _ repository.ShortURLRepository = (*mockRepo)(nil)

// seqAliases は決まった順にエイリアスを返す。
type seqAliases struct {
	aliases []string
	calls   int
}

func (g *seqAliases) Generate(ctx context.Context) (string, error) {
	a := g.aliases[g.calls%len(g.aliases)]
	g.calls++
	return a, nil
}

type mockValidator struct {
	err error
}

func (v mockValidator) ValidateURL(string) error { return v.err }

// mapCache はメモリ上のDestinationCache。
type mapCache struct {
	entries map[string]string
	deleted []string
	getErr  error
}

func newMapCache() *mapCache { return &mapCache{entries: map[string]string{}} }

func (c *mapCache) Get(ctx context.Context, alias string) (string, bool, error) {
	if c.getErr != nil {
		return "", false, c.getErr
	}
	d, ok := c.entries[alias]
	return d, ok, nil
}

func (c *mapCache) Set(ctx context.Context, alias, destination string) error {
	c.entries[alias] = destination
	return nil
}

func (c *mapCache) Delete(ctx context.Context, alias string) error {
	delete(c.entries, alias)
	c.deleted = append(c.deleted, alias)
	return nil
}

type countingRecorder struct {
	created int
	hits    int
	misses  int
}

func (r *countingRecorder) RecordShortURLCreated() { r.created++ }

func (r *countingRecorder) RecordRedirect(cacheHit bool) {
	if cacheHit {
		r.hits++
	} else {
		r.misses++
	}
}
