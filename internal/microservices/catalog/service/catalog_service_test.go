package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comanda/internal/domain"
	"comanda/internal/logger"
	"comanda/internal/microservices/catalog/repository"
)

type fakeCatalogRepo struct {
	branch domain.Branch
	snap   domain.CatalogSnapshot
	quotes map[int64]domain.DynamicQuote

	builds    int
	storeDown bool
	onBuild   func() // runs after the snapshot is taken, before it is returned
}

var errStoreDown = errors.New("connection refused")

func (f *fakeCatalogRepo) GetBranchBySlug(ctx context.Context, slug string) (domain.Branch, error) {
	if f.storeDown {
		return domain.Branch{}, errStoreDown
	}
	if slug != f.branch.Slug {
		return domain.Branch{}, domain.ErrNotFound
	}
	return f.branch, nil
}

func (f *fakeCatalogRepo) BuildSnapshot(ctx context.Context, slug string) (domain.CatalogSnapshot, error) {
	if f.storeDown {
		return domain.CatalogSnapshot{}, errStoreDown
	}
	f.builds++
	snap := f.snap
	if f.onBuild != nil {
		f.onBuild()
	}
	return snap, nil
}

func (f *fakeCatalogRepo) GetQuotes(ctx context.Context, slug string) (map[int64]domain.DynamicQuote, error) {
	if f.storeDown {
		return nil, errStoreDown
	}
	if slug != f.branch.Slug {
		return nil, domain.ErrNotFound
	}
	return f.quotes, nil
}

func (f *fakeCatalogRepo) UpdateProductStatic(ctx context.Context, slug string, productID int64, in repository.StaticUpdate) error {
	for i := range f.snap.Products {
		if f.snap.Products[i].ID == productID {
			f.snap.Products[i].Name = in.Name
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeCatalogRepo) SetProductPricing(ctx context.Context, slug string, productID int64, price decimal.Decimal, stock int) error {
	f.quotes[productID] = domain.DynamicQuote{Price: price, Stock: stock}
	return nil
}

func (f *fakeCatalogRepo) SetProductActive(ctx context.Context, slug string, productID int64, active bool) error {
	return nil
}

// fakeCache mirrors the redis generation scheme in a map, including the
// generation-suffixed snapshot keys.
type fakeCache struct {
	gen   map[string]int64
	snaps map[string]domain.CatalogSnapshot // keyed by slug:gen
	down  bool
	bumps int
}

func newFakeCache() *fakeCache {
	return &fakeCache{gen: map[string]int64{}, snaps: map[string]domain.CatalogSnapshot{}}
}

var errCacheDown = errors.New("redis: connection pool timeout")

func cacheKey(slug string, gen int64) string {
	return fmt.Sprintf("%s:%d", slug, gen)
}

func (c *fakeCache) Get(ctx context.Context, slug string) (domain.CatalogSnapshot, int64, bool, error) {
	if c.down {
		return domain.CatalogSnapshot{}, 0, false, errCacheDown
	}
	gen := c.gen[slug]
	snap, ok := c.snaps[cacheKey(slug, gen)]
	return snap, gen, ok, nil
}

func (c *fakeCache) Set(ctx context.Context, slug string, gen int64, snap domain.CatalogSnapshot) error {
	if c.down {
		return errCacheDown
	}
	c.snaps[cacheKey(slug, gen)] = snap
	return nil
}

func (c *fakeCache) BumpGeneration(ctx context.Context, slug string) error {
	if c.down {
		return errCacheDown
	}
	delete(c.snaps, cacheKey(slug, c.gen[slug]))
	c.gen[slug]++
	c.bumps++
	return nil
}

func fixtureRepo() *fakeCatalogRepo {
	return &fakeCatalogRepo{
		branch: domain.Branch{
			ID: 7, BusinessID: 1, Slug: "centro",
			DeliveryFee: decimal.RequireFromString("2.00"), Active: true,
		},
		snap: domain.CatalogSnapshot{
			Branch: domain.SnapshotBranch{ID: 7, Slug: "centro", Name: "Centro"},
			Products: []domain.SnapshotProduct{
				{ID: 10, CategoryID: 1, Name: "Lomito"},
				{ID: 11, CategoryID: 1, Name: "Empanada"},
			},
		},
		quotes: map[int64]domain.DynamicQuote{
			10: {Price: decimal.RequireFromString("10.00"), Stock: 5},
			11: {Price: decimal.RequireFromString("1.50"), Stock: 30},
		},
	}
}

var owner = domain.Actor{BusinessID: 1, Role: domain.RoleOwner}

func TestGetStaticSnapshot_CacheFirst(t *testing.T) {
	repo := fixtureRepo()
	cache := newFakeCache()
	svc := NewCatalogService(repo, cache, logger.Nop())
	ctx := context.Background()

	first, err := svc.GetStaticSnapshot(ctx, "centro")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.builds, "miss builds from the store")

	second, err := svc.GetStaticSnapshot(ctx, "centro")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.builds, "hit must not touch the store")
	assert.Equal(t, first, second, "unchanged branch serves identical snapshots")
}

func TestGetStaticSnapshot_CacheDownDegradesSilently(t *testing.T) {
	repo := fixtureRepo()
	cache := newFakeCache()
	cache.down = true
	svc := NewCatalogService(repo, cache, logger.Nop())

	snap, err := svc.GetStaticSnapshot(context.Background(), "centro")
	require.NoError(t, err, "cache outage must be invisible to the caller")
	assert.Equal(t, repo.snap, snap)
	assert.Equal(t, 1, repo.builds)
}

func TestGetStaticSnapshot_StoreDown(t *testing.T) {
	repo := fixtureRepo()
	repo.storeDown = true
	svc := NewCatalogService(repo, newFakeCache(), logger.Nop())

	_, err := svc.GetStaticSnapshot(context.Background(), "centro")
	require.ErrorIs(t, err, domain.ErrCatalogUnavailable)
}

func TestStaticEditInvalidates_PricingDoesNot(t *testing.T) {
	repo := fixtureRepo()
	cache := newFakeCache()
	svc := NewCatalogService(repo, cache, logger.Nop())
	ctx := context.Background()

	_, err := svc.GetStaticSnapshot(ctx, "centro")
	require.NoError(t, err)
	require.Equal(t, 1, repo.builds)

	// price/stock change: no bump, snapshot stays cached
	err = svc.SetProductPricing(ctx, owner, "centro", 10, decimal.RequireFromString("12.00"), 4)
	require.NoError(t, err)
	assert.Zero(t, cache.bumps)
	_, err = svc.GetStaticSnapshot(ctx, "centro")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.builds, "pricing write must not evict the static snapshot")

	// static attribute change: bump, next fetch rebuilds with new content
	err = svc.UpdateProductStatic(ctx, owner, "centro", 10, repository.StaticUpdate{Name: "Lomito XL", CategoryID: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.bumps)

	snap, err := svc.GetStaticSnapshot(ctx, "centro")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.builds)
	assert.Equal(t, "Lomito XL", snap.Products[0].Name)
}

func TestRebuildRacingInvalidationCannotPinStaleSnapshot(t *testing.T) {
	repo := fixtureRepo()
	cache := newFakeCache()
	svc := NewCatalogService(repo, cache, logger.Nop())
	ctx := context.Background()

	// an edit commits and bumps the generation while a reader is mid-rebuild
	repo.onBuild = func() {
		repo.onBuild = nil
		repo.snap.Products = []domain.SnapshotProduct{
			{ID: 10, CategoryID: 1, Name: "Lomito XL"},
			{ID: 11, CategoryID: 1, Name: "Empanada"},
		}
		require.NoError(t, cache.BumpGeneration(ctx, "centro"))
	}

	stale, err := svc.GetStaticSnapshot(ctx, "centro")
	require.NoError(t, err)
	assert.Equal(t, "Lomito", stale.Products[0].Name, "the racing reader itself may still see pre-edit data")

	// the raced write must not have landed under the live generation
	fresh, err := svc.GetStaticSnapshot(ctx, "centro")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.builds, "post-bump fetch must rebuild, not hit the raced write")
	assert.Equal(t, "Lomito XL", fresh.Products[0].Name)

	again, err := svc.GetStaticSnapshot(ctx, "centro")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.builds, "the rebuilt snapshot is cached under the live generation")
	assert.Equal(t, fresh, again)
}

func TestGetDynamicQuotes_UnknownBranch(t *testing.T) {
	svc := NewCatalogService(fixtureRepo(), newFakeCache(), logger.Nop())

	_, err := svc.GetDynamicQuotes(context.Background(), "no-such-branch")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.NotErrorIs(t, err, domain.ErrCatalogUnavailable)
}

func TestCatalogEditsRequireOwner(t *testing.T) {
	svc := NewCatalogService(fixtureRepo(), newFakeCache(), logger.Nop())
	staff := domain.Actor{BusinessID: 1, Role: domain.RoleStaff, BranchID: 7}
	foreign := domain.Actor{BusinessID: 2, Role: domain.RoleOwner}
	ctx := context.Background()

	for _, actor := range []domain.Actor{staff, foreign} {
		err := svc.UpdateProductStatic(ctx, actor, "centro", 10, repository.StaticUpdate{Name: "x"})
		require.ErrorIs(t, err, domain.ErrForbidden)
	}
}

func TestGetMergedCatalog(t *testing.T) {
	repo := fixtureRepo()
	// product 11 is in the snapshot but vanished from the live quotes
	delete(repo.quotes, 11)
	svc := NewCatalogService(repo, newFakeCache(), logger.Nop())

	catalog, err := svc.GetMergedCatalog(context.Background(), "centro")
	require.NoError(t, err)
	require.Len(t, catalog.Products, 2)

	assert.True(t, catalog.Products[0].Price.Equal(decimal.RequireFromString("10.00")))
	assert.Equal(t, 5, catalog.Products[0].Stock)

	assert.True(t, catalog.Products[1].Price.IsZero(), "missing quote defaults to zero price")
	assert.Zero(t, catalog.Products[1].Stock)
}
