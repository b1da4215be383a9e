package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"comanda/internal/domain"
	"comanda/internal/microservices/catalog/repository"
)

type CatalogServiceInterface interface {
	GetStaticSnapshot(ctx context.Context, slug string) (domain.CatalogSnapshot, error)
	GetDynamicQuotes(ctx context.Context, slug string) (map[int64]domain.DynamicQuote, error)
	GetMergedCatalog(ctx context.Context, slug string) (domain.MergedCatalog, error)

	UpdateProductStatic(ctx context.Context, actor domain.Actor, slug string, productID int64, in repository.StaticUpdate) error
	SetProductPricing(ctx context.Context, actor domain.Actor, slug string, productID int64, price decimal.Decimal, stock int) error
	SetProductActive(ctx context.Context, actor domain.Actor, slug string, productID int64, active bool) error
}

type CatalogService struct {
	repo  repository.CatalogRepositoryInterface
	cache repository.SnapshotCacheInterface
	lg    *zap.SugaredLogger
}

func NewCatalogService(repo repository.CatalogRepositoryInterface, cache repository.SnapshotCacheInterface, lg *zap.SugaredLogger) CatalogServiceInterface {
	return &CatalogService{repo: repo, cache: cache, lg: lg}
}

// GetStaticSnapshot is cache-first. A cache failure is invisible to the
// caller (we fall back to the store and log it); a store failure is a hard
// CatalogUnavailable.
func (s *CatalogService) GetStaticSnapshot(ctx context.Context, slug string) (domain.CatalogSnapshot, error) {
	snap, gen, hit, err := s.cache.Get(ctx, slug)
	if err != nil {
		s.lg.Warnw("snapshot_cache_read_failed", "branch", slug, "err", err)
	} else if hit {
		return snap, nil
	}

	snap, err = s.repo.BuildSnapshot(ctx, slug)
	if err != nil {
		return domain.CatalogSnapshot{}, storeErr(err)
	}

	// запись строго под тем поколением, что видели до сборки: если между
	// чтением и записью случился bump, снапшот ляжет в мёртвый ключ
	if err := s.cache.Set(ctx, slug, gen, snap); err != nil {
		s.lg.Warnw("snapshot_cache_write_failed", "branch", slug, "err", err)
	}
	return snap, nil
}

func (s *CatalogService) GetDynamicQuotes(ctx context.Context, slug string) (map[int64]domain.DynamicQuote, error) {
	quotes, err := s.repo.GetQuotes(ctx, slug)
	if err != nil {
		return nil, storeErr(err)
	}
	return quotes, nil
}

// GetMergedCatalog fetches the static snapshot and the live quotes
// concurrently and joins them on product id. A product that vanished
// between the two fetches is shown as price 0 / stock 0 instead of failing
// the whole page.
func (s *CatalogService) GetMergedCatalog(ctx context.Context, slug string) (domain.MergedCatalog, error) {
	var (
		snap   domain.CatalogSnapshot
		quotes map[int64]domain.DynamicQuote
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap, err = s.GetStaticSnapshot(gctx, slug)
		return err
	})
	g.Go(func() error {
		var err error
		quotes, err = s.GetDynamicQuotes(gctx, slug)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.MergedCatalog{}, err
	}

	merged := domain.MergedCatalog{
		Branch:         snap.Branch,
		Categories:     snap.Categories,
		PaymentMethods: snap.PaymentMethods,
		DeliveryTypes:  snap.DeliveryTypes,
		Products:       make([]domain.MergedProduct, 0, len(snap.Products)),
	}
	for _, p := range snap.Products {
		q := quotes[p.ID] // zero value when absent
		merged.Products = append(merged.Products, domain.MergedProduct{
			SnapshotProduct: p,
			Price:           q.Price,
			Stock:           q.Stock,
		})
	}
	return merged, nil
}

// UpdateProductStatic mutates cached attributes, so it bumps the branch
// generation afterwards.
func (s *CatalogService) UpdateProductStatic(ctx context.Context, actor domain.Actor, slug string, productID int64, in repository.StaticUpdate) error {
	if err := s.authorize(ctx, actor, slug); err != nil {
		return err
	}
	if err := s.repo.UpdateProductStatic(ctx, slug, productID, in); err != nil {
		return err
	}
	s.bump(ctx, slug)
	return nil
}

// SetProductPricing touches only the never-cached price/stock pair, so the
// snapshot generation stays put.
func (s *CatalogService) SetProductPricing(ctx context.Context, actor domain.Actor, slug string, productID int64, price decimal.Decimal, stock int) error {
	if err := s.authorize(ctx, actor, slug); err != nil {
		return err
	}
	if price.IsNegative() {
		return domain.Invalid("price", "must be >= 0")
	}
	if stock < 0 {
		return domain.Invalid("stock", "must be >= 0")
	}
	return s.repo.SetProductPricing(ctx, slug, productID, price, stock)
}

// SetProductActive changes snapshot membership, hence bumps.
func (s *CatalogService) SetProductActive(ctx context.Context, actor domain.Actor, slug string, productID int64, active bool) error {
	if err := s.authorize(ctx, actor, slug); err != nil {
		return err
	}
	if err := s.repo.SetProductActive(ctx, slug, productID, active); err != nil {
		return err
	}
	s.bump(ctx, slug)
	return nil
}

func (s *CatalogService) authorize(ctx context.Context, actor domain.Actor, slug string) error {
	b, err := s.repo.GetBranchBySlug(ctx, slug)
	if err != nil {
		return storeErr(err)
	}
	if !actor.CanEditCatalog(b.BusinessID) {
		return domain.ErrForbidden
	}
	return nil
}

func (s *CatalogService) bump(ctx context.Context, slug string) {
	// failed bump leaves a stale snapshot behind; loud in the logs
	if err := s.cache.BumpGeneration(ctx, slug); err != nil {
		s.lg.Errorw("snapshot_invalidation_failed", "branch", slug, "err", err)
	}
}

func storeErr(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return errors.Join(domain.ErrCatalogUnavailable, err)
}
