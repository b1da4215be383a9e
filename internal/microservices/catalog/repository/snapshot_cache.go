package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"comanda/internal/connections/redis"
	"comanda/internal/domain"
)

// SnapshotCacheInterface is the static-snapshot cache keyed by branch slug
// plus a per-branch generation counter. Invalidation is always an explicit
// generation bump by a static-attribute write; there is no TTL.
//
// Get reports the generation it observed and Set writes under that same
// generation: a rebuild that raced a bump lands on the dead old-generation
// key instead of pinning stale content under the live one.
type SnapshotCacheInterface interface {
	Get(ctx context.Context, slug string) (domain.CatalogSnapshot, int64, bool, error)
	Set(ctx context.Context, slug string, gen int64, snap domain.CatalogSnapshot) error
	BumpGeneration(ctx context.Context, slug string) error
}

type SnapshotCache struct {
	rdb *redis.Client
}

func NewSnapshotCache(rdb *redis.Client) SnapshotCacheInterface {
	return &SnapshotCache{rdb: rdb}
}

func genKey(slug string) string { return "catalog:" + slug + ":gen" }

func snapKey(slug string, gen int64) string {
	return fmt.Sprintf("catalog:%s:snap:%d", slug, gen)
}

func (c *SnapshotCache) generation(ctx context.Context, slug string) (int64, error) {
	gen, err := c.rdb.Get(ctx, genKey(slug)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *SnapshotCache) Get(ctx context.Context, slug string) (domain.CatalogSnapshot, int64, bool, error) {
	gen, err := c.generation(ctx, slug)
	if err != nil {
		return domain.CatalogSnapshot{}, 0, false, err
	}
	raw, err := c.rdb.Get(ctx, snapKey(slug, gen)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.CatalogSnapshot{}, gen, false, nil
	}
	if err != nil {
		return domain.CatalogSnapshot{}, gen, false, err
	}
	var snap domain.CatalogSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		// повреждённый кэш — считаем промахом, перезапишется
		return domain.CatalogSnapshot{}, gen, false, nil
	}
	return snap, gen, true, nil
}

// Set writes under the generation the caller observed at read time, never
// under the current one. If a bump happened in between, the write goes to a
// key nobody reads anymore.
func (c *SnapshotCache) Set(ctx context.Context, slug string, gen int64, snap domain.CatalogSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, snapKey(slug, gen), raw, 0).Err()
}

// BumpGeneration evicts the current snapshot and moves the branch to the
// next generation in one pipeline.
func (c *SnapshotCache) BumpGeneration(ctx context.Context, slug string) error {
	gen, err := c.generation(ctx, slug)
	if err != nil {
		return err
	}
	pipe := c.rdb.TxPipeline()
	pipe.Incr(ctx, genKey(slug))
	pipe.Del(ctx, snapKey(slug, gen))
	_, err = pipe.Exec(ctx)
	return err
}
