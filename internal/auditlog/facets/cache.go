// Package facets caches the audit log's distinct-value lists used by filter
// UIs. The lists change rarely and are cheap to rebuild, so a short TTL in
// Redis keeps the reader off the hot path without staleness concerns.
package facets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	platformredis "veritrail/internal/platform/redis"
	"veritrail/internal/tenantscope"
)

// defaultTTL bounds facet staleness.
const defaultTTL = 5 * time.Minute

// Source produces the uncached facet lists.
type Source interface {
	DistinctTableNames(ctx context.Context, scope tenantscope.Scope) ([]string, error)
	DistinctActionTypes(ctx context.Context, scope tenantscope.Scope) ([]string, error)
}

// Cache wraps a Source with per-tenant Redis caching. A nil Redis client
// degrades to a passthrough.
type Cache struct {
	source Source
	rdb    *platformredis.Client
	logger *slog.Logger
	ttl    time.Duration
}

// New constructs a facet cache.
func New(source Source, rdb *platformredis.Client, logger *slog.Logger) (*Cache, error) {
	if source == nil {
		return nil, fmt.Errorf("facet source is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Cache{source: source, rdb: rdb, logger: logger, ttl: defaultTTL}, nil
}

// TableNames returns the tenant's distinct table names, cached.
func (c *Cache) TableNames(ctx context.Context, scope tenantscope.Scope) ([]string, error) {
	return c.cached(ctx, scope, "tables", c.source.DistinctTableNames)
}

// ActionTypes returns the tenant's distinct action types, cached.
func (c *Cache) ActionTypes(ctx context.Context, scope tenantscope.Scope) ([]string, error) {
	return c.cached(ctx, scope, "actions", c.source.DistinctActionTypes)
}

func (c *Cache) cached(ctx context.Context, scope tenantscope.Scope, kind string,
	load func(context.Context, tenantscope.Scope) ([]string, error)) ([]string, error) {

	if c.rdb == nil {
		return load(ctx, scope)
	}

	key := fmt.Sprintf("veritrail:facets:%s:%s", scope.TenantID().String(), kind)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var values []string
		if err := json.Unmarshal(raw, &values); err == nil {
			return values, nil
		}
		// Corrupt cache entry; fall through and rebuild.
	}

	values, err := load(ctx, scope)
	if err != nil {
		return nil, err
	}

	raw, err = json.Marshal(values)
	if err != nil {
		return values, nil
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		// Cache write failure never fails the read path.
		c.logger.WarnContext(ctx, "facet cache write failed", "key", key, "error", err)
	}
	return values, nil
}
