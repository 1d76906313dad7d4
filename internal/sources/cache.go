package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spigell/grantfit/internal/program"
)

const cachePrefix = "grantfit:programs"

// Cached serves a connector's listing from redis while it is fresh. Cache
// errors are logged and bypassed.
type Cached struct {
	Connector
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCached(c Connector, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Cached {
	return &Cached{Connector: c, rdb: rdb, ttl: ttl, logger: logger}
}

func (c *Cached) Fetch(ctx context.Context, params Params) ([]*program.Program, error) {
	key := c.key(params)

	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var programs []*program.Program
		if err := json.Unmarshal(data, &programs); err == nil {
			c.logger.Debug("listing served from cache", zap.String("key", key), zap.Int("count", len(programs)))
			return programs, nil
		}
		c.logger.Warn("dropping unreadable cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	programs, err := c.Connector.Fetch(ctx, params)
	if err != nil {
		return nil, err
	}

	data, err = json.Marshal(programs)
	if err != nil {
		return programs, nil
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return programs, nil
}

func (c *Cached) key(params Params) string {
	return fmt.Sprintf("%s:%s:%d:%d:%s", cachePrefix, c.Name(), params.Page, params.PerPage, params.Endpoint)
}
