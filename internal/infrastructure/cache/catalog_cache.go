package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// ItemLookup 商品目录查询
type ItemLookup interface {
	ItemExists(ctx context.Context, itemID int64) (bool, error)
}

// CatalogCache 商品是否存在的读穿缓存
//
// 存在与不存在都会缓存，TTL 到期后回源。Redis 故障时直接回源，不影响交易。
type CatalogCache struct {
	client *redis.Client
	source ItemLookup
	ttl    time.Duration
	log    logrus.FieldLogger
}

func NewCatalogCache(client *redis.Client, source ItemLookup, ttl time.Duration, log logrus.FieldLogger) *CatalogCache {
	return &CatalogCache{client: client, source: source, ttl: ttl, log: log}
}

func catalogItemKey(itemID int64) string {
	return fmt.Sprintf("catalog:item:%d", itemID)
}

func (c *CatalogCache) ItemExists(ctx context.Context, itemID int64) (bool, error) {
	key := catalogItemKey(itemID)

	val, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		return val == "1", nil
	case err != redis.Nil:
		c.log.WithError(err).WithField("item_id", itemID).Warn("读取商品缓存失败，回源查询")
	}

	exists, err := c.source.ItemExists(ctx, itemID)
	if err != nil {
		return false, err
	}

	flag := "0"
	if exists {
		flag = "1"
	}
	if err := c.client.Set(ctx, key, flag, c.ttl).Err(); err != nil {
		c.log.WithError(err).WithField("item_id", itemID).Warn("写入商品缓存失败")
	}
	return exists, nil
}
