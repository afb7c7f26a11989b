package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLookup struct {
	items map[int64]bool
	calls int
	err   error
}

func (s *stubLookup) ItemExists(ctx context.Context, itemID int64) (bool, error) {
	s.calls++
	return s.items[itemID], s.err
}

// unreachableClient 指向无服务端口，所有命令立即失败
func unreachableClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestCatalogCacheFallsBackWhenRedisDown(t *testing.T) {
	client := unreachableClient()
	defer client.Close()

	source := &stubLookup{items: map[int64]bool{7: true}}
	logger, hook := logtest.NewNullLogger()
	c := NewCatalogCache(client, source, time.Minute, logger)

	ok, err := c.ItemExists(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.ItemExists(context.Background(), 8)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 2, source.calls)
	for _, e := range hook.AllEntries() {
		assert.Equal(t, logrus.WarnLevel, e.Level)
	}
	assert.NotEmpty(t, hook.AllEntries())
}

func TestCatalogCachePropagatesSourceError(t *testing.T) {
	client := unreachableClient()
	defer client.Close()

	dbErr := errors.New("db down")
	logger, _ := logtest.NewNullLogger()
	c := NewCatalogCache(client, &stubLookup{err: dbErr}, time.Minute, logger)

	_, err := c.ItemExists(context.Background(), 7)
	assert.ErrorIs(t, err, dbErr)
}

func TestCatalogItemKey(t *testing.T) {
	assert.Equal(t, "catalog:item:42", catalogItemKey(42))
}

func newCachedCatalog(t *testing.T, source *stubLookup) (*miniredis.Miniredis, *CatalogCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger, _ := logtest.NewNullLogger()
	return mr, NewCatalogCache(client, source, time.Minute, logger)
}

func TestCatalogCacheServesCachedFlags(t *testing.T) {
	source := &stubLookup{items: map[int64]bool{7: false, 8: true}}
	mr, c := newCachedCatalog(t, source)
	ctx := context.Background()

	// 缓存与数据源相反，确认读的是缓存
	require.NoError(t, mr.Set(catalogItemKey(7), "1"))
	require.NoError(t, mr.Set(catalogItemKey(8), "0"))

	ok, err := c.ItemExists(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.ItemExists(ctx, 8)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Zero(t, source.calls)
}

func TestCatalogCacheFillsOnMiss(t *testing.T) {
	source := &stubLookup{items: map[int64]bool{7: true}}
	mr, c := newCachedCatalog(t, source)
	ctx := context.Background()

	ok, err := c.ItemExists(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.ItemExists(ctx, 9)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, source.calls)

	val, err := mr.Get(catalogItemKey(7))
	require.NoError(t, err)
	assert.Equal(t, "1", val)
	val, err = mr.Get(catalogItemKey(9))
	require.NoError(t, err)
	assert.Equal(t, "0", val)
	assert.Equal(t, time.Minute, mr.TTL(catalogItemKey(9)))

	// 不存在的商品同样命中缓存
	ok, err = c.ItemExists(ctx, 9)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, source.calls)

	// 过期后回源
	mr.FastForward(2 * time.Minute)
	_, err = c.ItemExists(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 3, source.calls)
}
