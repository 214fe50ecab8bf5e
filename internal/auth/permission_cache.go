package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
)

// PermissionCache 权限缓存
type PermissionCache struct {
	cache *cache.Cache
}

// NewPermissionCache 创建权限缓存,过期条目按 2*ttl 周期清理
func NewPermissionCache(ttl time.Duration) *PermissionCache {
	return &PermissionCache{cache: cache.New(ttl, 2*ttl)}
}

// Get 获取缓存
func (c *PermissionCache) Get(key string) (bool, bool) {
	val, found := c.cache.Get(key)
	if !found {
		return false, false
	}
	allowed, ok := val.(bool)
	return allowed, ok
}

// Set 设置缓存
func (c *PermissionCache) Set(key string, value bool) {
	c.cache.SetDefault(key, value)
}

// Delete 删除缓存
func (c *PermissionCache) Delete(key string) {
	c.cache.Delete(key)
}

// Clear 清空缓存
func (c *PermissionCache) Clear() {
	c.cache.Flush()
}

// Len 缓存条目数
func (c *PermissionCache) Len() int {
	return c.cache.ItemCount()
}

func permissionCacheKey(userID, relation, objectType, objectID string) string {
	return fmt.Sprintf("user:%s:%s:%s:%s", userID, relation, objectType, objectID)
}

// RelationWriter 权限关系写入接口
type RelationWriter interface {
	SetRelation(ctx context.Context, userID, relation, objectType, objectID string) error
	DeleteRelation(ctx context.Context, userID, relation, objectType, objectID string) error
}

// RelationStore 可检查并写入权限关系
type RelationStore interface {
	PermissionChecker
	RelationWriter
}

// CachedOpenFGAClient 带缓存的 OpenFGA 客户端
type CachedOpenFGAClient struct {
	client RelationStore
	cache  *PermissionCache
}

// NewCachedOpenFGAClient 创建带缓存的 OpenFGA 客户端
func NewCachedOpenFGAClient(client RelationStore, cache *PermissionCache) *CachedOpenFGAClient {
	return &CachedOpenFGAClient{
		client: client,
		cache:  cache,
	}
}

// CheckPermission 检查权限（带缓存）
func (c *CachedOpenFGAClient) CheckPermission(ctx context.Context, userID, relation, objectType, objectID string) (bool, error) {
	cacheKey := permissionCacheKey(userID, relation, objectType, objectID)
	if value, found := c.cache.Get(cacheKey); found {
		return value, nil
	}

	allowed, err := c.client.CheckPermission(ctx, userID, relation, objectType, objectID)
	if err != nil {
		return false, err
	}

	c.cache.Set(cacheKey, allowed)
	return allowed, nil
}

// SetRelation 设置权限关系
// 关系可以被继承(operation 的 editor 来自 workplace),写入后清空整个缓存
func (c *CachedOpenFGAClient) SetRelation(ctx context.Context, userID, relation, objectType, objectID string) error {
	if err := c.client.SetRelation(ctx, userID, relation, objectType, objectID); err != nil {
		return err
	}
	c.cache.Clear()
	return nil
}

// DeleteRelation 删除权限关系,同样清空缓存
func (c *CachedOpenFGAClient) DeleteRelation(ctx context.Context, userID, relation, objectType, objectID string) error {
	if err := c.client.DeleteRelation(ctx, userID, relation, objectType, objectID); err != nil {
		return err
	}
	c.cache.Clear()
	return nil
}
