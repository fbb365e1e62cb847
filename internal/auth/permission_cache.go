package auth

import (
	"context"
	"sync"
	"time"
)

// PermissionCache OpenFGA 查询结果的 TTL 缓存，按对象分组以便关系变更时整组失效
type PermissionCache struct {
	ttl time.Duration

	mu      sync.Mutex
	objects map[string]map[grant]cachedDecision
}

type grant struct {
	user     string
	relation string
}

type cachedDecision struct {
	allowed bool
	expires time.Time
}

// NewPermissionCache 创建权限缓存
func NewPermissionCache(ttl time.Duration) *PermissionCache {
	return &PermissionCache{ttl: ttl, objects: make(map[string]map[grant]cachedDecision)}
}

func objectKey(objectType, objectID string) string {
	return objectType + ":" + objectID
}

// Get 第二个返回值为 false 表示未命中或已过期
func (c *PermissionCache) Get(userID, relation, objectType, objectID string) (allowed, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj := objectKey(objectType, objectID)
	g := grant{userID, relation}
	d, found := c.objects[obj][g]
	if !found {
		return false, false
	}
	if time.Now().After(d.expires) {
		delete(c.objects[obj], g)
		return false, false
	}
	return d.allowed, true
}

// Set 写入一次查询结果
func (c *PermissionCache) Set(userID, relation, objectType, objectID string, allowed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj := objectKey(objectType, objectID)
	grants, ok := c.objects[obj]
	if !ok {
		grants = make(map[grant]cachedDecision)
		c.objects[obj] = grants
	}
	grants[grant{userID, relation}] = cachedDecision{allowed: allowed, expires: time.Now().Add(c.ttl)}
}

// InvalidateObject 丢弃某个对象上的全部结果，关系元组改写后调用
func (c *PermissionCache) InvalidateObject(objectType, objectID string) {
	c.mu.Lock()
	delete(c.objects, objectKey(objectType, objectID))
	c.mu.Unlock()
}

// Clear 清空缓存
func (c *PermissionCache) Clear() {
	c.mu.Lock()
	c.objects = make(map[string]map[grant]cachedDecision)
	c.mu.Unlock()
}

// CachedChecker 带缓存的关系查询，只缓存成功的结果
type CachedChecker struct {
	checker RelationChecker
	cache   *PermissionCache
}

// NewCachedChecker 创建带缓存的关系查询
func NewCachedChecker(checker RelationChecker, cache *PermissionCache) *CachedChecker {
	return &CachedChecker{
		checker: checker,
		cache:   cache,
	}
}

// CheckPermission 实现 RelationChecker
func (c *CachedChecker) CheckPermission(ctx context.Context, userID, relation, objectType, objectID string) (bool, error) {
	if allowed, hit := c.cache.Get(userID, relation, objectType, objectID); hit {
		return allowed, nil
	}

	allowed, err := c.checker.CheckPermission(ctx, userID, relation, objectType, objectID)
	if err != nil {
		return false, err
	}
	c.cache.Set(userID, relation, objectType, objectID, allowed)
	return allowed, nil
}
