package auth

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DepartmentCache 部门经理关系缓存(LRU + TTL)
type DepartmentCache struct {
	cache *expirable.LRU[string, []string]
}

// NewDepartmentCache 创建部门缓存
func NewDepartmentCache(size int, ttl time.Duration) *DepartmentCache {
	if size <= 0 {
		size = 1024
	}
	return &DepartmentCache{
		cache: expirable.NewLRU[string, []string](size, nil, ttl),
	}
}

// Get 获取缓存
func (c *DepartmentCache) Get(userID string) ([]string, bool) {
	depts, ok := c.cache.Get(userID)
	if !ok {
		return nil, false
	}
	return append([]string(nil), depts...), true
}

// Set 设置缓存
func (c *DepartmentCache) Set(userID string, depts []string) {
	c.cache.Add(userID, append([]string(nil), depts...))
}

// Invalidate 删除用户缓存
func (c *DepartmentCache) Invalidate(userID string) {
	c.cache.Remove(userID)
}

// Clear 清空缓存
func (c *DepartmentCache) Clear() {
	c.cache.Purge()
}

// Len 缓存条目数
func (c *DepartmentCache) Len() int {
	return c.cache.Len()
}

// CachedDirectory 带缓存的部门目录
type CachedDirectory struct {
	source DepartmentDirectory
	cache  *DepartmentCache
}

// NewCachedDirectory 创建带缓存的部门目录
func NewCachedDirectory(source DepartmentDirectory, cache *DepartmentCache) *CachedDirectory {
	return &CachedDirectory{
		source: source,
		cache:  cache,
	}
}

// ManagedDepartments 查询用户管理的部门(带缓存),查询失败不写缓存
func (d *CachedDirectory) ManagedDepartments(ctx context.Context, userID string) ([]string, error) {
	if depts, ok := d.cache.Get(userID); ok {
		return depts, nil
	}

	depts, err := d.source.ManagedDepartments(ctx, userID)
	if err != nil {
		return nil, err
	}

	d.cache.Set(userID, depts)
	return depts, nil
}

// Invalidate 关系变更后清除用户缓存
func (d *CachedDirectory) Invalidate(userID string) {
	d.cache.Invalidate(userID)
}
