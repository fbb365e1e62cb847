package auth_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/auth"
	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var booking = &model.BookingModel{ID: "b1", ClientID: "client-1", ProviderID: "provider-1"}

// TestRelationAuthorizer 测试基于预订关系的鉴权
func TestRelationAuthorizer(t *testing.T) {
	a := auth.NewRelationAuthorizer()
	ctx := context.Background()

	tests := []struct {
		name     string
		caller   auth.Caller
		relation string
		want     bool
	}{
		{"client views", auth.Caller{UserID: "client-1"}, auth.RelationViewer, true},
		{"client cannot edit", auth.Caller{UserID: "client-1"}, auth.RelationEditor, false},
		{"provider edits", auth.Caller{UserID: "provider-1"}, auth.RelationEditor, true},
		{"stranger", auth.Caller{UserID: "someone"}, auth.RelationViewer, false},
		{"admin", auth.Caller{UserID: "root", Roles: []string{auth.RoleAdmin}}, auth.RelationEditor, true},
		{"anonymous", auth.Caller{}, auth.RelationViewer, false},
		{"unknown relation", auth.Caller{UserID: "provider-1"}, "owner", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := a.Authorize(ctx, tt.caller, booking, tt.relation)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

// countingChecker 记录查询次数
type countingChecker struct {
	calls   int
	allowed map[string]bool
	err     error
}

func (c *countingChecker) CheckPermission(_ context.Context, userID, relation, objectType, objectID string) (bool, error) {
	c.calls++
	if c.err != nil {
		return false, c.err
	}
	return c.allowed[strings.Join([]string{userID, relation, objectType, objectID}, "|")], nil
}

// TestFGAAuthorizer_WithCache 测试 OpenFGA 鉴权与缓存
func TestFGAAuthorizer_WithCache(t *testing.T) {
	inner := &countingChecker{allowed: map[string]bool{"client-1|viewer|booking|b1": true}}
	cache := auth.NewPermissionCache(time.Minute)
	a := auth.NewFGAAuthorizer(auth.NewCachedChecker(inner, cache))
	ctx := context.Background()
	client := auth.Caller{UserID: "client-1"}

	for i := 0; i < 3; i++ {
		ok, err := a.Authorize(ctx, client, booking, auth.RelationViewer)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 1, inner.calls)

	ok, err := a.Authorize(ctx, client, booking, auth.RelationEditor)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, inner.calls)

	cache.InvalidateObject("booking", "b1")
	_, _ = a.Authorize(ctx, client, booking, auth.RelationViewer)
	assert.Equal(t, 3, inner.calls)

	// 管理员不查询 OpenFGA
	ok, err = a.Authorize(ctx, auth.Caller{UserID: "x", Roles: []string{auth.RoleAdmin}}, booking, auth.RelationEditor)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, inner.calls)
}

// TestCachedChecker_ErrorsNotCached 查询失败不写缓存
func TestCachedChecker_ErrorsNotCached(t *testing.T) {
	inner := &countingChecker{err: errors.New("openfga down")}
	c := auth.NewCachedChecker(inner, auth.NewPermissionCache(time.Minute))

	_, err := c.CheckPermission(context.Background(), "u", "viewer", "booking", "b1")
	assert.Error(t, err)
	_, err = c.CheckPermission(context.Background(), "u", "viewer", "booking", "b1")
	assert.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}

// TestPermissionCache_Expiry 测试缓存过期
func TestPermissionCache_Expiry(t *testing.T) {
	cache := auth.NewPermissionCache(20 * time.Millisecond)
	cache.Set("u1", "viewer", "booking", "b1", true)

	v, ok := cache.Get("u1", "viewer", "booking", "b1")
	assert.True(t, ok)
	assert.True(t, v)
	_, ok = cache.Get("u1", "editor", "booking", "b1")
	assert.False(t, ok)

	time.Sleep(40 * time.Millisecond)
	_, ok = cache.Get("u1", "viewer", "booking", "b1")
	assert.False(t, ok)

	cache.Set("u1", "viewer", "booking", "b1", false)
	cache.Set("u1", "viewer", "booking", "b2", false)
	cache.InvalidateObject("booking", "b1")
	_, ok = cache.Get("u1", "viewer", "booking", "b1")
	assert.False(t, ok)
	_, ok = cache.Get("u1", "viewer", "booking", "b2")
	assert.True(t, ok)

	cache.Clear()
	_, ok = cache.Get("u1", "viewer", "booking", "b2")
	assert.False(t, ok)
}

// TestGetPermissionModel 测试授权模型包含预订关系
func TestGetPermissionModel(t *testing.T) {
	m := auth.GetPermissionModel()
	assert.Contains(t, m, "type booking")
	assert.Contains(t, m, "define viewer: client or editor")
}
