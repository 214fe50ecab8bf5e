package auth_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SheetMetalConnect/api-workshop/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRelationStore 内存权限关系
type fakeRelationStore struct {
	tuples map[string]bool
	calls  int
	err    error
}

func newFakeRelationStore() *fakeRelationStore {
	return &fakeRelationStore{tuples: map[string]bool{}}
}

func (f *fakeRelationStore) key(userID, relation, objectType, objectID string) string {
	return fmt.Sprintf("%s|%s|%s:%s", userID, relation, objectType, objectID)
}

func (f *fakeRelationStore) CheckPermission(_ context.Context, userID, relation, objectType, objectID string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.tuples[f.key(userID, relation, objectType, objectID)], nil
}

func (f *fakeRelationStore) SetRelation(_ context.Context, userID, relation, objectType, objectID string) error {
	f.tuples[f.key(userID, relation, objectType, objectID)] = true
	return nil
}

func (f *fakeRelationStore) DeleteRelation(_ context.Context, userID, relation, objectType, objectID string) error {
	delete(f.tuples, f.key(userID, relation, objectType, objectID))
	return nil
}

// TestPermissionCache_GetSet 测试权限缓存的基本操作
func TestPermissionCache_GetSet(t *testing.T) {
	cache := auth.NewPermissionCache(5 * time.Minute)

	key := "user:user-001:supervisor:workplace:LASER-01"
	cache.Set(key, true)

	value, found := cache.Get(key)
	assert.True(t, found)
	assert.True(t, value)
	assert.Equal(t, 1, cache.Len())

	_, found = cache.Get("non-existent-key")
	assert.False(t, found)

	cache.Clear()
	assert.Equal(t, 0, cache.Len())
}

// TestPermissionCache_Expiration 测试缓存过期
func TestPermissionCache_Expiration(t *testing.T) {
	cache := auth.NewPermissionCache(50 * time.Millisecond)
	cache.Set("k", true)

	_, found := cache.Get("k")
	assert.True(t, found)

	time.Sleep(100 * time.Millisecond)
	_, found = cache.Get("k")
	assert.False(t, found)
}

// TestCachedOpenFGAClient 测试缓存命中与写入失效
func TestCachedOpenFGAClient(t *testing.T) {
	ctx := context.Background()
	store := newFakeRelationStore()
	client := auth.NewCachedOpenFGAClient(store, auth.NewPermissionCache(time.Minute))

	allowed, err := client.CheckPermission(ctx, "u1", "supervisor", "workplace", "LASER-01")
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = client.CheckPermission(ctx, "u1", "supervisor", "workplace", "LASER-01")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 1, store.calls)

	require.NoError(t, client.SetRelation(ctx, "u1", "supervisor", "workplace", "LASER-01"))
	allowed, err = client.CheckPermission(ctx, "u1", "supervisor", "workplace", "LASER-01")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 2, store.calls)

	require.NoError(t, client.DeleteRelation(ctx, "u1", "supervisor", "workplace", "LASER-01"))
	allowed, err = client.CheckPermission(ctx, "u1", "supervisor", "workplace", "LASER-01")
	require.NoError(t, err)
	assert.False(t, allowed)

	store.err = errors.New("fga down")
	_, err = client.CheckPermission(ctx, "u2", "manager", "workplace", "LASER-01")
	assert.Error(t, err)
}

// TestCachedOpenFGAClient_WriteFlushesDerived 测试写入工位元组后继承关系不再命中旧缓存
func TestCachedOpenFGAClient_WriteFlushesDerived(t *testing.T) {
	ctx := context.Background()
	store := newFakeRelationStore()
	client := auth.NewCachedOpenFGAClient(store, auth.NewPermissionCache(time.Minute))

	_, err := client.CheckPermission(ctx, "alice", auth.RelationEditor, auth.ObjectTypeOperation, "WO-1/1/0010")
	require.NoError(t, err)
	_, err = client.CheckPermission(ctx, "alice", auth.RelationEditor, auth.ObjectTypeOperation, "WO-1/1/0010")
	require.NoError(t, err)
	assert.Equal(t, 1, store.calls)

	require.NoError(t, client.SetRelation(ctx, auth.WorkplaceSubject("LASER-01"), auth.RelationWorkplace, auth.ObjectTypeOperation, "WO-1/1/0010"))
	assert.True(t, store.tuples["workplace:LASER-01|workplace|operation:WO-1/1/0010"])

	_, err = client.CheckPermission(ctx, "alice", auth.RelationEditor, auth.ObjectTypeOperation, "WO-1/1/0010")
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)

	require.NoError(t, client.DeleteRelation(ctx, auth.WorkplaceSubject("LASER-01"), auth.RelationWorkplace, auth.ObjectTypeOperation, "WO-1/1/0010"))
	assert.Empty(t, store.tuples)
}

// TestPermissionMiddleware 测试权限中间件
func TestPermissionMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newFakeRelationStore()
	require.NoError(t, store.SetRelation(context.Background(), "alice", auth.RelationEditor, auth.ObjectTypeOperation, "WO-1/1/0010"))

	router := gin.New()
	router.Use(auth.DevAuthMiddleware())
	router.DELETE("/operations/:order_no/:asset_id/:operation_no",
		auth.PermissionMiddleware(store, auth.ObjectTypeOperation, auth.RelationEditor, auth.OperationObjectID),
		func(c *gin.Context) { c.Status(http.StatusNoContent) })

	cases := []struct {
		name string
		user string
		path string
		want int
	}{
		{"有权限", "alice", "/operations/WO-1/1/0010", http.StatusNoContent},
		{"无权限", "bob", "/operations/WO-1/1/0010", http.StatusForbidden},
		{"其他工序", "alice", "/operations/WO-1/1/0020", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodDelete, tc.path, nil)
			req.Header.Set("X-User-ID", tc.user)
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}

	store.err = errors.New("fga down")
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/operations/WO-1/1/0010", nil)
	req.Header.Set("X-User-ID", "alice")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// TestGetPermissionModel 测试权限模型包含工位与工序类型
func TestGetPermissionModel(t *testing.T) {
	model := auth.GetPermissionModel()
	assert.Contains(t, model, "type workplace")
	assert.Contains(t, model, "type operation")
	assert.Contains(t, model, "define supervisor")
}
