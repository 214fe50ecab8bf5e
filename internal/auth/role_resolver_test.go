package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/SheetMetalConnect/api-workshop/internal/auth"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWorkplaceRoleResolver 测试角色解析
func TestWorkplaceRoleResolver(t *testing.T) {
	logger, hook := test.NewNullLogger()
	store := newFakeRelationStore()
	require.NoError(t, store.SetRelation(context.Background(), "carol", auth.RelationManager, auth.ObjectTypeWorkplace, "LASER-01"))
	resolver := auth.NewWorkplaceRoleResolver(store, logger)

	withUser := func(id string, roles ...string) context.Context {
		return auth.WithUser(context.Background(), &auth.User{ID: id, Roles: roles})
	}

	assert.Equal(t, "", resolver.ResolveRole(context.Background(), "LASER-01"), "匿名")
	assert.Equal(t, "supervisor", resolver.ResolveRole(withUser("a", "operator", "Supervisor"), "LASER-01"), "令牌角色优先")
	assert.Equal(t, "manager", resolver.ResolveRole(withUser("carol", "operator"), "LASER-01"), "工位关系")
	assert.Equal(t, "operator", resolver.ResolveRole(withUser("carol", "operator"), "LASER-02"), "其他工位")
	assert.Equal(t, "", resolver.ResolveRole(withUser("dave"), "LASER-01"), "无角色")

	store.err = errors.New("fga down")
	assert.Equal(t, "operator", resolver.ResolveRole(withUser("carol", "operator"), "LASER-01"))
	assert.NotEmpty(t, hook.Entries)
}

// TestUserIDFromContext 测试从 context 读取用户
func TestUserIDFromContext(t *testing.T) {
	assert.Equal(t, "", auth.UserIDFromContext(context.Background()))
	ctx := auth.WithUser(context.Background(), &auth.User{ID: "u1"})
	assert.Equal(t, "u1", auth.UserIDFromContext(ctx))

	user, ok := auth.UserFromContext(ctx)
	require.True(t, ok)
	assert.False(t, user.HasRole("admin"))
}
