package auth

import (
	"context"
	"strings"
)

type contextKey string

const userContextKey contextKey = "auth_user"

// User 已认证用户
type User struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Roles    []string `json:"roles"`
}

// HasRole 判断是否拥有角色(不区分大小写)
func (u *User) HasRole(role string) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// WithUser 将用户写入 context
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext 从 context 读取用户
func UserFromContext(ctx context.Context) (*User, bool) {
	if ctx == nil {
		return nil, false
	}
	user, ok := ctx.Value(userContextKey).(*User)
	return user, ok && user != nil
}

// UserIDFromContext 从 context 读取用户 ID,兼容 gin.Context 中的 user_id
func UserIDFromContext(ctx context.Context) string {
	if user, ok := UserFromContext(ctx); ok {
		return user.ID
	}
	if ctx != nil {
		if userID, ok := ctx.Value("user_id").(string); ok {
			return userID
		}
	}
	return ""
}
