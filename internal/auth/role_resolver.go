package auth

import (
	"context"

	"github.com/sirupsen/logrus"
)

// privilegedRoles 按优先级排列,可取消工序的角色
var privilegedRoles = []string{RelationSupervisor, RelationManager}

// WorkplaceRoleResolver 为状态转换解析当前用户角色
//
// 优先使用令牌中的角色;否则查询用户在工位上的 OpenFGA 关系。
type WorkplaceRoleResolver struct {
	checker PermissionChecker
	logger  *logrus.Entry
}

// NewWorkplaceRoleResolver 创建角色解析器,checker 可为 nil
func NewWorkplaceRoleResolver(checker PermissionChecker, logger *logrus.Logger) *WorkplaceRoleResolver {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &WorkplaceRoleResolver{
		checker: checker,
		logger:  logger.WithField("component", "role_resolver"),
	}
}

// ResolveRole 返回用户角色,无法解析时返回空字符串
func (r *WorkplaceRoleResolver) ResolveRole(ctx context.Context, workplace string) string {
	user, ok := UserFromContext(ctx)
	if !ok {
		return ""
	}

	for _, role := range privilegedRoles {
		if user.HasRole(role) {
			return role
		}
	}

	if r.checker != nil && workplace != "" {
		for _, relation := range privilegedRoles {
			allowed, err := r.checker.CheckPermission(ctx, user.ID, relation, ObjectTypeWorkplace, workplace)
			if err != nil {
				r.logger.WithError(err).WithFields(logrus.Fields{
					"user_id":   user.ID,
					"workplace": workplace,
				}).Warn("Workplace role lookup failed")
				break
			}
			if allowed {
				return relation
			}
		}
	}

	if len(user.Roles) > 0 {
		return user.Roles[0]
	}
	return ""
}
