package auth

// OpenFGA 对象类型与关系
const (
	ObjectTypeWorkplace = "workplace"
	ObjectTypeOperation = "operation"

	RelationSupervisor = "supervisor"
	RelationManager    = "manager"
	RelationOperator   = "operator"
	RelationViewer     = "viewer"
	RelationEditor     = "editor"

	// RelationWorkplace 工序所属工位,editor/viewer 由此继承
	RelationWorkplace = "workplace"
)

// WorkplaceSubject 工位作为关系主体时的标识
func WorkplaceSubject(workplace string) string {
	return ObjectTypeWorkplace + ":" + workplace
}

// GetPermissionModel 获取 OpenFGA 权限模型定义
func GetPermissionModel() string {
	return `model
  schema 1.1

type user

type workplace
  relations
    define manager: [user]
    define supervisor: [user] or manager
    define operator: [user] or supervisor

type operation
  relations
    define workplace: [workplace]
    define editor: [user] or operator from workplace
    define viewer: [user] or editor`
}
