package rbac

// 权限常量
const (
	// 敏感操作权限
	PermissionSettingsWrite = "settings:write"
	PermissionSettingsRead  = "settings:read"
	PermissionOutboxReplay  = "outbox:replay"

	// 普通操作权限
	PermissionJobCreate       = "job:create"
	PermissionProposalSubmit  = "proposal:submit"
	PermissionContractManage  = "contract:manage"
	PermissionPaymentInitiate = "payment:initiate"
)

// 角色常量
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var userPermissions = []string{
	PermissionJobCreate,
	PermissionProposalSubmit,
	PermissionContractManage,
	PermissionPaymentInitiate,
}

// 角色权限映射
var rolePermissions = map[string][]string{
	RoleUser: userPermissions,
	RoleAdmin: append([]string{
		PermissionSettingsRead,
		PermissionSettingsWrite,
		PermissionOutboxReplay,
	}, userPermissions...),
}

// ValidRole 判断角色是否存在
func ValidRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role string, permission string) bool {
	permissions, ok := rolePermissions[role]
	if !ok {
		return false
	}

	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 检查角色是否有指定权限（返回错误而不是布尔值，便于处理）
func CheckPermission(role string, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}
