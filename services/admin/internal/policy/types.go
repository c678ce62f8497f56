package policy

// PolicyRequest 授权规则请求
type PolicyRequest struct {
	Role string `json:"role"`
	Obj  string `json:"obj"`
	Act  string `json:"act"`
}

// RoleRequest 单个角色
type RoleRequest struct {
	Role string `json:"role"`
}

// RolesRequest 角色列表
type RolesRequest struct {
	Roles []string `json:"roles"`
}

// PermissionsRequest 角色权限整体替换
type PermissionsRequest struct {
	Type string   `json:"type"` // menu | button | api
	IDs  []string `json:"ids"`
}

// CheckRequest 权限判断请求，sub 为空时使用当前用户
type CheckRequest struct {
	Sub string `json:"sub"`
	Obj string `json:"obj"`
	Act string `json:"act"`
}

// ModelRequest 模型文本
type ModelRequest struct {
	Text string `json:"text"`
}

// ChangeResult 增量变更结果
type ChangeResult struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}
