package datascope

import "github.com/goauthz/pkg/identity"

// Capabilities 用户类型对应的管理能力
type Capabilities struct {
	Name                 string `json:"name"`
	CanManageAll         bool   `json:"canManageAll"`
	CanManageSystem      bool   `json:"canManageSystem"`
	CanManageDepartments bool   `json:"canManageDepartments"`
	CanManageUsers       bool   `json:"canManageUsers"`
	CanAssignRoles       bool   `json:"canAssignRoles"`
	CanViewAllData       bool   `json:"canViewAllData"`
	Description          string `json:"description"`
}

var capabilityTable = map[identity.UserType]Capabilities{
	identity.SuperAdmin: {
		Name:                 "超级管理员",
		CanManageAll:         true,
		CanManageSystem:      true,
		CanManageDepartments: true,
		CanManageUsers:       true,
		CanAssignRoles:       true,
		CanViewAllData:       true,
		Description:          "拥有系统最高权限，可管理所有资源和配置",
	},
	identity.Admin: {
		Name:                 "管理员",
		CanManageSystem:      true,
		CanManageDepartments: true,
		CanManageUsers:       true,
		CanAssignRoles:       true,
		CanViewAllData:       true,
		Description:          "可管理系统配置、部门和用户，但无法修改超级管理员",
	},
	identity.DeptAdmin: {
		Name:           "部门管理员",
		CanManageUsers: true,
		Description:    "可管理所属部门及下属部门的用户和数据",
	},
	identity.NormalUser: {
		Name:        "普通用户",
		Description: "只能查看和操作自己的数据",
	},
}

// CapabilitiesOf 返回用户类型的管理能力，未知类型按普通用户处理
func CapabilitiesOf(t identity.UserType) Capabilities {
	if c, ok := capabilityTable[t]; ok {
		return c
	}
	return capabilityTable[identity.NormalUser]
}

// CanManageUser 操作者只能管理类型严格低于自己的用户，超级管理员可管理所有人
func CanManageUser(operator, target identity.UserType) bool {
	if operator == identity.SuperAdmin {
		return true
	}
	if !operator.Valid() || !CapabilitiesOf(operator).CanManageUsers {
		return false
	}
	return target > operator
}

// ScopeInfo 数据权限范围说明
type ScopeInfo struct {
	UserType    identity.UserType `json:"userType"`
	Scope       Scope             `json:"scope"`
	Description string            `json:"description"`
}

// Describe 各用户类型的数据权限说明
func Describe() []ScopeInfo {
	return []ScopeInfo{
		{UserType: identity.SuperAdmin, Scope: ScopeAll, Description: "全部部门数据"},
		{UserType: identity.Admin, Scope: ScopeAll, Description: "全部部门数据"},
		{UserType: identity.DeptAdmin, Scope: ScopeDeptAndChild, Description: "本部门及下级部门数据，未分配部门时仅本人"},
		{UserType: identity.NormalUser, Scope: ScopeSelfOnly, Description: "仅本人数据"},
	}
}
