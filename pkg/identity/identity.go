// Package identity 定义鉴权核心读取的用户、部门、权限实体接口与枚举。
// 实体的持久化由业务服务实现，核心只读。
package identity

import (
	"context"
	"fmt"
)

// UserType 用户类型
type UserType int

const (
	SuperAdmin UserType = iota // 超级管理员
	Admin                      // 管理员
	DeptAdmin                  // 部门管理员
	NormalUser                 // 普通用户
)

// String 实现 fmt.Stringer
func (t UserType) String() string {
	switch t {
	case SuperAdmin:
		return "super_admin"
	case Admin:
		return "admin"
	case DeptAdmin:
		return "dept_admin"
	case NormalUser:
		return "normal_user"
	default:
		return fmt.Sprintf("user_type(%d)", int(t))
	}
}

// Valid 是否为已知类型
func (t UserType) Valid() bool {
	return t >= SuperAdmin && t <= NormalUser
}

// IsAdmin 超级管理员与管理员跳过接口级权限检查
func (t UserType) IsAdmin() bool {
	return t == SuperAdmin || t == Admin
}

// PermissionType 权限类型，对应策略规则中的 act 字段
type PermissionType string

const (
	PermissionMenu   PermissionType = "menu"
	PermissionButton PermissionType = "button"
	PermissionAPI    PermissionType = "api"
)

// ParsePermissionType 解析权限类型
func ParsePermissionType(s string) (PermissionType, error) {
	switch PermissionType(s) {
	case PermissionMenu, PermissionButton, PermissionAPI:
		return PermissionType(s), nil
	default:
		return "", fmt.Errorf("unknown permission type %q", s)
	}
}

// User 核心关心的用户字段
type User struct {
	ID           string
	Username     string
	UserType     UserType
	DepartmentID string // 空表示未分配部门
}

// HasDepartment 是否分配了部门
func (u *User) HasDepartment() bool {
	return u.DepartmentID != ""
}

// UserReader 用户读取接口
type UserReader interface {
	// GetUser 不存在或已删除时返回 nil, nil
	GetUser(ctx context.Context, id string) (*User, error)
}

// DepartmentReader 部门读取接口
type DepartmentReader interface {
	// ListChildIDs 列出直接子部门ID
	ListChildIDs(ctx context.Context, parentID string) ([]string, error)
	// ListAllIDs 列出全部有效部门ID
	ListAllIDs(ctx context.Context) ([]string, error)
}

// PermissionReader 权限读取接口
type PermissionReader interface {
	// AuthMarks 返回给定按钮权限ID对应的权限标识，忽略空标识
	AuthMarks(ctx context.Context, ids []string) ([]string, error)
}

// RoleReader 角色读取接口
type RoleReader interface {
	// RoleExists 角色编码是否存在
	RoleExists(ctx context.Context, code string) (bool, error)
}
