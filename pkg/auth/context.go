package auth

import (
	"context"
	"fmt"

	"github.com/goauthz/pkg/datascope"
	"github.com/goauthz/pkg/identity"
	"github.com/goauthz/pkg/policy"
	"github.com/goauthz/pkg/utils"
)

// UserAuthContext 用户鉴权上下文，缓存在 user_info:{userId}
type UserAuthContext struct {
	ID              string            `json:"id"`
	Username        string            `json:"username"`
	UserType        identity.UserType `json:"userType"`
	DepartmentID    string            `json:"departmentId"`
	SubDepartments  []string          `json:"subDepartments"`
	DataScope       datascope.Scope   `json:"dataScope"`
	Roles           []string          `json:"roles"`
	Menus           []string          `json:"menus"`
	Buttons         []string          `json:"buttons"`
	PermissionMarks []string          `json:"permissionMarks"`
	APIs            []string          `json:"apis"`

	// SessionID 当前请求的会话，不写入缓存
	SessionID string `json:"-"`
}

// HasMark 是否拥有按钮权限标识
func (u *UserAuthContext) HasMark(mark string) bool {
	return utils.Contains(u.PermissionMarks, mark)
}

// PermissionSource 用户授权来源
type PermissionSource interface {
	GetUserPermissions(user string) (*policy.UserPermissions, error)
}

// ContextBuilder 从实体存储与策略引擎组装 UserAuthContext
type ContextBuilder struct {
	users  identity.UserReader
	perms  identity.PermissionReader
	policy PermissionSource
	scopes *datascope.Resolver
}

// NewContextBuilder 创建上下文构建器
func NewContextBuilder(users identity.UserReader, perms identity.PermissionReader, source PermissionSource, scopes *datascope.Resolver) *ContextBuilder {
	return &ContextBuilder{users: users, perms: perms, policy: source, scopes: scopes}
}

// Build 组装用户鉴权上下文，用户不存在时返回 nil, nil
func (b *ContextBuilder) Build(ctx context.Context, userID string) (*UserAuthContext, error) {
	user, err := b.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	if user == nil {
		return nil, nil
	}
	return b.BuildFor(ctx, user)
}

// BuildFor 按已加载的用户组装上下文
func (b *ContextBuilder) BuildFor(ctx context.Context, user *identity.User) (*UserAuthContext, error) {
	perms, err := b.policy.GetUserPermissions(user.ID)
	if err != nil {
		return nil, fmt.Errorf("get permissions of %s: %w", user.ID, err)
	}
	scope, err := b.scopes.ScopeFor(ctx, user)
	if err != nil {
		return nil, err
	}

	marks := []string{}
	if len(perms.Buttons) > 0 {
		if marks, err = b.perms.AuthMarks(ctx, perms.Buttons); err != nil {
			return nil, fmt.Errorf("get auth marks: %w", err)
		}
	}

	return &UserAuthContext{
		ID:              user.ID,
		Username:        user.Username,
		UserType:        user.UserType,
		DepartmentID:    user.DepartmentID,
		SubDepartments:  scope.DepartmentIDs,
		DataScope:       scope.Scope,
		Roles:           perms.Roles,
		Menus:           perms.Menus,
		Buttons:         perms.Buttons,
		PermissionMarks: marks,
		APIs:            perms.APIs,
	}, nil
}
