package datascope

import (
	"context"
	"fmt"
	"sort"

	"github.com/goauthz/pkg/identity"
	"github.com/goauthz/pkg/logger"
	"go.uber.org/zap"
)

// Scope 数据权限范围
type Scope int

const (
	ScopeAll          Scope = iota + 1 // 全部数据
	ScopeDeptAndChild                  // 本部门及下级部门
	ScopeDeptOnly                      // 仅本部门
	ScopeSelfOnly                      // 仅本人
)

// String 实现 fmt.Stringer
func (s Scope) String() string {
	switch s {
	case ScopeAll:
		return "ALL"
	case ScopeDeptAndChild:
		return "DEPT_AND_CHILD"
	case ScopeDeptOnly:
		return "DEPT_ONLY"
	case ScopeSelfOnly:
		return "SELF_ONLY"
	default:
		return fmt.Sprintf("Scope(%d)", int(s))
	}
}

// MarshalText 以名称形式序列化
func (s Scope) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText 按名称解析
func (s *Scope) UnmarshalText(text []byte) error {
	for _, c := range []Scope{ScopeAll, ScopeDeptAndChild, ScopeDeptOnly, ScopeSelfOnly} {
		if c.String() == string(text) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown data scope %q", text)
}

// DataScope 用户的数据权限，按请求计算，不持久化
type DataScope struct {
	Scope         Scope             `json:"scope"`
	UserID        string            `json:"userId"`
	UserType      identity.UserType `json:"userType"`
	DepartmentID  string            `json:"departmentId"`
	DepartmentIDs []string          `json:"departmentIds"`
}

// Contains 部门是否在可访问范围内
func (d *DataScope) Contains(deptID string) bool {
	if deptID == "" {
		return false
	}
	i := sort.SearchStrings(d.DepartmentIDs, deptID)
	return i < len(d.DepartmentIDs) && d.DepartmentIDs[i] == deptID
}

// selfOnly 无法确定范围时的兜底结果
func selfOnly(userID string) *DataScope {
	return &DataScope{Scope: ScopeSelfOnly, UserID: userID, UserType: identity.NormalUser, DepartmentIDs: []string{}}
}

// Resolver 数据权限解析
type Resolver struct {
	users     identity.UserReader
	hierarchy *Hierarchy
}

// NewResolver 创建数据权限解析器
func NewResolver(users identity.UserReader, depts identity.DepartmentReader) *Resolver {
	return &Resolver{users: users, hierarchy: NewHierarchy(depts)}
}

// Hierarchy 部门层级解析器
func (r *Resolver) Hierarchy() *Hierarchy {
	return r.hierarchy
}

// GetDataScope 获取用户的数据权限，用户不存在时返回仅本人且无部门
func (r *Resolver) GetDataScope(ctx context.Context, userID string) (*DataScope, error) {
	user, err := r.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	if user == nil {
		return selfOnly(userID), nil
	}
	return r.ScopeFor(ctx, user)
}

// ScopeFor 按已加载的用户计算数据权限
func (r *Resolver) ScopeFor(ctx context.Context, user *identity.User) (*DataScope, error) {
	ds := &DataScope{
		UserID:        user.ID,
		UserType:      user.UserType,
		DepartmentID:  user.DepartmentID,
		DepartmentIDs: []string{},
	}

	switch user.UserType {
	case identity.SuperAdmin, identity.Admin:
		ids, err := r.hierarchy.AllDepartmentIDs(ctx)
		if err != nil {
			return nil, err
		}
		ds.Scope = ScopeAll
		ds.DepartmentIDs = ids
	case identity.DeptAdmin:
		if !user.HasDepartment() {
			ds.Scope = ScopeSelfOnly
			break
		}
		ids, err := r.hierarchy.DescendantIDs(ctx, user.DepartmentID, true)
		if err != nil {
			return nil, err
		}
		ds.Scope = ScopeDeptAndChild
		ds.DepartmentIDs = ids
	case identity.NormalUser:
		ds.Scope = ScopeSelfOnly
		if user.HasDepartment() {
			ds.DepartmentIDs = []string{user.DepartmentID}
		}
	default:
		logger.Warn("未知用户类型，按仅本人处理",
			zap.String("userId", user.ID),
			zap.Int("userType", int(user.UserType)),
		)
		ds.Scope = ScopeSelfOnly
	}
	return ds, nil
}

// CanAccessUserData 操作者能否访问目标用户的数据
func (r *Resolver) CanAccessUserData(ctx context.Context, operatorID, targetUserID string) (bool, error) {
	if operatorID == targetUserID {
		return true, nil
	}
	ds, err := r.GetDataScope(ctx, operatorID)
	if err != nil {
		return false, err
	}

	switch ds.Scope {
	case ScopeAll:
		return true, nil
	case ScopeDeptAndChild:
		target, err := r.users.GetUser(ctx, targetUserID)
		if err != nil {
			return false, fmt.Errorf("get user %s: %w", targetUserID, err)
		}
		if target == nil {
			return false, nil
		}
		return ds.Contains(target.DepartmentID), nil
	case ScopeDeptOnly, ScopeSelfOnly:
		return false, nil
	default:
		return false, nil
	}
}

// CanAccessDepartmentData 操作者能否访问目标部门的数据
func (r *Resolver) CanAccessDepartmentData(ctx context.Context, operatorID, targetDeptID string) (bool, error) {
	ds, err := r.GetDataScope(ctx, operatorID)
	if err != nil {
		return false, err
	}

	switch ds.Scope {
	case ScopeAll:
		return true, nil
	case ScopeDeptAndChild, ScopeDeptOnly:
		return ds.Contains(targetDeptID), nil
	case ScopeSelfOnly:
		return false, nil
	default:
		return false, nil
	}
}
