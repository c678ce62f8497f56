package directory

import (
	"context"

	"github.com/goauthz/pkg/dal"
	"github.com/goauthz/pkg/identity"
	"github.com/goauthz/services/admin/internal/model"
	"gorm.io/gorm"
)

// Permissions 菜单与按钮权限仓储
type Permissions struct {
	*dal.BaseRepository[model.Permission]
}

// NewPermissions 创建权限仓储
func NewPermissions(db *gorm.DB) *Permissions {
	return &Permissions{BaseRepository: dal.NewBaseRepository[model.Permission](db)}
}

// AuthMarks 实现 identity.PermissionReader
func (r *Permissions) AuthMarks(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}
	return r.Pluck(ctx, "auth_mark", nil, func(db *gorm.DB) *gorm.DB {
		return db.Where("id IN ?", ids).
			Where("type = ?", string(identity.PermissionButton)).
			Where("auth_mark <> ''").
			Order("auth_mark")
	})
}

// Roles 角色仓储
type Roles struct {
	*dal.BaseRepository[model.Role]
}

// NewRoles 创建角色仓储
func NewRoles(db *gorm.DB) *Roles {
	return &Roles{BaseRepository: dal.NewBaseRepository[model.Role](db)}
}

// RoleExists 实现 identity.RoleReader
func (r *Roles) RoleExists(ctx context.Context, code string) (bool, error) {
	n, err := r.Count(ctx, map[string]interface{}{"code": code, "status": model.StatusEnabled})
	return n > 0, err
}
