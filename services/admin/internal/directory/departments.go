package directory

import (
	"context"

	"github.com/goauthz/pkg/dal"
	"github.com/goauthz/services/admin/internal/model"
	"gorm.io/gorm"
)

// Departments 部门仓储，实现 identity.DepartmentReader
type Departments struct {
	*dal.BaseRepository[model.Department]
}

// NewDepartments 创建部门仓储
func NewDepartments(db *gorm.DB) *Departments {
	return &Departments{BaseRepository: dal.NewBaseRepository[model.Department](db)}
}

// ListChildIDs 启用的直接子部门
func (r *Departments) ListChildIDs(ctx context.Context, parentID string) ([]string, error) {
	return r.Pluck(ctx, "id", map[string]interface{}{"parent_id": parentID, "status": model.StatusEnabled}, dal.WithOrder("sort, id"))
}

// ListAllIDs 全部启用的部门
func (r *Departments) ListAllIDs(ctx context.Context) ([]string, error) {
	return r.Pluck(ctx, "id", map[string]interface{}{"status": model.StatusEnabled}, dal.WithOrder("id"))
}
