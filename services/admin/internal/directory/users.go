package directory

import (
	"context"

	"github.com/goauthz/pkg/dal"
	"github.com/goauthz/pkg/datascope"
	"github.com/goauthz/pkg/identity"
	"github.com/goauthz/pkg/utils"
	"github.com/goauthz/services/admin/internal/model"
	"gorm.io/gorm"
)

// Users 用户仓储，只返回启用状态的用户
type Users struct {
	*dal.BaseRepository[model.User]
}

// NewUsers 创建用户仓储
func NewUsers(db *gorm.DB) *Users {
	return &Users{BaseRepository: dal.NewBaseRepository[model.User](db)}
}

// GetUser 实现 identity.UserReader
func (r *Users) GetUser(ctx context.Context, id string) (*identity.User, error) {
	if id == "" {
		return nil, nil
	}
	u, err := r.FindOne(ctx, map[string]interface{}{"id": id, "status": model.StatusEnabled})
	if err != nil || u == nil {
		return nil, err
	}
	return u.Identity(), nil
}

// FindCredential 按用户名、邮箱或手机号查找启用的用户，用户名匹配优先
func (r *Users) FindCredential(ctx context.Context, login string) (*identity.User, string, error) {
	if login == "" {
		return nil, "", nil
	}
	q := r.DB().WithContext(ctx).Where("status = ?", model.StatusEnabled)
	switch utils.ClassifyLogin(login) {
	case utils.LoginEmail:
		q = q.Where("username = ? OR email = ?", login, login)
	case utils.LoginPhone:
		q = q.Where("username = ? OR phone = ?", login, login)
	default:
		q = q.Where("username = ?", login)
	}

	var matches []model.User
	if err := q.Limit(2).Find(&matches).Error; err != nil {
		return nil, "", err
	}
	if len(matches) == 0 {
		return nil, "", nil
	}
	picked := &matches[0]
	for i := range matches {
		if matches[i].Username == login {
			picked = &matches[i]
			break
		}
	}
	return picked.Identity(), picked.Password, nil
}

// VisibleIDs 返回 ids 中处于数据权限范围内的用户
func (r *Users) VisibleIDs(ctx context.Context, ds *datascope.DataScope, ids []string) (map[string]struct{}, error) {
	out := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var visible []string
	err := r.DB().WithContext(ctx).Model(&model.User{}).
		Where("id IN ?", ids).
		Scopes(datascope.Filter(ds, "department_id", "id")).
		Pluck("id", &visible).Error
	if err != nil {
		return nil, err
	}
	for _, id := range visible {
		out[id] = struct{}{}
	}
	if ds != nil && ds.UserID != "" {
		out[ds.UserID] = struct{}{}
	}
	return out, nil
}
