package directory

import (
	"context"

	"github.com/goauthz/pkg/auth"
	"github.com/goauthz/pkg/dal"
	"github.com/goauthz/pkg/datascope"
	"github.com/goauthz/pkg/utils"
	"github.com/goauthz/services/admin/internal/model"
	"gorm.io/gorm"
)

// LoginLogs 登录日志仓储
type LoginLogs struct {
	*dal.BaseRepository[model.LoginLog]
}

// NewLoginLogs 创建登录日志仓储
func NewLoginLogs(db *gorm.DB) *LoginLogs {
	return &LoginLogs{BaseRepository: dal.NewBaseRepository[model.LoginLog](db)}
}

// RecordLogin 实现 auth.LoginRecorder
func (r *LoginLogs) RecordLogin(ctx context.Context, rec *auth.LoginRecord) error {
	status := model.StatusDisabled
	if rec.Success {
		status = model.StatusEnabled
	}
	return r.Create(ctx, &model.LoginLog{
		UserID:    rec.UserID,
		Username:  rec.Username,
		SessionID: rec.SessionID,
		IP:        rec.IP,
		UserAgent: utils.Truncate(rec.UserAgent, 255),
		Status:    status,
		Message:   utils.Truncate(rec.Message, 255),
	})
}

// List 按数据权限分页查询，部门归属取自日志对应的用户
func (r *LoginLogs) List(ctx context.Context, ds *datascope.DataScope, p *dal.Pagination) (*dal.PagedResult[model.LoginLog], error) {
	return r.FindPaged(ctx, nil, p,
		dal.WithScopes(r.visibleTo(ds)),
		dal.WithOrder("login_time DESC, id"),
	)
}

// visibleTo 限定为数据权限内用户的日志
func (r *LoginLogs) visibleTo(ds *datascope.DataScope) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if ds != nil && ds.Scope == datascope.ScopeAll {
			return db
		}
		users := r.DB().Model(&model.User{}).Select("id").Scopes(datascope.Filter(ds, "department_id", "id"))
		return db.Where("user_id IN (?)", users)
	}
}

// FindBySessionID 按会话查找成功的登录记录
func (r *LoginLogs) FindBySessionID(ctx context.Context, sessionID string) (*model.LoginLog, error) {
	return r.FindOne(ctx, map[string]interface{}{"session_id": sessionID, "status": model.StatusEnabled})
}

// BySessionIDs 批量按会话查找成功的登录记录
func (r *LoginLogs) BySessionIDs(ctx context.Context, sessionIDs []string) (map[string]model.LoginLog, error) {
	out := make(map[string]model.LoginLog, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return out, nil
	}
	logs, err := r.FindAll(ctx, nil, func(db *gorm.DB) *gorm.DB {
		return db.Where("session_id IN ?", sessionIDs).Where("status = ?", model.StatusEnabled)
	})
	if err != nil {
		return nil, err
	}
	for _, l := range logs {
		out[l.SessionID] = l
	}
	return out, nil
}
