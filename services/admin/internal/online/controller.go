package online

import (
	"time"

	pkgAuth "github.com/goauthz/pkg/auth"
	"github.com/goauthz/pkg/dal"
	"github.com/goauthz/pkg/datascope"
	apperrors "github.com/goauthz/pkg/errors"
	"github.com/goauthz/pkg/identity"
	"github.com/goauthz/pkg/logger"
	"github.com/goauthz/pkg/middleware"
	"github.com/goauthz/pkg/response"
	"github.com/goauthz/pkg/router"
	"github.com/goauthz/pkg/utils"
	"github.com/goauthz/services/admin/internal/directory"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Session 在线会话及其登录信息
type Session struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	IP        string `json:"ip"`
	UserAgent string `json:"userAgent"`
	LoginTime int64  `json:"loginTime,omitempty"`
	ExpiresIn int64  `json:"expiresIn"` // 秒
}

// Controller 登录日志与在线会话控制器
type Controller struct {
	Sessions *pkgAuth.SessionManager
	Logs     *directory.LoginLogs
	Users    *directory.Users
	Scopes   *datascope.Resolver
}

// Prefix 路由前缀
func (c *Controller) Prefix() string {
	return "/api/log"
}

// Routes 路由
func (c *Controller) Routes() []router.Route {
	return []router.Route{
		{
			Method:  fiber.MethodGet,
			Path:    "/login",
			Handler: c.loginLogs,
			Middlewares: []fiber.Handler{
				middleware.RequirePermission(c.Sessions, "login:btn:list", "GET:/api/log/login"),
				middleware.InjectDataScope(c.Sessions, c.Scopes),
			},
		},
		{
			Method:  fiber.MethodGet,
			Path:    "/online",
			Handler: c.onlineSessions,
			Middlewares: []fiber.Handler{
				middleware.RequirePermission(c.Sessions, "online:btn:list", "GET:/api/log/online"),
				middleware.InjectDataScope(c.Sessions, c.Scopes),
			},
		},
		{
			Method:      fiber.MethodDelete,
			Path:        "/online/:sessionId",
			Handler:     c.kick,
			Middlewares: []fiber.Handler{middleware.RequirePermission(c.Sessions, "online:btn:kick", "DELETE:/api/log/online/*")},
		},
	}
}

func (c *Controller) loginLogs(ctx *fiber.Ctx) error {
	page := dal.PaginationFrom(ctx)
	result, err := c.Logs.List(ctx.UserContext(), middleware.GetDataScope(ctx), page)
	if err != nil {
		return apperrors.Internal("查询登录日志失败", err)
	}
	return response.SuccessPage(ctx, result.Items, result.Total, result.Page, result.PageSize)
}

// onlineSessions 只列出数据权限内用户的会话
func (c *Controller) onlineSessions(ctx *fiber.Ctx) error {
	all, err := c.Sessions.OnlineSessions(ctx.UserContext())
	if err != nil {
		return err
	}

	userIDs := make([]string, 0, len(all))
	for _, s := range all {
		userIDs = append(userIDs, s.UserID)
	}
	visible, err := c.Users.VisibleIDs(ctx.UserContext(), middleware.GetDataScope(ctx), utils.Unique(userIDs))
	if err != nil {
		return apperrors.Internal("数据权限过滤失败", err)
	}

	sessions := all[:0]
	ids := make([]string, 0, len(all))
	for _, s := range all {
		if _, ok := visible[s.UserID]; ok {
			sessions = append(sessions, s)
			ids = append(ids, s.SessionID)
		}
	}
	logs, err := c.Logs.BySessionIDs(ctx.UserContext(), ids)
	if err != nil {
		return apperrors.Internal("查询登录日志失败", err)
	}

	out := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		item := Session{
			SessionID: s.SessionID,
			UserID:    s.UserID,
			Username:  s.Username,
			ExpiresIn: int64(s.ExpiresIn / time.Second),
		}
		if l, ok := logs[s.SessionID]; ok {
			item.IP = l.IP
			item.UserAgent = l.UserAgent
			item.LoginTime = l.LoginTime
		}
		out = append(out, item)
	}
	return response.Success(ctx, out)
}

// kick 管理员类用户可下线数据权限内用户的会话，其余用户只能下线自己的会话
func (c *Controller) kick(ctx *fiber.Ctx) error {
	sessionID := ctx.Params("sessionId")
	operator := middleware.GetUser(ctx)

	log, err := c.Logs.FindBySessionID(ctx.UserContext(), sessionID)
	if err != nil {
		return apperrors.Internal("", err)
	}
	if log == nil {
		return apperrors.NotFound("会话")
	}

	allowed := log.UserID == operator.ID
	if !allowed && operator.UserType <= identity.DeptAdmin {
		allowed, err = c.Scopes.CanAccessUserData(ctx.UserContext(), operator.ID, log.UserID)
		if err != nil {
			return apperrors.Internal("数据权限判断失败", err)
		}
	}
	if !allowed {
		logger.Warn("无权下线该会话",
			zap.String("operator", operator.ID),
			zap.String("sessionId", sessionID),
			zap.String("owner", log.UserID),
		)
		return apperrors.Forbidden("无权下线该用户")
	}

	if err := c.Sessions.ForceLogout(ctx.UserContext(), sessionID); err != nil {
		return err
	}
	return response.SuccessWithMessage(ctx, "已强制下线", nil)
}
