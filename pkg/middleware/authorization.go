package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/goauthz/pkg/auth"
	apperrors "github.com/goauthz/pkg/errors"
	"github.com/goauthz/pkg/logger"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// UserResolver 由令牌解析当前用户
type UserResolver interface {
	GetCurrentUser(ctx context.Context, token string) (*auth.UserAuthContext, error)
}

// APIChecker 接口权限判断
type APIChecker interface {
	CheckAPIPermission(user, path, method string) (bool, error)
}

// 策略判断出错时的处理方式
const (
	OnErrorAllow = "allow"
	OnErrorDeny  = "deny"
)

// AuthorizationOptions 鉴权中间件配置
type AuthorizationOptions struct {
	WhiteList         []string // 前缀匹配，无需登录
	LoginOnlyList     []string // 前缀匹配，登录即可
	OnEvaluationError string   // allow | deny，默认 deny
}

// Authorization 接口级鉴权中间件。
// 白名单直接放行；解析令牌失败不在此拒绝，交由路由上的 RequireLogin / RequirePermission 处理；
// 超级管理员与管理员跳过策略判断；其余用户先按本人授权、再逐个角色判断请求路径与方法。
func Authorization(users UserResolver, checker APIChecker, opts AuthorizationOptions) fiber.Handler {
	failOpen := strings.EqualFold(opts.OnEvaluationError, OnErrorAllow)

	return func(c *fiber.Ctx) error {
		path := c.Path()
		if hasPrefix(path, opts.WhiteList) {
			return c.Next()
		}

		user := resolve(c, users)
		if user == nil {
			return c.Next()
		}

		if hasPrefix(path, opts.LoginOnlyList) || user.UserType.IsAdmin() {
			return c.Next()
		}

		method := c.Method()
		allowed, err := evaluate(checker, user.ID, path, method)
		if err != nil {
			logger.Error("权限判断异常",
				zap.String("userId", user.ID),
				zap.String("path", path),
				zap.String("method", method),
				zap.Bool("failOpen", failOpen),
				zap.Error(err),
			)
			if failOpen {
				return c.Next()
			}
			return apperrors.WithCause(apperrors.ErrPermissionDenied, err)
		}
		if !allowed {
			logger.Warn("权限拒绝",
				zap.String("userId", user.ID),
				zap.String("path", path),
				zap.String("method", method),
			)
			return apperrors.ErrPermissionDenied
		}
		return c.Next()
	}
}

// evaluate 调用策略判断，panic 视为判断出错
func evaluate(checker APIChecker, user, path, method string) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("policy evaluation panic: %v", r)
		}
	}()
	return checker.CheckAPIPermission(user, path, method)
}

// resolve 解析并缓存当前用户，失败原因记录在上下文中
func resolve(c *fiber.Ctx, users UserResolver) *auth.UserAuthContext {
	if u := GetUser(c); u != nil {
		return u
	}
	if _, done := c.Locals(LocalAuthError).(error); done {
		return nil
	}

	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		c.Locals(LocalAuthError, error(apperrors.ErrUnauthorized))
		return nil
	}
	user, err := users.GetCurrentUser(c.UserContext(), header)
	if err != nil {
		c.Locals(LocalAuthError, err)
		return nil
	}
	setUser(c, user)
	return user
}

func hasPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
