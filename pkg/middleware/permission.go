package middleware

import (
	"context"
	"regexp"
	"strings"

	"github.com/goauthz/pkg/auth"
	"github.com/goauthz/pkg/datascope"
	apperrors "github.com/goauthz/pkg/errors"
	"github.com/goauthz/pkg/logger"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// CurrentUser 返回当前登录用户，未登录时返回认证错误
func CurrentUser(c *fiber.Ctx, users UserResolver) (*auth.UserAuthContext, error) {
	if u := resolve(c, users); u != nil {
		return u, nil
	}
	if err, ok := c.Locals(LocalAuthError).(error); ok {
		return nil, err
	}
	return nil, apperrors.ErrUnauthorized
}

// RequireLogin 要求已登录
func RequireLogin(users UserResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, err := CurrentUser(c, users); err != nil {
			return err
		}
		return c.Next()
	}
}

// RequirePermission 要求拥有任意一个权限。
// 权限可以是按钮标识（"user:btn:add"），也可以是接口权限（"GET,POST:/user/*"）。
func RequirePermission(users UserResolver, permissions ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := CurrentUser(c, users)
		if err != nil {
			return err
		}
		for _, required := range permissions {
			if HasPermission(user, required) {
				return c.Next()
			}
		}
		logger.Warn("接口权限不足",
			zap.String("userId", user.ID),
			zap.Strings("required", permissions),
			zap.String("path", c.Path()),
		)
		return apperrors.Forbidden("该用户无此接口权限")
	}
}

// HasPermission 判断用户是否拥有单个权限
func HasPermission(user *auth.UserAuthContext, required string) bool {
	if strings.Contains(required, ":") && strings.Contains(required, "/") {
		return hasAPIPermission(required, user.APIs)
	}
	return user.HasMark(required)
}

// hasAPIPermission 方法有交集且路径匹配即通过
func hasAPIPermission(required string, grants []string) bool {
	methods, path, ok := splitAPI(required)
	if !ok {
		return false
	}
	for _, grant := range grants {
		grantMethods, grantPath, ok := splitAPI(grant)
		if !ok || !intersects(methods, grantMethods) {
			continue
		}
		if matchPath(path, grantPath) {
			return true
		}
	}
	return false
}

func splitAPI(perm string) ([]string, string, bool) {
	idx := strings.Index(perm, ":")
	if idx < 0 {
		return nil, "", false
	}
	var methods []string
	for _, m := range strings.FieldsFunc(perm[:idx], isMethodSep) {
		if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
			methods = append(methods, m)
		}
	}
	return methods, perm[idx+1:], len(methods) > 0
}

func isMethodSep(r rune) bool {
	return r == ',' || r == '|'
}

// intersects * 匹配任意方法
func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y || x == "*" || y == "*" {
				return true
			}
		}
	}
	return false
}

// matchPath 精确匹配，或把授权路径中的 * 视为任意字符序列做整体匹配
func matchPath(required, granted string) bool {
	if required == granted {
		return true
	}
	if !strings.Contains(granted, "*") {
		return false
	}
	pattern := "^" + strings.ReplaceAll(regexp.QuoteMeta(granted), `\*`, ".*") + "$"
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(required)
}

// DataScopeResolver 数据权限解析
type DataScopeResolver interface {
	GetDataScope(ctx context.Context, userID string) (*datascope.DataScope, error)
}

// InjectDataScope 将当前用户的数据权限写入上下文，需要登录
func InjectDataScope(users UserResolver, resolver DataScopeResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := CurrentUser(c, users)
		if err != nil {
			return err
		}
		ds, err := resolver.GetDataScope(c.UserContext(), user.ID)
		if err != nil {
			return apperrors.Internal("获取数据权限失败", err)
		}
		c.Locals(LocalDataScope, ds)
		return c.Next()
	}
}
