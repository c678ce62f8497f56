package middleware

import (
	"github.com/goauthz/pkg/auth"
	"github.com/goauthz/pkg/datascope"
	apperrors "github.com/goauthz/pkg/errors"
	"github.com/goauthz/pkg/identity"
	"github.com/goauthz/pkg/logger"
	"github.com/goauthz/pkg/response"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 请求上下文中的键
const (
	LocalUser      = "user"
	LocalUserID    = "userId"
	LocalUserType  = "userType"
	LocalSessionID = "sessionId"
	LocalAuthError = "authError"
	LocalDataScope = "dataScope"
	LocalRequestID = "requestId"
)

// Recovery 恢复中间件
func Recovery() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					zap.Any("error", r),
					zap.String("path", c.Path()),
					zap.String("method", c.Method()),
				)
				err = response.ServerError(c, "")
			}
		}()
		return c.Next()
	}
}

// Cors 跨域中间件
func Cors() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if origin := c.Get("Origin"); origin != "" {
			c.Set("Access-Control-Allow-Origin", origin)
			c.Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			c.Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept, Authorization")
			c.Set("Access-Control-Expose-Headers", "Content-Length, Access-Control-Allow-Origin, Access-Control-Allow-Headers, Content-Type")
			c.Set("Access-Control-Allow-Credentials", "true")
		}

		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Next()
	}
}

// RequestID 请求ID中间件
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Locals(LocalRequestID, requestID)
		c.SetUserContext(logger.WithRequestID(c.UserContext(), requestID))
		c.Set("X-Request-ID", requestID)
		return c.Next()
	}
}

// ErrorHandler 统一错误处理，用作 fiber.Config.ErrorHandler
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if apperrors.As(err, &fe) {
		return response.Error(c, fe.Code, fe.Message)
	}
	if apperrors.GetCode(err) >= fiber.StatusInternalServerError {
		logger.Error("请求处理失败",
			zap.String("path", c.Path()),
			zap.String("method", c.Method()),
			zap.Error(err),
		)
	}
	return response.FromError(c, err)
}

// GetUser 从上下文获取当前用户，未登录时返回 nil
func GetUser(c *fiber.Ctx) *auth.UserAuthContext {
	u, _ := c.Locals(LocalUser).(*auth.UserAuthContext)
	return u
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}

// GetUserType 从上下文获取用户类型，未登录时为普通用户
func GetUserType(c *fiber.Ctx) identity.UserType {
	if t, ok := c.Locals(LocalUserType).(identity.UserType); ok {
		return t
	}
	return identity.NormalUser
}

// GetSessionID 从上下文获取会话ID
func GetSessionID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalSessionID).(string)
	return id
}

// GetDataScope 从上下文获取数据权限
func GetDataScope(c *fiber.Ctx) *datascope.DataScope {
	ds, _ := c.Locals(LocalDataScope).(*datascope.DataScope)
	return ds
}

func setUser(c *fiber.Ctx, user *auth.UserAuthContext) {
	c.Locals(LocalUser, user)
	c.Locals(LocalUserID, user.ID)
	c.Locals(LocalUserType, user.UserType)
	c.Locals(LocalSessionID, user.SessionID)
}
