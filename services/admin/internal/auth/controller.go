package auth

import (
	pkgAuth "github.com/goauthz/pkg/auth"
	apperrors "github.com/goauthz/pkg/errors"
	"github.com/goauthz/pkg/logger"
	"github.com/goauthz/pkg/middleware"
	"github.com/goauthz/pkg/response"
	"github.com/goauthz/pkg/router"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// LoginRequest 登录请求
type LoginRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	CaptchaID string `json:"captchaId"`
	Captcha   string `json:"captcha"`
	LoginDays int    `json:"loginDays"`
}

// RefreshRequest 刷新令牌请求
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Controller 认证控制器
type Controller struct {
	Sessions *pkgAuth.SessionManager
	Captcha  *pkgAuth.Captcha
}

// Prefix 路由前缀
func (c *Controller) Prefix() string {
	return "/api/auth"
}

// Routes 路由
func (c *Controller) Routes() []router.Route {
	return []router.Route{
		{Method: fiber.MethodGet, Path: "/captcha", Handler: c.captcha},
		{Method: fiber.MethodPost, Path: "/login", Handler: c.login},
		{Method: fiber.MethodPost, Path: "/logout", Handler: c.logout},
		{Method: fiber.MethodPost, Path: "/refreshToken", Handler: c.refresh},
		{Method: fiber.MethodGet, Path: "/info", Handler: c.info, Middlewares: []fiber.Handler{middleware.RequireLogin(c.Sessions)}},
	}
}

func (c *Controller) captcha(ctx *fiber.Ctx) error {
	ch, err := c.Captcha.Generate(ctx.UserContext())
	if err != nil {
		return apperrors.Internal("生成验证码失败", err)
	}
	return response.Success(ctx, ch)
}

func (c *Controller) login(ctx *fiber.Ctx) error {
	var req LoginRequest
	if err := ctx.BodyParser(&req); err != nil {
		return apperrors.BadRequest("请求参数格式错误")
	}
	if req.Username == "" || req.Password == "" {
		return apperrors.BadRequest("用户名和密码不能为空")
	}

	pair, err := c.Sessions.Login(ctx.UserContext(), &pkgAuth.Credentials{
		Username:  req.Username,
		Password:  req.Password,
		CaptchaID: req.CaptchaID,
		Captcha:   req.Captcha,
		LoginDays: req.LoginDays,
		IP:        ctx.IP(),
		UserAgent: ctx.Get(fiber.HeaderUserAgent),
	})
	if err != nil {
		return err
	}
	return response.SuccessWithMessage(ctx, "登录成功", pair)
}

// logout 令牌无效或会话已失效时同样视为注销成功
func (c *Controller) logout(ctx *fiber.Ctx) error {
	token := ctx.Get(fiber.HeaderAuthorization)
	if pkgAuth.StripBearer(token) == "" {
		return response.SuccessWithMessage(ctx, "注销成功", nil)
	}
	deleted, err := c.Sessions.Logout(ctx.UserContext(), token)
	if err != nil && !apperrors.IsAuth(err) {
		return err
	}
	if !deleted {
		logger.Debug("注销时会话已不存在", zap.Error(err))
	}
	return response.SuccessWithMessage(ctx, "注销成功", nil)
}

func (c *Controller) refresh(ctx *fiber.Ctx) error {
	var req RefreshRequest
	if err := ctx.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return apperrors.BadRequest("刷新令牌不能为空")
	}
	pair, err := c.Sessions.Refresh(ctx.UserContext(), req.RefreshToken)
	if err != nil {
		return err
	}
	return response.Success(ctx, pair)
}

func (c *Controller) info(ctx *fiber.Ctx) error {
	return response.Success(ctx, middleware.GetUser(ctx))
}
