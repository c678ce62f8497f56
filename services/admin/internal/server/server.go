package server

import (
	"context"
	"fmt"
	"time"

	"github.com/goauthz/pkg/auth"
	"github.com/goauthz/pkg/config"
	"github.com/goauthz/pkg/database"
	"github.com/goauthz/pkg/datascope"
	"github.com/goauthz/pkg/logger"
	"github.com/goauthz/pkg/middleware"
	"github.com/goauthz/pkg/policy"
	"github.com/goauthz/pkg/response"
	"github.com/goauthz/pkg/router"
	authctl "github.com/goauthz/services/admin/internal/auth"
	"github.com/goauthz/services/admin/internal/directory"
	"github.com/goauthz/services/admin/internal/online"
	policyctl "github.com/goauthz/services/admin/internal/policy"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Server 管理后台服务，持有全部组件
type Server struct {
	App      *fiber.App
	Enforcer *policy.Enforcer
	Sessions *auth.SessionManager
	Scopes   *datascope.Resolver
	Models   *directory.ModelStore

	policies *policyctl.Controller
}

// New 组装存储、策略引擎、会话管理与 HTTP 路由
func New(ctx context.Context, cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*Server, error) {
	users := directory.NewUsers(db)
	depts := directory.NewDepartments(db)
	perms := directory.NewPermissions(db)
	roles := directory.NewRoles(db)
	logs := directory.NewLoginLogs(db)

	cache := database.NewCache(rdb, "")
	models := directory.NewModelStore(db, cache)

	enforcer, err := policy.NewEnforcer(ctx, policy.NewStore(db), policy.WithModelSource(models))
	if err != nil {
		return nil, fmt.Errorf("init enforcer: %w", err)
	}

	scopes := datascope.NewResolver(users, depts)
	jwtManager, err := auth.NewJWTManager(&cfg.JWT)
	if err != nil {
		return nil, fmt.Errorf("init jwt: %w", err)
	}
	captcha := auth.NewCaptcha(cache)

	opts := []auth.SessionOption{auth.WithLoginRecorder(logs)}
	if cfg.Captcha.Enabled {
		opts = append(opts, auth.WithCaptcha(captcha))
	}
	sessions := auth.NewSessionManager(
		jwtManager,
		cache,
		users,
		users,
		auth.NewContextBuilder(users, perms, enforcer, scopes),
		&cfg.JWT,
		opts...,
	)

	s := &Server{
		Enforcer: enforcer,
		Sessions: sessions,
		Scopes:   scopes,
		Models:   models,
		policies: &policyctl.Controller{
			Enforcer: enforcer,
			Scopes:   scopes,
			Sessions: sessions,
			Roles:    roles,
		},
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		ReadTimeout:           time.Duration(cfg.Server.HTTP.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.Server.HTTP.WriteTimeout) * time.Second,
		ErrorHandler:          middleware.ErrorHandler,
		DisableStartupMessage: true,
		Immutable:             true, // 路由参数会写入策略引擎与缓存，不能引用 fasthttp 的缓冲区
	})
	app.Use(middleware.Recovery())
	app.Use(middleware.RequestID())
	app.Use(middleware.Cors())
	app.Use(middleware.Authorization(sessions, enforcer, middleware.AuthorizationOptions{
		WhiteList:         cfg.Authorization.WhiteList,
		LoginOnlyList:     cfg.Authorization.LoginOnlyList,
		OnEvaluationError: cfg.Authorization.OnEvaluationError,
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return response.Success(c, fiber.Map{"status": "ok"})
	})

	router.Register(app,
		&authctl.Controller{Sessions: sessions, Captcha: captcha},
		s.policies,
		&online.Controller{Sessions: sessions, Logs: logs, Users: users, Scopes: scopes},
	)

	s.App = app
	logger.Info("管理后台服务已组装",
		zap.Int("whiteList", len(cfg.Authorization.WhiteList)),
		zap.Bool("captcha", cfg.Captcha.Enabled),
	)
	return s, nil
}

// SetPublisher 设置跨节点变更通知
func (s *Server) SetPublisher(p policy.Publisher) {
	s.Enforcer.SetPublisher(p)
	s.policies.Publisher = p
}
