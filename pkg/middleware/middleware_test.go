package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/goauthz/pkg/auth"
	"github.com/goauthz/pkg/datascope"
	apperrors "github.com/goauthz/pkg/errors"
	"github.com/goauthz/pkg/identity"
	"github.com/goauthz/pkg/logger"
	"github.com/goauthz/pkg/policy"
	"github.com/goauthz/pkg/response"
	"github.com/goauthz/pkg/testkit"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokens 以令牌为键的用户表
type tokens map[string]*auth.UserAuthContext

func (t tokens) GetCurrentUser(_ context.Context, token string) (*auth.UserAuthContext, error) {
	token = auth.StripBearer(token)
	if token == "expired" {
		return nil, apperrors.ErrTokenExpired
	}
	u, ok := t[token]
	if !ok {
		return nil, apperrors.ErrTokenInvalid
	}
	cp := *u
	return &cp, nil
}

type checkerFunc func(user, path, method string) (bool, error)

func (f checkerFunc) CheckAPIPermission(user, path, method string) (bool, error) {
	return f(user, path, method)
}

var sampleUsers = tokens{
	"root":  {ID: "u-root", Username: "root", UserType: identity.SuperAdmin},
	"admin": {ID: "u-admin", Username: "admin", UserType: identity.Admin},
	"bob": {
		ID: "u-bob", Username: "bob", UserType: identity.NormalUser, DepartmentID: "D2",
		PermissionMarks: []string{"user:btn:list"},
		APIs:            []string{"GET,POST:/api/user/*", "DELETE:/api/role/1"},
	},
	"carol": {
		ID: "u-carol", Username: "carol", UserType: identity.NormalUser,
		APIs: []string{"*:/api/dept/*", "GET|PUT:/api/menu/1"},
	},
}

func defaultOptions() AuthorizationOptions {
	return AuthorizationOptions{
		WhiteList:     []string{"/api/auth/login", "/api/auth/captcha"},
		LoginOnlyList: []string{"/api/auth/user-info"},
	}
}

func newApp(users UserResolver, checker APIChecker, opts AuthorizationOptions) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(Recovery())
	app.Use(Authorization(users, checker, opts))
	ok := func(c *fiber.Ctx) error {
		return response.Success(c, fiber.Map{"user": GetUserID(c)})
	}
	app.All("/api/*", ok)
	return app
}

func call(t *testing.T, app *fiber.App, method, path, token string) (int, response.Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out response.Response
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return resp.StatusCode, out
}

func denyAll(string, string, string) (bool, error) { return false, nil }

func TestAuthorizationWhiteListAndAnonymous(t *testing.T) {
	testkit.QuietLogger(t)
	app := newApp(sampleUsers, checkerFunc(denyAll), defaultOptions())

	status, _ := call(t, app, fiber.MethodPost, "/api/auth/login", "")
	assert.Equal(t, 200, status)

	status, _ = call(t, app, fiber.MethodPost, "/api/auth/login", "garbage")
	assert.Equal(t, 200, status, "white list ignores the token")

	// 未登录请求放行，由路由上的登录校验拒绝
	status, _ = call(t, app, fiber.MethodGet, "/api/public/ping", "")
	assert.Equal(t, 200, status)
}

func TestAuthorizationAdminBypassAndLoginOnly(t *testing.T) {
	testkit.QuietLogger(t)
	app := newApp(sampleUsers, checkerFunc(denyAll), defaultOptions())

	for _, tok := range []string{"root", "admin"} {
		status, body := call(t, app, fiber.MethodDelete, "/api/role/9", tok)
		assert.Equal(t, 200, status, tok)
		assert.Equal(t, 0, body.Code)
	}

	status, _ := call(t, app, fiber.MethodGet, "/api/auth/user-info", "bob")
	assert.Equal(t, 200, status)

	status, body := call(t, app, fiber.MethodGet, "/api/role/list", "bob")
	assert.Equal(t, 403, status)
	assert.Equal(t, apperrors.ErrPermissionDenied.Message, body.Message)
}

func TestAuthorizationEvaluationFailure(t *testing.T) {
	testkit.QuietLogger(t)
	broken := checkerFunc(func(string, string, string) (bool, error) {
		return false, errors.New("model corrupted")
	})
	panicking := checkerFunc(func(string, string, string) (bool, error) {
		panic("nil matcher")
	})

	for name, checker := range map[string]APIChecker{"error": broken, "panic": panicking} {
		app := newApp(sampleUsers, checker, defaultOptions())
		status, _ := call(t, app, fiber.MethodGet, "/api/user/list", "bob")
		assert.Equal(t, 403, status, "deny by default on %s", name)

		opts := defaultOptions()
		opts.OnEvaluationError = OnErrorAllow
		app = newApp(sampleUsers, checker, opts)
		status, _ = call(t, app, fiber.MethodGet, "/api/user/list", "bob")
		assert.Equal(t, 200, status, "fail open on %s", name)
	}
}

func TestAuthorizationWithEnforcer(t *testing.T) {
	testkit.QuietLogger(t)
	ctx := context.Background()
	db := testkit.NewDB(t, &policy.Rule{})
	enforcer, err := policy.NewEnforcer(ctx, policy.NewStore(db))
	require.NoError(t, err)

	_, err = enforcer.AddPolicy(ctx, "editor", "/api/user/*", "GET,POST")
	require.NoError(t, err)
	_, err = enforcer.AddGrouping(ctx, "u-bob", "editor")
	require.NoError(t, err)

	app := newApp(sampleUsers, enforcer, defaultOptions())

	status, body := call(t, app, fiber.MethodGet, "/api/user/list", "bob")
	assert.Equal(t, 200, status)
	assert.Equal(t, 0, body.Code)

	status, _ = call(t, app, fiber.MethodPost, "/api/user/add", "bob")
	assert.Equal(t, 200, status)

	status, _ = call(t, app, fiber.MethodDelete, "/api/user/1", "bob")
	assert.Equal(t, 403, status)

	_, err = enforcer.RemoveGrouping(ctx, "u-bob", "editor")
	require.NoError(t, err)
	status, _ = call(t, app, fiber.MethodGet, "/api/user/list", "bob")
	assert.Equal(t, 403, status, "revocation applies to the next request")
}

func routeApp(handlers ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	handlers = append(handlers, func(c *fiber.Ctx) error {
		return response.Success(c, GetUserID(c))
	})
	app.Get("/api/user/list", handlers...)
	return app
}

func TestRequireLogin(t *testing.T) {
	testkit.QuietLogger(t)
	app := routeApp(RequireLogin(sampleUsers))

	status, body := call(t, app, fiber.MethodGet, "/api/user/list", "")
	assert.Equal(t, 401, status)
	assert.Equal(t, apperrors.ErrUnauthorized.Message, body.Message)

	status, body = call(t, app, fiber.MethodGet, "/api/user/list", "expired")
	assert.Equal(t, 401, status)
	assert.Equal(t, apperrors.ErrTokenExpired.Message, body.Message)

	status, body = call(t, app, fiber.MethodGet, "/api/user/list", "bob")
	assert.Equal(t, 200, status)
	assert.Equal(t, "u-bob", body.Data)
}

func TestRequireLoginReusesAuthorizationResult(t *testing.T) {
	testkit.QuietLogger(t)
	calls := 0
	counting := resolverFunc(func(ctx context.Context, token string) (*auth.UserAuthContext, error) {
		calls++
		return sampleUsers.GetCurrentUser(ctx, token)
	})

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(Authorization(counting, checkerFunc(denyAll), defaultOptions()))
	app.Get("/api/auth/user-info", RequireLogin(counting), func(c *fiber.Ctx) error {
		return response.Success(c, nil)
	})

	status, _ := call(t, app, fiber.MethodGet, "/api/auth/user-info", "bob")
	assert.Equal(t, 200, status)
	assert.Equal(t, 1, calls)

	status, body := call(t, app, fiber.MethodGet, "/api/auth/user-info", "expired")
	assert.Equal(t, 401, status)
	assert.Equal(t, apperrors.ErrTokenExpired.Message, body.Message)
	assert.Equal(t, 2, calls)
}

type resolverFunc func(ctx context.Context, token string) (*auth.UserAuthContext, error)

func (f resolverFunc) GetCurrentUser(ctx context.Context, token string) (*auth.UserAuthContext, error) {
	return f(ctx, token)
}

func TestRequirePermission(t *testing.T) {
	testkit.QuietLogger(t)

	tests := []struct {
		name   string
		perms  []string
		token  string
		status int
	}{
		{"button mark", []string{"user:btn:list"}, "bob", 200},
		{"missing mark", []string{"user:btn:add"}, "bob", 403},
		{"any of", []string{"user:btn:add", "user:btn:list"}, "bob", 200},
		{"api wildcard", []string{"GET:/api/user/list"}, "bob", 200},
		{"api method set intersects", []string{"PUT, post:/api/user/list"}, "bob", 200},
		{"api method mismatch", []string{"DELETE:/api/user/list"}, "bob", 403},
		{"api exact", []string{"DELETE:/api/role/1"}, "bob", 200},
		{"api exact only", []string{"DELETE:/api/role/10"}, "bob", 403},
		{"api any method required", []string{"*:/api/user/list"}, "bob", 200},
		{"api pipe separated", []string{"PUT|POST:/api/user/list"}, "bob", 200},
		{"api pipe mismatch", []string{"GET|POST:/api/role/1"}, "bob", 403},
		{"api any method granted", []string{"DELETE:/api/dept/3"}, "carol", 200},
		{"api pipe granted", []string{"PUT:/api/menu/1"}, "carol", 200},
		{"api pipe granted mismatch", []string{"DELETE:/api/menu/1"}, "carol", 403},
		{"admin is not exempt", []string{"user:btn:list"}, "admin", 403},
		{"anonymous", []string{"user:btn:list"}, "", 401},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := routeApp(RequirePermission(sampleUsers, tt.perms...))
			status, _ := call(t, app, fiber.MethodGet, "/api/user/list", tt.token)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestMatchPath(t *testing.T) {
	assert.True(t, matchPath("/api/user/1", "/api/user/*"))
	assert.True(t, matchPath("/api/user/1/roles", "/api/user/*"))
	assert.False(t, matchPath("/api/users", "/api/user/*"))
	assert.True(t, matchPath("/a.b", "/a.b"))
	assert.False(t, matchPath("/axb", "/a.b"), "dots are literal")
	assert.True(t, matchPath("/api/x/list", "/api/*/list"))
}

type scopes map[string]*datascope.DataScope

func (s scopes) GetDataScope(_ context.Context, userID string) (*datascope.DataScope, error) {
	if ds, ok := s[userID]; ok {
		return ds, nil
	}
	return nil, errors.New("redis down")
}

func TestInjectDataScope(t *testing.T) {
	testkit.QuietLogger(t)
	resolver := scopes{
		"u-bob": {Scope: datascope.ScopeDeptOnly, UserID: "u-bob", DepartmentID: "D2", DepartmentIDs: []string{"D2"}},
	}
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/api/user/list", InjectDataScope(sampleUsers, resolver), func(c *fiber.Ctx) error {
		ds := GetDataScope(c)
		return response.Success(c, ds.Scope.String())
	})

	status, body := call(t, app, fiber.MethodGet, "/api/user/list", "bob")
	assert.Equal(t, 200, status)
	assert.Equal(t, datascope.ScopeDeptOnly.String(), body.Data)

	status, _ = call(t, app, fiber.MethodGet, "/api/user/list", "admin")
	assert.Equal(t, 500, status)

	status, _ = call(t, app, fiber.MethodGet, "/api/user/list", "")
	assert.Equal(t, 401, status)
}

func TestRecoveryAndErrorHandler(t *testing.T) {
	testkit.QuietLogger(t)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(Recovery(), RequestID())
	app.Get("/panic", func(*fiber.Ctx) error { panic("boom") })
	app.Get("/internal", func(*fiber.Ctx) error {
		return apperrors.Internal("读取缓存失败", errors.New("dial tcp: refused"))
	})
	app.Get("/plain", func(*fiber.Ctx) error { return errors.New("secret detail") })
	app.Get("/request-id", func(c *fiber.Ctx) error {
		return response.Success(c, logger.RequestIDFrom(c.UserContext()))
	})

	status, body := call(t, app, fiber.MethodGet, "/panic", "")
	assert.Equal(t, 500, status)
	assert.Equal(t, response.MsgServerError, body.Message)

	status, body = call(t, app, fiber.MethodGet, "/internal", "")
	assert.Equal(t, 500, status)
	assert.Equal(t, "读取缓存失败", body.Message)

	status, body = call(t, app, fiber.MethodGet, "/plain", "")
	assert.Equal(t, 500, status)
	assert.Equal(t, response.MsgServerError, body.Message)

	status, _ = call(t, app, fiber.MethodGet, "/missing", "")
	assert.Equal(t, 404, status)

	req := httptest.NewRequest(fiber.MethodGet, "/missing", nil)
	req.Header.Set("X-Request-ID", "req-1")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "req-1", resp.Header.Get("X-Request-ID"))

	req = httptest.NewRequest(fiber.MethodGet, "/request-id", nil)
	req.Header.Set("X-Request-ID", "req-2")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out response.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "req-2", out.Data, "request id reaches the user context")
}
