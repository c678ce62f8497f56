package router

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Route 路由配置
type Route struct {
	Method      string          // HTTP方法
	Path        string          // 路径(相对路径或以/开头的绝对路径)
	Handler     fiber.Handler   // 处理函数
	Middlewares []fiber.Handler // 路由级中间件，例如登录或权限校验
}

// Registrar 路由注册器接口
type Registrar interface {
	// Prefix 返回路由前缀
	Prefix() string
	// Routes 返回路由配置列表
	Routes() []Route
}

// Register 注册控制器的全部路由
func Register(app fiber.Router, controllers ...Registrar) {
	for _, ctrl := range controllers {
		prefix := ctrl.Prefix()
		g := app.Group(prefix)

		for _, route := range ctrl.Routes() {
			handlers := buildHandlers(route)
			if strings.HasPrefix(route.Path, "/") && prefix != "" && strings.HasPrefix(route.Path, prefix+"/") {
				// 已带前缀的绝对路径
				app.Add(route.Method, route.Path, handlers...)
			} else {
				g.Add(route.Method, route.Path, handlers...)
			}
		}
	}
}

// buildHandlers 构建处理器链(中间件 + 处理函数)
func buildHandlers(route Route) []fiber.Handler {
	handlers := make([]fiber.Handler, 0, len(route.Middlewares)+1)
	handlers = append(handlers, route.Middlewares...)
	return append(handlers, route.Handler)
}
