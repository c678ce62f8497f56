package lifecycle

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/goauthz/pkg/logger"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Hook 生命周期钩子
type Hook func(*ServiceContext) error

// ServiceOptions 服务配置选项
type ServiceOptions struct {
	Name    string // 服务名称
	NodeID  string // 节点ID
	Address string // 监听地址
}

// Service 服务包装器
type Service struct {
	opts      *ServiceOptions
	app       *fiber.App
	lifecycle *Manager
	ctx       *ServiceContext
	addr      net.Addr

	onStart []Hook
	onReady []Hook
	onStop  []Hook
}

// NewService 创建服务
func NewService(opts *ServiceOptions, manager *Manager) *Service {
	s := &Service{
		opts:      opts,
		lifecycle: manager,
	}
	s.ctx = newServiceContext(s)
	return s
}

// SetApp 设置Fiber应用
func (s *Service) SetApp(app *fiber.App) {
	s.app = app
}

// Lifecycle 获取事件管理器
func (s *Service) Lifecycle() *Manager {
	return s.lifecycle
}

// Context 获取服务上下文
func (s *Service) Context() *ServiceContext {
	return s.ctx
}

// Addr 实际监听地址，启动前为 nil
func (s *Service) Addr() net.Addr {
	return s.addr
}

// OnStart 注册启动钩子
func (s *Service) OnStart(fn Hook) {
	s.onStart = append(s.onStart, fn)
}

// OnReady 注册就绪钩子
func (s *Service) OnReady(fn Hook) {
	s.onReady = append(s.onReady, fn)
}

// OnStop 注册停止钩子
func (s *Service) OnStop(fn Hook) {
	s.onStop = append(s.onStop, fn)
}

// Run 运行服务直到收到 SIGINT / SIGTERM
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.RunContext(ctx)
}

// RunContext 运行服务直到 ctx 结束
func (s *Service) RunContext(ctx context.Context) error {
	if s.app == nil {
		return fmt.Errorf("service %s: fiber app not set", s.opts.Name)
	}
	if err := s.lifecycle.Start(ctx); err != nil {
		return fmt.Errorf("start lifecycle manager: %w", err)
	}

	s.emit(ctx, EventStarting)

	for _, fn := range s.onStart {
		if err := fn(s.ctx); err != nil {
			s.stopManager()
			return fmt.Errorf("start hook: %w", err)
		}
	}

	ln, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		s.stopManager()
		return fmt.Errorf("listen %s: %w", s.opts.Address, err)
	}
	s.addr = ln.Addr()
	s.emit(ctx, EventStarted)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("服务启动",
			zap.String("service", s.opts.Name),
			zap.String("address", s.addr.String()),
		)
		if err := s.app.Listener(ln); err != nil {
			errCh <- err
		}
	}()

	for _, fn := range s.onReady {
		if err := fn(s.ctx); err != nil {
			_ = s.Shutdown()
			return fmt.Errorf("ready hook: %w", err)
		}
	}

	s.emit(ctx, EventReady)

	select {
	case <-ctx.Done():
		logger.Info("收到退出信号，正在关闭服务...")
	case err := <-errCh:
		_ = s.Shutdown()
		return fmt.Errorf("server error: %w", err)
	}

	return s.Shutdown()
}

// Shutdown 优雅关闭服务
func (s *Service) Shutdown() error {
	ctx := context.Background()
	s.emit(ctx, EventStopping)

	for _, fn := range s.onStop {
		if err := fn(s.ctx); err != nil {
			logger.Error("停止钩子执行失败", zap.Error(err))
		}
	}

	if s.app != nil {
		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("关闭HTTP服务失败", zap.Error(err))
		}
	}

	s.emit(ctx, EventStopped)
	s.stopManager()

	logger.Info("服务已关闭", zap.String("service", s.opts.Name))
	return nil
}

func (s *Service) emit(ctx context.Context, event Event) {
	if err := s.lifecycle.Emit(ctx, event, nil); err != nil {
		logger.Warn("发布生命周期事件失败", zap.String("event", string(event)), zap.Error(err))
	}
}

func (s *Service) stopManager() {
	if err := s.lifecycle.Stop(); err != nil {
		logger.Error("停止事件监听失败", zap.Error(err))
	}
}
