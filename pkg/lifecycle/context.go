package lifecycle

import "context"

// ServiceContext 服务上下文，传给生命周期钩子
type ServiceContext struct {
	service *Service
}

func newServiceContext(svc *Service) *ServiceContext {
	return &ServiceContext{service: svc}
}

// GetService 获取服务实例
func (sc *ServiceContext) GetService() *Service {
	return sc.service
}

// Lifecycle 获取事件管理器
func (sc *ServiceContext) Lifecycle() *Manager {
	if sc.service == nil {
		return nil
	}
	return sc.service.Lifecycle()
}

// EmitEvent 发送事件
func (sc *ServiceContext) EmitEvent(ctx context.Context, event Event, metadata any) error {
	lc := sc.Lifecycle()
	if lc == nil {
		return nil
	}
	return lc.Emit(ctx, event, metadata)
}
