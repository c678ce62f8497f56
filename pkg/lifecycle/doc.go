// Package lifecycle 提供服务生命周期管理与跨节点事件广播
//
// # 核心功能
//
// 1. 事件总线 (Manager)
//   - 基于 Redis 发布订阅，所有节点订阅同一频道
//   - 消息携带 node_id，节点忽略自己发出的消息
//   - 实现 policy.Publisher，策略或模型变更后通知其他节点
//
// 2. 服务包装器 (Service)
//   - 统一的 OnStart / OnReady / OnStop 钩子
//   - 收到 SIGINT / SIGTERM 后优雅关闭
//
// # 使用示例
//
//	svc := lifecycle.NewBuilder("admin", redisClient).
//		WithAddress(":8080").
//		WithApp(app).
//		Build()
//
//	enforcer.SetPublisher(svc.Lifecycle())
//	lifecycle.BindPolicy(svc.Lifecycle(), enforcer)
//
//	svc.OnReady(func(sc *lifecycle.ServiceContext) error {
//		logger.Info("服务已就绪")
//		return nil
//	})
//
//	if err := svc.Run(); err != nil {
//		log.Fatal(err)
//	}
package lifecycle
