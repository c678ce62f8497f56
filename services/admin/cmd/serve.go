package main

import (
	"context"

	"github.com/goauthz/pkg/lifecycle"
	"github.com/goauthz/pkg/logger"
	"github.com/goauthz/services/admin/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP 服务",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap()
		if err != nil {
			return err
		}
		defer rt.Close()
		return serve(cmd.Context(), rt)
	},
}

func serve(ctx context.Context, rt *infra) error {
	// 启动时迁移，与 migrate 子命令相同且可重复执行
	if err := migrate(ctx, rt); err != nil {
		return err
	}
	srv, err := server.New(ctx, rt.cfg, rt.db, rt.redis)
	if err != nil {
		return err
	}

	svc := lifecycle.NewBuilder(serviceName, rt.redis).
		WithNodeID(rt.cfg.App.NodeID).
		WithAddress(rt.cfg.Server.HTTP.Addr()).
		WithChannel(rt.cfg.Casbin.SyncChannel).
		WithApp(srv.App).
		OnStart(func(sc *lifecycle.ServiceContext) error {
			srv.SetPublisher(sc.Lifecycle())
			lifecycle.BindPolicy(sc.Lifecycle(), srv.Enforcer)
			return nil
		}).
		OnReady(func(sc *lifecycle.ServiceContext) error {
			logger.Info("管理后台服务就绪",
				zap.String("addr", rt.cfg.Server.HTTP.Addr()),
				zap.String("nodeId", sc.Lifecycle().NodeID()),
			)
			return nil
		}).
		OnStop(func(sc *lifecycle.ServiceContext) error {
			logger.Info("管理后台服务正在停止")
			return nil
		}).
		Build()

	return svc.Run()
}
