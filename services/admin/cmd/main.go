package main

import (
	"fmt"
	"os"

	"github.com/goauthz/pkg/config"
	"github.com/goauthz/pkg/database"
	"github.com/goauthz/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

const serviceName = "admin"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "admin",
	Short:         "多租户管理后台的鉴权与会话服务",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径，默认查找 ./configs/config.yaml")
	rootCmd.AddCommand(serveCmd, migrateCmd, policyCmd)
	// 不带子命令时启动服务
	rootCmd.RunE = serveCmd.RunE

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// infra 命令共用的基础设施
type infra struct {
	cfg        *config.Config
	db         *gorm.DB
	redis      *redis.Client
	closeRedis func() error
}

// bootstrap 加载配置并打开数据库与 Redis
func bootstrap() (*infra, error) {
	if err := config.Init(configPath); err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	cfg := config.Get()

	if err := logger.Init(&cfg.Log); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}
	client, closer, err := database.OpenRedis(&cfg.Redis)
	if err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("初始化Redis失败: %w", err)
	}
	return &infra{cfg: cfg, db: db, redis: client, closeRedis: closer}, nil
}

// Close 释放连接
func (rt *infra) Close() {
	_ = rt.closeRedis()
	_ = database.Close(rt.db)
	_ = logger.Sync()
}
