package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/goauthz/pkg/auth"
	"github.com/goauthz/pkg/database"
	"github.com/goauthz/pkg/identity"
	"github.com/goauthz/pkg/logger"
	"github.com/goauthz/pkg/policy"
	"github.com/goauthz/services/admin/internal/directory"
	"github.com/goauthz/services/admin/internal/model"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var adminPassword string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "建表并写入初始策略模型",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap()
		if err != nil {
			return err
		}
		defer rt.Close()
		return migrate(cmd.Context(), rt)
	},
}

func init() {
	migrateCmd.Flags().StringVar(&adminPassword, "admin-password", "", "不存在 admin 用户时以此密码创建超级管理员")
}

func migrate(ctx context.Context, rt *infra) error {
	if err := rt.db.AutoMigrate(model.All()...); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}
	if err := policy.NewStore(rt.db).Migrate(); err != nil {
		return fmt.Errorf("策略表迁移失败: %w", err)
	}
	logger.Info("数据库迁移完成")

	if err := seedModel(ctx, directory.NewModelStore(rt.db, database.NewCache(rt.redis, "")), rt.cfg.Casbin.ModelPath); err != nil {
		return err
	}
	if adminPassword != "" {
		return seedAdmin(ctx, rt.db, adminPassword)
	}
	return nil
}

// seedModel 尚未保存模型时写入配置文件中的模型或内置模型
func seedModel(ctx context.Context, store *directory.ModelStore, path string) error {
	saved, err := store.LoadModel(ctx)
	if err != nil {
		return fmt.Errorf("读取策略模型失败: %w", err)
	}
	if strings.TrimSpace(saved) != "" {
		return nil
	}

	text := policy.DefaultModel
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("读取模型文件失败: %w", err)
		}
		text = string(raw)
	}
	if _, err := policy.ParseModel(text); err != nil {
		return err
	}
	if err := store.SaveModel(ctx, text); err != nil {
		return fmt.Errorf("保存策略模型失败: %w", err)
	}
	logger.Info("已写入策略模型", zap.String("source", modelSource(path)))
	return nil
}

func modelSource(path string) string {
	if path == "" {
		return "builtin"
	}
	return path
}

func seedAdmin(ctx context.Context, db *gorm.DB, password string) error {
	users := directory.NewUsers(db)
	existing, err := users.FindOne(ctx, map[string]interface{}{"username": "admin"})
	if err != nil {
		return err
	}
	if existing != nil {
		logger.Info("admin 用户已存在，跳过创建")
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	admin := &model.User{
		Username: "admin",
		Password: hash,
		Nickname: "超级管理员",
		Status:   model.StatusEnabled,
		UserType: int(identity.SuperAdmin),
	}
	if err := users.Create(ctx, admin); err != nil {
		return fmt.Errorf("创建 admin 用户失败: %w", err)
	}
	logger.Info("已创建超级管理员", zap.String("userId", admin.ID))
	return nil
}
