// Package testkit 提供包测试共用的内存数据库与内存Redis夹具
package testkit

import (
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/goauthz/pkg/config"
	"github.com/goauthz/pkg/database"
	"github.com/goauthz/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewDB 创建独立的 sqlite 内存库并迁移给定模型
func NewDB(t testing.TB, models ...interface{}) *gorm.DB {
	t.Helper()
	return openDB(t, &config.DatabaseConfig{Driver: "sqlite", LogLevel: "silent"}, models)
}

// NewFileDB 在临时目录创建 sqlite 文件库。
// 内存库只有一个连接，事务外再发起写操作的代码需要用它测试。
func NewFileDB(t testing.TB, models ...interface{}) *gorm.DB {
	t.Helper()
	return openDB(t, &config.DatabaseConfig{
		Driver:       "sqlite",
		Database:     filepath.Join(t.TempDir(), "test.db"),
		MaxIdleConns: 2,
		MaxOpenConns: 4,
		LogLevel:     "silent",
	}, models)
}

func openDB(t testing.TB, cfg *config.DatabaseConfig, models []interface{}) *gorm.DB {
	t.Helper()

	db, err := database.Open(cfg)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			t.Fatalf("migrate: %v", err)
		}
	}
	return db
}

// NewRedis 启动 miniredis 并返回连接它的客户端
func NewRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// QuietLogger 测试期间关闭日志输出
func QuietLogger(t testing.TB) {
	t.Helper()
	t.Cleanup(logger.Replace(zap.NewNop()))
}
