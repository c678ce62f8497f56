package directory

import (
	"context"
	"errors"
	"time"

	"github.com/goauthz/pkg/dal"
	"github.com/goauthz/pkg/database"
	"github.com/goauthz/pkg/logger"
	"github.com/goauthz/services/admin/internal/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 模型文本的配置键与缓存键
const (
	CasbinModelKey      = "casbin_model"
	casbinModelCacheKey = "system_config:" + CasbinModelKey
	casbinModelCacheTTL = 24 * time.Hour
)

// ModelStore 策略模型文本存储：sys_config 为准，Redis 缓存加速读取。
// 实现 policy.ModelSource。
type ModelStore struct {
	configs *dal.BaseRepository[model.SysConfig]
	cache   *database.Cache
}

// NewModelStore 创建模型文本存储
func NewModelStore(db *gorm.DB, cache *database.Cache) *ModelStore {
	return &ModelStore{configs: dal.NewBaseRepository[model.SysConfig](db), cache: cache}
}

// LoadModel 读取模型文本，未保存时返回空串
func (s *ModelStore) LoadModel(ctx context.Context) (string, error) {
	text, err := s.cache.Get(ctx, casbinModelCacheKey)
	if err == nil {
		return text, nil
	}
	if !errors.Is(err, database.ErrCacheMiss) {
		logger.Warn("读取模型缓存失败，改读数据库", zap.Error(err))
	}

	row, err := s.configs.FindOne(ctx, map[string]interface{}{"config_key": CasbinModelKey})
	if err != nil {
		return "", err
	}
	if row == nil {
		return "", nil
	}
	if err := s.cache.Set(ctx, casbinModelCacheKey, row.ConfigValue, casbinModelCacheTTL); err != nil {
		logger.Warn("写入模型缓存失败", zap.Error(err))
	}
	return row.ConfigValue, nil
}

// SaveModel 保存模型文本并刷新缓存
func (s *ModelStore) SaveModel(ctx context.Context, text string) error {
	row := &model.SysConfig{
		ConfigName:  "Casbin 模型",
		ConfigKey:   CasbinModelKey,
		ConfigValue: text,
	}
	err := s.configs.DB().WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "config_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"config_value", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, casbinModelCacheKey, text, casbinModelCacheTTL)
}
