package policy

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// 规则类型
const (
	PtypePolicy   = "p" // (subject, object, action)
	PtypeGrouping = "g" // (user, role)
)

// Rule 策略规则行，只追加不修改，撤销时软删除
type Rule struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Ptype     string     `gorm:"size:8;not null;index:idx_rule_lookup" json:"ptype"`
	V0        *string    `gorm:"size:255;index:idx_rule_lookup" json:"v0"`
	V1        *string    `gorm:"size:255" json:"v1"`
	V2        *string    `gorm:"size:255" json:"v2"`
	V3        *string    `gorm:"size:255" json:"v3"`
	V4        *string    `gorm:"size:255" json:"v4"`
	V5        *string    `gorm:"size:255" json:"v5"`
	Deleted   bool       `gorm:"not null;default:false;index" json:"deleted"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// TableName 表名
func (Rule) TableName() string {
	return "sys_casbin_rule"
}

// Values 按位置返回非空字段，遇到第一个空字段截止
func (r *Rule) Values() []string {
	fields := []*string{r.V0, r.V1, r.V2, r.V3, r.V4, r.V5}
	vals := make([]string, 0, len(fields))
	for _, f := range fields {
		if f == nil {
			break
		}
		vals = append(vals, *f)
	}
	return vals
}

var columns = [6]string{"v0", "v1", "v2", "v3", "v4", "v5"}

// Store 策略持久化存储
type Store struct {
	db *gorm.DB
}

// NewStore 创建策略存储
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate 建表
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Rule{})
}

// Transaction 在单个事务内执行多个存储操作
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// Append 追加一条规则，返回规则ID
func (s *Store) Append(ctx context.Context, ptype string, values ...string) (int64, error) {
	rule := &Rule{Ptype: ptype}
	targets := []**string{&rule.V0, &rule.V1, &rule.V2, &rule.V3, &rule.V4, &rule.V5}
	for i, v := range values {
		if i >= len(targets) {
			break
		}
		v := v
		*targets[i] = &v
	}
	if err := s.db.WithContext(ctx).Create(rule).Error; err != nil {
		return 0, err
	}
	return rule.ID, nil
}

// SoftDelete 软删除从 fieldIndex 开始逐位匹配的有效规则，空字符串表示该位不限
func (s *Store) SoftDelete(ctx context.Context, ptype string, fieldIndex int, values ...string) (int64, error) {
	q := s.db.WithContext(ctx).Model(&Rule{}).
		Where("ptype = ? AND deleted = ?", ptype, false)
	for i, v := range values {
		idx := fieldIndex + i
		if v == "" || idx >= len(columns) {
			continue
		}
		q = q.Where(columns[idx]+" = ?", v)
	}

	now := time.Now()
	res := q.Updates(map[string]interface{}{"deleted": true, "deleted_at": &now})
	return res.RowsAffected, res.Error
}

// LoadActive 读取全部未删除规则
func (s *Store) LoadActive(ctx context.Context) ([]Rule, error) {
	var rules []Rule
	err := s.db.WithContext(ctx).
		Where("deleted = ? AND v0 IS NOT NULL", false).
		Order("id").
		Find(&rules).Error
	return rules, err
}

// History 查询某主体的全部规则（含已删除），用于审计
func (s *Store) History(ctx context.Context, ptype, v0 string) ([]Rule, error) {
	var rules []Rule
	err := s.db.WithContext(ctx).
		Where("ptype = ? AND v0 = ?", ptype, v0).
		Order("id").
		Find(&rules).Error
	return rules, err
}
