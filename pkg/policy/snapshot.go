package policy

import (
	"context"
	"fmt"

	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/goauthz/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Snapshot 以 casbin 原生表格式导出、导入当前有效策略，
// 便于与直接使用 gorm-adapter 的系统交换策略或做离线备份。
type Snapshot struct {
	db    *gorm.DB
	table string
}

// NewSnapshot 创建策略快照，table 为快照表名
func NewSnapshot(db *gorm.DB, table string) *Snapshot {
	if table == "" {
		table = "casbin_snapshot"
	}
	return &Snapshot{db: db, table: table}
}

func (s *Snapshot) adapter(ctx context.Context) (*gormadapter.Adapter, error) {
	a, err := gormadapter.NewAdapterByDBUseTableName(s.db.WithContext(ctx), "", s.table)
	if err != nil {
		return nil, fmt.Errorf("open snapshot table %s: %w", s.table, err)
	}
	return a, nil
}

// Export 覆盖写入快照表，返回写入的规则数
func (s *Snapshot) Export(ctx context.Context, e *Enforcer) (int, error) {
	a, err := s.adapter(ctx)
	if err != nil {
		return 0, err
	}
	se := e.current.Load()
	if err := a.SavePolicy(se.GetModel()); err != nil {
		return 0, fmt.Errorf("save snapshot: %w", err)
	}

	policies, err := e.GetPolicies()
	if err != nil {
		return 0, err
	}
	groupings, err := e.GetGroupings()
	if err != nil {
		return 0, err
	}
	n := len(policies) + len(groupings)
	logger.Info("策略快照已导出", zap.String("table", s.table), zap.Int("rules", n))
	return n, nil
}

// Import 用快照表内容整体替换有效策略。
// 旧规则软删除、新规则追加在同一事务内完成，返回导入的规则数。
func (s *Snapshot) Import(ctx context.Context, e *Enforcer) (int, error) {
	a, err := s.adapter(ctx)
	if err != nil {
		return 0, err
	}
	m, err := ParseModel(e.ModelText())
	if err != nil {
		return 0, err
	}
	if err := a.LoadPolicy(m); err != nil {
		return 0, fmt.Errorf("load snapshot: %w", err)
	}

	var policies, groupings [][]string
	if ast, ok := m["p"]["p"]; ok {
		policies = ast.Policy
	}
	if ast, ok := m["g"]["g"]; ok {
		groupings = ast.Policy
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	err = e.store.Transaction(ctx, func(tx *Store) error {
		if _, err := tx.SoftDelete(ctx, PtypePolicy, 0); err != nil {
			return err
		}
		if _, err := tx.SoftDelete(ctx, PtypeGrouping, 0); err != nil {
			return err
		}
		for _, rule := range policies {
			if _, err := tx.Append(ctx, PtypePolicy, rule...); err != nil {
				return err
			}
		}
		for _, rule := range groupings {
			if _, err := tx.Append(ctx, PtypeGrouping, rule...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("replace rules: %w", err)
	}
	if err := e.reloadLocked(ctx); err != nil {
		return 0, err
	}
	e.publish(ctx, EventPolicyChanged)

	n := len(policies) + len(groupings)
	logger.Info("策略快照已导入", zap.String("table", s.table), zap.Int("rules", n))
	return n, nil
}
