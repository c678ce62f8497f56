package lifecycle

import (
	"context"
	"time"

	"github.com/goauthz/pkg/logger"
	"go.uber.org/zap"
)

const reloadTimeout = 30 * time.Second

// Reloader 可从存储重新加载的策略引擎
type Reloader interface {
	ReloadPolicy(ctx context.Context) error
	ReloadModel(ctx context.Context) error
}

// BindPolicy 其他节点变更策略或模型时重新加载本节点的引擎
func BindPolicy(m *Manager, r Reloader) {
	m.OnEvent(EventPolicyChanged, func(msg *Message) {
		reload(msg, "策略", r.ReloadPolicy)
	})
	m.OnEvent(EventModelChanged, func(msg *Message) {
		reload(msg, "模型", r.ReloadModel)
	})
}

func reload(msg *Message, what string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		logger.Error("重新加载"+what+"失败",
			zap.String("from", msg.NodeID),
			zap.Error(err),
		)
		return
	}
	logger.Info("已重新加载"+what, zap.String("from", msg.NodeID))
}
