package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/goauthz/pkg/logger"
	"github.com/goauthz/pkg/policy"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Event 事件类型
type Event string

const (
	EventStarting  Event = "starting"  // 服务启动中
	EventStarted   Event = "started"   // 服务已启动
	EventReady     Event = "ready"     // 服务就绪（可接收请求）
	EventStopping  Event = "stopping"  // 服务停止中
	EventStopped   Event = "stopped"   // 服务已停止
	EventHealthy   Event = "healthy"   // 健康检查通过
	EventUnhealthy Event = "unhealthy" // 健康检查失败

	EventPolicyChanged Event = policy.EventPolicyChanged // 策略已变更
	EventModelChanged  Event = policy.EventModelChanged  // 模型已变更
)

// DefaultChannel 默认事件频道
const DefaultChannel = "goauthz:events"

// Message 节点间传递的事件消息
type Message struct {
	Service   string    `json:"service"`
	NodeID    string    `json:"node_id"`
	Event     Event     `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  any       `json:"metadata,omitempty"`
}

// Handler 事件处理器
type Handler func(msg *Message)

// Manager 基于 Redis 发布订阅的事件总线，忽略本节点发出的消息
type Manager struct {
	service     string
	nodeID      string
	channel     string
	redis       *redis.Client
	handlers    map[Event][]Handler
	allHandlers []Handler
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	pubsub      *redis.PubSub
	done        chan struct{}
}

// NewManager 创建事件管理器，channel 为空时使用默认频道
func NewManager(client *redis.Client, service, nodeID, channel string) *Manager {
	if channel == "" {
		channel = DefaultChannel
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		service:  service,
		nodeID:   nodeID,
		channel:  channel,
		redis:    client,
		handlers: make(map[Event][]Handler),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// NodeID 本节点标识
func (m *Manager) NodeID() string {
	return m.nodeID
}

// OnEvent 监听特定事件
func (m *Manager) OnEvent(event Event, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], handler)
}

// OnAnyEvent 监听所有事件
func (m *Manager) OnAnyEvent(handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allHandlers = append(m.allHandlers, handler)
}

// Emit 发布事件
func (m *Manager) Emit(ctx context.Context, event Event, metadata any) error {
	msg := &Message{
		Service:   m.service,
		NodeID:    m.nodeID,
		Event:     event,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event message: %w", err)
	}
	return m.redis.Publish(ctx, m.channel, data).Err()
}

// Publish 发布策略变更通知
func (m *Manager) Publish(ctx context.Context, event string) error {
	return m.Emit(ctx, Event(event), nil)
}

// Start 订阅事件频道，确认订阅后返回
func (m *Manager) Start(ctx context.Context) error {
	m.pubsub = m.redis.Subscribe(m.ctx, m.channel)

	if _, err := m.pubsub.Receive(ctx); err != nil {
		_ = m.pubsub.Close()
		m.pubsub = nil
		return fmt.Errorf("subscribe %s: %w", m.channel, err)
	}

	m.done = make(chan struct{})
	go m.listen()

	logger.Info("事件管理器已启动",
		zap.String("service", m.service),
		zap.String("node_id", m.nodeID),
		zap.String("channel", m.channel),
	)
	return nil
}

func (m *Manager) listen() {
	defer close(m.done)
	ch := m.pubsub.Channel()

	for {
		select {
		case <-m.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			m.handleMessage(msg.Payload)
		}
	}
}

func (m *Manager) handleMessage(payload string) {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		logger.Error("解析事件消息失败", zap.Error(err))
		return
	}
	if msg.NodeID == m.nodeID {
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, handler := range m.handlers[msg.Event] {
		go handler(&msg)
	}
	for _, handler := range m.allHandlers {
		go handler(&msg)
	}
}

// Stop 停止监听
func (m *Manager) Stop() error {
	m.cancel()
	if m.pubsub == nil {
		return nil
	}
	err := m.pubsub.Close()
	<-m.done
	return err
}
