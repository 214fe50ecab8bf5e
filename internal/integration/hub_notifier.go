package integration

import (
	"context"
	"time"

	"github.com/SheetMetalConnect/api-workshop/internal/statemachine"
	"github.com/SheetMetalConnect/api-workshop/internal/websocket"
)

// 转换上下文中由服务写入的键
const (
	ContextOperationKey  = "operation_key"
	ContextWorkplaceName = "workplace_name"
)

// Publisher 消息发布接口
type Publisher interface {
	Publish(msg websocket.Message) error
}

// HubNotifier 将状态机副作用推送给 WebSocket 客户端
type HubNotifier struct {
	publisher Publisher
	now       func() time.Time
}

// NewHubNotifier 创建副作用通知器
func NewHubNotifier(publisher Publisher) *HubNotifier {
	return &HubNotifier{
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// OnEffect 实现 statemachine.EffectListener
func (n *HubNotifier) OnEffect(_ context.Context, ev statemachine.EffectEvent) error {
	return n.publisher.Publish(websocket.Message{
		Type:          "effect",
		Effect:        string(ev.Effect),
		Message:       ev.Effect.Message(),
		OperationKey:  ev.Context.String(ContextOperationKey),
		WorkplaceName: ev.Context.String(ContextWorkplaceName),
		FromState:     string(ev.From),
		ToState:       string(ev.To),
		Actor:         ev.Actor,
		Timestamp:     n.now(),
	})
}
