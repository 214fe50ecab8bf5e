package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

// Message 推送给客户端的工序通知
type Message struct {
	Type          string    `json:"type"` // effect
	Effect        string    `json:"effect,omitempty"`
	Message       string    `json:"message,omitempty"`
	OperationKey  string    `json:"operation_key,omitempty"`
	WorkplaceName string    `json:"workplace_name,omitempty"`
	FromState     string    `json:"from_state,omitempty"`
	ToState       string    `json:"to_state,omitempty"`
	Actor         string    `json:"actor,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

type envelope struct {
	workplace string
	payload   []byte
}

// Hub 管理所有 WebSocket 连接
type Hub struct {
	// 已注册的客户端
	clients map[*Client]bool

	broadcast chan envelope

	// 注册新客户端
	Register chan *Client

	// 注销客户端
	Unregister chan *Client

	// 互斥锁，保护 clients map
	mu sync.RWMutex

	logger *logrus.Entry
}

// NewHub 创建新的 Hub
func NewHub(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		logger:     logger.WithField("component", "websocket_hub"),
	}
}

// Run 运行 Hub,ctx 取消后关闭全部客户端
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()

		case env := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.Subscribed(env.workplace) {
					continue
				}
				select {
				case client.Send <- env.payload:
				default:
					// 客户端消费过慢
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish 广播消息给订阅了该工位(或未设置订阅)的客户端,不阻塞
func (h *Hub) Publish(msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- envelope{workplace: msg.WorkplaceName, payload: payload}:
	default:
		h.logger.WithField("effect", msg.Effect).Warn("Broadcast queue full, dropping message")
	}
	return nil
}

// GetClientCount 获取客户端数量
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}
