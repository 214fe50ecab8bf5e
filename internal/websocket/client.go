package websocket

import (
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second

	// 必须小于 pongWait
	pingPeriod = (pongWait * 9) / 10

	// 客户端只发送订阅指令,不需要大消息
	maxInboundSize = 4 * 1024

	sendBuffer = 256
)

// 客户端指令
const (
	CommandSubscribe   = "subscribe"
	CommandUnsubscribe = "unsubscribe"
)

// Command 客户端发送的订阅指令
type Command struct {
	Action     string   `json:"action"`
	Workplaces []string `json:"workplaces"`
}

// Client 订阅工序状态变更的 WebSocket 客户端
type Client struct {
	ID     string
	UserID string

	// Workplaces 订阅的工位,为空表示全部
	Workplaces mapset.Set[string]

	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte
}

// NewClient 创建客户端
func NewClient(id string, userID string, hub *Hub, conn *websocket.Conn, workplaces ...string) *Client {
	return &Client{
		ID:         id,
		UserID:     userID,
		Workplaces: mapset.NewSet(workplaces...),
		Hub:        hub,
		Conn:       conn,
		Send:       make(chan []byte, sendBuffer),
	}
}

// Subscribed 是否订阅了指定工位的消息
func (c *Client) Subscribed(workplace string) bool {
	if c.Workplaces == nil || c.Workplaces.Cardinality() == 0 || workplace == "" {
		return true
	}
	return c.Workplaces.Contains(workplace)
}

// Apply 执行订阅指令,返回是否识别
func (c *Client) Apply(cmd Command) bool {
	switch cmd.Action {
	case CommandSubscribe:
		for _, w := range cmd.Workplaces {
			if w != "" {
				c.Workplaces.Add(w)
			}
		}
	case CommandUnsubscribe:
		if len(cmd.Workplaces) == 0 {
			c.Workplaces.Clear()
			return true
		}
		for _, w := range cmd.Workplaces {
			c.Workplaces.Remove(w)
		}
	default:
		return false
	}
	return true
}

// ReadPump 读取订阅指令,连接断开时注销客户端
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxInboundSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	log := c.Hub.logger.WithField("client_id", c.ID)
	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithError(err).Warn("websocket read error")
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil || !c.Apply(cmd) {
			log.WithField("payload", string(data)).Debug("ignoring unknown websocket command")
			continue
		}
		log.WithField("action", cmd.Action).WithField("workplaces", c.Workplaces.ToSlice()).Debug("subscription updated")
	}
}

// WritePump 推送消息并定期发送 ping,同一帧内合并排队中的消息
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.writeBatch(message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) writeBatch(first []byte) error {
	w, err := c.Conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	w.Write(first)
	for n := len(c.Send); n > 0; n-- {
		w.Write([]byte{'\n'})
		w.Write(<-c.Send)
	}
	return w.Close()
}
