package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/SheetMetalConnect/api-workshop/internal/auth"
	"github.com/SheetMetalConnect/api-workshop/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const (
	sseHeartbeatInterval = 30 * time.Second
	sseUnregisterTimeout = time.Second
)

// SSEHandler SSE 处理器
// 与 WebSocket 共用 Hub,按 workplace 参数订阅工序通知;validator 为 nil 时从 user_id 参数识别用户
func SSEHandler(hub *websocket.Hub, validator *auth.KeycloakTokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if validator != nil {
			token := c.Query("token")
			if token == "" {
				Error(c, http.StatusUnauthorized, "missing token", "")
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				Error(c, http.StatusUnauthorized, "invalid token", "")
				return
			}
			userID = claims.Subject
		}

		var workplaces []string
		for _, w := range c.QueryArray("workplace") {
			if w = strings.TrimSpace(w); w != "" {
				workplaces = append(workplaces, w)
			}
		}

		flusher, ok := c.Writer.(http.Flusher)
		if !ok {
			Error(c, http.StatusInternalServerError, "streaming not supported", "")
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no") // 禁用 Nginx 缓冲

		client := websocket.NewClient(uuid.New().String(), userID, hub, nil, workplaces...)
		ctx := c.Request.Context()
		select {
		case hub.Register <- client:
		case <-ctx.Done():
			return
		}
		defer func() {
			select {
			case hub.Unregister <- client:
			case <-time.After(sseUnregisterTimeout):
			}
		}()

		connected, _ := json.Marshal(gin.H{
			"type":       "connected",
			"client_id":  client.ID,
			"user_id":    userID,
			"workplaces": workplaces,
			"time":       time.Now().Unix(),
		})
		if err := sendSSEMessage(c.Writer, "connected", connected); err != nil {
			return
		}
		flusher.Flush()

		ticker := time.NewTicker(sseHeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := io.WriteString(c.Writer, ": heartbeat\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case message, ok := <-client.Send:
				if !ok {
					// Hub 已关闭或客户端消费过慢被移除
					return
				}
				if err := sendSSEMessage(c.Writer, "operation", message); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

// sendSSEMessage 发送 SSE 消息
func sendSSEMessage(w io.Writer, event string, data []byte) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
