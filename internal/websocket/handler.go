package websocket

import (
	"net/http"
	"strings"

	"github.com/SheetMetalConnect/api-workshop/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaWS "github.com/gorilla/websocket"
)

// NewUpgrader 按允许的来源创建 Upgrader,包含 "*" 时允许任意来源
func NewUpgrader(allowedOrigins []string) gorillaWS.Upgrader {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return gorillaWS.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowAll || origin == "" || allowed[origin]
		},
	}
}

// WebSocketHandler WebSocket 处理器
// validator 为 nil 时(未启用 Keycloak)从 user_id 参数识别用户;workplace 参数可重复,用于订阅工位
func WebSocketHandler(hub *Hub, validator *auth.KeycloakTokenValidator, upgrader gorillaWS.Upgrader) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if validator != nil {
			token := c.Query("token")
			if token == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
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

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade 已写入错误响应
			hub.logger.WithError(err).Warn("failed to upgrade connection")
			return
		}

		client := NewClient(uuid.New().String(), userID, hub, conn, workplaces...)
		hub.Register <- client

		go client.ReadPump()
		go client.WritePump()
	}
}
