package websocket_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SheetMetalConnect/api-workshop/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*websocket.Hub, *httptest.Server) {
	gin.SetMode(gin.TestMode)
	logger, _ := test.NewNullLogger()
	hub := websocket.NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	router := gin.New()
	router.GET("/ws", websocket.WebSocketHandler(hub, nil, websocket.NewUpgrader(nil)))
	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return hub, server
}

func dial(t *testing.T, server *httptest.Server, query string) *gorillaWS.Conn {
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?" + query
	conn, _, err := gorillaWS.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// TestHub_PublishByWorkplace 测试按工位订阅推送
func TestHub_PublishByWorkplace(t *testing.T) {
	hub, server := startHub(t)

	laser := dial(t, server, "user_id=u1&workplace=LASER-01")
	all := dial(t, server, "user_id=u2")
	press := dial(t, server, "user_id=u3&workplace=PRESS-01")

	assert.Eventually(t, func() bool { return hub.GetClientCount() == 3 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(websocket.Message{
		Type:          "effect",
		Effect:        "notify_operator",
		OperationKey:  "WO-1/1/0010",
		WorkplaceName: "LASER-01",
		Timestamp:     time.Now().UTC(),
	}))

	for _, conn := range []*gorillaWS.Conn{laser, all} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg websocket.Message
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, "notify_operator", msg.Effect)
		assert.Equal(t, "WO-1/1/0010", msg.OperationKey)
	}

	_ = press.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := press.ReadMessage()
	assert.Error(t, err, "未订阅的工位不应收到消息")
}

// TestClient_Subscribed 测试订阅判断
func TestClient_Subscribed(t *testing.T) {
	c := websocket.NewClient("c1", "u1", nil, nil)
	assert.True(t, c.Subscribed("LASER-01"))

	c = websocket.NewClient("c1", "u1", nil, nil, "LASER-01")
	assert.True(t, c.Subscribed("LASER-01"))
	assert.False(t, c.Subscribed("PRESS-01"))
	assert.True(t, c.Subscribed(""))
}

// TestNewUpgrader 测试来源检查
func TestNewUpgrader(t *testing.T) {
	up := websocket.NewUpgrader([]string{"https://mes.example.com"})
	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, up.CheckOrigin(req))
	req.Header.Set("Origin", "https://mes.example.com")
	assert.True(t, up.CheckOrigin(req))

	up = websocket.NewUpgrader([]string{"*"})
	req.Header.Set("Origin", "https://evil.example.com")
	assert.True(t, up.CheckOrigin(req))
}

// TestClient_Apply 测试订阅指令
func TestClient_Apply(t *testing.T) {
	c := websocket.NewClient("c1", "u1", nil, nil)
	assert.True(t, c.Subscribed("LASER-01"))

	assert.True(t, c.Apply(websocket.Command{Action: websocket.CommandSubscribe, Workplaces: []string{"PRESS-01", ""}}))
	assert.True(t, c.Subscribed("PRESS-01"))
	assert.False(t, c.Subscribed("LASER-01"))
	assert.Equal(t, 1, c.Workplaces.Cardinality())

	assert.True(t, c.Apply(websocket.Command{Action: websocket.CommandUnsubscribe}))
	assert.True(t, c.Subscribed("LASER-01"))

	assert.False(t, c.Apply(websocket.Command{Action: "explode"}))
}
