package integration_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SheetMetalConnect/api-workshop/internal/config"
	"github.com/SheetMetalConnect/api-workshop/internal/database"
	"github.com/SheetMetalConnect/api-workshop/internal/integration"
	"github.com/SheetMetalConnect/api-workshop/internal/model"
	"github.com/SheetMetalConnect/api-workshop/internal/repository"
	"github.com/SheetMetalConnect/api-workshop/internal/statemachine"
	"github.com/SheetMetalConnect/api-workshop/internal/websocket"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDBForIntegration 创建内存数据库并迁移
func setupTestDBForIntegration(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), database.GormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newEventRequest() *integration.OperationEventRequest {
	return &integration.OperationEventRequest{
		ActionType:    model.ActionStart,
		OrderNo:       "WO-1",
		AssetID:       1,
		OperationNo:   "0010",
		WorkplaceName: "LASER-01",
		UserID:        "u1",
		OperationData: map[string]interface{}{"status": "IN_PROGRESS"},
	}
}

func waitForStatus(t *testing.T, repo repository.EventRepository, id, status string) *model.OperationEventModel {
	var event *model.OperationEventModel
	require.Eventually(t, func() bool {
		e, err := repo.FindByID(context.Background(), id)
		if err != nil {
			return false
		}
		event = e
		return e.WebhookStatus == status
	}, 3*time.Second, 20*time.Millisecond)
	return event
}

// TestEventHandler_DeliverSigned 测试签名推送
func TestEventHandler_DeliverSigned(t *testing.T) {
	db := setupTestDBForIntegration(t)
	repo := repository.NewEventRepository(db)
	logger, _ := test.NewNullLogger()

	received := make(chan []byte, 1)
	var signature atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		signature.Store(r.Header.Get(integration.SignatureHeader))
		received <- body
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	handler := integration.NewEventHandler(repo, config.WebhookConfig{
		URL: server.URL, Secret: "s3cret", Workers: 1, MaxRetries: 3,
	}, logger, integration.WithBackoff(time.Millisecond))
	defer handler.Stop()

	event, err := handler.Record(context.Background(), newEventRequest())
	require.NoError(t, err)
	assert.Equal(t, model.WebhookStatusPending, event.WebhookStatus)

	var body []byte
	select {
	case body = <-received:
	case <-time.After(3 * time.Second):
		t.Fatal("webhook not called")
	}
	assert.Equal(t, integration.Sign("s3cret", body), signature.Load())

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "START", payload["action_type"])
	assert.Equal(t, event.ID, payload["event_id"])

	stored := waitForStatus(t, repo, event.ID, model.WebhookStatusSuccess)
	require.NotNil(t, stored.WebhookSuccess)
	assert.True(t, *stored.WebhookSuccess)
	require.NotNil(t, stored.WebhookResponse)
	assert.Equal(t, `{"ok":true}`, *stored.WebhookResponse)
}

// TestEventHandler_Retry 测试失败重试
func TestEventHandler_Retry(t *testing.T) {
	db := setupTestDBForIntegration(t)
	repo := repository.NewEventRepository(db)
	logger, _ := test.NewNullLogger()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	handler := integration.NewEventHandler(repo, config.WebhookConfig{URL: server.URL, MaxRetries: 3}, logger,
		integration.WithBackoff(time.Millisecond))
	defer handler.Stop()

	event, err := handler.Record(context.Background(), newEventRequest())
	require.NoError(t, err)

	stored := waitForStatus(t, repo, event.ID, model.WebhookStatusSuccess)
	assert.Equal(t, 2, stored.RetryCount)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

// TestEventHandler_Failed 测试重试耗尽
func TestEventHandler_Failed(t *testing.T) {
	db := setupTestDBForIntegration(t)
	repo := repository.NewEventRepository(db)
	logger, _ := test.NewNullLogger()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	handler := integration.NewEventHandler(repo, config.WebhookConfig{URL: server.URL, MaxRetries: 2}, logger,
		integration.WithBackoff(time.Millisecond))
	defer handler.Stop()

	event, err := handler.Record(context.Background(), newEventRequest())
	require.NoError(t, err)

	stored := waitForStatus(t, repo, event.ID, model.WebhookStatusFailed)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "500")
	require.NotNil(t, stored.WebhookSuccess)
	assert.False(t, *stored.WebhookSuccess)
}

// TestEventHandler_NoWebhook 测试未配置 Webhook
func TestEventHandler_NoWebhook(t *testing.T) {
	db := setupTestDBForIntegration(t)
	repo := repository.NewEventRepository(db)
	logger, _ := test.NewNullLogger()

	handler := integration.NewEventHandler(repo, config.WebhookConfig{}, logger)
	defer handler.Stop()

	req := newEventRequest()
	req.UserID = ""
	event, err := handler.Record(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.WebhookStatusSkipped, event.WebhookStatus)
	assert.Equal(t, "system", event.UserID)

	req.ActionType = "EXPLODE"
	_, err = handler.Record(context.Background(), req)
	assert.Error(t, err)

	n, err := handler.ResumePending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

type capturePublisher struct {
	messages []websocket.Message
}

func (c *capturePublisher) Publish(msg websocket.Message) error {
	c.messages = append(c.messages, msg)
	return nil
}

// TestHubNotifier 测试副作用转发
func TestHubNotifier(t *testing.T) {
	pub := &capturePublisher{}
	logger, _ := test.NewNullLogger()
	machine := statemachine.NewMachine(logger, integration.NewHubNotifier(pub))

	result, err := machine.Transition(context.Background(), "PLANNED", "RELEASED", statemachine.Context{
		integration.ContextOperationKey:  "WO-1/1/0010",
		integration.ContextWorkplaceName: "LASER-01",
	}, "u1")
	require.NoError(t, err)
	require.Len(t, pub.messages, len(result.EffectsExecuted))
	require.NotEmpty(t, pub.messages)

	msg := pub.messages[0]
	assert.Equal(t, "effect", msg.Type)
	assert.Equal(t, "WO-1/1/0010", msg.OperationKey)
	assert.Equal(t, "LASER-01", msg.WorkplaceName)
	assert.Equal(t, "PLANNED", msg.FromState)
	assert.Equal(t, "RELEASED", msg.ToState)
	assert.NotEmpty(t, msg.Message)
}
