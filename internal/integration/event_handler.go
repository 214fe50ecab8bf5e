package integration

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/SheetMetalConnect/api-workshop/internal/config"
	"github.com/SheetMetalConnect/api-workshop/internal/metrics"
	"github.com/SheetMetalConnect/api-workshop/internal/model"
	"github.com/SheetMetalConnect/api-workshop/internal/repository"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SignatureHeader Webhook 签名请求头
const SignatureHeader = "X-MES-Signature"

const maxResponseBody = 1024

// OperationEventRequest 工序事件请求
// @Description 记录工序事件的请求参数
type OperationEventRequest struct {
	ActionType    string                 `json:"action_type" example:"START" binding:"required"` // START/STOP/COMPLETE/REPORT_QUANTITY/FINISH
	OrderNo       string                 `json:"order_no" example:"WO-2025-001" binding:"required"`
	AssetID       int64                  `json:"asset_id" example:"1" binding:"required,gt=0"`
	OperationNo   string                 `json:"operation_no" example:"0010" binding:"required"`
	WorkplaceName string                 `json:"workplace_name" example:"LASER-01"`
	UserID        string                 `json:"user_id,omitempty"`
	UserEmail     string                 `json:"user_email,omitempty"`
	OperationData map[string]interface{} `json:"operation_data,omitempty" swaggertype:"object"`
}

// EventRecorder 记录工序事件
type EventRecorder interface {
	Record(ctx context.Context, req *OperationEventRequest) (*model.OperationEventModel, error)
}

// webhookPayload 推送到 Webhook 的数据
type webhookPayload struct {
	EventID       string          `json:"event_id"`
	ActionType    string          `json:"action_type"`
	OrderNo       string          `json:"order_no"`
	AssetID       int64           `json:"asset_id"`
	OperationNo   string          `json:"operation_no"`
	WorkplaceName string          `json:"workplace_name,omitempty"`
	UserID        string          `json:"user_id"`
	UserEmail     string          `json:"user_email,omitempty"`
	OperationData json.RawMessage `json:"operation_data,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// EventHandler 基于数据库的事件处理器
// 事件先持久化,再由 worker 异步推送到 Webhook
type EventHandler struct {
	eventRepo  repository.EventRepository
	cfg        config.WebhookConfig
	httpClient *http.Client
	backoff    time.Duration
	logger     *logrus.Entry
	queue      chan string
	stop       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// EventHandlerOption 事件处理器选项
type EventHandlerOption func(*EventHandler)

// WithHTTPClient 设置推送使用的 HTTP 客户端
func WithHTTPClient(client *http.Client) EventHandlerOption {
	return func(h *EventHandler) { h.httpClient = client }
}

// WithBackoff 设置首次重试等待时间
func WithBackoff(d time.Duration) EventHandlerOption {
	return func(h *EventHandler) { h.backoff = d }
}

// NewEventHandler 创建事件处理器并启动 worker
func NewEventHandler(eventRepo repository.EventRepository, cfg config.WebhookConfig, logger *logrus.Logger, opts ...EventHandlerOption) *EventHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	h := &EventHandler{
		eventRepo:  eventRepo,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		backoff:    time.Second,
		logger:     logger.WithField("component", "event_handler"),
		queue:      make(chan string, 1000),
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}

	for i := 0; i < cfg.Workers; i++ {
		h.wg.Add(1)
		go h.worker()
	}

	return h
}

// Record 持久化事件并排队推送
func (h *EventHandler) Record(ctx context.Context, req *OperationEventRequest) (*model.OperationEventModel, error) {
	if req == nil {
		return nil, errors.New("event request is nil")
	}
	if !model.IsValidAction(req.ActionType) {
		return nil, fmt.Errorf("invalid action type: %s", req.ActionType)
	}

	var data []byte
	if req.OperationData != nil {
		var err error
		if data, err = json.Marshal(req.OperationData); err != nil {
			return nil, fmt.Errorf("failed to marshal event data: %w", err)
		}
	}

	status := model.WebhookStatusPending
	if h.cfg.URL == "" {
		status = model.WebhookStatusSkipped
	}

	now := time.Now().UTC()
	event := &model.OperationEventModel{
		ID:            uuid.New().String(),
		ActionType:    req.ActionType,
		OrderNo:       req.OrderNo,
		AssetID:       req.AssetID,
		OperationNo:   req.OperationNo,
		WorkplaceName: req.WorkplaceName,
		UserID:        req.UserID,
		UserEmail:     req.UserEmail,
		OperationData: data,
		WebhookStatus: status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if event.UserID == "" {
		event.UserID = "system"
	}

	if err := h.eventRepo.Save(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to save event: %w", err)
	}

	if status == model.WebhookStatusPending {
		h.enqueue(event.ID)
	}
	return event, nil
}

// ResumePending 重新排队未推送的事件,用于启动时恢复
func (h *EventHandler) ResumePending(ctx context.Context) (int, error) {
	if h.cfg.URL == "" {
		return 0, nil
	}
	events, err := h.eventRepo.FindPending(ctx, cap(h.queue))
	if err != nil {
		return 0, err
	}
	for _, e := range events {
		h.enqueue(e.ID)
	}
	return len(events), nil
}

func (h *EventHandler) enqueue(id string) {
	select {
	case h.queue <- id:
	default:
		// 队列满时保持 pending,下次 ResumePending 时重试
		h.logger.WithField("event_id", id).Warn("Event queue full, delivery deferred")
	}
}

// worker 事件处理 worker
func (h *EventHandler) worker() {
	defer h.wg.Done()
	for {
		select {
		case id := <-h.queue:
			h.deliver(id)
		case <-h.stop:
			return
		}
	}
}

// deliver 推送到 Webhook,失败时指数退避重试
func (h *EventHandler) deliver(id string) {
	ctx := context.Background()
	log := h.logger.WithField("event_id", id)

	event, err := h.eventRepo.FindByID(ctx, id)
	if err != nil {
		log.WithError(err).Error("Failed to load event for delivery")
		return
	}

	body, err := json.Marshal(webhookPayload{
		EventID:       event.ID,
		ActionType:    event.ActionType,
		OrderNo:       event.OrderNo,
		AssetID:       event.AssetID,
		OperationNo:   event.OperationNo,
		WorkplaceName: event.WorkplaceName,
		UserID:        event.UserID,
		UserEmail:     event.UserEmail,
		OperationData: json.RawMessage(event.OperationData),
		CreatedAt:     event.CreatedAt,
	})
	if err != nil {
		h.markFailed(ctx, event.ID, 0, err)
		return
	}

	attempts := h.cfg.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	backoff := h.backoff

	var lastErr error
	for i := 0; i < attempts; i++ {
		resp, err := h.send(ctx, body)
		if err == nil {
			if uerr := h.eventRepo.UpdateDelivery(ctx, event.ID, map[string]interface{}{
				"webhook_status":   model.WebhookStatusSuccess,
				"webhook_success":  true,
				"webhook_response": resp,
				"retry_count":      i,
				"updated_at":       time.Now().UTC(),
			}); uerr != nil {
				log.WithError(uerr).Error("Failed to store webhook result")
			}
			metrics.RecordWebhookDelivery(model.WebhookStatusSuccess)
			return
		}

		lastErr = err
		log.WithError(err).WithField("attempt", i+1).Warn("Webhook delivery failed")

		if i < attempts-1 {
			select {
			case <-time.After(backoff):
			case <-h.stop:
				// 保持 pending,重启后恢复
				return
			}
			backoff *= 2 // 指数退避
		}
	}

	h.markFailed(ctx, event.ID, attempts, lastErr)
}

func (h *EventHandler) markFailed(ctx context.Context, id string, retries int, cause error) {
	if err := h.eventRepo.UpdateDelivery(ctx, id, map[string]interface{}{
		"webhook_status":  model.WebhookStatusFailed,
		"webhook_success": false,
		"error_message":   cause.Error(),
		"retry_count":     retries,
		"updated_at":      time.Now().UTC(),
	}); err != nil {
		h.logger.WithError(err).WithField("event_id", id).Error("Failed to store webhook result")
	}
	metrics.RecordWebhookDelivery(model.WebhookStatusFailed)
}

// send 发送一次 Webhook 请求,返回截断后的响应体
func (h *EventHandler) send(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.cfg.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(h.cfg.Secret, body))
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("webhook returned status code: %d", resp.StatusCode)
	}
	return string(respBody), nil
}

// Sign 计算 sha256=<hex> 形式的 HMAC 签名
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Stop 停止事件处理器
func (h *EventHandler) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
	h.wg.Wait()
}
