package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/frankss230/AFE-PLUS.2-sub001/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DefaultLineBaseURL LINE Messaging API
const DefaultLineBaseURL = "https://api.line.me"

// LinePushRequest push message 请求体
type LinePushRequest struct {
	To       string        `json:"to"`
	Messages []LineMessage `json:"messages"`
}

// LineMessage flex 消息
type LineMessage struct {
	Type     string         `json:"type"`
	AltText  string         `json:"altText"`
	Contents map[string]any `json:"contents"`
}

// LineErrorResponse 错误响应
type LineErrorResponse struct {
	Message string `json:"message"`
}

// LineChannel LINE 推送渠道
type LineChannel struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewLineChannel 创建 LINE 渠道；不做重试，超时由 Dispatcher 的 context 控制
func NewLineChannel(baseURL, channelToken string, logger *zap.Logger) *LineChannel {
	if baseURL == "" {
		baseURL = DefaultLineBaseURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10*time.Second).
		SetRetryCount(0).
		SetAuthToken(channelToken).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &LineChannel{
		httpClient: client,
		logger:     logger,
	}
}

// Send 推送一条 flex 消息
func (c *LineChannel) Send(ctx context.Context, address string, alert models.Alert) error {
	request := LinePushRequest{
		To:       address,
		Messages: []LineMessage{flexMessage(alert)},
	}

	var apiErr LineErrorResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(request).
		SetError(&apiErr).
		Post("/v2/bot/message/push")
	if err != nil {
		return fmt.Errorf("failed to call LINE push API: %w", err)
	}
	if resp.IsError() {
		c.logger.Error("LINE push API returned error",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("msg", apiErr.Message),
		)
		return fmt.Errorf("LINE push API error: %s (status: %d)", apiErr.Message, resp.StatusCode())
	}
	return nil
}

// flexMessage header 使用报警颜色，body 为文案与数值
func flexMessage(alert models.Alert) LineMessage {
	title := alertTitle(alert.Kind)
	body := []map[string]any{
		{"type": "text", "text": alert.Message, "wrap": true, "size": "md"},
	}
	if alert.Value != "" {
		body = append(body, map[string]any{
			"type": "text", "text": alert.Value, "weight": "bold", "size": "xl", "margin": "md",
		})
	}
	body = append(body, map[string]any{
		"type": "text", "text": alert.RaisedAt.Format("2006-01-02 15:04:05"), "size": "xs", "color": "#888888", "margin": "md",
	})

	return LineMessage{
		Type:    "flex",
		AltText: fmt.Sprintf("%s: %s", title, alert.Message),
		Contents: map[string]any{
			"type": "bubble",
			"header": map[string]any{
				"type":            "box",
				"layout":          "vertical",
				"backgroundColor": alert.Color,
				"contents": []map[string]any{
					{"type": "text", "text": title, "color": "#FFFFFF", "weight": "bold", "size": "lg"},
				},
			},
			"body": map[string]any{
				"type":     "box",
				"layout":   "vertical",
				"contents": body,
			},
		},
	}
}

func alertTitle(kind models.AlertKind) string {
	switch kind {
	case models.AlertGeofence:
		return "Safe zone alert"
	case models.AlertHeartRate:
		return "Heart rate alert"
	case models.AlertTemperature:
		return "Body temperature alert"
	case models.AlertLowBattery:
		return "Low battery"
	case models.AlertSOS:
		return "Emergency"
	default:
		return "Alert"
	}
}
