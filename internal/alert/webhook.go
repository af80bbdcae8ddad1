package alert

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// WebhookNotifier 把告警以 JSON POST 到 webhook（Slack/Discord 兼容的简单载荷）
type WebhookNotifier struct {
	client *resty.Client
	url    string
	source string
}

type webhookPayload struct {
	Source    string            `json:"source"`
	Severity  string            `json:"severity"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// NewWebhookNotifier url 为空时返回 nil（调用方应改用 Nop）
func NewWebhookNotifier(url, source string) *WebhookNotifier {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil
	}
	client := resty.New().
		SetTimeout(5 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == 429 || r.StatusCode() >= 500
		})
	return &WebhookNotifier{client: client, url: url, source: source}
}

func (n *WebhookNotifier) SendAlert(ctx context.Context, severity, title, message string, metadata map[string]string) error {
	payload := webhookPayload{
		Source:    n.source,
		Severity:  severity,
		Title:     title,
		Message:   message,
		Content:   "[" + strings.ToUpper(severity) + "] " + title + ": " + message,
		Metadata:  metadata,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(n.url)
	if err != nil {
		return errors.Wrap(err, "post alert webhook")
	}
	if resp.StatusCode() >= 400 {
		return errors.Errorf("alert webhook returned status %d", resp.StatusCode())
	}
	return nil
}
