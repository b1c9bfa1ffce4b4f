package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/atvirokodosprendimai/eventsapi/internal/core/domain"
)

const defaultWebhookTimeout = 10 * time.Second

const (
	HeaderTopic     = "X-Eventsapi-Topic"
	HeaderEventType = "X-Eventsapi-Event-Type"
	HeaderAggregate = "X-Eventsapi-Aggregate"
	HeaderSignature = "X-Hub-Signature-256"
)

// WebhookPublisher POSTs outbox events to one endpoint, signed with
// HMAC-SHA256. Any non-2xx response is returned as an error.
type WebhookPublisher struct {
	url    string
	secret []byte
	client *http.Client
}

func NewWebhookPublisher(url, secret string, timeout time.Duration) *WebhookPublisher {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookPublisher{
		url:    url,
		secret: []byte(secret),
		client: &http.Client{Timeout: timeout},
	}
}

// Publish sends the envelope as JSON with these headers:
//
//	X-Eventsapi-Topic:       <topic>
//	X-Eventsapi-Event-Type:  <event.EventType>
//	X-Eventsapi-Aggregate:   <event.AggregateID>
//	X-Hub-Signature-256:     sha256=<hex HMAC of the body>
func (p *WebhookPublisher) Publish(ctx context.Context, topic string, event domain.EventEnvelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	sig := p.sign(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderTopic, topic)
	req.Header.Set(HeaderEventType, event.EventType)
	req.Header.Set(HeaderAggregate, event.AggregateID)
	req.Header.Set(HeaderSignature, "sha256="+sig)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (p *WebhookPublisher) sign(payload []byte) string {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
