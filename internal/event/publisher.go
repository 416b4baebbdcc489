// Package event publishes best-effort notifications about order state
// changes to other services. Delivery failures are logged and swallowed:
// publishing never blocks or fails the primary request path.
package event

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	TypeOrderCreated     = "order.created"
	TypeOrderUpdated     = "order.updated"
	TypeOrderDeleted     = "order.deleted"
	TypeOrderItemCreated = "order_item.created"
)

// Envelope is the wire shape consumed by the event sink.
type Envelope struct {
	Type    string `json:"type"`
	Service string `json:"service"`
	Data    any    `json:"data"`
}

type Publisher interface {
	Publish(ctx context.Context, eventType string, data any)
}

// WebhookPublisher delivers events with a single HTTP POST per event. A
// short client timeout keeps the side channel from stalling requests.
type WebhookPublisher struct {
	url     string
	service string
	client  *http.Client
}

func NewWebhookPublisher(url, service string, timeout time.Duration) *WebhookPublisher {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &WebhookPublisher{
		url:     url,
		service: service,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *WebhookPublisher) Publish(ctx context.Context, eventType string, data any) {
	if p.url == "" {
		log.Debug().Str("event_type", eventType).Msg("event: skipping publish, no sink configured")
		return
	}

	payload, err := json.Marshal(Envelope{Type: eventType, Service: p.service, Data: data})
	if err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Msg("event: failed to encode event")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Msg("event: failed to build request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Msg("event: failed to publish event")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Str("event_type", eventType).Msg("event: sink rejected event")
	}
}

// NopPublisher discards every event. Used when no sink is configured and as
// the publisher injected into aggregate tests.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, eventType string, data any) {}
