// Package events carries auth events from the API to the audit worker over a
// Redis stream.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hipper-gif/meal-delivery/internal/ids"
	"github.com/hipper-gif/meal-delivery/internal/models"
)

type Publisher struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

func NewPublisher(client redis.UniversalClient, stream string, maxLen int64) *Publisher {
	return &Publisher{
		client: client,
		stream: stream,
		maxLen: maxLen,
	}
}

func (p *Publisher) Stream() string { return p.stream }

func (p *Publisher) Publish(ctx context.Context, event models.AuthEvent) error {
	if p == nil || p.client == nil {
		return nil
	}
	if event.ID == "" {
		event.ID = ids.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: Encode(event),
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event.Kind, err)
	}
	return nil
}

// Trim caps the stream length; used by the scheduler.
func (p *Publisher) Trim(ctx context.Context) error {
	if p.maxLen <= 0 {
		return nil
	}
	return p.client.XTrimMaxLenApprox(ctx, p.stream, p.maxLen, 0).Err()
}

func Encode(event models.AuthEvent) map[string]interface{} {
	return map[string]interface{}{
		"id":              event.ID,
		"kind":            string(event.Kind),
		"account_id":      event.AccountID,
		"organization_id": event.OrganizationID,
		"client_ip":       event.ClientIP,
		"detail":          event.Detail,
		"occurred_at":     event.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
}

func Decode(values map[string]interface{}) (models.AuthEvent, error) {
	str := func(key string) string {
		if v, ok := values[key].(string); ok {
			return v
		}
		return ""
	}

	event := models.AuthEvent{
		ID:             str("id"),
		Kind:           models.AuthEventKind(str("kind")),
		AccountID:      str("account_id"),
		OrganizationID: str("organization_id"),
		ClientIP:       str("client_ip"),
		Detail:         str("detail"),
	}
	if event.ID == "" || event.Kind == "" {
		return models.AuthEvent{}, fmt.Errorf("event missing id or kind")
	}

	occurred, err := time.Parse(time.RFC3339Nano, str("occurred_at"))
	if err != nil {
		return models.AuthEvent{}, fmt.Errorf("parse occurred_at: %w", err)
	}
	event.OccurredAt = occurred
	return event, nil
}
