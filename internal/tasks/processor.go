package tasks

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hipper-gif/meal-delivery/internal/events"
	"github.com/hipper-gif/meal-delivery/internal/models"
)

type EventSink interface {
	Insert(ctx context.Context, event models.AuthEvent) error
}

// Processor persists auth events read from the stream. Inserts are
// idempotent on the event id, so redelivery is harmless.
type Processor struct {
	sink   EventSink
	logger zerolog.Logger
}

func NewProcessor(sink EventSink, logger zerolog.Logger) *Processor {
	return &Processor{
		sink:   sink,
		logger: logger,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	event, err := events.Decode(msg.Values)
	if err != nil {
		// Undecodable entries are dropped so they do not block the group.
		p.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("discarding malformed auth event")
		return nil
	}

	if err := p.sink.Insert(ctx, event); err != nil {
		return fmt.Errorf("store auth event %s: %w", event.ID, err)
	}

	logEvent := p.logger.Debug()
	switch event.Kind {
	case models.AuthEventLoginRateLimited, models.AuthEventCodeSpaceExhausted:
		logEvent = p.logger.Warn()
	}
	logEvent.
		Str("kind", string(event.Kind)).
		Str("account_id", event.AccountID).
		Str("client_ip", event.ClientIP).
		Msg("auth event stored")
	return nil
}
