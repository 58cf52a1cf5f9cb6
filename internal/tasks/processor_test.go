package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hipper-gif/meal-delivery/internal/events"
	"github.com/hipper-gif/meal-delivery/internal/models"
)

type sliceSink struct {
	events []models.AuthEvent
	err    error
}

func (s *sliceSink) Insert(_ context.Context, event models.AuthEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func TestHandleStoresDecodedEvent(t *testing.T) {
	sink := &sliceSink{}
	p := NewProcessor(sink, zerolog.Nop())

	msg := redis.XMessage{ID: "1-0", Values: events.Encode(models.AuthEvent{
		ID:         "evt-1",
		Kind:       models.AuthEventSignupCompleted,
		AccountID:  "acct-1",
		Detail:     "ABC",
		OccurredAt: time.Now(),
	})}
	if err := p.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(sink.events) != 1 || sink.events[0].ID != "evt-1" || sink.events[0].Detail != "ABC" {
		t.Fatalf("unexpected stored events: %+v", sink.events)
	}
}

func TestHandleDropsMalformedEntries(t *testing.T) {
	sink := &sliceSink{}
	p := NewProcessor(sink, zerolog.Nop())

	if err := p.Handle(context.Background(), redis.XMessage{ID: "1-0", Values: map[string]interface{}{"kind": "x"}}); err != nil {
		t.Fatalf("malformed entry should be acknowledged, got %v", err)
	}
	if len(sink.events) != 0 {
		t.Fatalf("malformed entry stored")
	}
}

func TestHandleReportsSinkFailure(t *testing.T) {
	sink := &sliceSink{err: errors.New("db down")}
	p := NewProcessor(sink, zerolog.Nop())

	msg := redis.XMessage{ID: "1-0", Values: events.Encode(models.AuthEvent{
		ID: "evt-1", Kind: models.AuthEventLogout, OccurredAt: time.Now(),
	})}
	if err := p.Handle(context.Background(), msg); err == nil {
		t.Fatalf("expected sink failure to keep the entry pending")
	}
}
