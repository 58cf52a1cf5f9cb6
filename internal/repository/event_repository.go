package repository

import (
	"context"
	"database/sql"

	"github.com/hipper-gif/meal-delivery/internal/models"
)

type EventRepository struct {
	db DBTX
}

func NewEventRepository(db DBTX) *EventRepository {
	return &EventRepository{db: db}
}

// Insert ignores duplicates so a redelivered stream message is recorded once.
func (r *EventRepository) Insert(ctx context.Context, event models.AuthEvent) error {
	const query = `
		INSERT INTO auth_events (id, kind, account_id, organization_id, client_ip, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.Kind,
		nullIfEmpty(event.AccountID),
		nullIfEmpty(event.OrganizationID),
		event.ClientIP,
		event.Detail,
		event.OccurredAt,
	)
	return err
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
