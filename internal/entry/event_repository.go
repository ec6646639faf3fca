package entry

import (
	"context"
	"guestbook/internal/db"
)

const eventsTable = "entry_events"

type EventRepository struct{}

type EventRepositoryInterface interface {
	Record(ctx context.Context, q db.Querier, event *Event) (bool, error)
}

func NewEventRepository() EventRepositoryInterface {
	return &EventRepository{}
}

// Record appends event to the activity log. It reports false when an event
// with the same ID was already recorded, so redelivered messages are no-ops.
func (r *EventRepository) Record(ctx context.Context, q db.Querier, event *Event) (bool, error) {
	query, args, err := psql.
		Insert(eventsTable).
		Columns("id", "entry_id", "event_type", "author_username", "occurred_at").
		Values(event.ID.String(), event.EntryID.String(), string(event.Type), event.AuthorUsername, event.OccurredAt).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, err
	}

	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, db.MapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, db.MapError(err)
	}

	return affected > 0, nil
}
