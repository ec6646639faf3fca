package entry

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventCreated EventType = "entry.created"
	EventUpdated EventType = "entry.updated"
	EventDeleted EventType = "entry.deleted"
)

// Event is published after every successful write and recorded by the worker
// into the entry_events activity log.
type Event struct {
	ID             uuid.UUID `json:"id"`
	EntryID        uuid.UUID `json:"entry_id"`
	Type           EventType `json:"type"`
	AuthorUsername string    `json:"author_username"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func NewEvent(eventType EventType, entryID uuid.UUID, author string) *Event {
	return &Event{
		ID:             uuid.New(),
		EntryID:        entryID,
		Type:           eventType,
		AuthorUsername: author,
		OccurredAt:     time.Now().UTC(),
	}
}

func (e *Event) Valid() bool {
	if e.ID == uuid.Nil || e.EntryID == uuid.Nil || e.AuthorUsername == "" {
		return false
	}
	switch e.Type {
	case EventCreated, EventUpdated, EventDeleted:
		return true
	}
	return false
}
