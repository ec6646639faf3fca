package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"guestbook/internal/entry"
	"guestbook/internal/utils"

	"github.com/sirupsen/logrus"
)

// errInvalidEvent marks payloads that can never succeed and must not be retried.
var errInvalidEvent = errors.New("invalid entry event")

func decodeEvent(body []byte) (*entry.Event, error) {
	var event entry.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidEvent, err)
	}
	if !event.Valid() {
		return &event, fmt.Errorf("%w: type=%q entry=%s", errInvalidEvent, event.Type, event.EntryID)
	}
	return &event, nil
}

// handleEvent appends event to the activity log. Redelivered events are
// recognised by ID and skipped.
func (w *Worker) handleEvent(ctx context.Context, event *entry.Event) error {
	var inserted bool
	err := utils.WithTransaction(ctx, w.db, func(tx *sql.Tx) error {
		var err error
		inserted, err = w.repo.Record(ctx, tx, event)
		return err
	})
	if err != nil {
		return err
	}

	fields := logrus.Fields{
		"worker":     w.id,
		"event_id":   event.ID,
		"event_type": event.Type,
		"entry_id":   event.EntryID,
	}
	if !inserted {
		logrus.WithFields(fields).Debug("Event already recorded, skipping")
		return nil
	}

	logrus.WithFields(fields).Info("Event recorded")
	return nil
}
