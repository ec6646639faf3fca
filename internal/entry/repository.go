package entry

import (
	"context"
	"errors"
	"guestbook/internal/apperr"
	"guestbook/internal/db"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const entriesTable = "guestbook"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var entryColumns = []string{"id", "name", "message", "category", "author_username", "created_at"}

type EntryRepository struct{}

type EntryRepositoryInterface interface {
	List(ctx context.Context, q db.Querier) ([]*Entry, error)
	Create(ctx context.Context, q db.Querier, entry *Entry) error
	UpdateMessage(ctx context.Context, q db.Querier, id uuid.UUID, username, message string) (*Entry, error)
	Delete(ctx context.Context, q db.Querier, id uuid.UUID, username string) error
}

func NewEntryRepository() EntryRepositoryInterface {
	return &EntryRepository{}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	entry := &Entry{}
	err := row.Scan(
		&entry.ID,
		&entry.Name,
		&entry.Message,
		&entry.Category,
		&entry.AuthorUsername,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// List returns every entry, newest first. The result is never nil.
func (r *EntryRepository) List(ctx context.Context, q db.Querier) ([]*Entry, error) {
	query, args, err := psql.
		Select(entryColumns...).
		From(entriesTable).
		OrderBy("created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		logrus.WithError(err).Error("Failed to list entries")
		return nil, db.MapError(err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			logrus.WithError(err).Error("Failed to scan entry")
			return nil, db.MapError(err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		logrus.WithError(err).Error("Error iterating entries")
		return nil, db.MapError(err)
	}

	return entries, nil
}

// Create inserts entry with its caller-assigned ID and fills in CreatedAt
// from the database clock.
func (r *EntryRepository) Create(ctx context.Context, q db.Querier, entry *Entry) error {
	query, args, err := psql.
		Insert(entriesTable).
		Columns("id", "name", "message", "category", "author_username").
		Values(entry.ID.String(), entry.Name, entry.Message, entry.Category, entry.AuthorUsername).
		Suffix("RETURNING created_at").
		ToSql()
	if err != nil {
		return err
	}

	if err := q.QueryRowContext(ctx, query, args...).Scan(&entry.CreatedAt); err != nil {
		logrus.WithError(err).Error("Failed to create entry")
		return db.MapError(err)
	}

	return nil
}

// UpdateMessage rewrites the message of the entry matching both id and
// username in a single statement. apperr.ErrNotFound means no row matched.
func (r *EntryRepository) UpdateMessage(ctx context.Context, q db.Querier, id uuid.UUID, username, message string) (*Entry, error) {
	query, args, err := psql.
		Update(entriesTable).
		Set("message", message).
		Where(sq.Eq{"id": id.String()}).
		Where(sq.Eq{"author_username": username}).
		Suffix("RETURNING id, name, message, category, author_username, created_at").
		ToSql()
	if err != nil {
		return nil, err
	}

	entry, err := scanEntry(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		err = db.MapError(err)
		if !errors.Is(err, apperr.ErrNotFound) {
			logrus.WithError(err).WithField("entry_id", id).Error("Failed to update entry")
		}
		return nil, err
	}

	return entry, nil
}

// Delete removes the entry matching both id and username. apperr.ErrNotFound
// means no row matched.
func (r *EntryRepository) Delete(ctx context.Context, q db.Querier, id uuid.UUID, username string) error {
	query, args, err := psql.
		Delete(entriesTable).
		Where(sq.Eq{"id": id.String()}).
		Where(sq.Eq{"author_username": username}).
		ToSql()
	if err != nil {
		return err
	}

	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		logrus.WithError(err).WithField("entry_id", id).Error("Failed to delete entry")
		return db.MapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return db.MapError(err)
	}
	if affected == 0 {
		return apperr.ErrNotFound
	}

	return nil
}
