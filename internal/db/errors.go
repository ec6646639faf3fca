package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"guestbook/internal/apperr"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// MapError converts driver errors into apperr kinds. Context errors pass
// through unchanged so callers can tell a cancelled request from an outage.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", apperr.ErrConflict, pgErr.ConstraintName)
	}

	return apperr.Unavailable(err)
}
