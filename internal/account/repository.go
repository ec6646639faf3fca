package account

import (
	"context"
	"errors"
	"guestbook/internal/apperr"
	"guestbook/internal/db"

	sq "github.com/Masterminds/squirrel"
	"github.com/sirupsen/logrus"
)

const accountsTable = "accounts"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type AccountRepository struct{}

type AccountRepositoryInterface interface {
	Create(ctx context.Context, q db.Querier, account *Account) error
	GetByUsername(ctx context.Context, q db.Querier, username string) (*Account, error)
}

func NewAccountRepository() AccountRepositoryInterface {
	return &AccountRepository{}
}

// Create inserts a new account and fills in CreatedAt. A taken username
// surfaces as apperr.ErrConflict.
func (r *AccountRepository) Create(ctx context.Context, q db.Querier, account *Account) error {
	query, args, err := psql.
		Insert(accountsTable).
		Columns("username", "password_hash").
		Values(account.Username, account.PasswordHash).
		Suffix("RETURNING created_at").
		ToSql()
	if err != nil {
		return err
	}

	if err := q.QueryRowContext(ctx, query, args...).Scan(&account.CreatedAt); err != nil {
		err = db.MapError(err)
		if errors.Is(err, apperr.ErrConflict) {
			logrus.WithField("username", account.Username).Info("Username already taken")
		} else {
			logrus.WithError(err).Error("Failed to create account")
		}
		return err
	}

	logrus.WithField("username", account.Username).Info("Account created successfully")
	return nil
}

// GetByUsername returns apperr.ErrNotFound when no account matches.
func (r *AccountRepository) GetByUsername(ctx context.Context, q db.Querier, username string) (*Account, error) {
	query, args, err := psql.
		Select("username", "password_hash", "created_at").
		From(accountsTable).
		Where(sq.Eq{"username": username}).
		ToSql()
	if err != nil {
		return nil, err
	}

	account := &Account{}
	err = q.QueryRowContext(ctx, query, args...).Scan(
		&account.Username,
		&account.PasswordHash,
		&account.CreatedAt,
	)
	if err != nil {
		err = db.MapError(err)
		if !errors.Is(err, apperr.ErrNotFound) {
			logrus.WithError(err).Error("Failed to get account by username")
		}
		return nil, err
	}

	return account, nil
}
