package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"guestbook/internal/apperr"
	"guestbook/internal/auth"
	"guestbook/internal/observability"
	"guestbook/internal/utils"

	"github.com/sirupsen/logrus"
)

type AccountService struct {
	repo          AccountRepositoryInterface
	db            *sql.DB
	metrics       *observability.Metrics
	checkPassword func(hash, password string) error
}

type AccountServiceInterface interface {
	Register(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) (*Account, error)
}

func NewAccountService(repo AccountRepositoryInterface, db *sql.DB, metrics *observability.Metrics) AccountServiceInterface {
	return &AccountService{
		repo:          repo,
		db:            db,
		metrics:       metrics,
		checkPassword: auth.CheckPassword,
	}
}

// Register stores a new account with a bcrypt hash of password. Returns
// apperr.ErrConflict when the username is taken.
func (s *AccountService) Register(ctx context.Context, username, password string) (err error) {
	defer func() {
		s.metrics.AccountOperationsTotal.WithLabelValues("register", apperr.Outcome(err)).Inc()
	}()

	hashed, err := auth.HashPassword(password)
	if err != nil {
		// bcrypt rejects passwords longer than 72 bytes.
		return fmt.Errorf("%w: password cannot be hashed: %w", apperr.ErrBadRequest, err)
	}

	account := &Account{
		Username:     username,
		PasswordHash: hashed,
	}

	err = utils.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		return s.repo.Create(ctx, tx, account)
	})
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return err
		}
		return apperr.Unavailable(err)
	}

	return nil
}

// Login verifies password against the stored hash. An unknown username and a
// wrong password both return apperr.ErrUnauthorized.
func (s *AccountService) Login(ctx context.Context, username, password string) (account *Account, err error) {
	defer func() {
		s.metrics.AccountOperationsTotal.WithLabelValues("login", apperr.Outcome(err)).Inc()
	}()

	account, err = s.repo.GetByUsername(ctx, s.db, username)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			_ = s.checkPassword(auth.DummyHash, password)
			return nil, apperr.ErrUnauthorized
		}
		return nil, apperr.Unavailable(err)
	}

	if err := s.checkPassword(account.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			logrus.WithError(err).WithField("username", username).Error("Stored password hash is unreadable")
		}
		return nil, apperr.ErrUnauthorized
	}

	return account, nil
}
