package entry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"guestbook/internal/apperr"
	"guestbook/internal/cache"
	"guestbook/internal/observability"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const listCacheKeyType = "entry_list"

// ListCache is the read-through cache in front of ListEntries. Lists are
// keyed by generation and every write bumps it. Get returns nil, nil on a
// miss.
type ListCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data any) error
	Generation(ctx context.Context) (int64, error)
	Bump(ctx context.Context) error
}

type EventPublisher interface {
	PublishJSON(ctx context.Context, v any) error
}

type EntryServiceInterface interface {
	ListEntries(ctx context.Context) ([]*Entry, error)
	CreateEntry(ctx context.Context, entry *Entry) error
	UpdateMessage(ctx context.Context, id uuid.UUID, username, message string) (*Entry, error)
	DeleteEntry(ctx context.Context, id uuid.UUID, username string) error
}

type EntryService struct {
	repo      EntryRepositoryInterface
	db        *sql.DB
	cache     ListCache
	publisher EventPublisher
	metrics   *observability.Metrics

	publishes sync.WaitGroup
}

// NewEntryService wires the entry store. cache and publisher may be nil.
func NewEntryService(repo EntryRepositoryInterface, db *sql.DB, listCache ListCache, publisher EventPublisher, metrics *observability.Metrics) EntryServiceInterface {
	return &EntryService{
		repo:      repo,
		db:        db,
		cache:     listCache,
		publisher: publisher,
		metrics:   metrics,
	}
}

// ListEntries returns all entries newest first.
func (s *EntryService) ListEntries(ctx context.Context) (entries []*Entry, err error) {
	defer func() {
		s.metrics.EntryOperationsTotal.WithLabelValues("list", apperr.Outcome(err)).Inc()
	}()

	if s.cache == nil {
		return s.loadList(ctx)
	}

	// The generation is read before the table so a write that lands during
	// the load moves readers past whatever this call stores.
	gen, err := s.cache.Generation(ctx)
	if err != nil {
		logrus.WithError(err).Warn("Failed to read entry list generation")
		s.metrics.CacheMissesTotal.WithLabelValues(listCacheKeyType).Inc()
		return s.loadList(ctx)
	}

	key := cache.EntryListKeyAt(gen)
	if cached, ok := s.cachedList(ctx, key); ok {
		return cached, nil
	}

	entries, err = s.loadList(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, entries); err != nil {
		logrus.WithError(err).Warn("Failed to cache entry list")
	}

	return entries, nil
}

func (s *EntryService) loadList(ctx context.Context) ([]*Entry, error) {
	entries, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, apperr.Unavailable(err)
	}
	return entries, nil
}

func (s *EntryService) cachedList(ctx context.Context, key string) ([]*Entry, bool) {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		logrus.WithError(err).Warn("Failed to read entry list from cache")
	}
	if data != nil {
		entries := make([]*Entry, 0)
		if err := json.Unmarshal(data, &entries); err == nil {
			s.metrics.CacheHitsTotal.WithLabelValues(listCacheKeyType).Inc()
			logrus.Debug("cache hit for entry list")
			return entries, true
		}
		logrus.Warn("Discarding undecodable cached entry list")
	}

	s.metrics.CacheMissesTotal.WithLabelValues(listCacheKeyType).Inc()
	logrus.Debug("cache miss for entry list")
	return nil, false
}

// CreateEntry assigns the entry an ID, defaults its category and stores it.
func (s *EntryService) CreateEntry(ctx context.Context, entry *Entry) (err error) {
	defer func() {
		s.metrics.EntryOperationsTotal.WithLabelValues("create", apperr.Outcome(err)).Inc()
	}()

	if entry.Category == "" {
		entry.Category = DefaultCategory
	}
	if entry.Name == "" || entry.Message == "" || entry.AuthorUsername == "" {
		return fmt.Errorf("%w: name, message and author_username are required", apperr.ErrBadRequest)
	}
	if !ValidCategory(entry.Category) {
		return fmt.Errorf("%w: unknown category %q", apperr.ErrBadRequest, entry.Category)
	}

	entry.ID = uuid.New()
	if err := s.repo.Create(ctx, s.db, entry); err != nil {
		return apperr.Unavailable(err)
	}

	logrus.WithFields(logrus.Fields{
		"entry_id": entry.ID,
		"author":   entry.AuthorUsername,
	}).Info("Entry created")

	s.afterWrite(ctx, NewEvent(EventCreated, entry.ID, entry.AuthorUsername))
	return nil
}

// UpdateMessage changes the message of an entry owned by username. A missing
// entry and a foreign entry both return apperr.ErrUnauthorized.
func (s *EntryService) UpdateMessage(ctx context.Context, id uuid.UUID, username, message string) (entry *Entry, err error) {
	defer func() {
		s.metrics.EntryOperationsTotal.WithLabelValues("update", apperr.Outcome(err)).Inc()
	}()

	if username == "" {
		return nil, fmt.Errorf("%w: username is required", apperr.ErrBadRequest)
	}

	entry, err = s.repo.UpdateMessage(ctx, s.db, id, username, message)
	if err != nil {
		return nil, ownershipError(err)
	}

	s.afterWrite(ctx, NewEvent(EventUpdated, entry.ID, username))
	return entry, nil
}

// DeleteEntry removes an entry owned by username. A missing entry and a
// foreign entry both return apperr.ErrUnauthorized.
func (s *EntryService) DeleteEntry(ctx context.Context, id uuid.UUID, username string) (err error) {
	defer func() {
		s.metrics.EntryOperationsTotal.WithLabelValues("delete", apperr.Outcome(err)).Inc()
	}()

	if username == "" {
		return fmt.Errorf("%w: username is required", apperr.ErrBadRequest)
	}

	if err := s.repo.Delete(ctx, s.db, id, username); err != nil {
		return ownershipError(err)
	}

	logrus.WithField("entry_id", id).Info("Entry deleted")
	s.afterWrite(ctx, NewEvent(EventDeleted, id, username))
	return nil
}

func ownershipError(err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.ErrUnauthorized
	}
	return apperr.Unavailable(err)
}

// afterWrite moves the cached list to a new generation and announces the
// change. Neither step can fail the request, and the publish runs after the
// response.
func (s *EntryService) afterWrite(ctx context.Context, event *Event) {
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			logrus.WithError(err).Warn("Failed to invalidate entry list cache")
		}
	}

	if s.publisher == nil {
		return
	}

	publishCtx := context.WithoutCancel(ctx)
	s.publishes.Add(1)
	go func() {
		defer s.publishes.Done()
		if err := s.publisher.PublishJSON(publishCtx, event); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"entry_id":   event.EntryID,
				"event_type": event.Type,
			}).Warn("Failed to publish entry event")
		}
	}()
}

func (s *EntryService) waitForPublishes() {
	s.publishes.Wait()
}
