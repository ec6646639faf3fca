package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"guestbook/internal/db"
	"guestbook/internal/entry"
	"guestbook/internal/observability"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testQueue = "guestbook_events"

type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) Record(ctx context.Context, q db.Querier, event *entry.Event) (bool, error) {
	args := m.Called(ctx, q, event)
	return args.Bool(0), args.Error(1)
}

// fakeAcknowledger records how a delivery was settled.
type fakeAcknowledger struct {
	acked   int
	nacked  int
	requeue bool
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.acked++
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked++
	a.requeue = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	err       error
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.keys = append(c.keys, key)
	c.published = append(c.published, msg)
	return nil
}

type workerFixture struct {
	worker  *Worker
	repo    *MockEventRepository
	sqlMock sqlmock.Sqlmock
	metrics *observability.Metrics
	channel *fakeChannel
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()
	sqlDB, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	f := &workerFixture{
		repo:    new(MockEventRepository),
		sqlMock: sqlMock,
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
		channel: &fakeChannel{},
	}
	f.worker = NewWorker(1, testQueue, sqlDB, f.repo, f.metrics)
	return f
}

func delivery(t *testing.T, body any, headers amqp.Table) (amqp.Delivery, *fakeAcknowledger) {
	t.Helper()
	var raw []byte
	switch b := body.(type) {
	case []byte:
		raw = b
	default:
		var err error
		raw, err = json.Marshal(b)
		require.NoError(t, err)
	}

	ack := &fakeAcknowledger{}
	return amqp.Delivery{
		Acknowledger: ack,
		Headers:      headers,
		ContentType:  "application/json",
		RoutingKey:   testQueue,
		Body:         raw,
	}, ack
}

func TestProcess_RecordsEvent(t *testing.T) {
	f := newWorkerFixture(t)
	event := entry.NewEvent(entry.EventCreated, uuid.New(), "frodo")
	msg, ack := delivery(t, event, nil)

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()
	f.repo.On("Record", mock.Anything, mock.Anything, mock.MatchedBy(func(e *entry.Event) bool {
		return e.ID == event.ID && e.Type == entry.EventCreated
	})).Return(true, nil)

	f.worker.process(context.Background(), f.channel, msg)

	assert.Equal(t, 1, ack.acked)
	assert.Zero(t, ack.nacked)
	assert.NoError(t, f.sqlMock.ExpectationsWereMet())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.EventsRecordedTotal.WithLabelValues("entry.created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.QueueMessagesConsumed.WithLabelValues(testQueue)))
}

func TestProcess_DuplicateIsAcked(t *testing.T) {
	f := newWorkerFixture(t)
	event := entry.NewEvent(entry.EventUpdated, uuid.New(), "frodo")
	msg, ack := delivery(t, event, nil)

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectCommit()
	f.repo.On("Record", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)

	f.worker.process(context.Background(), f.channel, msg)

	assert.Equal(t, 1, ack.acked)
	assert.Empty(t, f.channel.published)
}

func TestProcess_InvalidPayloadIsDropped(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		wantType string
	}{
		{"not json", []byte("{"), "unknown"},
		{"unknown type", map[string]any{
			"id": uuid.NewString(), "entry_id": uuid.NewString(), "type": "entry.archived", "author_username": "sam",
		}, "entry.archived"},
		{"missing entry id", map[string]any{
			"id": uuid.NewString(), "type": "entry.deleted", "author_username": "sam",
		}, "entry.deleted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWorkerFixture(t)
			msg, ack := delivery(t, tt.body, nil)

			f.worker.process(context.Background(), f.channel, msg)

			assert.Equal(t, 1, ack.nacked)
			assert.False(t, ack.requeue)
			assert.Zero(t, ack.acked)
			f.repo.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything)
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.EventsFailedTotal.WithLabelValues(tt.wantType, "invalid_payload")))
		})
	}
}

func TestProcess_FailureIsRepublishedWithRetryCount(t *testing.T) {
	f := newWorkerFixture(t)
	event := entry.NewEvent(entry.EventDeleted, uuid.New(), "sam")
	msg, ack := delivery(t, event, amqp.Table{retryHeader: int32(1)})

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectRollback()
	f.repo.On("Record", mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("connection reset"))

	f.worker.process(context.Background(), f.channel, msg)

	require.Len(t, f.channel.published, 1)
	assert.Equal(t, testQueue, f.channel.keys[0])
	assert.Equal(t, int32(2), f.channel.published[0].Headers[retryHeader])
	assert.Equal(t, msg.Body, f.channel.published[0].Body)
	assert.Equal(t, int32(1), msg.Headers[retryHeader])
	assert.Equal(t, 1, ack.acked)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.QueueMessagesPublished.WithLabelValues(testQueue)))
}

func TestProcess_MaxRetriesDeadLetters(t *testing.T) {
	f := newWorkerFixture(t)
	event := entry.NewEvent(entry.EventDeleted, uuid.New(), "sam")
	msg, ack := delivery(t, event, amqp.Table{retryHeader: int32(maxRetries)})

	f.sqlMock.ExpectBegin()
	f.sqlMock.ExpectRollback()
	f.repo.On("Record", mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("connection reset"))

	f.worker.process(context.Background(), f.channel, msg)

	assert.Empty(t, f.channel.published)
	assert.Equal(t, 1, ack.nacked)
	assert.False(t, ack.requeue)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.EventsFailedTotal.WithLabelValues("entry.deleted", "max_retries")))
}

func TestProcess_RepublishFailureDeadLetters(t *testing.T) {
	f := newWorkerFixture(t)
	f.channel.err = errors.New("channel closed")
	event := entry.NewEvent(entry.EventCreated, uuid.New(), "sam")
	msg, ack := delivery(t, event, nil)

	f.sqlMock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	f.worker.process(context.Background(), f.channel, msg)

	assert.Equal(t, 1, ack.nacked)
	assert.False(t, ack.requeue)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.EventsFailedTotal.WithLabelValues("entry.created", "republish_error")))
}

func TestProcess_CancelledContextRequeues(t *testing.T) {
	f := newWorkerFixture(t)
	event := entry.NewEvent(entry.EventCreated, uuid.New(), "sam")
	msg, ack := delivery(t, event, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f.worker.process(ctx, f.channel, msg)

	assert.Equal(t, 1, ack.nacked)
	assert.True(t, ack.requeue)
	assert.Empty(t, f.channel.published)
}

func TestRetryCountOf(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp.Table
		want    int32
	}{
		{"nil headers", nil, 0},
		{"missing", amqp.Table{"other": "x"}, 0},
		{"int32", amqp.Table{retryHeader: int32(2)}, 2},
		{"int64", amqp.Table{retryHeader: int64(3)}, 3},
		{"int", amqp.Table{retryHeader: 1}, 1},
		{"wrong type", amqp.Table{retryHeader: "2"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryCountOf(tt.headers))
		})
	}
}

func TestDecodeEvent(t *testing.T) {
	event := entry.NewEvent(entry.EventUpdated, uuid.New(), "frodo")
	body, err := json.Marshal(event)
	require.NoError(t, err)

	decoded, err := decodeEvent(body)

	require.NoError(t, err)
	assert.Equal(t, event.ID, decoded.ID)
	assert.True(t, event.OccurredAt.Equal(decoded.OccurredAt))

	_, err = decodeEvent([]byte(`[]`))
	assert.ErrorIs(t, err, errInvalidEvent)
}

var _ channelPublisher = (*amqp.Channel)(nil)
