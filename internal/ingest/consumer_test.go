package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matthewbaird/followup/internal/clock"
	"github.com/matthewbaird/followup/internal/event"
	"github.com/matthewbaird/followup/internal/ledger"
	"github.com/matthewbaird/followup/internal/types"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    chan struct{}
	once      sync.Once
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{msgs: msgs, closed: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case <-r.closed:
		return kafka.Message{}, context.Canceled
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type counts struct {
	mu       sync.Mutex
	recorded int
	errors   int
}

func (c *counts) ContactRecorded(types.Channel, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recorded++
}

func (c *counts) IngestError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors++
}

func message(t *testing.T, offset int64, m Message) kafka.Message {
	t.Helper()
	b, err := json.Marshal(m)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Key: []byte(m.CustomerID), Value: b}
}

func newRecorder() (*event.ContactRecorder, *ledger.Ledger) {
	l := ledger.New(ledger.NewMemoryStore(), clock.NewFixed(now))
	return event.NewContactRecorder(l), l
}

func TestConsumer_RecordsAndCommits(t *testing.T) {
	rec, l := newRecorder()
	r := newFakeReader(
		message(t, 1, Message{CustomerID: "acme", Channel: types.ChannelEmail, ContactedAt: now.Add(-time.Hour)}),
		kafka.Message{Offset: 2, Value: []byte("{not json")},
		message(t, 3, Message{CustomerID: "acme", Channel: types.ChannelPhone, ContactedAt: now.Add(time.Hour)}),
		message(t, 4, Message{CustomerID: "acme", Channel: "fax", ContactedAt: now}),
	)
	cnt := &counts{}
	c := NewConsumer(r, rec, cnt, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	require.Eventually(t, func() bool { return len(r.commits()) == 4 }, time.Second, 5*time.Millisecond)
	cancel()
	c.Stop()

	assert.Equal(t, []int64{1, 2, 3, 4}, r.commits())
	assert.Equal(t, 1, cnt.recorded)
	assert.Equal(t, 3, cnt.errors)

	at, ok, err := l.GetLastContact(context.Background(), "acme", types.ChannelEmail)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, now.Add(-time.Hour).Equal(at))
}

func TestConsumer_MissingContactTimeRejected(t *testing.T) {
	rec, l := newRecorder()
	r := newFakeReader(kafka.Message{Offset: 5, Value: []byte(`{"customer_id":"acme","channel":"visit"}`)})
	cnt := &counts{}
	c := NewConsumer(r, rec, cnt, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	require.Eventually(t, func() bool { return len(r.commits()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	c.Stop()

	assert.Equal(t, 0, cnt.recorded)
	assert.Equal(t, 1, cnt.errors)
	_, _, err := l.GetLastContact(context.Background(), "acme", types.ChannelVisit)
	assert.Error(t, err, "no customer or touchpoint is created")
}

type failingRecorder struct {
	mu    sync.Mutex
	calls int
}

func (f *failingRecorder) RecordContact(context.Context, event.ContactPayload) (event.DomainEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls < 3 {
		return event.DomainEvent{}, errors.New("database is locked")
	}
	return event.DomainEvent{}, nil
}

func TestConsumer_RetriesTransientFailures(t *testing.T) {
	r := newFakeReader(message(t, 7, Message{CustomerID: "acme", Channel: types.ChannelVisit, ContactedAt: now}))
	rec := &failingRecorder{}
	c := NewConsumer(r, rec, nil, zap.NewNop())
	c.retry = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	require.Eventually(t, func() bool { return len(r.commits()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	c.Stop()

	assert.Equal(t, 3, rec.calls)
}

func TestHeaderCarrier(t *testing.T) {
	var h headerCarrier
	h.Set("traceparent", "a")
	h.Set("traceparent", "b")
	h.Set("baggage", "c")
	assert.Equal(t, "b", h.Get("traceparent"))
	assert.Equal(t, []string{"traceparent", "baggage"}, h.Keys())
	assert.Empty(t, h.Get("missing"))
}
