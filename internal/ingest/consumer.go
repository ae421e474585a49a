// Package ingest records contacts published by other systems (CRM, mail
// relay, telephony) on a Kafka topic.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/matthewbaird/followup/internal/apperr"
	"github.com/matthewbaird/followup/internal/event"
	"github.com/matthewbaird/followup/internal/types"
)

// Reader is the subset of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ContactRecorder records one contact.
type ContactRecorder interface {
	RecordContact(ctx context.Context, p event.ContactPayload) (event.DomainEvent, error)
}

// Counter is notified of ingest outcomes.
type Counter interface {
	ContactRecorded(channel types.Channel, source string)
	IngestError()
}

// Message is the wire format of a contact message.
type Message struct {
	CustomerID  string        `json:"customer_id"`
	Channel     types.Channel `json:"channel"`
	ContactedAt time.Time     `json:"contacted_at"`
	Actor       string        `json:"actor,omitempty"`
	Note        string        `json:"note,omitempty"`
}

// Consumer reads contact messages and records them. A message is committed
// once it has been recorded or rejected as invalid; transient failures are
// retried in place so later offsets are never committed past it.
type Consumer struct {
	reader   Reader
	recorder ContactRecorder
	counter  Counter
	logger   *zap.Logger
	retry    time.Duration
	wg       sync.WaitGroup
}

// NewReader builds a consumer-group reader for topic.
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		CommitInterval: 0,
	})
}

// NewConsumer creates a Consumer. counter may be nil.
func NewConsumer(r Reader, rec ContactRecorder, counter Counter, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		reader:   r,
		recorder: rec,
		counter:  counter,
		logger:   logger.Named("ingest"),
		retry:    time.Second,
	}
}

// Start consumes in a goroutine until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.logger.Info("contact ingest started")
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					c.logger.Info("contact ingest shutting down")
					return
				}
				c.logger.Error("fetching message failed", zap.Error(err))
				select {
				case <-time.After(c.retry):
				case <-ctx.Done():
					return
				}
				continue
			}

			for !c.Process(ctx, msg) {
				select {
				case <-time.After(c.retry):
				case <-ctx.Done():
					return
				}
			}
			if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				c.logger.Error("committing message failed", zap.Error(err), zap.Int64("offset", msg.Offset))
			}
		}
	}()
}

// Stop closes the reader and waits for the consume loop to exit.
func (c *Consumer) Stop() {
	if err := c.reader.Close(); err != nil {
		c.logger.Warn("closing kafka reader", zap.Error(err))
	}
	c.wg.Wait()
}

// Process records one message and reports whether it should be committed.
func (c *Consumer) Process(parent context.Context, msg kafka.Message) bool {
	carrier := headerCarrier(msg.Headers)
	ctx := otel.GetTextMapPropagator().Extract(parent, &carrier)

	var m Message
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		c.rejected(msg, "undecodable contact message", err)
		return true
	}

	_, err := c.recorder.RecordContact(ctx, event.ContactPayload{
		CustomerID:  m.CustomerID,
		Channel:     m.Channel,
		ContactedAt: m.ContactedAt,
		Actor:       m.Actor,
		Note:        m.Note,
	})
	switch {
	case err == nil:
		if c.counter != nil {
			c.counter.ContactRecorded(m.Channel, "kafka")
		}
		return true
	case apperr.IsValidation(err) || apperr.IsInvalidTime(err):
		c.rejected(msg, "contact message rejected", err)
		return true
	default:
		if c.counter != nil {
			c.counter.IngestError()
		}
		c.logger.Error("recording contact failed",
			zap.Error(err), zap.String("customer_id", m.CustomerID), zap.Int64("offset", msg.Offset))
		return false
	}
}

func (c *Consumer) rejected(msg kafka.Message, reason string, err error) {
	if c.counter != nil {
		c.counter.IngestError()
	}
	c.logger.Warn(reason,
		zap.Error(err),
		zap.Int64("offset", msg.Offset),
		zap.ByteString("key", msg.Key))
}

// headerCarrier adapts Kafka headers to propagation.TextMapCarrier.
type headerCarrier []kafka.Header

func (h *headerCarrier) Get(key string) string {
	for _, hd := range *h {
		if hd.Key == key {
			return string(hd.Value)
		}
	}
	return ""
}

func (h *headerCarrier) Set(key, value string) {
	for i, hd := range *h {
		if hd.Key == key {
			(*h)[i].Value = []byte(value)
			return
		}
	}
	*h = append(*h, kafka.Header{Key: key, Value: []byte(value)})
}

func (h *headerCarrier) Keys() []string {
	keys := make([]string, len(*h))
	for i, hd := range *h {
		keys[i] = hd.Key
	}
	return keys
}
