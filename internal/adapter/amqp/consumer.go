package amqpadapter

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/streadway/amqp"

	"mailrun/internal/core/domain"
	"mailrun/internal/core/port"
)

// maxRedeliveries bounds how often a failing event is requeued before it is
// dropped.
const maxRedeliveries = 3

// responseEvent mirrors the webhook payload: the same events can arrive over
// HTTP or over the message bus.
type responseEvent struct {
	Token        string `json:"token"`
	Kind         int16  `json:"kind"`
	BounceReason int    `json:"bounce_reason,omitempty"`
	LinkID       int    `json:"link_id,omitempty"`
}

// Consumer reads response events off a RabbitMQ queue and feeds them to the
// response recorder.
type Consumer struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	queue    string
	recorder port.ResponseRecorder
	logger   *slog.Logger
	// attempts counts local processing failures per event, keyed by payload
	// hash. Classic RabbitMQ redelivers without a delivery counter, so the
	// drop bound must be enforced here. Only touched from the Run goroutine.
	attempts map[string]int
}

// NewConsumer dials the broker and declares the durable event queue.
func NewConsumer(url, queue string, recorder port.ResponseRecorder, logger *slog.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &Consumer{
		conn:     conn,
		channel:  ch,
		queue:    queue,
		recorder: recorder,
		logger:   logger,
		attempts: map[string]int{},
	}, nil
}

// Run consumes events until the context is canceled or the channel closes.
// Manual acks: an event is acked once recorded, requeued on transient errors
// and dropped after maxRedeliveries attempts or on permanently bad input.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	c.logger.Info("response consumer started", slog.String("queue", c.queue))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("amqp channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var ev responseEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		c.logger.Warn("dropping malformed event", slog.Any("error", err))
		_ = d.Ack(false)
		return
	}
	key := eventKey(d.Body)

	err := c.recorder.RecordResponse(ctx, ev.Token, domain.ResponseKind(ev.Kind), ev.BounceReason, ev.LinkID)
	switch {
	case err == nil:
		delete(c.attempts, key)
		_ = d.Ack(false)
	case errors.Is(err, port.ErrUnknownToken):
		// Stale or foreign token. Redelivery cannot fix it.
		delete(c.attempts, key)
		c.logger.Warn("dropping event with unknown token", slog.String("token", ev.Token))
		_ = d.Ack(false)
	default:
		c.attempts[key]++
		if c.attempts[key] >= maxRedeliveries || redeliveryCount(d) >= maxRedeliveries {
			delete(c.attempts, key)
			c.logger.Error("dropping event after repeated failures",
				slog.String("token", ev.Token), slog.Any("error", err))
			_ = d.Ack(false)
			return
		}
		c.logger.Warn("requeueing event", slog.String("token", ev.Token), slog.Any("error", err))
		_ = d.Nack(false, true)
	}
}

// eventKey identifies an event across redeliveries. Delivery tags change on
// requeue, so the payload itself is the only stable handle.
func eventKey(body []byte) string {
	sum := md5.Sum(body)
	return hex.EncodeToString(sum[:])
}

// redeliveryCount reads the broker's delivery counter where one exists
// (quorum queues). Classic queues carry no counter and report 0; the local
// attempts map bounds those.
func redeliveryCount(d amqp.Delivery) int {
	if v, ok := d.Headers["x-delivery-count"]; ok {
		switch n := v.(type) {
		case int32:
			return int(n)
		case int64:
			return int(n)
		case int:
			return n
		}
	}
	return 0
}

// Close tears down the channel and connection.
func (c *Consumer) Close() error {
	if err := c.channel.Close(); err != nil {
		c.conn.Close()
		return err
	}
	return c.conn.Close()
}
