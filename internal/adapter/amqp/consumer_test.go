package amqpadapter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/streadway/amqp"

	"mailrun/internal/core/domain"
	"mailrun/internal/core/port"
)

type fakeAcknowledger struct {
	acks     int
	requeues int
}

func (f *fakeAcknowledger) Ack(uint64, bool) error { f.acks++; return nil }

func (f *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	if requeue {
		f.requeues++
	}
	return nil
}

func (f *fakeAcknowledger) Reject(uint64, bool) error { return nil }

type errRecorder struct {
	err   error
	calls int
}

func (r *errRecorder) RecordResponse(context.Context, string, domain.ResponseKind, int, int) error {
	r.calls++
	return r.err
}

func testConsumer(rec port.ResponseRecorder) *Consumer {
	return &Consumer{
		recorder: rec,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		attempts: map[string]int{},
	}
}

func delivery(ack amqp.Acknowledger, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, Body: []byte(body)}
}

func TestHandleRecordsAndAcks(t *testing.T) {
	ack := &fakeAcknowledger{}
	c := testConsumer(&errRecorder{})

	c.handle(context.Background(), delivery(ack, `{"token":"t1","kind":-1}`))
	if ack.acks != 1 || ack.requeues != 0 {
		t.Fatalf("expected one ack, got acks=%d requeues=%d", ack.acks, ack.requeues)
	}
}

func TestHandleDropsUnknownToken(t *testing.T) {
	ack := &fakeAcknowledger{}
	c := testConsumer(&errRecorder{err: port.ErrUnknownToken})

	c.handle(context.Background(), delivery(ack, `{"token":"stale","kind":-1}`))
	if ack.acks != 1 || ack.requeues != 0 {
		t.Fatalf("stale token must be dropped, got acks=%d requeues=%d", ack.acks, ack.requeues)
	}
	if len(c.attempts) != 0 {
		t.Errorf("attempt bookkeeping leaked: %v", c.attempts)
	}
}

func TestHandleDropsMalformedEvent(t *testing.T) {
	ack := &fakeAcknowledger{}
	c := testConsumer(&errRecorder{})

	c.handle(context.Background(), delivery(ack, `{not json`))
	if ack.acks != 1 {
		t.Fatalf("malformed event must be acked away, got %d", ack.acks)
	}
}

// A persistently failing event must hit the drop bound even when the broker
// never supplies a delivery counter, as classic RabbitMQ queues do not.
func TestHandleBoundsRedeliveriesWithoutBrokerCounter(t *testing.T) {
	ack := &fakeAcknowledger{}
	rec := &errRecorder{err: errors.New("repository down")}
	c := testConsumer(rec)
	body := `{"token":"t1","kind":-127,"bounce_reason":550}`

	for i := 0; i < maxRedeliveries; i++ {
		c.handle(context.Background(), delivery(ack, body))
	}
	if ack.requeues != maxRedeliveries-1 {
		t.Errorf("expected %d requeues, got %d", maxRedeliveries-1, ack.requeues)
	}
	if ack.acks != 1 {
		t.Errorf("event must be dropped on the final attempt, got %d acks", ack.acks)
	}
	if len(c.attempts) != 0 {
		t.Errorf("attempt bookkeeping leaked after drop: %v", c.attempts)
	}

	// a later distinct event is unaffected by the dropped one's history
	c.handle(context.Background(), delivery(ack, `{"token":"t2","kind":-1}`))
	if ack.requeues != maxRedeliveries {
		t.Errorf("fresh event must start with a clean attempt count, got %d requeues", ack.requeues)
	}
}

func TestHandleHonorsBrokerDeliveryCounter(t *testing.T) {
	ack := &fakeAcknowledger{}
	c := testConsumer(&errRecorder{err: errors.New("repository down")})

	d := delivery(ack, `{"token":"t1","kind":-1}`)
	d.Redelivered = true
	d.Headers = amqp.Table{"x-delivery-count": int64(maxRedeliveries)}
	c.handle(context.Background(), d)

	if ack.acks != 1 || ack.requeues != 0 {
		t.Fatalf("quorum-queue counter must trigger the drop, got acks=%d requeues=%d", ack.acks, ack.requeues)
	}
}
