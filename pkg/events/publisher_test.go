package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type fakeChannel struct {
	exchange string
	key      string
	msgs     []amqp.Publishing
	err      error
	closed   bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.exchange = exchange
	f.key = key
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublishReading(t *testing.T) {
	ch := &fakeChannel{}
	p := &AMQPPublisher{ch: ch, exchange: "test.events"}
	evt := ReadingCompleted{UserID: 42, UploadID: 7, Outcome: "text", Model: "gemini-2.0-flash", Chunks: 2}
	if err := p.PublishReading(context.Background(), evt); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if ch.exchange != "test.events" || ch.key != RoutingReadingCompleted {
		t.Fatalf("unexpected route %s/%s", ch.exchange, ch.key)
	}
	if len(ch.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(ch.msgs))
	}
	msg := ch.msgs[0]
	if msg.DeliveryMode != amqp.Persistent || msg.ContentType != "application/json" {
		t.Fatalf("unexpected message properties: %+v", msg)
	}
	if msg.MessageId == "" || msg.Timestamp.IsZero() {
		t.Fatalf("expected generated id and timestamp")
	}
	var got ReadingCompleted
	if err := json.Unmarshal(msg.Body, &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.ID != msg.MessageId || got.UserID != 42 || got.UploadID != 7 || got.Chunks != 2 {
		t.Fatalf("unexpected body: %+v", got)
	}
}

func TestPublishReadingKeepsGivenID(t *testing.T) {
	ch := &fakeChannel{}
	p := &AMQPPublisher{ch: ch, exchange: DefaultExchange}
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := p.PublishReading(context.Background(), ReadingCompleted{ID: "evt-1", OccurredAt: at}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if ch.msgs[0].MessageId != "evt-1" || !ch.msgs[0].Timestamp.Equal(at) {
		t.Fatalf("expected caller id and time to be kept")
	}
}

func TestPublishReadingWrapsError(t *testing.T) {
	boom := errors.New("channel closed")
	p := &AMQPPublisher{ch: &fakeChannel{err: boom}, exchange: DefaultExchange}
	if err := p.PublishReading(context.Background(), ReadingCompleted{}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestCloseWithoutConnection(t *testing.T) {
	ch := &fakeChannel{}
	p := &AMQPPublisher{ch: ch}
	if err := p.Close(); err != nil || !ch.closed {
		t.Fatalf("expected channel close, err=%v", err)
	}
}

func TestNewAMQPPublisherRequiresURL(t *testing.T) {
	if _, err := NewAMQPPublisher(" ", ""); err == nil {
		t.Fatalf("expected error for empty url")
	}
}
