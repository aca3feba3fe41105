package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultExchange         = "palmreader.events"
	RoutingReadingCompleted = "reading.completed"
	contentTypeJSON         = "application/json"
)

// ReadingCompleted is emitted after a reading has been recorded.
type ReadingCompleted struct {
	ID         string    `json:"id"`
	UserID     int64     `json:"userId"`
	UploadID   int64     `json:"uploadId"`
	Outcome    string    `json:"outcome"`
	Model      string    `json:"model,omitempty"`
	Chunks     int       `json:"chunks"`
	OccurredAt time.Time `json:"occurredAt"`
}

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher sends persistent JSON events to a topic exchange.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	exchange string
}

// NewAMQPPublisher dials the broker and declares a durable topic exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("amqp url required")
	}
	exchange = strings.TrimSpace(exchange)
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// PublishReading fills in the event id and timestamp when missing.
func (p *AMQPPublisher) PublishReading(ctx context.Context, evt ReadingCompleted) error {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode reading event: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.ID,
		Timestamp:    evt.OccurredAt,
		Type:         RoutingReadingCompleted,
		Body:         body,
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(ctx, p.exchange, RoutingReadingCompleted, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", RoutingReadingCompleted, err)
	}
	return nil
}

// Close shuts the channel and the connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.ch.Close()
	if p.conn != nil {
		err = errors.Join(err, p.conn.Close())
	}
	return err
}
