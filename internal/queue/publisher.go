package queue

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/booking-record-engine/internal/model"
)

// Publisher sends mutation events to the topic exchange.  The connection
// is opened lazily and reopened after a failure, so a broker outage only
// costs the events published while it lasts.
type Publisher struct {
	url      string
	exchange string
	log      *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher returns a publisher for exchange on the broker at url.
func NewPublisher(url, exchange string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{url: url, exchange: exchange, log: log}
}

// channel returns an open channel, dialing when needed.  Caller holds mu.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	// Durable so the exchange survives broker restarts.
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

// Publish sends ev and returns the broker error, if any.
func (p *Publisher) Publish(ctx context.Context, ev model.MutationEvent) error {
	body, err := Encode(ev)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     time.Now().UTC(),
		CorrelationId: ev.RequestID,
		Body:          body,
	}
	if err := ch.PublishWithContext(ctx, p.exchange, RoutingKey(ev), false, false, pub); err != nil {
		p.reset()
		return err
	}
	return nil
}

// Notify implements notify.Notifier.  Failures are logged, never returned.
func (p *Publisher) Notify(ctx context.Context, ev model.MutationEvent) {
	if err := p.Publish(ctx, ev); err != nil {
		p.log.Warn("rabbitmq publish failed",
			zap.String("exchange", p.exchange),
			zap.Uint64("booking_id", ev.BookingID),
			zap.String("action", ev.Action),
			zap.Error(err))
	}
}

// Close releases the broker connection.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
}
