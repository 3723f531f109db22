// Package broker publishes relayed inbound messages to RabbitMQ.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	ilog "your.org/whatsapp-rest/internal/log"
	"your.org/whatsapp-rest/internal/relay"
)

// RoutingKey is used for every relayed message.
const RoutingKey = "inbound"

// Envelope wraps a payload the same way outbound requests are wrapped.
type Envelope struct {
	Payload *relay.Payload `json:"payload"`
	ID      string         `json:"id"`
}

// Publisher is a relay.Sink publishing to a durable topic exchange.  It
// keeps a single connection/channel and reconnects lazily after failures.
type Publisher struct {
	url      string
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

var _ relay.Sink = (*Publisher)(nil)

func NewPublisher(url, exchange string) *Publisher {
	return &Publisher{url: url, exchange: exchange}
}

func (p *Publisher) Name() string { return "amqp" }

// Connect dials the broker and declares the exchange.  It is called
// lazily by Deliver but can be used at startup to fail fast.
func (p *Publisher) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ensure()
}

func (p *Publisher) ensure() error {
	if p.url == "" {
		return fmt.Errorf("AMQP URL not configured")
	}
	if p.conn != nil && !p.conn.IsClosed() && p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	// (Re)connect
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(5 * time.Second)})
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		p.exchange,
		"topic",
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}
	p.conn = conn
	p.ch = ch
	ilog.Infof("AMQP relay publisher connected: exchange=%s", p.exchange)
	return nil
}

// Deliver publishes payload as a persistent JSON message.
func (p *Publisher) Deliver(ctx context.Context, payload *relay.Payload) error {
	pub, err := publishing(payload)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensure(); err != nil {
		return err
	}
	if err := p.ch.PublishWithContext(ctx,
		p.exchange,
		RoutingKey,
		false, // mandatory
		false, // immediate
		pub,
	); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	ilog.Debugf("amqp relay published rk=%s id=%s bytes=%d", RoutingKey, pub.MessageId, len(pub.Body))
	return nil
}

func publishing(payload *relay.Payload) (amqp.Publishing, error) {
	id := uuid.NewString()
	body, err := json.Marshal(Envelope{Payload: payload, ID: id})
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal payload: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    id,
		Timestamp:    time.Now(),
		Body:         body,
	}, nil
}

// Close shuts the connection down.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn, p.ch = nil, nil
	return err
}
