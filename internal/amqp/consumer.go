// Package amqp consumes outbound send requests from RabbitMQ.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"your.org/whatsapp-rest/internal/config"
	ilog "your.org/whatsapp-rest/internal/log"
	"your.org/whatsapp-rest/internal/messaging"
)

// Envelope é o wrapper esperado no RB: { payload: {...}, id: "..." }
type Envelope struct {
	Payload messaging.Request `json:"payload"`
	ID      string            `json:"id,omitempty"`
}

// Dispatcher runs a decoded request.
type Dispatcher interface {
	Dispatch(ctx context.Context, req messaging.Request) (string, error)
}

type Consumer struct {
	cfg        *config.Config
	dispatcher Dispatcher
}

func NewConsumer(cfg *config.Config, dispatcher Dispatcher) *Consumer {
	return &Consumer{cfg: cfg, dispatcher: dispatcher}
}

// kindFromRoutingKey extracts the kind from keys like "send.audio".
func kindFromRoutingKey(binding, rk string) string {
	prefix := binding
	if i := strings.IndexAny(binding, "*#"); i >= 0 {
		prefix = strings.TrimSuffix(binding[:i], ".")
	}
	if prefix != "" && strings.HasPrefix(rk, prefix+".") {
		return strings.TrimPrefix(rk, prefix+".")
	}
	parts := strings.Split(rk, ".")
	return parts[len(parts)-1]
}

// decode accepts an Envelope or, for older producers, a bare Request.
// A missing type is taken from the routing key.
func decode(body []byte, binding, routingKey string) (messaging.Request, string, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Payload.Number == "" {
		var legacy messaging.Request
		if err2 := json.Unmarshal(body, &legacy); err2 != nil {
			if err == nil {
				err = err2
			}
			return messaging.Request{}, "", fmt.Errorf("decode message: %w", err)
		}
		env = Envelope{Payload: legacy}
	}
	if env.Payload.Kind == "" {
		env.Payload.Kind = messaging.Kind(kindFromRoutingKey(binding, routingKey))
	}
	return env.Payload, env.ID, nil
}

// Start consumes until ctx is cancelled.  It returns an error when the
// connection fails or the delivery channel closes.
func (c *Consumer) Start(ctx context.Context) error {
	if c.cfg.AMQPURL == "" || c.cfg.AMQPQueue == "" {
		ilog.Infof("AMQP consumer disabled (AMQP_URL or AMQP_QUEUE empty)")
		<-ctx.Done()
		return nil
	}
	conn, err := amqp.Dial(c.cfg.AMQPURL)
	if err != nil {
		return fmt.Errorf("failed to dial AMQP: %w", err)
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(
		c.cfg.AMQPExchange,
		"topic",
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(
		c.cfg.AMQPQueue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(
		c.cfg.AMQPQueue,
		c.cfg.AMQPBinding,
		c.cfg.AMQPExchange,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	deliveries, err := ch.Consume(
		c.cfg.AMQPQueue,
		"",
		true,  // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to consume from queue: %w", err)
	}

	ilog.Infof("AMQP consumer connected, waiting for messages on %s", c.cfg.AMQPBinding)

	for {
		select {
		case <-ctx.Done():
			return nil

		case d, ok := <-deliveries:
			if !ok {
				time.Sleep(500 * time.Millisecond)
				return fmt.Errorf("AMQP deliveries channel closed")
			}
			req, id, err := decode(d.Body, c.cfg.AMQPBinding, d.RoutingKey)
			if err != nil {
				ilog.Errorf("%v", err)
				continue
			}
			ilog.Debugf("amqp message decoded id=%s type=%q", id, req.Kind)

			go func(req messaging.Request, id string) {
				msgID, err := c.dispatcher.Dispatch(ctx, req)
				entry := ilog.WithChat(req.Number).WithMessageID(msgID)
				if err != nil {
					entry.Error("failed to send message (id=%s type=%q): %v", id, req.Kind, err)
					return
				}
				entry.Info("amqp request sent (id=%s type=%q)", id, req.Kind)
			}(req, id)
		}
	}
}
