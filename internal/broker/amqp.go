package broker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// replyToAddress is RabbitMQ's pseudo-queue for direct reply-to. Consuming it
// (autoAck, no declare) before publishing is what activates the feature.
const replyToAddress = "amq.rabbitmq.reply-to"

// AMQPBroker connects the process to the shared RabbitMQ topic exchange.
type AMQPBroker struct {
	conn *amqp.Connection

	// Publishing shares one channel; amqp channels are not safe for
	// concurrent use, so publishes serialize on pubMu.
	pubMu sync.Mutex
	pub   *amqp.Channel

	mu       sync.Mutex
	channels []*amqp.Channel
}

// DialAMQP connects to the broker and declares the topic exchange.
func DialAMQP(url string) (*AMQPBroker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	pub, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	if err := pub.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", Exchange, err)
	}

	// Confirm mode, so Publish only returns once the broker has taken
	// ownership of the message. The outbox relies on that before it marks
	// a row as drained.
	if err := pub.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("confirm mode: %w", err)
	}

	log.Printf("✅ AMQP connected, exchange %q declared (publisher confirms on)", Exchange)
	return &AMQPBroker{conn: conn, pub: pub}, nil
}

// Publish routes the message through the topic exchange and waits for the
// broker's confirm.
func (b *AMQPBroker) Publish(ctx context.Context, m Message) error {
	b.pubMu.Lock()
	conf, err := b.pub.PublishWithDeferredConfirmWithContext(ctx, Exchange, m.Topic, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: m.CorrelationID,
		ReplyTo:       m.ReplyTo,
		Body:          m.Body,
	})
	b.pubMu.Unlock()
	if err != nil {
		return err
	}

	acked, err := conf.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("confirm %s: %w", m.Topic, err)
	}
	if !acked {
		return fmt.Errorf("publish %s: nacked by broker", m.Topic)
	}
	return nil
}

// Reply sends through the default exchange straight to the reply address.
// Best effort, no confirm wait: a lost reply surfaces as the sender's ack
// timeout and the command is redelivered.
func (b *AMQPBroker) Reply(ctx context.Context, replyTo string, m Message) error {
	if replyTo == "" {
		return nil
	}

	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	return b.pub.PublishWithContext(ctx, "", replyTo, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: m.CorrelationID,
		Body:          m.Body,
	})
}

// Subscribe declares a durable queue bound to pattern and consumes it with
// manual acks: nil → ack, ErrDrop → discard, anything else → requeue.
func (b *AMQPBroker) Subscribe(ctx context.Context, queue, pattern string, h Handler) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	b.track(ch)

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %q: %w", queue, err)
	}
	if err := ch.QueueBind(queue, pattern, Exchange, false, nil); err != nil {
		return fmt.Errorf("bind %q to %q: %w", queue, pattern, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %q: %w", queue, err)
	}

	go func() {
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				err := h(ctx, Message{
					Topic:         d.RoutingKey,
					Body:          d.Body,
					CorrelationID: d.CorrelationId,
					ReplyTo:       d.ReplyTo,
				})
				switch {
				case err == nil:
					_ = d.Ack(false)
				case errors.Is(err, ErrDrop):
					log.Printf("🗑️ [BROKER] dropping message on %s: %v", d.RoutingKey, err)
					_ = d.Nack(false, false)
				default:
					log.Printf("⚠️ [BROKER] requeueing message on %s: %v", d.RoutingKey, err)
					_ = d.Nack(false, true)
				}
			}
		}
	}()

	log.Printf("👂 [BROKER] consuming %s (pattern %s)", queue, pattern)
	return nil
}

// SubscribeReplies consumes the direct reply-to pseudo-queue. RabbitMQ
// requires autoAck here; handler errors only get logged.
func (b *AMQPBroker) SubscribeReplies(ctx context.Context, h Handler) (string, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return "", fmt.Errorf("amqp channel: %w", err)
	}
	b.track(ch)

	deliveries, err := ch.Consume(replyToAddress, "", true, false, false, false, nil)
	if err != nil {
		return "", fmt.Errorf("consume reply-to: %w", err)
	}

	go func() {
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				if err := h(ctx, Message{
					Topic:         d.RoutingKey,
					Body:          d.Body,
					CorrelationID: d.CorrelationId,
				}); err != nil {
					log.Printf("⚠️ [BROKER] reply handler: %v", err)
				}
			}
		}
	}()

	return replyToAddress, nil
}

func (b *AMQPBroker) track(ch *amqp.Channel) {
	b.mu.Lock()
	b.channels = append(b.channels, ch)
	b.mu.Unlock()
}

// Close shuts down the connection and all channels.
func (b *AMQPBroker) Close() error {
	return b.conn.Close()
}
