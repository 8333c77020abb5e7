// Package broker is the messaging seam between the two sites. The production
// implementation speaks AMQP to a RabbitMQ topic exchange; the in-process
// implementation backs tests and role=disabled single-site runs.
package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Exchange is the single topic exchange shared by beats, commands and events.
const Exchange = "sync"

// ErrDrop marks a message as permanently unprocessable. Subscribers return it
// (wrapped or bare) when redelivery cannot help; the broker then discards the
// message instead of requeueing it.
var ErrDrop = errors.New("unprocessable message")

// Message is one delivery or publication.
type Message struct {
	Topic         string
	Body          []byte
	CorrelationID string
	ReplyTo       string
}

// Handler consumes one message. A nil return acknowledges it; ErrDrop discards
// it; any other error requeues it for redelivery.
type Handler func(ctx context.Context, m Message) error

// Broker publishes and subscribes on dotted topics with AMQP-style wildcards
// ("*" one segment, "#" the rest).
type Broker interface {
	// Publish routes m.Topic through the topic exchange.
	Publish(ctx context.Context, m Message) error

	// Reply sends directly to a reply address obtained from SubscribeReplies.
	Reply(ctx context.Context, replyTo string, m Message) error

	// Subscribe binds a named queue to a topic pattern and consumes it until
	// ctx is canceled. The handler runs serially per subscription.
	Subscribe(ctx context.Context, queue, pattern string, h Handler) error

	// SubscribeReplies starts the shared reply consumer and returns the
	// address outgoing messages should carry in ReplyTo.
	SubscribeReplies(ctx context.Context, h Handler) (string, error)

	Close() error
}

// HeartbeatTopic addresses a beat from one role's site: heartbeat.<role>.<tenant>.
func HeartbeatTopic(role, tenantID string) string {
	return fmt.Sprintf("heartbeat.%s.%s", role, tenantID)
}

// CommandTopic addresses a cross-site command:
// command.to.<target-role>.<tenant>.<entity>.<action>.
func CommandTopic(target, tenantID, entity, action string) string {
	return fmt.Sprintf("command.to.%s.%s.%s.%s", target, tenantID, entity, action)
}

// EventTopic addresses a propagation event: event.<tenant>.<entity>.<name>.
func EventTopic(tenantID, entity, name string) string {
	return fmt.Sprintf("event.%s.%s.%s", tenantID, entity, name)
}

// TopicMatches reports whether a concrete topic matches an AMQP binding
// pattern. "*" matches exactly one segment, "#" matches the remainder.
func TopicMatches(pattern, topic string) bool {
	return segmentsMatch(strings.Split(pattern, "."), strings.Split(topic, "."))
}

func segmentsMatch(pat, top []string) bool {
	for len(pat) > 0 {
		switch pat[0] {
		case "#":
			if len(pat) == 1 {
				return true
			}
			for i := 0; i <= len(top); i++ {
				if segmentsMatch(pat[1:], top[i:]) {
					return true
				}
			}
			return false
		case "*":
			if len(top) == 0 {
				return false
			}
		default:
			if len(top) == 0 || pat[0] != top[0] {
				return false
			}
		}
		pat = pat[1:]
		top = top[1:]
	}
	return len(top) == 0
}
