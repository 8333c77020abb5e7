// Package bus implements the cross-site request/acknowledge primitive on top
// of the broker: publish a command, await the correlated reply, resolve
// exactly once by ack, rejection or timeout.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sitelink/fenceline/internal/broker"
)

// CommandEnvelope is the unit of cross-site RPC.
type CommandEnvelope struct {
	TenantID       string          `json:"tenantId"`
	Target         string          `json:"target"` // "cloud" | "local"
	Entity         string          `json:"entity"`
	Action         string          `json:"action"`
	Payload        json.RawMessage `json:"payload"`
	CorrelationID  string          `json:"correlationId"`
	AppliedLocally bool            `json:"appliedLocally"`
}

// AckResult is the single outcome of a CommandEnvelope: ack, explicit
// rejection, or timeout.
type AckResult struct {
	OK      bool   `json:"ok"`
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
}

// CommandBus multiplexes concurrent SendWithAck calls over one shared reply
// subscription. Replies are matched by correlation id, so outstanding calls
// may resolve out of issuance order.
type CommandBus struct {
	b       broker.Broker
	replyTo string

	mu      sync.Mutex
	pending map[string]chan AckResult
}

// New creates a bus on the given broker. Start must run before SendWithAck.
func New(b broker.Broker) *CommandBus {
	return &CommandBus{b: b, pending: make(map[string]chan AckResult)}
}

// Start begins the shared reply listener. ctx cancellation stops it and fails
// all in-flight calls fast via their own ctx.
func (cb *CommandBus) Start(ctx context.Context) error {
	replyTo, err := cb.b.SubscribeReplies(ctx, cb.onReply)
	if err != nil {
		return fmt.Errorf("subscribe replies: %w", err)
	}
	cb.replyTo = replyTo
	return nil
}

// onReply resolves the pending slot for a correlation id. A reply that lost
// the race against the timeout finds no slot and is a no-op.
func (cb *CommandBus) onReply(_ context.Context, m broker.Message) error {
	ch := cb.take(m.CorrelationID)
	if ch == nil {
		return nil
	}

	var ack AckResult
	if err := json.Unmarshal(m.Body, &ack); err != nil {
		ack = AckResult{OK: false, Status: http.StatusInternalServerError, Message: "bad ack"}
	}
	ch <- ack // buffered; never blocks the shared listener
	return nil
}

// take removes and returns the pending slot, or nil if it was already
// resolved. Removal under the lock is what makes resolution exactly-once.
func (cb *CommandBus) take(correlationID string) chan AckResult {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	ch, ok := cb.pending[correlationID]
	if !ok {
		return nil
	}
	delete(cb.pending, correlationID)
	return ch
}

// SendWithAck publishes the envelope and blocks until the correlated ack
// arrives, the timeout fires, or ctx is canceled. Every call resolves exactly
// once; a timeout yields status 504, which callers must treat as "unknown",
// not as a confirmed failure.
func (cb *CommandBus) SendWithAck(ctx context.Context, env CommandEnvelope, timeout time.Duration) AckResult {
	if env.CorrelationID == "" {
		env.CorrelationID = uuid.NewString()
	}

	ch := make(chan AckResult, 1)
	cb.mu.Lock()
	cb.pending[env.CorrelationID] = ch
	cb.mu.Unlock()

	body, err := json.Marshal(env)
	if err != nil {
		cb.take(env.CorrelationID)
		return AckResult{OK: false, Status: http.StatusInternalServerError, Message: err.Error()}
	}

	topic := broker.CommandTopic(env.Target, env.TenantID, env.Entity, env.Action)
	pub := broker.Message{
		Topic:         topic,
		Body:          body,
		CorrelationID: env.CorrelationID,
		ReplyTo:       cb.replyTo,
	}
	if err := cb.b.Publish(ctx, pub); err != nil {
		cb.take(env.CorrelationID)
		log.Printf("⚠️ [BUS] publish %s failed: %v", topic, err)
		return AckResult{OK: false, Status: http.StatusBadGateway, Message: err.Error()}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ack := <-ch:
		return ack
	case <-timer.C:
		if cb.take(env.CorrelationID) != nil {
			return AckResult{OK: false, Status: http.StatusGatewayTimeout, Message: "ack timeout"}
		}
		return <-ch // reply won the race at the boundary
	case <-ctx.Done():
		if cb.take(env.CorrelationID) != nil {
			return AckResult{OK: false, Status: http.StatusGatewayTimeout, Message: "canceled"}
		}
		return <-ch
	}
}
