package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/sitelink/fenceline/internal/broker"
	"github.com/sitelink/fenceline/internal/bus"
	"github.com/sitelink/fenceline/internal/fence"
	"github.com/sitelink/fenceline/internal/policy"
)

// CommandConsumer answers commands the peer addressed to this site's role.
// Every delivery is acked with an AckResult on its reply address; only
// retryable failures (5xx outcomes) are requeued.
type CommandConsumer struct {
	b        broker.Broker
	gw       *Gateway
	role     fence.AppRole
	tenantID string
}

func NewCommandConsumer(b broker.Broker, gw *Gateway, role fence.AppRole, tenantID string) *CommandConsumer {
	return &CommandConsumer{b: b, gw: gw, role: role, tenantID: tenantID}
}

// Start consumes command.to.<role>.<tenant>.# until ctx is canceled.
func (c *CommandConsumer) Start(ctx context.Context) error {
	queue := fmt.Sprintf("q.command.to.%s.%s", c.role, c.tenantID)
	pattern := fmt.Sprintf("command.to.%s.%s.#", c.role, c.tenantID)
	log.Printf("📡 [COMMANDS] consuming %s", pattern)
	return c.b.Subscribe(ctx, queue, pattern, c.onCommand)
}

func (c *CommandConsumer) onCommand(ctx context.Context, m broker.Message) error {
	var env bus.CommandEnvelope
	if err := json.Unmarshal(m.Body, &env); err != nil {
		c.reply(ctx, m, bus.AckResult{OK: false, Status: http.StatusBadRequest, Message: "bad envelope"})
		return fmt.Errorf("decode envelope: %v: %w", err, broker.ErrDrop)
	}

	req := SyncRequest{
		TenantID:       env.TenantID,
		Domain:         policy.DomainOf(env.Entity),
		Entity:         env.Entity,
		Action:         env.Action,
		Payload:        env.Payload,
		AppliedLocally: env.AppliedLocally,
	}
	res := c.gw.Receive(ctx, req)

	c.reply(ctx, m, bus.AckResult{OK: res.OK, Status: res.Status, Message: res.Message})

	if !res.OK && res.Status >= 500 {
		return fmt.Errorf("receive %s.%s: %d %s", env.Entity, env.Action, res.Status, res.Message)
	}
	return nil
}

// reply sends the ack back over the command's reply address. Commands without
// one (replayed or hand-crafted) are processed but not acknowledged.
func (c *CommandConsumer) reply(ctx context.Context, m broker.Message, ack bus.AckResult) {
	if m.ReplyTo == "" {
		return
	}
	body, err := json.Marshal(ack)
	if err != nil {
		log.Printf("⚠️ [COMMANDS] marshal ack: %v", err)
		return
	}
	out := broker.Message{Body: body, CorrelationID: m.CorrelationID}
	if err := c.b.Reply(ctx, m.ReplyTo, out); err != nil {
		log.Printf("⚠️ [COMMANDS] reply to %s failed: %v", m.ReplyTo, err)
	}
}
