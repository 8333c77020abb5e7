// Package heartbeat decides, per site, whether the peer is reachable. Two
// detector variants exist, broker beats (Sender+Receiver) and HTTP polling
// (Prober), with the same contract: any good signal flips the fence store to
// Online immediately, sustained silence flips it to Fenced.
package heartbeat

import (
	"context"
	"log"
	"time"

	"github.com/sitelink/fenceline/internal/broker"
	"github.com/sitelink/fenceline/internal/fence"
)

// Sender periodically publishes an empty beat addressed from this site's role.
type Sender struct {
	b        broker.Broker
	role     fence.AppRole
	tenantID string
	interval time.Duration
}

// NewSender creates a beat sender for this site.
func NewSender(b broker.Broker, role fence.AppRole, tenantID string, interval time.Duration) *Sender {
	return &Sender{b: b, role: role, tenantID: tenantID, interval: interval}
}

// Run emits beats until ctx is canceled. Publish failures are logged and the
// loop keeps going; the peer's grace period absorbs the gaps.
func (s *Sender) Run(ctx context.Context) {
	topic := broker.HeartbeatTopic(string(s.role), s.tenantID)
	log.Printf("💓 [HB-SEND] every %v on %s", s.interval, topic)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.b.Publish(ctx, broker.Message{Topic: topic, Body: []byte("{}")}); err != nil {
			log.Printf("⚠️ [HB-SEND] publish failed: %v", err)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
