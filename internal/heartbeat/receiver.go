package heartbeat

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/sitelink/fenceline/internal/broker"
	"github.com/sitelink/fenceline/internal/fence"
)

// minCheckInterval floors the monitor tick so a tiny grace period cannot spin
// the loop.
const minCheckInterval = 500 * time.Millisecond

// Receiver consumes the peer's beats and runs the grace-period monitor. The
// detector is asymmetric: one beat flips Fenced→Online immediately, while
// Online→Fenced waits out the full grace period to absorb transient loss.
// Beats are stamped at receipt, so a delayed beat counts as fresh evidence
// the path works now.
type Receiver struct {
	b        broker.Broker
	store    *fence.Store
	role     fence.AppRole
	tenantID string
	grace    time.Duration

	// checkEvery overrides the monitor tick; zero means max(grace/3, 500ms).
	checkEvery time.Duration

	lastBeat atomic.Int64 // unix nanos of last received beat; 0 = never
}

// NewReceiver creates a receiver listening for beats from the peer role.
func NewReceiver(b broker.Broker, store *fence.Store, role fence.AppRole, tenantID string, grace time.Duration) *Receiver {
	return &Receiver{b: b, store: store, role: role, tenantID: tenantID, grace: grace}
}

// Start subscribes to the peer's beat topic and launches the monitor loop.
func (r *Receiver) Start(ctx context.Context) error {
	peer := string(r.role.Peer())
	topic := broker.HeartbeatTopic(peer, r.tenantID)
	queue := fmt.Sprintf("q.heartbeat.%s.%s", peer, r.tenantID)

	if err := r.b.Subscribe(ctx, queue, topic, r.onBeat); err != nil {
		return fmt.Errorf("subscribe heartbeat: %w", err)
	}

	go r.monitor(ctx)
	log.Printf("💓 [HB-RECV] listening on %s (grace %v)", topic, r.grace)
	return nil
}

func (r *Receiver) onBeat(_ context.Context, _ broker.Message) error {
	r.lastBeat.Store(time.Now().UnixNano())
	if r.store.Get(r.tenantID) != fence.ModeOnline {
		r.store.Set(r.tenantID, fence.ModeOnline)
	}
	return nil
}

func (r *Receiver) monitor(ctx context.Context) {
	check := r.checkEvery
	if check <= 0 {
		check = r.grace / 3
		if check < minCheckInterval {
			check = minCheckInterval
		}
	}

	ticker := time.NewTicker(check)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		last := r.lastBeat.Load()
		if last == 0 {
			continue // never heard from the peer yet
		}

		if time.Since(time.Unix(0, last)) > r.grace {
			if r.store.Get(r.tenantID) != fence.ModeFenced {
				log.Printf("💔 [HB-RECV] peer silent beyond grace %v", r.grace)
				r.store.Set(r.tenantID, fence.ModeFenced)
			}
		}
	}
}
