package gateway

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/sitelink/fenceline/internal/bus"
	"github.com/sitelink/fenceline/internal/fence"
	"github.com/sitelink/fenceline/internal/models"
	"github.com/sitelink/fenceline/internal/outbox"
	"github.com/sitelink/fenceline/internal/policy"
)

// CommandSender forwards a command to the peer and waits for its ack.
type CommandSender interface {
	SendWithAck(ctx context.Context, env bus.CommandEnvelope, timeout time.Duration) bus.AckResult
}

// Gateway routes writes between the local database, the outbox and the peer
// site depending on role and fence state.
type Gateway struct {
	role     fence.AppRole
	store    *fence.Store
	sender   CommandSender
	outbox   *outbox.Writer
	registry *Registry
	tenantID string
	timeout  time.Duration
}

func New(role fence.AppRole, store *fence.Store, sender CommandSender, ob *outbox.Writer, registry *Registry, tenantID string, timeout time.Duration) *Gateway {
	return &Gateway{
		role:     role,
		store:    store,
		sender:   sender,
		outbox:   ob,
		registry: registry,
		tenantID: tenantID,
		timeout:  timeout,
	}
}

// Dispatch routes a write that entered at this site's HTTP surface. The
// payload is canonicalized here, so the id assigned at this site is the id
// every downstream copy carries.
func (g *Gateway) Dispatch(ctx context.Context, req SyncRequest) SyncResult {
	h, ok := g.registry.Lookup(req.Entity, req.Action)
	if !ok {
		return SyncResult{OK: false, Status: http.StatusBadRequest, Mode: ModeRefused, Message: fmt.Sprintf("no handler for %s.%s", req.Entity, req.Action)}
	}
	payload, err := h.Canonicalize(req.Payload)
	if err != nil {
		return SyncResult{OK: false, Status: http.StatusBadRequest, Mode: ModeRefused, Message: fmt.Sprintf("bad payload: %v", err)}
	}
	req.Payload = payload

	mode := g.store.Get(req.TenantID)

	switch g.role {
	case fence.RoleDisabled:
		res := g.apply(ctx, req)
		if !res.OK {
			return SyncResult{OK: false, Status: res.Status, Mode: ModeLocal, Message: res.Message}
		}
		return SyncResult{OK: true, Status: http.StatusOK, Mode: ModeLocal, Data: res.Data}

	case fence.RoleCloud:
		if req.Domain == policy.DomainFloorOps && mode == fence.ModeFenced {
			return SyncResult{
				OK:      false,
				Status:  http.StatusLocked,
				Mode:    ModeRefused,
				Message: "floorops writes are owned by the local site while the link is down",
			}
		}
		res := g.apply(ctx, req)
		if !res.OK {
			return SyncResult{OK: false, Status: res.Status, Mode: ModeLocal, Message: res.Message}
		}
		if err := g.enqueue(ctx, req, models.DirectionToLocal); err != nil {
			return SyncResult{OK: false, Status: http.StatusInternalServerError, Mode: ModeLocal, Message: err.Error()}
		}
		return SyncResult{OK: true, Status: http.StatusOK, Mode: ModeLocal, Data: res.Data}

	case fence.RoleLocal:
		if mode == fence.ModeOnline {
			return g.forward(ctx, req)
		}
		res := g.apply(ctx, req)
		if !res.OK {
			return SyncResult{OK: false, Status: res.Status, Mode: ModeQueued, Message: res.Message}
		}
		if err := g.enqueue(ctx, req, models.DirectionToCloud); err != nil {
			return SyncResult{OK: false, Status: http.StatusInternalServerError, Mode: ModeQueued, Message: err.Error()}
		}
		log.Printf("📥 [GATEWAY] %s fenced, %s.%s applied locally and queued", req.TenantID, req.Entity, req.Action)
		return SyncResult{OK: true, Status: http.StatusOK, Mode: ModeQueued, Data: res.Data}
	}

	return SyncResult{OK: false, Status: http.StatusInternalServerError, Mode: ModeRefused, Message: fmt.Sprintf("unknown role %q", g.role)}
}

// Receive handles a write arriving from the peer site.
func (g *Gateway) Receive(ctx context.Context, req SyncRequest) SyncResult {
	mode := g.store.Get(req.TenantID)
	if mode == fence.ModeFenced {
		return SyncResult{
			OK:      false,
			Status:  http.StatusLocked,
			Mode:    ModeRefused,
			Message: "site is fenced, peer writes are refused",
		}
	}

	switch g.role {
	case fence.RoleCloud:
		res := g.apply(ctx, req)
		if !res.OK {
			return SyncResult{OK: false, Status: res.Status, Mode: ModeApplied, Message: res.Message}
		}
		if !req.AppliedLocally {
			if err := g.enqueue(ctx, req, models.DirectionToLocal); err != nil {
				return SyncResult{OK: false, Status: http.StatusInternalServerError, Mode: ModeApplied, Message: err.Error()}
			}
		}
		return SyncResult{OK: true, Status: http.StatusOK, Mode: ModeApplied, Data: res.Data}

	case fence.RoleLocal:
		res := g.apply(ctx, req)
		if !res.OK {
			return SyncResult{OK: false, Status: res.Status, Mode: ModeApplied, Message: res.Message}
		}
		return SyncResult{OK: true, Status: http.StatusOK, Mode: ModeApplied, Data: res.Data}
	}

	return SyncResult{OK: false, Status: http.StatusInternalServerError, Mode: ModeRefused, Message: fmt.Sprintf("role %q does not accept peer writes", g.role)}
}

func (g *Gateway) forward(ctx context.Context, req SyncRequest) SyncResult {
	env := bus.CommandEnvelope{
		TenantID: req.TenantID,
		Target:   string(g.role.Peer()),
		Entity:   req.Entity,
		Action:   req.Action,
		Payload:  req.Payload,
	}
	ack := g.sender.SendWithAck(ctx, env, g.timeout)
	if !ack.OK {
		return SyncResult{OK: false, Status: ack.Status, Mode: ModeRemote, Message: ack.Message}
	}
	return SyncResult{OK: true, Status: http.StatusOK, Mode: ModeRemote, Data: map[string]any{"peerStatus": ack.Status}}
}

func (g *Gateway) apply(ctx context.Context, req SyncRequest) ApplyResult {
	h, ok := g.registry.Lookup(req.Entity, req.Action)
	if !ok {
		return ApplyResult{OK: false, Status: http.StatusBadRequest, Message: fmt.Sprintf("no handler for %s.%s", req.Entity, req.Action)}
	}
	return h.Apply(ctx, req)
}

func (g *Gateway) enqueue(ctx context.Context, req SyncRequest, direction string) error {
	return g.outbox.Enqueue(ctx, req.TenantID, direction, req.Entity, req.Action, req.Payload)
}
