package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sitelink/fenceline/internal/broker"
	"github.com/sitelink/fenceline/internal/events"
)

// ApplyEvent replays a peer event against the local database. Events are
// already durable at the origin, so they apply directly without re-entering
// the routing machinery.
func (g *Gateway) ApplyEvent(ctx context.Context, entity, name string, payload json.RawMessage) error {
	var action string
	switch name {
	case events.EventCreated:
		action = ActionPost
	default:
		return fmt.Errorf("unknown event %q for %s: %w", name, entity, broker.ErrDrop)
	}

	req := SyncRequest{
		TenantID:       g.tenantID,
		Entity:         entity,
		Action:         action,
		Payload:        payload,
		AppliedLocally: true,
	}
	res := g.apply(ctx, req)
	if !res.OK {
		if res.Status >= 500 {
			return fmt.Errorf("apply %s.%s: %s", entity, action, res.Message)
		}
		return fmt.Errorf("apply %s.%s: %s: %w", entity, action, res.Message, broker.ErrDrop)
	}
	return nil
}
