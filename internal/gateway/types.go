package gateway

import "encoding/json"

// SyncRequest is one write moving through the routing machinery, whether it
// entered at this site's HTTP surface or arrived from the peer.
// AppliedLocally marks payloads already durable at the originating site: they
// must not be treated as fresh proxy calls, which is what suppresses resync
// loops.
type SyncRequest struct {
	TenantID       string          `json:"tenantId"`
	Domain         string          `json:"domain"`
	Entity         string          `json:"entity"`
	Action         string          `json:"action"`
	Payload        json.RawMessage `json:"payload"`
	AppliedLocally bool            `json:"appliedLocally"`
}

// Sync result modes.
const (
	ModeLocal   = "local"   // applied at this site
	ModeRemote  = "remote"  // forwarded to the peer, outcome is the peer's
	ModeQueued  = "queued"  // applied here and queued for later forwarding
	ModeRefused = "refused" // policy or fence refusal
	ModeApplied = "applied" // inbound peer write applied
)

// SyncResult is the structured outcome of Dispatch or Receive.
type SyncResult struct {
	OK      bool   `json:"ok"`
	Status  int    `json:"status"`
	Mode    string `json:"mode"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ApplyResult is the outcome of one apply handler call.
type ApplyResult struct {
	OK      bool   `json:"ok"`
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}
