package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sitelink/fenceline/internal/models"
	"github.com/sitelink/fenceline/internal/policy"
)

// ActionPost creates an entity, or replays a creation from the peer.
const ActionPost = "post"

// ApplyHandler executes one (entity, action) pair against the local database.
//
// Canonicalize stamps the identity of a fresh write: it runs once, at the
// site where the write first enters, and the payload it returns is what
// flows through apply, the outbox and the peer command. Apply must be
// idempotent, since the same canonical payload may arrive more than once
// through the command and event paths.
type ApplyHandler interface {
	Canonicalize(payload json.RawMessage) (json.RawMessage, error)
	Apply(ctx context.Context, req SyncRequest) ApplyResult
}

type handlerKey struct {
	entity string
	action string
}

// Registry maps (entity, action) to its apply handler. The set is fixed at
// startup, so lookups need no locking.
type Registry struct {
	handlers map[handlerKey]ApplyHandler
}

func NewRegistry(db *gorm.DB) *Registry {
	r := &Registry{handlers: make(map[handlerKey]ApplyHandler)}
	r.Register(policy.EntitySalesOrder, ActionPost, &salesOrderPost{db: db})
	r.Register(policy.EntityCustomerNote, ActionPost, &customerNotePost{db: db})
	r.Register(policy.EntityStockMovement, ActionPost, &stockMovementPost{db: db})
	return r
}

func (r *Registry) Register(entity, action string, h ApplyHandler) {
	r.handlers[handlerKey{entity: entity, action: action}] = h
}

func (r *Registry) Lookup(entity, action string) (ApplyHandler, bool) {
	h, ok := r.handlers[handlerKey{entity: entity, action: action}]
	return h, ok
}

// stampNew fills in the identity fields a client is allowed to omit.
func stampNew(id *uuid.UUID, createdAt *time.Time) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
	if createdAt.IsZero() {
		*createdAt = time.Now().UTC()
	}
}

type salesOrderPost struct {
	db *gorm.DB
}

func (h *salesOrderPost) Canonicalize(raw json.RawMessage) (json.RawMessage, error) {
	var order models.SalesOrder
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, err
	}
	stampNew(&order.ID, &order.CreatedAt)
	return json.Marshal(&order)
}

func (h *salesOrderPost) Apply(ctx context.Context, req SyncRequest) ApplyResult {
	var order models.SalesOrder
	if res := decodePayload(req.Payload, &order); !res.OK {
		return res
	}
	if order.ID == uuid.Nil {
		return missingID(policy.EntitySalesOrder)
	}
	return upsert(ctx, h.db, &order, order.ID)
}

type customerNotePost struct {
	db *gorm.DB
}

func (h *customerNotePost) Canonicalize(raw json.RawMessage) (json.RawMessage, error) {
	var note models.CustomerNote
	if err := json.Unmarshal(raw, &note); err != nil {
		return nil, err
	}
	stampNew(&note.ID, &note.CreatedAt)
	return json.Marshal(&note)
}

func (h *customerNotePost) Apply(ctx context.Context, req SyncRequest) ApplyResult {
	var note models.CustomerNote
	if res := decodePayload(req.Payload, &note); !res.OK {
		return res
	}
	if note.ID == uuid.Nil {
		return missingID(policy.EntityCustomerNote)
	}
	return upsert(ctx, h.db, &note, note.ID)
}

type stockMovementPost struct {
	db *gorm.DB
}

func (h *stockMovementPost) Canonicalize(raw json.RawMessage) (json.RawMessage, error) {
	var mv models.StockMovement
	if err := json.Unmarshal(raw, &mv); err != nil {
		return nil, err
	}
	stampNew(&mv.ID, &mv.CreatedAt)
	return json.Marshal(&mv)
}

func (h *stockMovementPost) Apply(ctx context.Context, req SyncRequest) ApplyResult {
	var mv models.StockMovement
	if res := decodePayload(req.Payload, &mv); !res.OK {
		return res
	}
	if mv.ID == uuid.Nil {
		return missingID(policy.EntityStockMovement)
	}
	return upsert(ctx, h.db, &mv, mv.ID)
}

func decodePayload(raw json.RawMessage, dst any) ApplyResult {
	if err := json.Unmarshal(raw, dst); err != nil {
		return ApplyResult{OK: false, Status: http.StatusBadRequest, Message: fmt.Sprintf("bad payload: %v", err)}
	}
	return ApplyResult{OK: true}
}

// missingID rejects a replayed payload that was never canonicalized. Minting
// an id here instead would assign a different one on every redelivery.
func missingID(entity string) ApplyResult {
	return ApplyResult{OK: false, Status: http.StatusBadRequest, Message: fmt.Sprintf("%s payload has no id", entity)}
}

// upsert inserts the row, silently keeping the existing one on an ID clash.
// Replays from the outbox or the event stream hit the conflict path.
func upsert(ctx context.Context, db *gorm.DB, row any, id uuid.UUID) ApplyResult {
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
		return ApplyResult{OK: false, Status: http.StatusInternalServerError, Message: err.Error()}
	}
	return ApplyResult{OK: true, Status: http.StatusOK, Data: map[string]any{"id": id}}
}
