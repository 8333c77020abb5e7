package policy

import (
	"strings"

	"github.com/sitelink/fenceline/internal/fence"
)

// Canonical entity names. The HTTP surface uses plurals; everything past the
// write guard uses these singular forms.
const (
	EntitySalesOrder    = "salesorder"
	EntityCustomerNote  = "customernote"
	EntityStockMovement = "stockmovement"
)

// Logical partitions. Backoffice entities are canonical at Cloud, floorops
// entities at Local.
const (
	DomainBackoffice = "backoffice"
	DomainFloorOps   = "floorops"
)

var entityNames = map[string]string{
	"salesorder":     EntitySalesOrder,
	"salesorders":    EntitySalesOrder,
	"customernote":   EntityCustomerNote,
	"customernotes":  EntityCustomerNote,
	"stockmovement":  EntityStockMovement,
	"stockmovements": EntityStockMovement,
}

var entityDomains = map[string]string{
	EntitySalesOrder:    DomainBackoffice,
	EntityCustomerNote:  DomainBackoffice,
	EntityStockMovement: DomainFloorOps,
}

// Normalize maps a raw path segment (plural or singular, any case) to its
// canonical entity name.
func Normalize(raw string) (string, bool) {
	name, ok := entityNames[strings.ToLower(raw)]
	return name, ok
}

// DomainOf returns the logical partition an entity belongs to.
func DomainOf(entity string) string {
	return entityDomains[entity]
}

// CanWrite decides write eligibility ahead of dispatch. Each entity has one
// canonical writer role while Online; the locally-reachable role for the
// entity's domain becomes writable when fenced. Unknown entities are never
// writable. Role Disabled runs single-site and writes everything it knows.
func CanWrite(role fence.AppRole, mode fence.FenceMode, entity string) bool {
	if _, ok := entityDomains[entity]; !ok {
		return false
	}
	if role == fence.RoleDisabled {
		return true
	}

	switch DomainOf(entity) {
	case DomainBackoffice:
		// Cloud RW, Local RO in every mode.
		return role == fence.RoleCloud
	case DomainFloorOps:
		if role == fence.RoleLocal {
			// Local accepts floorops writes in both modes: Online forwards
			// through the command bus, Fenced applies locally and queues.
			return true
		}
		// Cloud loses floorops once Local is presumed unreachable.
		return mode != fence.ModeFenced
	}
	return false
}
