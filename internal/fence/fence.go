package fence

import (
	"log"
	"strings"
	"sync"
)

// FenceMode is the liveness verdict for the peer site.
type FenceMode string

const (
	ModeOnline FenceMode = "online"
	ModeFenced FenceMode = "fenced"
)

// ParseMode normalizes a user-supplied mode string ("Online", "FENCED", ...).
func ParseMode(s string) (FenceMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "online":
		return ModeOnline, true
	case "fenced":
		return ModeFenced, true
	}
	return ModeOnline, false
}

// AppRole is the deployment role of this process, fixed at startup.
type AppRole string

const (
	RoleCloud    AppRole = "cloud"
	RoleLocal    AppRole = "local"
	RoleDisabled AppRole = "disabled"
)

// ParseRole maps the APP_ROLE env value to an AppRole, defaulting to local.
func ParseRole(s string) AppRole {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cloud":
		return RoleCloud
	case "disabled":
		return RoleDisabled
	default:
		return RoleLocal
	}
}

// Peer returns the other side of the pair.
func (r AppRole) Peer() AppRole {
	if r == RoleCloud {
		return RoleLocal
	}
	return RoleCloud
}

// Store holds the current fence mode per tenant. The heartbeat subsystem is
// the single writer; everything else only reads. Unknown tenants are Online:
// fence state is a best-effort liveness signal and resets on restart.
type Store struct {
	mu        sync.RWMutex
	modes     map[string]FenceMode
	listeners []func(tenantID string, mode FenceMode)
}

// NewStore creates an empty store (everything Online).
func NewStore() *Store {
	return &Store{modes: make(map[string]FenceMode)}
}

// Get returns the current mode for a tenant.
func (s *Store) Get(tenantID string) FenceMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.modes[tenantID]; ok {
		return m
	}
	return ModeOnline
}

// Set updates the mode for a tenant. Setting the current mode is a no-op;
// listeners fire only on actual transitions.
func (s *Store) Set(tenantID string, mode FenceMode) {
	s.mu.Lock()
	cur, ok := s.modes[tenantID]
	if !ok {
		cur = ModeOnline
	}
	if cur == mode {
		s.mu.Unlock()
		return
	}
	s.modes[tenantID] = mode
	listeners := make([]func(string, FenceMode), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	log.Printf("⚡ [FENCE] %s: %s → %s", tenantID, cur, mode)
	for _, fn := range listeners {
		fn(tenantID, mode)
	}
}

// Notify registers a callback invoked after every mode transition. Callbacks
// run outside the store lock and must not call back into Set.
func (s *Store) Notify(fn func(tenantID string, mode FenceMode)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}
