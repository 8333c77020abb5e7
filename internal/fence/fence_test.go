package fence

import (
	"sync"
	"testing"
)

func TestGetDefaultsToOnline(t *testing.T) {
	s := NewStore()
	if got := s.Get("T1"); got != ModeOnline {
		t.Errorf("expected unknown tenant to default to online, got %s", got)
	}
}

func TestSetAndGet(t *testing.T) {
	s := NewStore()
	s.Set("T1", ModeFenced)
	if got := s.Get("T1"); got != ModeFenced {
		t.Errorf("expected fenced, got %s", got)
	}

	// other tenants are unaffected
	if got := s.Get("T2"); got != ModeOnline {
		t.Errorf("expected T2 to stay online, got %s", got)
	}
}

func TestNotifyFiresOnTransitionOnly(t *testing.T) {
	s := NewStore()
	var mu sync.Mutex
	var calls []FenceMode
	s.Notify(func(tenantID string, mode FenceMode) {
		mu.Lock()
		calls = append(calls, mode)
		mu.Unlock()
	})

	s.Set("T1", ModeFenced)
	s.Set("T1", ModeFenced) // no transition, no callback
	s.Set("T1", ModeOnline)

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(calls))
	}
	if calls[0] != ModeFenced || calls[1] != ModeOnline {
		t.Errorf("unexpected transition order: %v", calls)
	}
}

func TestParseMode(t *testing.T) {
	if m, ok := ParseMode("online"); !ok || m != ModeOnline {
		t.Errorf("parse online failed: %s %v", m, ok)
	}
	if m, ok := ParseMode("fenced"); !ok || m != ModeFenced {
		t.Errorf("parse fenced failed: %s %v", m, ok)
	}
	if _, ok := ParseMode("degraded"); ok {
		t.Error("expected unknown mode to fail")
	}
}

func TestParseRole(t *testing.T) {
	if got := ParseRole("cloud"); got != RoleCloud {
		t.Errorf("expected cloud, got %s", got)
	}
	if got := ParseRole(""); got != RoleLocal {
		t.Errorf("expected empty role to default to local, got %s", got)
	}
	if got := ParseRole("disabled"); got != RoleDisabled {
		t.Errorf("expected disabled, got %s", got)
	}
}

func TestPeer(t *testing.T) {
	if RoleCloud.Peer() != RoleLocal {
		t.Error("cloud's peer should be local")
	}
	if RoleLocal.Peer() != RoleCloud {
		t.Error("local's peer should be cloud")
	}
}
