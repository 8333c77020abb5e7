package heartbeat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sitelink/fenceline/internal/broker"
	"github.com/sitelink/fenceline/internal/fence"
)

func waitForMode(t *testing.T, store *fence.Store, tenantID string, want fence.FenceMode, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if store.Get(tenantID) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("fence mode never became %s (now %s)", want, store.Get(tenantID))
}

func TestReceiverBeatFlipsOnlineImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := broker.NewInproc()
	store := fence.NewStore()
	store.Set("T1", fence.ModeFenced)

	r := NewReceiver(b, store, fence.RoleLocal, "T1", time.Minute)
	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	// one beat from the cloud peer is enough
	if err := b.Publish(ctx, broker.Message{Topic: broker.HeartbeatTopic("cloud", "T1"), Body: []byte(`{}`)}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitForMode(t, store, "T1", fence.ModeOnline, time.Second)
}

func TestReceiverFencesAfterGrace(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := broker.NewInproc()
	store := fence.NewStore()

	r := NewReceiver(b, store, fence.RoleLocal, "T1", 80*time.Millisecond)
	r.checkEvery = 20 * time.Millisecond
	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	// one beat, then silence
	b.Publish(ctx, broker.Message{Topic: broker.HeartbeatTopic("cloud", "T1")})
	waitForMode(t, store, "T1", fence.ModeOnline, time.Second)
	waitForMode(t, store, "T1", fence.ModeFenced, 2*time.Second)
}

func TestReceiverStaysOnlineBeforeFirstBeat(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := broker.NewInproc()
	store := fence.NewStore()

	r := NewReceiver(b, store, fence.RoleLocal, "T1", 30*time.Millisecond)
	r.checkEvery = 10 * time.Millisecond
	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	// with no beat ever received the monitor must not fence
	time.Sleep(150 * time.Millisecond)
	if got := store.Get("T1"); got != fence.ModeOnline {
		t.Errorf("expected online before first beat, got %s", got)
	}
}

func TestReceiverIgnoresOwnRoleBeats(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := broker.NewInproc()
	store := fence.NewStore()
	store.Set("T1", fence.ModeFenced)

	r := NewReceiver(b, store, fence.RoleLocal, "T1", time.Minute)
	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	// a beat from our own role must not count as peer liveness
	b.Publish(ctx, broker.Message{Topic: broker.HeartbeatTopic("local", "T1")})
	time.Sleep(100 * time.Millisecond)
	if got := store.Get("T1"); got != fence.ModeFenced {
		t.Errorf("expected fenced after own-role beat, got %s", got)
	}
}

func TestSenderPublishesBeats(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := broker.NewInproc()
	var beats atomic.Int32
	b.Subscribe(ctx, "q.beats", "heartbeat.cloud.T1", func(_ context.Context, m broker.Message) error {
		beats.Add(1)
		return nil
	})

	s := NewSender(b, fence.RoleCloud, "T1", 20*time.Millisecond)
	go s.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for beats.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if beats.Load() < 2 {
		t.Fatalf("expected at least 2 beats, got %d", beats.Load())
	}
}

func TestProberFencesAfterConsecutiveFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	store := fence.NewStore()
	p := NewProber(srv.URL, store, "T1", 20*time.Millisecond, 2)
	go p.Run(ctx)

	waitForMode(t, store, "T1", fence.ModeOnline, time.Second)

	// one failure is absorbed, the second fences
	healthy.Store(false)
	waitForMode(t, store, "T1", fence.ModeFenced, 2*time.Second)

	// recovery flips back online on the first success
	healthy.Store(true)
	waitForMode(t, store, "T1", fence.ModeOnline, 2*time.Second)
}
