package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sitelink/fenceline/internal/bus"
	"github.com/sitelink/fenceline/internal/fence"
	"github.com/sitelink/fenceline/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.OutboxMessage{}, &models.AppliedEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// scriptedSender acks or rejects each envelope in arrival order.
type scriptedSender struct {
	fail map[string]bool // entity -> reject
	sent []bus.CommandEnvelope
}

func (s *scriptedSender) SendWithAck(_ context.Context, env bus.CommandEnvelope, _ time.Duration) bus.AckResult {
	s.sent = append(s.sent, env)
	if s.fail[env.Entity] {
		return bus.AckResult{OK: false, Status: 504, Message: "ack timeout"}
	}
	return bus.AckResult{OK: true, Status: 200}
}

type recordingPublisher struct {
	events []string // "<entity>/<eventID>"
	err    error    // returned for every publish when set
}

func (p *recordingPublisher) Publish(_ context.Context, _, entity, name string, _ json.RawMessage, eventID string) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, entity+"/"+eventID)
	return nil
}

func enqueueN(t *testing.T, w *Writer, direction string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		entity := fmt.Sprintf("entity%d", i)
		if err := w.Enqueue(context.Background(), "T1", direction, entity, "post", json.RawMessage(`{}`)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		// sqlite timestamps need distinct created_at for a stable order
		time.Sleep(2 * time.Millisecond)
	}
}

func TestFlushOnceSendsInCreationOrder(t *testing.T) {
	db := openTestDB(t)
	w := NewWriter(db)
	enqueueN(t, w, models.DirectionToCloud, 3)

	sender := &scriptedSender{}
	f := NewFlusher(db, fence.NewStore(), sender, nil, "T1", models.DirectionToCloud, time.Second, 50, time.Second)

	n, err := f.FlushOnce(context.Background())
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if n != 3 {
		t.Fatalf("flushed %d, want 3", n)
	}

	for i, env := range sender.sent {
		want := fmt.Sprintf("entity%d", i)
		if env.Entity != want {
			t.Errorf("position %d sent %q, want %q", i, env.Entity, want)
		}
		if !env.AppliedLocally {
			t.Errorf("outbox drain must mark AppliedLocally, envelope %d", i)
		}
	}

	if pending, _ := w.PendingCount(context.Background(), "T1"); pending != 0 {
		t.Errorf("pending after full flush = %d", pending)
	}
}

func TestFlushStopsAtFirstFailure(t *testing.T) {
	db := openTestDB(t)
	w := NewWriter(db)
	enqueueN(t, w, models.DirectionToCloud, 3)

	sender := &scriptedSender{fail: map[string]bool{"entity1": true}}
	f := NewFlusher(db, fence.NewStore(), sender, nil, "T1", models.DirectionToCloud, time.Second, 50, time.Second)

	n, err := f.FlushOnce(context.Background())
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if n != 1 {
		t.Fatalf("flushed %d, want 1", n)
	}
	// entity2 must not have been attempted after entity1 failed
	if len(sender.sent) != 2 {
		t.Fatalf("attempted %d sends, want 2", len(sender.sent))
	}
	if pending, _ := w.PendingCount(context.Background(), "T1"); pending != 2 {
		t.Errorf("pending = %d, want 2", pending)
	}

	// next cycle retries the held prefix in order
	sender.fail = nil
	sender.sent = nil
	n, err = f.FlushOnce(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("retry flushed %d (%v), want 2", n, err)
	}
	if sender.sent[0].Entity != "entity1" || sender.sent[1].Entity != "entity2" {
		t.Errorf("retry order wrong: %q then %q", sender.sent[0].Entity, sender.sent[1].Entity)
	}
}

func TestFlushStampsSentAndAcked(t *testing.T) {
	db := openTestDB(t)
	w := NewWriter(db)
	enqueueN(t, w, models.DirectionToCloud, 1)

	f := NewFlusher(db, fence.NewStore(), &scriptedSender{}, nil, "T1", models.DirectionToCloud, time.Second, 50, time.Second)
	if _, err := f.FlushOnce(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	var row models.OutboxMessage
	if err := db.First(&row).Error; err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if row.SentAt == nil || row.AckedAt == nil {
		t.Errorf("timestamps missing: sent=%v acked=%v", row.SentAt, row.AckedAt)
	}
}

func TestFlushToLocalUsesEventStream(t *testing.T) {
	db := openTestDB(t)
	w := NewWriter(db)
	enqueueN(t, w, models.DirectionToLocal, 2)

	pub := &recordingPublisher{}
	f := NewFlusher(db, fence.NewStore(), nil, pub, "T1", models.DirectionToLocal, time.Second, 50, time.Second)

	n, err := f.FlushOnce(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("flushed %d (%v), want 2", n, err)
	}
	if len(pub.events) != 2 {
		t.Fatalf("published %d events, want 2", len(pub.events))
	}

	// the event id must be the outbox OpID so the consumer ledger dedupes
	var rows []models.OutboxMessage
	db.Order("created_at asc").Find(&rows)
	for i, row := range rows {
		want := row.Entity + "/" + row.OpID.String()
		if pub.events[i] != want {
			t.Errorf("event %d = %q, want %q", i, pub.events[i], want)
		}
	}
}

func TestFlushHonorsBatchSize(t *testing.T) {
	db := openTestDB(t)
	w := NewWriter(db)
	enqueueN(t, w, models.DirectionToCloud, 5)

	sender := &scriptedSender{}
	f := NewFlusher(db, fence.NewStore(), sender, nil, "T1", models.DirectionToCloud, time.Second, 2, time.Second)

	n, err := f.FlushOnce(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("flushed %d (%v), want 2", n, err)
	}
	if pending, _ := w.PendingCount(context.Background(), "T1"); pending != 3 {
		t.Errorf("pending = %d, want 3", pending)
	}
}

func TestFlushToLocalHoldsRowWhenPublishFails(t *testing.T) {
	db := openTestDB(t)
	w := NewWriter(db)
	enqueueN(t, w, models.DirectionToLocal, 1)

	pub := &recordingPublisher{err: errors.New("publish nacked by broker")}
	f := NewFlusher(db, fence.NewStore(), nil, pub, "T1", models.DirectionToLocal, time.Second, 50, time.Second)

	n, err := f.FlushOnce(context.Background())
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if n != 0 {
		t.Fatalf("flushed %d rows on a failed publish", n)
	}
	if pending, _ := w.PendingCount(context.Background(), "T1"); pending != 1 {
		t.Fatalf("pending = %d, the row must survive for the next tick", pending)
	}

	// the broker recovers and the same row drains
	pub.err = nil
	n, err = f.FlushOnce(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("flushed %d (%v), want 1", n, err)
	}
	if pending, _ := w.PendingCount(context.Background(), "T1"); pending != 0 {
		t.Errorf("pending after retry = %d", pending)
	}
}
