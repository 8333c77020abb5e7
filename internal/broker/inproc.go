package broker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
)

// Inproc is a process-local Broker. Both "sites" of a test share one Inproc;
// a role=disabled deployment uses it so the rest of the wiring stays
// identical. Delivery is at-least-once in spirit: a handler returning a
// non-ErrDrop error gets the message redelivered once before it is dropped.
type Inproc struct {
	mu      sync.RWMutex
	subs    []*inprocSub
	replies map[string]chan Message
	closed  bool
}

type inprocSub struct {
	pattern string
	ch      chan Message
}

// NewInproc creates an in-process broker.
func NewInproc() *Inproc {
	return &Inproc{replies: make(map[string]chan Message)}
}

// Publish delivers to every subscription whose pattern matches the topic.
func (b *Inproc) Publish(ctx context.Context, m Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errors.New("broker closed")
	}

	for _, sub := range b.subs {
		if TopicMatches(sub.pattern, m.Topic) {
			select {
			case sub.ch <- m:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// Reply delivers directly to a reply queue created by SubscribeReplies.
func (b *Inproc) Reply(ctx context.Context, replyTo string, m Message) error {
	b.mu.RLock()
	ch, ok := b.replies[replyTo]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown reply address %q", replyTo)
	}

	select {
	case ch <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe consumes matching messages serially until ctx is canceled. The
// queue name only disambiguates log lines here.
func (b *Inproc) Subscribe(ctx context.Context, queue, pattern string, h Handler) error {
	sub := &inprocSub{pattern: pattern, ch: make(chan Message, 64)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("broker closed")
	}
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-sub.ch:
				err := h(ctx, m)
				if err == nil || errors.Is(err, ErrDrop) {
					continue
				}
				// one redelivery, then give up
				if err = h(ctx, m); err != nil && !errors.Is(err, ErrDrop) {
					log.Printf("⚠️ [BROKER] %s: dropping after retry: %v", queue, err)
				}
			}
		}
	}()
	return nil
}

// SubscribeReplies creates a private reply queue and returns its address.
func (b *Inproc) SubscribeReplies(ctx context.Context, h Handler) (string, error) {
	addr := "reply." + uuid.NewString()
	ch := make(chan Message, 64)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return "", errors.New("broker closed")
	}
	b.replies[addr] = ch
	b.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-ch:
				if err := h(ctx, m); err != nil {
					log.Printf("⚠️ [BROKER] reply handler: %v", err)
				}
			}
		}
	}()
	return addr, nil
}

// Close rejects further publishes. Subscriptions exit with their contexts.
func (b *Inproc) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}
