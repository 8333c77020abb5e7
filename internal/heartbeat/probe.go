package heartbeat

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/sitelink/fenceline/internal/fence"
)

// Prober is the detector variant for deployments without a peer-to-peer beat
// channel: it polls the remote status endpoint and escalates to Fenced only
// after a run of consecutive failures. Any success resets the count and flips
// back to Online immediately.
type Prober struct {
	client   *http.Client
	url      string
	store    *fence.Store
	tenantID string
	interval time.Duration
	maxFails int
}

// NewProber creates a prober against the peer's base URL (its /status route).
func NewProber(url string, store *fence.Store, tenantID string, interval time.Duration, maxFails int) *Prober {
	return &Prober{
		client:   &http.Client{Timeout: 5 * time.Second},
		url:      url,
		store:    store,
		tenantID: tenantID,
		interval: interval,
		maxFails: maxFails,
	}
}

// Run polls until ctx is canceled.
func (p *Prober) Run(ctx context.Context) {
	log.Printf("💓 [HB-PROBE] polling %s every %v (maxFails %d)", p.url, p.interval, p.maxFails)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	fails := 0
	for {
		if p.check(ctx) {
			fails = 0
			p.store.Set(p.tenantID, fence.ModeOnline)
		} else {
			fails++
			if fails >= p.maxFails {
				p.store.Set(p.tenantID, fence.ModeFenced)
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Prober) check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/status", p.url), nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
