package health

import (
    "context"
    "sync"
    "time"

    obsmetrics "github.com/arturolabs/conductor/pkg/observability/metrics"
    "github.com/arturolabs/conductor/pkg/identity"
)

// Prober checks a single peer's health endpoint. Implementations must honor
// the context deadline; a probe that errors or times out marks the peer
// unhealthy for the round and is never propagated further.
type Prober interface {
    ProbeHealth(ctx context.Context, url string) (bool, error)
}

// Peer pairs a probe target with the identity it is expected to present.
type Peer struct {
    URL string
    ID  identity.Identity
}

// peerHealth is the tracked state for one peer.
type peerHealth struct {
    peer                Peer
    healthy             bool
    lastSeen            time.Time
    consecutiveFailures int
}

// PeerStatus is a read-only snapshot of one peer's tracked health.
type PeerStatus struct {
    URL                 string
    ID                  identity.Identity
    Healthy             bool
    LastSeen            time.Time
    ConsecutiveFailures int
}

// Tracker probes a fixed peer set and keeps per-peer health bookkeeping.
// Probes within a round run in parallel, each under its own timeout, so a
// single unresponsive peer cannot stretch the round.
type Tracker struct {
    prober  Prober
    timeout time.Duration

    mu    sync.Mutex
    peers map[string]*peerHealth
}

// NewTracker builds a tracker over the given peers. timeout bounds each
// individual probe and should be strictly shorter than the polling interval.
func NewTracker(peers []Peer, prober Prober, timeout time.Duration) *Tracker {
    m := make(map[string]*peerHealth, len(peers))
    for _, p := range peers {
        m[p.URL] = &peerHealth{peer: p}
    }
    return &Tracker{prober: prober, timeout: timeout, peers: m}
}

// CheckAll probes every peer concurrently and returns the identities of the
// peers that answered healthy this round.
func (t *Tracker) CheckAll(ctx context.Context) []identity.Identity {
    t.mu.Lock()
    urls := make([]string, 0, len(t.peers))
    for u := range t.peers {
        urls = append(urls, u)
    }
    t.mu.Unlock()

    results := make(map[string]bool, len(urls))
    var rmu sync.Mutex
    var wg sync.WaitGroup
    for _, url := range urls {
        wg.Add(1)
        go func(url string) {
            defer wg.Done()
            pctx, cancel := context.WithTimeout(ctx, t.timeout)
            defer cancel()
            ok, err := t.prober.ProbeHealth(pctx, url)
            healthy := err == nil && ok
            rmu.Lock()
            results[url] = healthy
            rmu.Unlock()
        }(url)
    }
    wg.Wait()

    t.mu.Lock()
    defer t.mu.Unlock()
    var healthy []identity.Identity
    for url, ok := range results {
        ph := t.peers[url]
        if ph == nil { continue }
        if ok {
            ph.healthy = true
            ph.lastSeen = time.Now()
            ph.consecutiveFailures = 0
            healthy = append(healthy, ph.peer.ID)
        } else {
            ph.healthy = false
            ph.consecutiveFailures++
            obsmetrics.ProbeFailures.WithLabelValues(url).Inc()
        }
    }
    return healthy
}

// Peers returns a snapshot of the tracked peer states.
func (t *Tracker) Peers() []PeerStatus {
    t.mu.Lock()
    defer t.mu.Unlock()
    out := make([]PeerStatus, 0, len(t.peers))
    for _, ph := range t.peers {
        out = append(out, PeerStatus{
            URL:                 ph.peer.URL,
            ID:                  ph.peer.ID,
            Healthy:             ph.healthy,
            LastSeen:            ph.lastSeen,
            ConsecutiveFailures: ph.consecutiveFailures,
        })
    }
    return out
}
