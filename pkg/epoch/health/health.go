package health

import (
    "context"
    "log"
    "sync"
    "time"

    "github.com/arturolabs/conductor/pkg/epoch"
    "github.com/arturolabs/conductor/pkg/identity"
    "github.com/arturolabs/conductor/pkg/internal/logutil"
    obsmetrics "github.com/arturolabs/conductor/pkg/observability/metrics"
)

// Options configures the health-polling strategy.
type Options struct {
    // Self is this node's identity; it is always part of the candidate set.
    Self identity.Identity
    // Peers are the probe targets with their expected identities.
    Peers []Peer
    // Prober performs the per-peer health check.
    Prober Prober
    // Interval between polling rounds (used by Run).
    Interval time.Duration
    // ProbeTimeout bounds each individual probe. Defaults to Interval/2 and
    // is clamped below Interval so one round can never overrun the next.
    ProbeTimeout time.Duration
    // Logger is optional; log.Default() is used when nil.
    Logger *log.Logger
}

// Manager elects a leader from observed peer health. Each round it probes all
// peers in parallel, forms the candidate set from the survivors plus self, and
// deterministically picks the smallest identity. Any two nodes observing the
// same healthy set agree on the leader without further communication. When
// every peer is unreachable the candidate set degenerates to {self}: a fully
// partitioned node elects itself and stays available.
type Manager struct {
    opts    Options
    tracker *Tracker

    mu     sync.RWMutex
    ep     uint64
    leader identity.Identity
    known  bool

    changes chan epoch.Change
}

// New validates options and builds the manager. No probing happens until
// Refresh or Run is called.
func New(opts Options) *Manager {
    if opts.Logger == nil { opts.Logger = log.Default() }
    if opts.Interval <= 0 { opts.Interval = time.Second }
    if opts.ProbeTimeout <= 0 || opts.ProbeTimeout >= opts.Interval {
        opts.ProbeTimeout = opts.Interval / 2
    }
    return &Manager{
        opts:    opts,
        tracker: NewTracker(opts.Peers, opts.Prober, opts.ProbeTimeout),
        changes: make(chan epoch.Change, 16),
    }
}

func (m *Manager) CurrentEpoch() uint64 {
    m.mu.RLock()
    defer m.mu.RUnlock()
    return m.ep
}

func (m *Manager) Leader(ep uint64) (identity.Identity, bool) {
    m.mu.RLock()
    defer m.mu.RUnlock()
    if !m.known || ep != m.ep {
        return identity.Identity{}, false
    }
    return m.leader, true
}

func (m *Manager) IsLeader(id identity.Identity) bool {
    m.mu.RLock()
    defer m.mu.RUnlock()
    return m.known && m.leader == id
}

// Refresh runs one polling round: probe all peers, recompute the leader from
// the healthy candidates, and advance the epoch exactly once if the leader
// changed. It never fails; unreachable peers just drop out of the round.
func (m *Manager) Refresh(ctx context.Context) {
    healthy := m.tracker.CheckAll(ctx)

    candidates := append(healthy, m.opts.Self)
    leader := candidates[0]
    for _, c := range candidates[1:] {
        if c.Less(leader) {
            leader = c
        }
    }
    obsmetrics.HealthyCandidates.Set(float64(len(candidates)))

    m.mu.Lock()
    if m.known && m.leader == leader {
        m.mu.Unlock()
        return
    }
    m.ep++
    m.leader = leader
    m.known = true
    ch := epoch.Change{Epoch: m.ep, Leader: leader, At: time.Now()}
    m.mu.Unlock()

    obsmetrics.EpochCurrent.Set(float64(ch.Epoch))
    obsmetrics.LeaderChanges.Inc()
    logutil.Infof(m.opts.Logger, "leader changed: epoch=%d leader=%s candidates=%d", ch.Epoch, leader.Short(), len(candidates))
    select {
    case m.changes <- ch:
    default:
        // drop if receiver is slow
    }
}

// Run drives polling rounds on the configured interval until ctx is done.
// In-flight probes are abandoned on cancellation, not awaited.
func (m *Manager) Run(ctx context.Context) {
    ticker := time.NewTicker(m.opts.Interval)
    defer ticker.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            m.Refresh(ctx)
        }
    }
}

func (m *Manager) Changes() <-chan epoch.Change { return m.changes }

// Candidates returns the full configured candidate set (self + all peers),
// regardless of current health. Quorum achievability is judged against this.
func (m *Manager) Candidates() []identity.Identity {
    out := make([]identity.Identity, 0, len(m.opts.Peers)+1)
    out = append(out, m.opts.Self)
    for _, p := range m.opts.Peers {
        out = append(out, p.ID)
    }
    return out
}

// PeerStatuses exposes the tracker's bookkeeping for status endpoints.
func (m *Manager) PeerStatuses() []PeerStatus { return m.tracker.Peers() }

var (
    _ epoch.Manager         = (*Manager)(nil)
    _ epoch.Notifier        = (*Manager)(nil)
    _ epoch.CandidateLister = (*Manager)(nil)
)
