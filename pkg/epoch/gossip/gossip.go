package gossip

import (
    "context"
    "log"
    "sync"
    "time"

    "github.com/arturolabs/conductor/pkg/epoch"
    "github.com/arturolabs/conductor/pkg/identity"
    "github.com/arturolabs/conductor/pkg/internal/logutil"
    "github.com/arturolabs/conductor/pkg/membership"
    obsmetrics "github.com/arturolabs/conductor/pkg/observability/metrics"
)

// Options configures the gossip-membership strategy.
type Options struct {
    // Self is this node's identity; it is always a candidate.
    Self identity.Identity
    // Membership supplies the live member view. Members must gossip their
    // identity via the membership.MetaIdentity key to count as candidates.
    Membership membership.Membership
    // Known optionally lists the full configured participant set for quorum
    // validation; when empty, Candidates reports the live view instead.
    Known []identity.Identity
    // Logger is optional; log.Default() is used when nil.
    Logger *log.Logger
}

// Manager derives leadership from gossip membership instead of HTTP probes:
// the candidate set is the set of live members, the leader is the smallest
// identity among them. Failure detection is delegated entirely to the gossip
// layer's suspicion mechanism.
type Manager struct {
    opts Options

    mu     sync.RWMutex
    ep     uint64
    leader identity.Identity
    known  bool

    changes chan epoch.Change
}

// New builds the manager. The membership layer must be started by the caller.
func New(opts Options) *Manager {
    if opts.Logger == nil { opts.Logger = log.Default() }
    return &Manager{opts: opts, changes: make(chan epoch.Change, 16)}
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

// Refresh recomputes the leader from the current member view and advances the
// epoch exactly once if it changed. A node that has lost all peers still sees
// itself and elects itself.
func (m *Manager) Refresh(ctx context.Context) {
    candidates := m.liveCandidates()
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
    logutil.Infof(m.opts.Logger, "leader changed (gossip): epoch=%d leader=%s members=%d", ch.Epoch, leader.Short(), len(candidates))
    select {
    case m.changes <- ch:
    default:
        // drop if receiver is slow
    }
}

// Run re-evaluates leadership whenever membership reports a change, plus a
// coarse periodic sweep in case events are dropped.
func (m *Manager) Run(ctx context.Context) {
    evts := m.opts.Membership.Events()
    ticker := time.NewTicker(time.Second)
    defer ticker.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case _, ok := <-evts:
            if !ok { return }
            m.Refresh(ctx)
        case <-ticker.C:
            m.Refresh(ctx)
        }
    }
}

func (m *Manager) Changes() <-chan epoch.Change { return m.changes }

// Candidates returns the configured participant set when known, otherwise the
// identities currently visible via gossip.
func (m *Manager) Candidates() []identity.Identity {
    if len(m.opts.Known) > 0 {
        return append([]identity.Identity(nil), m.opts.Known...)
    }
    return m.liveCandidates()
}

// liveCandidates is the set of gossip-visible identities, always including
// self.
func (m *Manager) liveCandidates() []identity.Identity {
    out := []identity.Identity{m.opts.Self}
    seen := map[identity.Identity]struct{}{m.opts.Self: {}}
    for _, mem := range m.opts.Membership.Members() {
        hexID := mem.Meta[membership.MetaIdentity]
        if hexID == "" {
            continue
        }
        id, err := identity.Parse(hexID)
        if err != nil {
            continue
        }
        if _, dup := seen[id]; dup {
            continue
        }
        seen[id] = struct{}{}
        out = append(out, id)
    }
    return out
}

var (
    _ epoch.Manager         = (*Manager)(nil)
    _ epoch.Notifier        = (*Manager)(nil)
    _ epoch.CandidateLister = (*Manager)(nil)
)
