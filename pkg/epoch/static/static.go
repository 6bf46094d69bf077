package static

import (
    "context"
    "sync"
    "time"

    "github.com/arturolabs/conductor/pkg/epoch"
    "github.com/arturolabs/conductor/pkg/identity"
)

// Manager is a fixed-assignment epoch strategy: one configured leader, one
// configured epoch. The epoch only moves by explicit administrative action
// (TransferLeader), never by observation.
type Manager struct {
    mu         sync.RWMutex
    ep         uint64
    leader     identity.Identity
    candidates []identity.Identity
    changes    chan epoch.Change
}

// New returns a manager that always reports leader at the given epoch.
// candidates is the full participant set used for quorum validation; it must
// include leader.
func New(ep uint64, leader identity.Identity, candidates []identity.Identity) *Manager {
    return &Manager{
        ep:         ep,
        leader:     leader,
        candidates: append([]identity.Identity(nil), candidates...),
        changes:    make(chan epoch.Change, 16),
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
    if ep != m.ep {
        return identity.Identity{}, false
    }
    return m.leader, true
}

func (m *Manager) IsLeader(id identity.Identity) bool {
    m.mu.RLock()
    defer m.mu.RUnlock()
    return id == m.leader
}

// Refresh is a no-op: static assignment observes nothing.
func (m *Manager) Refresh(ctx context.Context) {}

func (m *Manager) Candidates() []identity.Identity {
    m.mu.RLock()
    defer m.mu.RUnlock()
    return append([]identity.Identity(nil), m.candidates...)
}

func (m *Manager) Changes() <-chan epoch.Change { return m.changes }

// TransferLeader rotates leadership to the next candidate in configured order
// and advances the epoch by one.
func (m *Manager) TransferLeader() (epoch.Change, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    if len(m.candidates) == 0 {
        return epoch.Change{}, epoch.ErrNoSuccessor
    }
    idx := 0
    for i, c := range m.candidates {
        if c == m.leader {
            idx = (i + 1) % len(m.candidates)
            break
        }
    }
    m.ep++
    m.leader = m.candidates[idx]
    ch := epoch.Change{Epoch: m.ep, Leader: m.leader, At: time.Now()}
    select {
    case m.changes <- ch:
    default:
    }
    return ch, nil
}

var (
    _ epoch.Manager         = (*Manager)(nil)
    _ epoch.Notifier        = (*Manager)(nil)
    _ epoch.CandidateLister = (*Manager)(nil)
    _ epoch.Transferer      = (*Manager)(nil)
)
