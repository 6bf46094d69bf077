package roundrobin

import (
    "context"
    "sync"
    "time"

    "github.com/arturolabs/conductor/pkg/epoch"
    "github.com/arturolabs/conductor/pkg/identity"
)

// Manager rotates leadership deterministically: the leader for epoch N is
// participants[N % len(participants)]. It performs no I/O; epochs advance only
// when a driving caller invokes Advance (or TransferLeader).
type Manager struct {
    participants []identity.Identity
    mu           sync.RWMutex
    ep           uint64
    changes      chan epoch.Change
}

// New returns a rotation manager over the given ordered participant list.
// The list must be identical on every node for the rotation to agree.
func New(participants []identity.Identity) *Manager {
    return &Manager{
        participants: append([]identity.Identity(nil), participants...),
        changes:      make(chan epoch.Change, 16),
    }
}

func (m *Manager) CurrentEpoch() uint64 {
    m.mu.RLock()
    defer m.mu.RUnlock()
    return m.ep
}

func (m *Manager) Leader(ep uint64) (identity.Identity, bool) {
    if len(m.participants) == 0 {
        return identity.Identity{}, false
    }
    return m.participants[ep%uint64(len(m.participants))], true
}

func (m *Manager) IsLeader(id identity.Identity) bool {
    leader, ok := m.Leader(m.CurrentEpoch())
    return ok && leader == id
}

// Refresh is a no-op: the rotation is a pure function of the epoch, which is
// advanced externally.
func (m *Manager) Refresh(ctx context.Context) {}

// Advance moves to the next epoch and returns the resulting change.
func (m *Manager) Advance() epoch.Change {
    m.mu.Lock()
    m.ep++
    ep := m.ep
    m.mu.Unlock()

    leader, _ := m.Leader(ep)
    ch := epoch.Change{Epoch: ep, Leader: leader, At: time.Now()}
    select {
    case m.changes <- ch:
    default:
    }
    return ch
}

// TransferLeader is equivalent to Advance for a rotation.
func (m *Manager) TransferLeader() (epoch.Change, error) {
    if len(m.participants) < 2 {
        return epoch.Change{}, epoch.ErrNoSuccessor
    }
    return m.Advance(), nil
}

func (m *Manager) Candidates() []identity.Identity {
    return append([]identity.Identity(nil), m.participants...)
}

func (m *Manager) Changes() <-chan epoch.Change { return m.changes }

var (
    _ epoch.Manager         = (*Manager)(nil)
    _ epoch.Notifier        = (*Manager)(nil)
    _ epoch.CandidateLister = (*Manager)(nil)
    _ epoch.Transferer      = (*Manager)(nil)
)
