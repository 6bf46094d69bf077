package static

import (
    "testing"

    "github.com/arturolabs/conductor/pkg/identity"
)

func TestFixedAssignment(t *testing.T) {
    a := identity.DerivePeer(1)
    b := identity.DerivePeer(2)
    m := New(3, a, []identity.Identity{a, b})

    if m.CurrentEpoch() != 3 {
        t.Fatalf("epoch: got %d", m.CurrentEpoch())
    }
    if leader, ok := m.Leader(3); !ok || leader != a {
        t.Fatalf("leader(3): %v %v", leader, ok)
    }
    if _, ok := m.Leader(4); ok {
        t.Fatalf("leader for a foreign epoch must be undetermined")
    }
    if !m.IsLeader(a) || m.IsLeader(b) {
        t.Fatalf("is-leader checks failed")
    }
}

func TestTransferRotates(t *testing.T) {
    a := identity.DerivePeer(1)
    b := identity.DerivePeer(2)
    m := New(0, a, []identity.Identity{a, b})

    ch, err := m.TransferLeader()
    if err != nil {
        t.Fatalf("transfer: %v", err)
    }
    if ch.Epoch != 1 || ch.Leader != b {
        t.Fatalf("unexpected change: %+v", ch)
    }
    if !m.IsLeader(b) {
        t.Fatalf("leadership did not move")
    }
    select {
    case got := <-m.Changes():
        if got.Epoch != 1 || got.Leader != b {
            t.Fatalf("change notification: %+v", got)
        }
    default:
        t.Fatalf("expected a buffered change notification")
    }

    // wraps around
    if ch, _ = m.TransferLeader(); ch.Leader != a || ch.Epoch != 2 {
        t.Fatalf("wrap-around: %+v", ch)
    }
}
