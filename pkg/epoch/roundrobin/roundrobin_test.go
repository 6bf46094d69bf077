package roundrobin

import (
    "testing"

    "github.com/arturolabs/conductor/pkg/epoch"
    "github.com/arturolabs/conductor/pkg/identity"
)

func TestRotationFormula(t *testing.T) {
    ids := []identity.Identity{identity.DerivePeer(1), identity.DerivePeer(2), identity.DerivePeer(3)}
    m := New(ids)

    for ep := uint64(0); ep < 9; ep++ {
        leader, ok := m.Leader(ep)
        if !ok || leader != ids[ep%3] {
            t.Fatalf("leader(%d): got %s want %s", ep, leader.Short(), ids[ep%3].Short())
        }
    }
}

func TestAdvance(t *testing.T) {
    ids := []identity.Identity{identity.DerivePeer(1), identity.DerivePeer(2)}
    m := New(ids)

    if !m.IsLeader(ids[0]) {
        t.Fatalf("epoch 0 leader should be the first participant")
    }
    ch := m.Advance()
    if ch.Epoch != 1 || ch.Leader != ids[1] {
        t.Fatalf("advance: %+v", ch)
    }
    if m.CurrentEpoch() != 1 || !m.IsLeader(ids[1]) {
        t.Fatalf("state after advance: epoch=%d", m.CurrentEpoch())
    }
    select {
    case got := <-m.Changes():
        if got.Epoch != 1 {
            t.Fatalf("notification: %+v", got)
        }
    default:
        t.Fatalf("expected a buffered change notification")
    }
}

func TestTransferNeedsSuccessor(t *testing.T) {
    m := New([]identity.Identity{identity.DerivePeer(1)})
    if _, err := m.TransferLeader(); err != epoch.ErrNoSuccessor {
        t.Fatalf("expected ErrNoSuccessor, got %v", err)
    }
}

func TestEmptyParticipants(t *testing.T) {
    m := New(nil)
    if _, ok := m.Leader(0); ok {
        t.Fatalf("no participants means no leader")
    }
}
