package health

import (
    "context"
    "errors"
    "sort"
    "sync"
    "testing"
    "time"

    "github.com/arturolabs/conductor/pkg/identity"
)

// stubProber answers probes from a mutable health table.
type stubProber struct {
    mu      sync.Mutex
    healthy map[string]bool
}

func (s *stubProber) set(url string, ok bool) {
    s.mu.Lock()
    s.healthy[url] = ok
    s.mu.Unlock()
}

func (s *stubProber) ProbeHealth(ctx context.Context, url string) (bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    ok, known := s.healthy[url]
    if !known {
        return false, errors.New("unreachable")
    }
    return ok, nil
}

func sortedIDs(seeds ...uint64) []identity.Identity {
    ids := make([]identity.Identity, len(seeds))
    for i, s := range seeds {
        ids[i] = identity.DerivePeer(s)
    }
    sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
    return ids
}

func TestElectionScenario(t *testing.T) {
    // three candidates; rank them by the tie-break order, not by seed
    ids := sortedIDs(1, 2, 3)
    first, second, third := ids[0], ids[1], ids[2]

    // run from the perspective of the largest identity so every leadership
    // step is observable
    var peers []Peer
    urlFor := map[string]identity.Identity{"p1": first, "p2": second}
    for url, id := range urlFor {
        peers = append(peers, Peer{URL: url, ID: id})
    }
    prober := &stubProber{healthy: map[string]bool{"p1": true, "p2": true}}
    m := New(Options{
        Self:     third,
        Peers:    peers,
        Prober:   prober,
        Interval: 50 * time.Millisecond,
        Logger:   quietLogger(),
    })
    ctx := context.Background()

    // all healthy: smallest identity wins, first epoch bump
    m.Refresh(ctx)
    if leader, ok := m.Leader(m.CurrentEpoch()); !ok || leader != first {
        t.Fatalf("round 1 leader: %v ok=%v", leader.Short(), ok)
    }
    if m.CurrentEpoch() != 1 {
        t.Fatalf("round 1 epoch: %d", m.CurrentEpoch())
    }

    // unchanged health: no epoch movement
    m.Refresh(ctx)
    if m.CurrentEpoch() != 1 {
        t.Fatalf("stable round must not advance the epoch: %d", m.CurrentEpoch())
    }

    // leader becomes unhealthy: next identity takes over, epoch+1
    prober.set("p1", false)
    m.Refresh(ctx)
    if leader, _ := m.Leader(m.CurrentEpoch()); leader != second {
        t.Fatalf("round 2 leader: %s", leader.Short())
    }
    if m.CurrentEpoch() != 2 {
        t.Fatalf("round 2 epoch: %d", m.CurrentEpoch())
    }

    // total partition: candidate set degenerates to self
    prober.set("p2", false)
    m.Refresh(ctx)
    if leader, _ := m.Leader(m.CurrentEpoch()); leader != third {
        t.Fatalf("partitioned leader should be self, got %s", leader.Short())
    }
    if m.CurrentEpoch() != 3 {
        t.Fatalf("round 3 epoch: %d", m.CurrentEpoch())
    }
    if !m.IsLeader(third) {
        t.Fatalf("self must be leader when fully partitioned")
    }
}

func TestChangeNotifications(t *testing.T) {
    self := identity.DerivePeer(9)
    prober := &stubProber{healthy: map[string]bool{}}
    m := New(Options{Self: self, Prober: prober, Interval: 50 * time.Millisecond, Logger: quietLogger()})

    m.Refresh(context.Background())
    select {
    case ch := <-m.Changes():
        if ch.Epoch != 1 || ch.Leader != self {
            t.Fatalf("change: %+v", ch)
        }
    default:
        t.Fatalf("expected a change notification after the first round")
    }
}

func TestLeaderUndeterminedBeforeFirstRound(t *testing.T) {
    m := New(Options{Self: identity.DerivePeer(1), Prober: &stubProber{healthy: map[string]bool{}}, Logger: quietLogger()})
    if _, ok := m.Leader(0); ok {
        t.Fatalf("leader must be undetermined before the first refresh")
    }
    if m.IsLeader(identity.DerivePeer(1)) {
        t.Fatalf("no one is leader before the first refresh")
    }
}

func TestCandidatesListsFullSet(t *testing.T) {
    self := identity.DerivePeer(1)
    peer := identity.DerivePeer(2)
    m := New(Options{
        Self:   self,
        Peers:  []Peer{{URL: "p", ID: peer}},
        Prober: &stubProber{healthy: map[string]bool{}},
        Logger: quietLogger(),
    })
    got := m.Candidates()
    if len(got) != 2 || got[0] != self || got[1] != peer {
        t.Fatalf("candidates: %v", got)
    }
}

func TestRunStopsOnCancel(t *testing.T) {
    prober := &stubProber{healthy: map[string]bool{}}
    m := New(Options{Self: identity.DerivePeer(1), Prober: prober, Interval: 10 * time.Millisecond, Logger: quietLogger()})

    ctx, cancel := context.WithCancel(context.Background())
    done := make(chan struct{})
    go func() {
        m.Run(ctx)
        close(done)
    }()
    time.Sleep(35 * time.Millisecond)
    cancel()
    select {
    case <-done:
    case <-time.After(time.Second):
        t.Fatalf("Run did not stop on cancellation")
    }
    if m.CurrentEpoch() == 0 {
        t.Fatalf("expected at least one refresh round to have run")
    }
}
