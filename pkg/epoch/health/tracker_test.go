package health

import (
    "context"
    "io"
    "log"
    "testing"
    "time"

    "github.com/arturolabs/conductor/pkg/identity"
)

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

// hangingProber never answers; probes must be cut off by the round timeout.
type hangingProber struct{}

func (hangingProber) ProbeHealth(ctx context.Context, url string) (bool, error) {
    <-ctx.Done()
    return false, ctx.Err()
}

func TestCheckAllBoundedByTimeout(t *testing.T) {
    peers := []Peer{
        {URL: "a", ID: identity.DerivePeer(1)},
        {URL: "b", ID: identity.DerivePeer(2)},
        {URL: "c", ID: identity.DerivePeer(3)},
    }
    tr := NewTracker(peers, hangingProber{}, 30*time.Millisecond)

    start := time.Now()
    healthy := tr.CheckAll(context.Background())
    elapsed := time.Since(start)

    if len(healthy) != 0 {
        t.Fatalf("hanging peers must not be healthy: %v", healthy)
    }
    // probes run in parallel, so the round costs one timeout, not three
    if elapsed > 200*time.Millisecond {
        t.Fatalf("round took %v; probes are not parallel or not bounded", elapsed)
    }
}

func TestBookkeeping(t *testing.T) {
    peer := Peer{URL: "a", ID: identity.DerivePeer(1)}
    prober := &stubProber{healthy: map[string]bool{"a": true}}
    tr := NewTracker([]Peer{peer}, prober, 50*time.Millisecond)

    tr.CheckAll(context.Background())
    st := tr.Peers()
    if len(st) != 1 || !st[0].Healthy || st[0].ConsecutiveFailures != 0 || st[0].LastSeen.IsZero() {
        t.Fatalf("after healthy round: %+v", st)
    }
    seen := st[0].LastSeen

    prober.set("a", false)
    tr.CheckAll(context.Background())
    tr.CheckAll(context.Background())
    st = tr.Peers()
    if st[0].Healthy || st[0].ConsecutiveFailures != 2 {
        t.Fatalf("after failures: %+v", st)
    }
    if !st[0].LastSeen.Equal(seen) {
        t.Fatalf("LastSeen must not move on failed rounds")
    }

    prober.set("a", true)
    tr.CheckAll(context.Background())
    st = tr.Peers()
    if !st[0].Healthy || st[0].ConsecutiveFailures != 0 {
        t.Fatalf("recovery must reset the failure count: %+v", st)
    }
}
