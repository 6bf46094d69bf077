package grpc

import (
    "context"
    "sync"
    "testing"
    "time"
)

// Health polling fires probes from parallel goroutines against a fresh
// client; the very first round must be safe, so pool initialization cannot
// be deferred to the first call.
func TestProbeHealthParallelOnFreshClient(t *testing.T) {
    c := NewClient(200 * time.Millisecond)
    defer c.Close()

    if c.cm == nil {
        t.Fatalf("connection pool must be initialized at construction")
    }

    ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
    defer cancel()

    var wg sync.WaitGroup
    for i := 0; i < 8; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            // nothing listens here; the probe must fail cleanly, not race
            ok, err := c.ProbeHealth(ctx, "127.0.0.1:1")
            if ok || err == nil {
                t.Errorf("probe against a dead port: ok=%v err=%v", ok, err)
            }
        }()
    }
    wg.Wait()
}
