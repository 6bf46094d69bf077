//go:build integration

package integration

import (
    "context"
    "encoding/json"
    "sort"
    "testing"
    "time"

    "github.com/arturolabs/conductor/pkg/identity"
    "github.com/arturolabs/conductor/pkg/transport/httpjson"
)

// nodeStatus mirrors the JSON shape of GET /status.
type nodeStatus struct {
    Healthy        bool   `json:"healthy"`
    Identity       string `json:"identity"`
    Epoch          uint64 `json:"epoch"`
    LeaderID       string `json:"leader_id"`
    IsLeader       bool   `json:"is_leader"`
    NextHeight     uint64 `json:"next_height"`
    CertifiedCount int    `json:"certified_count"`
}

var errNotYet = &temporaryError{}

type temporaryError struct{}

func (e *temporaryError) Error() string { return "not yet" }

func waitUntil(t *testing.T, timeout time.Duration, fn func() error) {
    t.Helper()
    deadline := time.Now().Add(timeout)
    var last error
    for time.Now().Before(deadline) {
        if err := fn(); err == nil {
            return
        } else {
            last = err
        }
        time.Sleep(100 * time.Millisecond)
    }
    t.Fatalf("timeout waiting for condition: %v", last)
}

func fetchStatus(ctx context.Context, cli *httpjson.Client, addr string) (nodeStatus, error) {
    var s nodeStatus
    b, err := cli.GetStatus(ctx, addr)
    if err != nil { return s, err }
    if err := json.Unmarshal(b, &s); err != nil { return s, err }
    return s, nil
}

// rankBySeed returns the given seeds ordered by the tie-break order of the
// identities they derive, smallest first.
func rankBySeed(seeds ...uint64) []uint64 {
    out := append([]uint64(nil), seeds...)
    sort.Slice(out, func(i, j int) bool {
        return identity.DerivePeer(out[i]).Less(identity.DerivePeer(out[j]))
    })
    return out
}
