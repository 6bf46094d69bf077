//go:build integration

package integration

import (
    "context"
    "fmt"
    "testing"
    "time"

    "github.com/arturolabs/conductor/pkg/bootstrap"
    "github.com/arturolabs/conductor/pkg/identity"
    "github.com/arturolabs/conductor/pkg/transport/httpjson"
)

// threeNodeAddrs maps identity seeds 1..3 to the fixed RPC addresses used by
// the three-node scenarios.
var threeNodeAddrs = map[uint64]string{
    1: "127.0.0.1:19101",
    2: "127.0.0.1:19102",
    3: "127.0.0.1:19103",
}

func peersFor(self uint64) string {
    out := ""
    for seed, addr := range threeNodeAddrs {
        if seed == self { continue }
        if out != "" { out += "," }
        out += fmt.Sprintf("%d@%s", seed, addr)
    }
    return out
}

func mustStartThreeNodes(t *testing.T, ctx context.Context) map[uint64]*bootstrap.Node {
    t.Helper()
    nodes := make(map[uint64]*bootstrap.Node, 3)
    for seed, addr := range threeNodeAddrs {
        n, err := bootstrap.Run(ctx, bootstrap.Config{
            IdentitySeed:   seed,
            BindAddr:       addr,
            PeersCSV:       peersFor(seed),
            Strategy:       "health",
            HealthInterval: 200 * time.Millisecond,
            Quorum:         2,
        })
        if err != nil { t.Fatalf("node %d: %v", seed, err) }
        nodes[seed] = n
    }
    return nodes
}

func TestThreeNodes_HealthElectionAgreement(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
    defer cancel()

    nodes := mustStartThreeNodes(t, ctx)
    defer func() {
        for _, n := range nodes { n.Close() }
    }()

    wantLeader := identity.DerivePeer(rankBySeed(1, 2, 3)[0]).String()
    cli := httpjson.NewClient(2 * time.Second)

    // Every node converges on the same leader: the smallest identity.
    for _, addr := range threeNodeAddrs {
        addr := addr
        waitUntil(t, 10*time.Second, func() error {
            s, err := fetchStatus(ctx, cli, addr)
            if err != nil { return err }
            if !s.Healthy || s.LeaderID != wantLeader { return errNotYet }
            return nil
        })
    }
}

func TestLeaderFailure_RemainingNodesElectNext(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
    defer cancel()

    nodes := mustStartThreeNodes(t, ctx)
    defer func() {
        for _, n := range nodes { n.Close() }
    }()

    ranked := rankBySeed(1, 2, 3)
    leaderSeed, nextSeed := ranked[0], ranked[1]
    cli := httpjson.NewClient(2 * time.Second)

    waitUntil(t, 10*time.Second, func() error {
        s, err := fetchStatus(ctx, cli, threeNodeAddrs[leaderSeed])
        if err != nil { return err }
        if !s.IsLeader { return errNotYet }
        return nil
    })

    // Stop the leader; the survivors' probes fail and the next smallest
    // identity takes over at a higher epoch.
    nodes[leaderSeed].Close()
    delete(nodes, leaderSeed)

    wantLeader := identity.DerivePeer(nextSeed).String()
    for seed := range nodes {
        addr := threeNodeAddrs[seed]
        waitUntil(t, 15*time.Second, func() error {
            s, err := fetchStatus(ctx, cli, addr)
            if err != nil { return err }
            if s.LeaderID != wantLeader || s.Epoch < 2 { return errNotYet }
            return nil
        })
    }
}
