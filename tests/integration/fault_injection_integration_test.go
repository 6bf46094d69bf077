//go:build integration

package integration

import (
    "context"
    "testing"
    "time"

    "github.com/arturolabs/conductor/pkg/bootstrap"
    "github.com/arturolabs/conductor/pkg/identity"
    "github.com/arturolabs/conductor/pkg/payload"
    "github.com/arturolabs/conductor/pkg/transport"
    "github.com/arturolabs/conductor/pkg/transport/httpjson"
)

// Simulate a short follower outage: the leader keeps its seat (it is still the
// smallest healthy identity), sequencing continues, and the restarted follower
// converges back onto the same leader.
func TestFollowerOutage_LeaderKeepsSequencing(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
    defer cancel()

    nodes := mustStartThreeNodes(t, ctx)
    defer func() {
        for _, n := range nodes { n.Close() }
    }()

    ranked := rankBySeed(1, 2, 3)
    leaderSeed, downSeed := ranked[0], ranked[2]
    leaderAddr := threeNodeAddrs[leaderSeed]
    cli := httpjson.NewClient(2 * time.Second)

    waitUntil(t, 10*time.Second, func() error {
        s, err := fetchStatus(ctx, cli, leaderAddr)
        if err != nil { return err }
        if !s.IsLeader { return errNotYet }
        return nil
    })

    // Take down the largest-identity follower
    nodes[downSeed].Close()
    delete(nodes, downSeed)
    time.Sleep(500 * time.Millisecond)

    // Leadership is unaffected and certification still works
    s, err := fetchStatus(ctx, cli, leaderAddr)
    if err != nil { t.Fatalf("status: %v", err) }
    if !s.IsLeader { t.Fatalf("leader lost its seat after a follower outage") }

    p := payload.NewBasic(s.NextHeight, []byte("during-outage"))
    raw, _ := p.Encode()
    cr, err := cli.PostCommit(ctx, leaderAddr, transport.CommitRequest{Payload: raw})
    if err != nil || !cr.Success { t.Fatalf("commit: err=%v resp=%+v", err, cr) }
    for _, seed := range ranked[1:] {
        if _, err := cli.PostAcknowledge(ctx, leaderAddr, transport.AcknowledgeRequest{Identity: identity.DerivePeer(seed).String()}); err != nil {
            t.Fatalf("ack: %v", err)
        }
    }
    ls, err := cli.GetLeader(ctx, leaderAddr)
    if err != nil { t.Fatalf("leader status: %v", err) }
    if ls.NextHeight != p.Height()+1 { t.Fatalf("payload did not certify: next=%d", ls.NextHeight) }

    // Restart the follower; it converges on the same leader
    n, err := bootstrap.Run(ctx, bootstrap.Config{
        IdentitySeed:   downSeed,
        BindAddr:       threeNodeAddrs[downSeed],
        PeersCSV:       peersFor(downSeed),
        Strategy:       "health",
        HealthInterval: 200 * time.Millisecond,
        Quorum:         2,
    })
    if err != nil { t.Fatalf("restart: %v", err) }
    nodes[downSeed] = n

    wantLeader := identity.DerivePeer(leaderSeed).String()
    waitUntil(t, 15*time.Second, func() error {
        s, err := fetchStatus(ctx, cli, threeNodeAddrs[downSeed])
        if err != nil { return err }
        if !s.Healthy || s.LeaderID != wantLeader { return errNotYet }
        return nil
    })
}
