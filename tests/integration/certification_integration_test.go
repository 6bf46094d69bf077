//go:build integration

package integration

import (
    "context"
    "testing"
    "time"

    "github.com/arturolabs/conductor/pkg/identity"
    "github.com/arturolabs/conductor/pkg/payload"
    "github.com/arturolabs/conductor/pkg/transport"
    "github.com/arturolabs/conductor/pkg/transport/httpjson"
)

// Full quorum flow over the HTTP RPC surface: the leader accepts a commit,
// two validators acknowledge it, and the certified payload becomes readable
// from /latest and /payload/{height} on the leader.
func TestCommitAcknowledgeCertify_OverHTTP(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
    defer cancel()

    nodes := mustStartThreeNodes(t, ctx)
    defer func() {
        for _, n := range nodes { n.Close() }
    }()

    ranked := rankBySeed(1, 2, 3)
    leaderSeed := ranked[0]
    leaderAddr := threeNodeAddrs[leaderSeed]
    cli := httpjson.NewClient(2 * time.Second)

    waitUntil(t, 10*time.Second, func() error {
        s, err := fetchStatus(ctx, cli, leaderAddr)
        if err != nil { return err }
        if !s.IsLeader { return errNotYet }
        return nil
    })

    // Commit at the leader's next height
    ls, err := cli.GetLeader(ctx, leaderAddr)
    if err != nil { t.Fatalf("leader status: %v", err) }
    p := payload.NewBasic(ls.NextHeight, []byte("first"))
    raw, err := p.Encode()
    if err != nil { t.Fatal(err) }
    cr, err := cli.PostCommit(ctx, leaderAddr, transport.CommitRequest{Payload: raw})
    if err != nil { t.Fatalf("commit: %v", err) }
    if !cr.Success { t.Fatalf("commit rejected: %s", cr.Error) }

    // Validators acknowledge the pending slot; the second ack reaches quorum
    ar1, err := cli.PostAcknowledge(ctx, leaderAddr, transport.AcknowledgeRequest{Identity: identity.DerivePeer(ranked[1]).String()})
    if err != nil { t.Fatalf("ack 1: %v", err) }
    if ar1.Certified { t.Fatalf("certified after a single ack with quorum 2") }
    ar2, err := cli.PostAcknowledge(ctx, leaderAddr, transport.AcknowledgeRequest{Identity: identity.DerivePeer(ranked[2]).String()})
    if err != nil { t.Fatalf("ack 2: %v", err) }
    if !ar2.Certified || ar2.Height != p.Height() {
        t.Fatalf("quorum ack: certified=%v height=%d", ar2.Certified, ar2.Height)
    }

    // Certified record is served
    latest, ok, err := cli.GetLatest(ctx, leaderAddr)
    if err != nil || !ok { t.Fatalf("latest: ok=%v err=%v", ok, err) }
    got, err := payload.Decode(latest)
    if err != nil { t.Fatal(err) }
    if got.Digest() != p.Digest() { t.Fatalf("latest digest mismatch") }

    byH, ok, err := cli.GetPayload(ctx, leaderAddr, p.Height())
    if err != nil || !ok { t.Fatalf("payload: ok=%v err=%v", ok, err) }
    if string(byH) != string(latest) { t.Fatalf("payload/latest disagree") }

    // A duplicate ack on the certified height reports success idempotently
    ar3, err := cli.PostAcknowledge(ctx, leaderAddr, transport.AcknowledgeRequest{Height: &ls.NextHeight, Identity: identity.DerivePeer(ranked[1]).String()})
    if err != nil { t.Fatalf("late ack: %v", err) }
    if !ar3.Certified { t.Fatalf("late ack on certified height should report certified") }
}

// Commits sent to a follower are rejected without disturbing the leader.
func TestCommitOnFollower_Rejected(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
    defer cancel()

    nodes := mustStartThreeNodes(t, ctx)
    defer func() {
        for _, n := range nodes { n.Close() }
    }()

    ranked := rankBySeed(1, 2, 3)
    followerAddr := threeNodeAddrs[ranked[1]]
    cli := httpjson.NewClient(2 * time.Second)

    waitUntil(t, 10*time.Second, func() error {
        s, err := fetchStatus(ctx, cli, followerAddr)
        if err != nil { return err }
        if !s.Healthy || s.IsLeader { return errNotYet }
        return nil
    })

    p := payload.NewBasic(1, []byte("nope"))
    raw, _ := p.Encode()
    cr, err := cli.PostCommit(ctx, followerAddr, transport.CommitRequest{Payload: raw})
    if err != nil { t.Fatalf("commit rpc: %v", err) }
    if cr.Success || cr.Error == "" {
        t.Fatalf("follower accepted a commit: %+v", cr)
    }
}
