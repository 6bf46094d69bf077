//go:build integration

package integration

import (
    "context"
    "encoding/json"
    "testing"
    "time"

    "github.com/arturolabs/conductor/pkg/bootstrap"
    "github.com/arturolabs/conductor/pkg/identity"
    "github.com/arturolabs/conductor/pkg/payload"
    "github.com/arturolabs/conductor/pkg/transport"
    cgrpc "github.com/arturolabs/conductor/pkg/transport/grpc"
)

// The same commit/acknowledge/certify flow over the gRPC transport. A single
// statically-led node sequences; the validator identities ack via the client.
func TestCommitAcknowledgeCertify_OverGRPC(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
    defer cancel()

    const addr = "127.0.0.1:19201"
    n, err := bootstrap.Run(ctx, bootstrap.Config{
        IdentitySeed: 1,
        BindAddr:     addr,
        RPCProto:     "grpc",
        PeersCSV:     "2@127.0.0.1:19202,3@127.0.0.1:19203",
        Strategy:     "static",
        Quorum:       2,
    })
    if err != nil { t.Fatalf("node: %v", err) }
    defer n.Close()

    cli := cgrpc.NewClient(2 * time.Second)
    defer cli.Close()

    waitUntil(t, 10*time.Second, func() error {
        ok, err := cli.ProbeHealth(ctx, addr)
        if err != nil || !ok { return errNotYet }
        return nil
    })

    ls, err := cli.GetLeader(ctx, addr)
    if err != nil { t.Fatalf("leader: %v", err) }
    if !ls.IsLeader { t.Fatalf("static node should lead") }

    p := payload.NewBasic(ls.NextHeight, []byte("grpc-payload"))
    raw, err := p.Encode()
    if err != nil { t.Fatal(err) }
    cr, err := cli.PostCommit(ctx, addr, transport.CommitRequest{Payload: raw})
    if err != nil { t.Fatalf("commit: %v", err) }
    if !cr.Success { t.Fatalf("commit rejected: %s", cr.Error) }

    ar1, err := cli.PostAcknowledge(ctx, addr, transport.AcknowledgeRequest{Identity: identity.DerivePeer(2).String()})
    if err != nil { t.Fatalf("ack 1: %v", err) }
    if ar1.Certified { t.Fatalf("certified early") }
    ar2, err := cli.PostAcknowledge(ctx, addr, transport.AcknowledgeRequest{Identity: identity.DerivePeer(3).String()})
    if err != nil { t.Fatalf("ack 2: %v", err) }
    if !ar2.Certified { t.Fatalf("quorum not reached") }

    latest, ok, err := cli.GetLatest(ctx, addr)
    if err != nil || !ok { t.Fatalf("latest: ok=%v err=%v", ok, err) }
    got, err := payload.Decode(latest)
    if err != nil { t.Fatal(err) }
    if got.Digest() != p.Digest() { t.Fatalf("latest digest mismatch") }

    // Status also rides the gRPC surface
    sb, err := cli.GetStatus(ctx, addr)
    if err != nil { t.Fatalf("status: %v", err) }
    var s nodeStatus
    if err := json.Unmarshal(sb, &s); err != nil { t.Fatal(err) }
    if s.CertifiedCount != 1 || s.NextHeight != p.Height()+1 {
        t.Fatalf("status: %+v", s)
    }
}
