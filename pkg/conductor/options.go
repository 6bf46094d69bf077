package conductor

import (
    "errors"
    "log"
    "time"

    "github.com/arturolabs/conductor/pkg/epoch"
    "github.com/arturolabs/conductor/pkg/identity"
    "github.com/arturolabs/conductor/pkg/payload"
    "github.com/arturolabs/conductor/pkg/transport"
)

// Options carries dependency-injected components and runtime configuration
// used to assemble the conductor. Instances are typically produced from
// bootstrap.Config. The snapshot is immutable after New.
type Options struct {
    // Signer holds this node's keypair; its identity names the node in every
    // leadership and acknowledgment decision.
    Signer *identity.Signer
    // Epochs is the leadership strategy (health polling, rotation, static,
    // gossip).
    Epochs epoch.Manager
    // Quorum is the number of distinct acknowledging identities required to
    // certify a pending payload. Must be >= 1 and achievable against the
    // strategy's candidate set.
    Quorum int
    // SelfAck counts the proposer as the first acknowledgment on commit.
    SelfAck bool
    // RefreshInterval drives the background leadership refresh loop started
    // by Start. Zero disables the loop (strategies advanced externally).
    RefreshInterval time.Duration
    // Genesis optionally pre-certifies an initial payload; sequencing then
    // starts at the following height.
    Genesis payload.Payload
    // Logger reports operational messages.
    Logger *log.Logger

    // Optional RPC surface (for serving peers and the CLI)
    RPCServer transport.RPCServer
    RPCClient transport.RPCClient

    // Optional callback invoked on every observed epoch change.
    OnEpochChange func(epoch.Change)
}

// Validate checks the options before any network activity. A quorum that the
// candidate set can never satisfy is a configuration error and fatal here,
// never a runtime condition.
func (o Options) Validate() error {
    if o.Signer == nil {
        return errors.New("conductor: nil Signer")
    }
    if o.Epochs == nil {
        return errors.New("conductor: nil Epochs")
    }
    if o.Quorum < 1 {
        return errors.New("conductor: quorum must be >= 1")
    }
    if cl, ok := o.Epochs.(epoch.CandidateLister); ok {
        if n := len(cl.Candidates()); o.Quorum > n {
            return ErrQuorumUnreachable
        }
    }
    return nil
}
