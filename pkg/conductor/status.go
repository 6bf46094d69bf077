package conductor

import (
    "context"
    "time"

    "github.com/arturolabs/conductor/pkg/epoch"
    "github.com/arturolabs/conductor/pkg/epoch/health"
)

// NodeStatus is a high-level, JSON-serializable snapshot of the node suitable
// for external status endpoints and tooling.
type NodeStatus struct {
    // Healthy indicates whether a leader is known for the current epoch.
    Healthy bool `json:"healthy"`
    // Identity is this node's public identity (hex).
    Identity string `json:"identity"`
    // Epoch is the current epoch as observed by this node.
    Epoch uint64 `json:"epoch"`
    // LeaderID is the identity of the current leader, if known.
    LeaderID string `json:"leader_id,omitempty"`
    // IsLeader reports whether this node is the current sequencer.
    IsLeader bool `json:"is_leader"`
    // NextHeight is the next height eligible for commit.
    NextHeight uint64 `json:"next_height"`
    // Pending describes the in-flight pending slot, if any.
    Pending *PendingInfo `json:"pending,omitempty"`
    // CertifiedCount is the number of certified records held.
    CertifiedCount int `json:"certified_count"`
    // Candidates lists the configured candidate identities (hex), when the
    // strategy exposes them.
    Candidates []string `json:"candidates,omitempty"`
    // Peers is the per-peer probe bookkeeping, when the strategy tracks it.
    Peers []PeerHealth `json:"peers,omitempty"`
    // Warnings contains any non-fatal observations (e.g., degraded states).
    Warnings []string `json:"warnings,omitempty"`
}

// PeerHealth is the wire form of one probed peer's tracked state.
type PeerHealth struct {
    URL                 string    `json:"url"`
    Identity            string    `json:"identity"`
    Healthy             bool      `json:"healthy"`
    LastSeen            time.Time `json:"last_seen"`
    ConsecutiveFailures int       `json:"consecutive_failures"`
}

// Status synthesizes a snapshot from the epoch strategy and the ledger.
func (c *Conductor) Status(ctx context.Context) (*NodeStatus, error) {
    ep := c.em.CurrentEpoch()
    s := &NodeStatus{
        Identity:       c.Identity().String(),
        Epoch:          ep,
        NextHeight:     c.ledger.nextHeight(),
        CertifiedCount: c.ledger.certifiedCount(),
    }
    if leader, ok := c.em.Leader(ep); ok {
        s.Healthy = true
        s.LeaderID = leader.String()
        s.IsLeader = leader == c.Identity()
    } else {
        s.Warnings = append(s.Warnings, "leader undetermined")
    }
    if info, ok := c.ledger.pendingInfo(); ok {
        s.Pending = &info
    }
    if cl, ok := c.em.(epoch.CandidateLister); ok {
        for _, id := range cl.Candidates() {
            s.Candidates = append(s.Candidates, id.String())
        }
    }
    if hs, ok := c.em.(interface{ PeerStatuses() []health.PeerStatus }); ok {
        for _, p := range hs.PeerStatuses() {
            s.Peers = append(s.Peers, PeerHealth{
                URL:                 p.URL,
                Identity:            p.ID.String(),
                Healthy:             p.Healthy,
                LastSeen:            p.LastSeen,
                ConsecutiveFailures: p.ConsecutiveFailures,
            })
        }
    }
    return s, nil
}
