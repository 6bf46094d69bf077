package membership

import (
    "context"
    "time"
)

// MemberInfo describes a cluster member as observed by the gossip layer. Meta
// carries auxiliary data; the gossip epoch strategy expects "identity" (hex
// public key) and optionally "rpc" (the member's sequencing endpoint).
type MemberInfo struct {
    ID   string
    Addr string
    Meta map[string]string
}

// MetaIdentity and MetaRPCAddr are the well-known Meta keys.
const (
    MetaIdentity = "identity"
    MetaRPCAddr  = "rpc"
)

type EventType string

const (
    // EventJoin indicates a member joined or became visible.
    EventJoin EventType = "join"
    // EventLeave indicates a member left the cluster.
    EventLeave EventType = "leave"
    // EventFailed indicates membership marked the node as failed/unreachable.
    EventFailed EventType = "failed"
)

// Event is the translated membership change notification.
type Event struct {
    Type   EventType
    Member MemberInfo
    At     time.Time
}

// HealthReporter is an optional interface exposing the gossip layer's local
// awareness score (0 is healthy; higher means degraded).
type HealthReporter interface {
    HealthScore() int
}

// Membership is the abstraction over the underlying gossip/failure-detection
// layer. It is responsible for peer visibility, join/leave and event delivery;
// the gossip epoch strategy derives its candidate set from Members().
type Membership interface {
    Start(ctx context.Context) error
    Join(seeds []string) error
    Local() MemberInfo
    Members() []MemberInfo
    Events() <-chan Event
    Leave() error
    Stop() error
}
