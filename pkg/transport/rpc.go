package transport

import (
    "context"
    "encoding/json"
)

// HealthStatus is the wire form of GET /health.
type HealthStatus struct {
    Healthy  bool   `json:"healthy"`
    Identity string `json:"identity"`
    Epoch    uint64 `json:"epoch"`
    IsLeader bool   `json:"is_leader"`
}

// LeaderStatus is the wire form of GET /leader.
type LeaderStatus struct {
    IsLeader   bool   `json:"is_leader"`
    Epoch      uint64 `json:"epoch"`
    NextHeight uint64 `json:"next_height"`
}

// CommitRequest submits a payload for sequencing. The payload is carried
// opaquely so the transport stays agnostic to its concrete type.
type CommitRequest struct {
    Payload json.RawMessage `json:"payload"`
}

// CommitResponse indicates acceptance and optionally a rejection reason.
type CommitResponse struct {
    Success bool   `json:"success"`
    Error   string `json:"error,omitempty"`
}

// AcknowledgeRequest records a validator acknowledgment. Height is optional;
// when omitted the single pending slot is targeted implicitly.
type AcknowledgeRequest struct {
    Height   *uint64 `json:"height,omitempty"`
    Identity string  `json:"identity"`
}

// AcknowledgeResponse reports whether this acknowledgment reached quorum.
type AcknowledgeResponse struct {
    Certified bool   `json:"certified"`
    Height    uint64 `json:"height"`
    Error     string `json:"error,omitempty"`
}

// HealthFunc answers health queries (also the target of peer probes).
type HealthFunc func(ctx context.Context) (HealthStatus, error)

// LeaderFunc answers leadership queries.
type LeaderFunc func(ctx context.Context) (LeaderStatus, error)

// CommitFunc handles payload submissions (leader-only).
type CommitFunc func(ctx context.Context, req CommitRequest) (CommitResponse, error)

// AcknowledgeFunc handles validator acknowledgments.
type AcknowledgeFunc func(ctx context.Context, req AcknowledgeRequest) (AcknowledgeResponse, error)

// PayloadFunc returns the encoded certified payload at a height; the bool is
// false when no payload is certified there.
type PayloadFunc func(ctx context.Context, height uint64) ([]byte, bool, error)

// LatestFunc returns the encoded most recently certified payload, if any.
type LatestFunc func(ctx context.Context) ([]byte, bool, error)

// StatusFunc returns a JSON-encoded node status snapshot for tooling.
// Using []byte avoids import cycles on conductor types.
type StatusFunc func(ctx context.Context) ([]byte, error)

// RPCServer exposes the sequencing endpoints (/health, /leader, /commit,
// /acknowledge, /latest, /payload/{height}, /status) for intra-cluster calls.
type RPCServer interface {
    Start(ctx context.Context, health HealthFunc, leader LeaderFunc, commit CommitFunc, ack AcknowledgeFunc, latest LatestFunc, byHeight PayloadFunc, status StatusFunc) error
    Addr() string
    Stop(ctx context.Context) error
}

// RPCClient performs intra-cluster calls to other nodes using the chosen
// protocol (HTTP/JSON or gRPC JSON codec).
type RPCClient interface {
    GetHealth(ctx context.Context, addr string) (HealthStatus, error)
    GetLeader(ctx context.Context, addr string) (LeaderStatus, error)
    PostCommit(ctx context.Context, addr string, req CommitRequest) (CommitResponse, error)
    PostAcknowledge(ctx context.Context, addr string, req AcknowledgeRequest) (AcknowledgeResponse, error)
    GetLatest(ctx context.Context, addr string) ([]byte, bool, error)
    GetPayload(ctx context.Context, addr string, height uint64) ([]byte, bool, error)
    GetStatus(ctx context.Context, addr string) ([]byte, error)
}
