package grpc

import (
    "context"
    "crypto/tls"
    "time"

    "google.golang.org/grpc"
    "google.golang.org/grpc/backoff"
    "google.golang.org/grpc/credentials"
    "google.golang.org/grpc/credentials/insecure"
    "google.golang.org/grpc/keepalive"

    "github.com/arturolabs/conductor/pkg/transport"
)

// Client implements transport.RPCClient over gRPC using the JSON codec.
// Connections are pooled per target with idle eviction.
type Client struct {
    timeout time.Duration
    tlsCfg  *tls.Config
    cm      *ConnManager
}

func NewClient(timeout time.Duration) *Client {
    if timeout <= 0 { timeout = 3 * time.Second }
    c := &Client{timeout: timeout}
    // The pool is created here, not lazily: ProbeHealth is called from
    // parallel probe goroutines and must never race on initialization.
    c.cm = NewConnManager(30*time.Second, c.dialCtx)
    return c
}

// UseTLS sets TLS config for the client.
func (c *Client) UseTLS(cfg *tls.Config) *Client { c.tlsCfg = cfg; return c }

func (c *Client) dialCtx(ctx context.Context, target string) (*grpc.ClientConn, error) {
    // Use JSON codec and set content subtype accordingly.
    opts := []grpc.DialOption{
        grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.CallContentSubtype("json")),
        grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig, MinConnectTimeout: 500 * time.Millisecond}),
        grpc.WithKeepaliveParams(keepalive.ClientParameters{Time: 20 * time.Second, Timeout: 5 * time.Second, PermitWithoutStream: true}),
        grpc.WithBlock(),
    }
    if c.tlsCfg != nil {
        opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(c.tlsCfg)))
    } else {
        opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
    }
    return grpc.DialContext(ctx, target, opts...)
}

// getConn returns a managed connection from the pool.
func (c *Client) getConn(ctx context.Context, addr string) (*grpc.ClientConn, func(), error) {
    return c.cm.Get(ctx, addr)
}

func (c *Client) invoke(ctx context.Context, addr, method string, in, out any) error {
    cctx, cancel := context.WithTimeout(ctx, c.timeout)
    defer cancel()
    cc, rel, err := c.getConn(cctx, addr)
    if err != nil { return err }
    defer rel()
    return cc.Invoke(cctx, method, in, out)
}

func (c *Client) GetHealth(ctx context.Context, addr string) (transport.HealthStatus, error) {
    var out transport.HealthStatus
    err := c.invoke(ctx, addr, "/conductor.v1.Conductor/GetHealth", &empty{}, &out)
    return out, err
}

func (c *Client) GetLeader(ctx context.Context, addr string) (transport.LeaderStatus, error) {
    var out transport.LeaderStatus
    err := c.invoke(ctx, addr, "/conductor.v1.Conductor/GetLeader", &empty{}, &out)
    return out, err
}

func (c *Client) PostCommit(ctx context.Context, addr string, req transport.CommitRequest) (transport.CommitResponse, error) {
    var out transport.CommitResponse
    err := c.invoke(ctx, addr, "/conductor.v1.Conductor/Commit", &req, &out)
    return out, err
}

func (c *Client) PostAcknowledge(ctx context.Context, addr string, req transport.AcknowledgeRequest) (transport.AcknowledgeResponse, error) {
    var out transport.AcknowledgeResponse
    err := c.invoke(ctx, addr, "/conductor.v1.Conductor/Acknowledge", &req, &out)
    return out, err
}

func (c *Client) GetLatest(ctx context.Context, addr string) ([]byte, bool, error) {
    var out payloadBlob
    if err := c.invoke(ctx, addr, "/conductor.v1.Conductor/GetLatest", &empty{}, &out); err != nil {
        return nil, false, err
    }
    return out.Data, out.Found, nil
}

func (c *Client) GetPayload(ctx context.Context, addr string, height uint64) ([]byte, bool, error) {
    var out payloadBlob
    if err := c.invoke(ctx, addr, "/conductor.v1.Conductor/GetPayload", &payloadReq{Height: height}, &out); err != nil {
        return nil, false, err
    }
    return out.Data, out.Found, nil
}

func (c *Client) GetStatus(ctx context.Context, addr string) ([]byte, error) {
    var out statusBlob
    if err := c.invoke(ctx, addr, "/conductor.v1.Conductor/GetStatus", &empty{}, &out); err != nil {
        return nil, err
    }
    return out.Data, nil
}

// ProbeHealth performs a single bounded health probe against a peer address.
func (c *Client) ProbeHealth(ctx context.Context, addr string) (bool, error) {
    cc, rel, err := c.getConn(ctx, addr)
    if err != nil { return false, err }
    defer rel()
    var out transport.HealthStatus
    if err := cc.Invoke(ctx, "/conductor.v1.Conductor/GetHealth", &empty{}, &out); err != nil {
        return false, err
    }
    return out.Healthy, nil
}

// Close releases pooled connections.
func (c *Client) Close() {
    c.cm.Close()
}

var _ transport.RPCClient = (*Client)(nil)
