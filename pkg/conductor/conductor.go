package conductor

import (
    "context"
    "encoding/json"
    "errors"
    "sync"
    "time"

    "github.com/arturolabs/conductor/pkg/epoch"
    "github.com/arturolabs/conductor/pkg/identity"
    "github.com/arturolabs/conductor/pkg/internal/logutil"
    obsmetrics "github.com/arturolabs/conductor/pkg/observability/metrics"
    "github.com/arturolabs/conductor/pkg/observability/tracing"
    "github.com/arturolabs/conductor/pkg/payload"
    "github.com/arturolabs/conductor/pkg/transport"
)

// Facade exposes the high-level sequencing API for consumers.
type Facade interface {
    Start(ctx context.Context) error
    Commit(ctx context.Context, p payload.Payload) error
    Acknowledge(ctx context.Context, height uint64, from identity.Identity) (bool, uint64)
    Latest() (CertifiedRecord, bool)
    ByHeight(height uint64) (CertifiedRecord, bool)
    Status(ctx context.Context) (*NodeStatus, error)
    Stop(ctx context.Context) error
}

// Conductor composes the epoch strategy, the signing capability and the
// certification ledger into the operations the RPC surface invokes. The epoch
// strategy runs its refresh loop independently; every operation reads its
// current snapshot.
type Conductor struct {
    opts Options
    mu   sync.RWMutex
    run  struct {
        started bool
        closed  bool
    }
    em     epoch.Manager
    ledger *ledger
    rpcS   transport.RPCServer
    rpcC   transport.RPCClient
    eb     eventBus
}

// New constructs a conductor from validated options. It performs no network
// activity; call Start to launch the node.
func New(ctx context.Context, opts Options) (*Conductor, error) {
    if err := opts.Validate(); err != nil {
        return nil, err
    }
    c := &Conductor{
        opts:   opts,
        em:     opts.Epochs,
        ledger: newLedger(opts.Quorum, opts.Genesis),
        rpcS:   opts.RPCServer,
        rpcC:   opts.RPCClient,
    }
    return c, nil
}

// Close is a convenience alias for Stop with a background context.
func (c *Conductor) Close() error {
    return c.Stop(context.Background())
}

// Identity returns this node's public identity.
func (c *Conductor) Identity() identity.Identity { return c.opts.Signer.Identity() }

// CurrentEpoch returns the strategy's latest known epoch.
func (c *Conductor) CurrentEpoch() uint64 { return c.em.CurrentEpoch() }

// IsLeader reports whether this node is the current epoch's sequencer.
func (c *Conductor) IsLeader() bool { return c.em.IsLeader(c.Identity()) }

// NextHeight returns the next height eligible for commit.
func (c *Conductor) NextHeight() uint64 { return c.ledger.nextHeight() }

// Addr returns the bound RPC address, or "" when no server is configured.
func (c *Conductor) Addr() string {
    if c.rpcS == nil {
        return ""
    }
    return c.rpcS.Addr()
}

// Start launches the leadership refresh loop, the epoch watch loop and the
// RPC endpoint, then returns.
func (c *Conductor) Start(ctx context.Context) error {
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.run.started {
        return nil
    }
    c.run.started = true
    obsmetrics.Register()

    if c.opts.RefreshInterval > 0 {
        go c.refreshLoop(ctx)
    }
    if n, ok := c.em.(epoch.Notifier); ok {
        go c.epochWatchLoop(ctx, n.Changes())
    }

    if c.rpcS != nil {
        err := c.rpcS.Start(ctx,
            c.handleHealth,
            c.handleLeader,
            c.handleCommit,
            c.handleAcknowledge,
            c.handleLatest,
            c.handleByHeight,
            func(ctx context.Context) ([]byte, error) { return c.statusLocalJSON(ctx) },
        )
        if err != nil { return err }
        logutil.Infof(c.opts.Logger, "sequencer endpoint listening at %s (health/leader/commit/acknowledge/metrics)", c.rpcS.Addr())
    }
    return nil
}

// Stop shuts down the RPC endpoint. Background loops exit with the context
// passed to Start.
func (c *Conductor) Stop(ctx context.Context) error {
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.run.closed {
        return nil
    }
    c.run.closed = true
    if c.rpcS != nil {
        return c.rpcS.Stop(ctx)
    }
    return nil
}

// Commit proposes p for sequencing. Only the current epoch's leader may
// commit; the payload height must be the next expected one. The payload digest
// is signed so validators can authenticate provenance. With SelfAck and quorum
// 1 the commit certifies immediately.
func (c *Conductor) Commit(ctx context.Context, p payload.Payload) error {
    ctx, end := tracing.StartSpan(ctx, "conductor.Commit")
    defer end()

    self := c.Identity()
    if !c.em.IsLeader(self) {
        obsmetrics.Commits.WithLabelValues("not_leader").Inc()
        logutil.Warnf(c.opts.Logger, "commit rejected (not leader): height=%d", p.Height())
        return ErrNotLeader
    }
    ep := c.em.CurrentEpoch()
    d := p.Digest()
    sig := c.opts.Signer.Sign(d[:])

    certifiedNow, err := c.ledger.commit(p, ep, self, c.opts.SelfAck, sig)
    if err != nil {
        var hm *HeightMismatchError
        switch {
        case errors.As(err, &hm):
            obsmetrics.Commits.WithLabelValues("height_mismatch").Inc()
        case errors.Is(err, ErrParentMismatch):
            obsmetrics.Commits.WithLabelValues("parent_mismatch").Inc()
        default:
            obsmetrics.Commits.WithLabelValues("conflict").Inc()
        }
        return err
    }
    obsmetrics.Commits.WithLabelValues("accepted").Inc()
    logutil.Infof(c.opts.Logger, "commit accepted: height=%d digest=%s epoch=%d", p.Height(), d.String()[:8], ep)
    c.eb.publish(Event{Type: EventCommitPending, At: time.Now(), Epoch: ep, Height: p.Height(), Digest: d.String()})
    if certifiedNow {
        c.publishCertified(p.Height(), d.String(), ep)
    }
    return nil
}

// Acknowledge records an acknowledgment for the pending payload at the given
// height. Duplicate, late and epoch-stale acknowledgments are benign no-ops;
// an acknowledgment for an already certified height reports certified=true.
func (c *Conductor) Acknowledge(ctx context.Context, height uint64, from identity.Identity) (bool, uint64) {
    return c.acknowledge(ctx, height, false, from)
}

// AcknowledgePending targets the single pending slot implicitly.
func (c *Conductor) AcknowledgePending(ctx context.Context, from identity.Identity) (bool, uint64) {
    return c.acknowledge(ctx, 0, true, from)
}

func (c *Conductor) acknowledge(ctx context.Context, height uint64, implicit bool, from identity.Identity) (bool, uint64) {
    _, end := tracing.StartSpan(ctx, "conductor.Acknowledge")
    defer end()

    certified, h, newly := c.ledger.acknowledge(height, implicit, from, c.em.CurrentEpoch())
    if newly {
        logutil.Infof(c.opts.Logger, "quorum reached: height=%d acker=%s", h, from.Short())
        digest := ""
        if rec, ok := c.ledger.byHeight(h); ok {
            digest = rec.Payload.Digest().String()
        }
        c.publishCertified(h, digest, c.em.CurrentEpoch())
    }
    return certified, h
}

// CertifyDirect records an externally certified payload into the ledger,
// clearing a matching pending slot. Out-of-order records are ignored.
func (c *Conductor) CertifyDirect(ctx context.Context, p payload.Payload, ep uint64) bool {
    ok := c.ledger.certifyDirect(p, ep)
    if ok {
        d := p.Digest()
        c.publishCertified(p.Height(), d.String(), ep)
    }
    return ok
}

// Latest returns the most recently certified record, if any.
func (c *Conductor) Latest() (CertifiedRecord, bool) { return c.ledger.latestRecord() }

// ByHeight returns the certified record at the given height, if any.
func (c *Conductor) ByHeight(height uint64) (CertifiedRecord, bool) { return c.ledger.byHeight(height) }

// Pending returns a snapshot of the in-flight pending slot, if any.
func (c *Conductor) Pending() (PendingInfo, bool) { return c.ledger.pendingInfo() }

// TransferLeader asks the strategy to hand leadership to the next candidate.
// Returns epoch.ErrTransferUnsupported for observation-driven strategies.
func (c *Conductor) TransferLeader() (epoch.Change, error) {
    if t, ok := c.em.(epoch.Transferer); ok {
        return t.TransferLeader()
    }
    return epoch.Change{}, epoch.ErrTransferUnsupported
}

func (c *Conductor) publishCertified(height uint64, digest string, ep uint64) {
    c.eb.publish(Event{Type: EventCertified, At: time.Now(), Epoch: ep, Height: height, Digest: digest})
}

func (c *Conductor) refreshLoop(ctx context.Context) {
    ticker := time.NewTicker(c.opts.RefreshInterval)
    defer ticker.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            c.em.Refresh(ctx)
        }
    }
}

// epochWatchLoop consumes strategy change notifications: stale pending
// proposals from a deposed leader are discarded, gauges updated and the
// app-facing event published.
func (c *Conductor) epochWatchLoop(ctx context.Context, changes <-chan epoch.Change) {
    for {
        select {
        case <-ctx.Done():
            return
        case ch, ok := <-changes:
            if !ok { return }
            if info, dropped := c.ledger.discardStale(ch.Epoch); dropped {
                logutil.Infof(c.opts.Logger, "pending discarded on epoch change: height=%d epoch=%d->%d", info.Height, info.Epoch, ch.Epoch)
                c.eb.publish(Event{Type: EventPendingDiscarded, At: time.Now(), Epoch: ch.Epoch, Height: info.Height, Digest: info.Digest})
            }
            if ch.Leader == c.Identity() {
                obsmetrics.IsLeader.Set(1)
            } else {
                obsmetrics.IsLeader.Set(0)
            }
            obsmetrics.EpochCurrent.Set(float64(ch.Epoch))
            leader := ch.Leader
            c.eb.publish(Event{Type: EventEpochChanged, At: ch.At, Epoch: ch.Epoch, Leader: &leader})
            if c.opts.OnEpochChange != nil { c.opts.OnEpochChange(ch) }
        }
    }
}

// --- RPC handlers ---

func (c *Conductor) handleHealth(ctx context.Context) (transport.HealthStatus, error) {
    return transport.HealthStatus{
        Healthy:  true,
        Identity: c.Identity().String(),
        Epoch:    c.em.CurrentEpoch(),
        IsLeader: c.IsLeader(),
    }, nil
}

func (c *Conductor) handleLeader(ctx context.Context) (transport.LeaderStatus, error) {
    return transport.LeaderStatus{
        IsLeader:   c.IsLeader(),
        Epoch:      c.em.CurrentEpoch(),
        NextHeight: c.ledger.nextHeight(),
    }, nil
}

func (c *Conductor) handleCommit(ctx context.Context, req transport.CommitRequest) (transport.CommitResponse, error) {
    ctx, end := tracing.StartSpan(ctx, "conductor.handleCommit")
    defer end()
    p, err := payload.Decode(req.Payload)
    if err != nil {
        return transport.CommitResponse{Success: false, Error: err.Error()}, nil
    }
    if err := c.Commit(ctx, p); err != nil {
        return transport.CommitResponse{Success: false, Error: err.Error()}, nil
    }
    return transport.CommitResponse{Success: true}, nil
}

func (c *Conductor) handleAcknowledge(ctx context.Context, req transport.AcknowledgeRequest) (transport.AcknowledgeResponse, error) {
    ctx, end := tracing.StartSpan(ctx, "conductor.handleAcknowledge")
    defer end()
    from, err := identity.Parse(req.Identity)
    if err != nil {
        return transport.AcknowledgeResponse{Error: err.Error()}, nil
    }
    var certified bool
    var h uint64
    if req.Height != nil {
        certified, h = c.Acknowledge(ctx, *req.Height, from)
    } else {
        certified, h = c.AcknowledgePending(ctx, from)
    }
    return transport.AcknowledgeResponse{Certified: certified, Height: h}, nil
}

func (c *Conductor) handleLatest(ctx context.Context) ([]byte, bool, error) {
    rec, ok := c.ledger.latestRecord()
    if !ok {
        return nil, false, nil
    }
    data, err := encodePayload(rec.Payload)
    return data, err == nil, err
}

func (c *Conductor) handleByHeight(ctx context.Context, height uint64) ([]byte, bool, error) {
    rec, ok := c.ledger.byHeight(height)
    if !ok {
        return nil, false, nil
    }
    data, err := encodePayload(rec.Payload)
    return data, err == nil, err
}

func (c *Conductor) statusLocalJSON(ctx context.Context) ([]byte, error) {
    st, err := c.Status(ctx)
    if err != nil { return nil, err }
    return json.Marshal(st)
}

func encodePayload(p payload.Payload) ([]byte, error) {
    if enc, ok := p.(interface{ Encode() ([]byte, error) }); ok {
        return enc.Encode()
    }
    return json.Marshal(p)
}

var _ Facade = (*Conductor)(nil)
