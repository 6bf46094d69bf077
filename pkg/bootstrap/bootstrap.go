package bootstrap

import (
    "context"
    "crypto/tls"
    "fmt"
    "log"
    "strconv"
    "strings"
    "time"

    "github.com/arturolabs/conductor/pkg/conductor"
    "github.com/arturolabs/conductor/pkg/discovery"
    dDNS "github.com/arturolabs/conductor/pkg/discovery/dns"
    dFile "github.com/arturolabs/conductor/pkg/discovery/file"
    dStatic "github.com/arturolabs/conductor/pkg/discovery/static"
    "github.com/arturolabs/conductor/pkg/epoch"
    eGossip "github.com/arturolabs/conductor/pkg/epoch/gossip"
    eHealth "github.com/arturolabs/conductor/pkg/epoch/health"
    eRR "github.com/arturolabs/conductor/pkg/epoch/roundrobin"
    eStatic "github.com/arturolabs/conductor/pkg/epoch/static"
    "github.com/arturolabs/conductor/pkg/identity"
    "github.com/arturolabs/conductor/pkg/membership"
    ml "github.com/arturolabs/conductor/pkg/membership/memberlist"
    "github.com/arturolabs/conductor/pkg/observability/tracing"
    "github.com/arturolabs/conductor/pkg/payload"
    tlsx "github.com/arturolabs/conductor/pkg/security/tlsconfig"
    "github.com/arturolabs/conductor/pkg/transport"
    cgrpc "github.com/arturolabs/conductor/pkg/transport/grpc"
    "github.com/arturolabs/conductor/pkg/transport/httpjson"
)

// Config defines high-level inputs to assemble a conductor node with sensible
// defaults. Applications embed the node by providing this structure and
// calling Build/Run.
type Config struct {
    // IdentitySeed derives this node's ed25519 keypair deterministically.
    IdentitySeed uint64

    // RPC surface
    BindAddr     string // host:port for this node's RPC server
    AdvertiseURL string // address peers probe; defaults to BindAddr
    RPCProto     string // "http" (default) or "grpc"

    // Peers lists the other participants as comma-separated "seed@host:port"
    // entries. When empty, addresses come from the discovery backend below
    // and identity seeds from PeerSeedsCSV, paired positionally.
    PeersCSV string

    // Discovery settings (used when PeersCSV is empty)
    DiscoveryKind string        // "dns" or "file"
    DNSNamesCSV   string        // used when kind=dns
    DNSPort       int           // used when kind=dns (A/AAAA)
    DiscRefresh   time.Duration // cache/refresh duration for discovery
    FilePath      string        // used when kind=file
    FileEnv       string        // used when kind=file
    PeerSeedsCSV  string        // identity seeds for discovered peers, in order

    // Leadership strategy: "health" (default), "roundrobin", "static", "gossip"
    Strategy         string
    HealthInterval   time.Duration // health polling round interval
    ProbeTimeout     time.Duration // per-probe timeout (health strategy)
    StaticLeaderSeed uint64        // strategy=static: seed of the fixed leader

    // Gossip membership (strategy=gossip)
    MemBind     string // gossip bind host:port
    MemAdv      string // optional advertise host:port
    MemSeedsCSV string // gossip join addresses

    // Certification
    Quorum      int    // distinct acks required to certify (default 1)
    SelfAck     bool   // count the proposer as the first ack
    GenesisData string // optional: pre-certify this payload at height 0

    // TLS (optional) for the RPC surface
    TLSEnable     bool
    TLSCA         string
    TLSCert       string
    TLSKey        string
    TLSServerName string
    TLSSkipVerify bool

    // Trace enables stdout span export for commit/acknowledge paths.
    Trace bool

    // Logger (optional). If nil, log.Default() is used.
    Logger *log.Logger

    // Optional callback invoked on every observed epoch change.
    OnEpochChange func(epoch.Change)
}

// peerRef pairs a peer's probe address with its expected identity.
type peerRef struct {
    addr string
    id   identity.Identity
}

// Node bundles the conductor with the auxiliary components whose lifecycle it
// owns: gossip membership, the strategy's event loop and the trace exporter.
type Node struct {
    *conductor.Conductor

    mem       membership.Membership
    memSeeds  []string
    gossipRun func(ctx context.Context)
    traceStop func(context.Context) error

    cancel context.CancelFunc
}

// Start brings up membership (if configured), the trace exporter, the
// background strategy loop and the conductor itself.
func (n *Node) Start(ctx context.Context) error {
    runCtx, cancel := context.WithCancel(context.Background())
    n.cancel = cancel
    if n.mem != nil {
        if err := n.mem.Start(runCtx); err != nil { cancel(); return err }
        if len(n.memSeeds) > 0 {
            if err := n.mem.Join(n.memSeeds); err != nil { cancel(); return err }
        }
    }
    if n.gossipRun != nil {
        go n.gossipRun(runCtx)
    }
    if err := n.Conductor.Start(ctx); err != nil { cancel(); return err }
    return nil
}

// Stop tears down the conductor and all auxiliary components.
func (n *Node) Stop(ctx context.Context) error {
    err := n.Conductor.Stop(ctx)
    if n.cancel != nil { n.cancel() }
    if n.mem != nil {
        if lerr := n.mem.Leave(); err == nil { err = lerr }
        if serr := n.mem.Stop(); err == nil { err = serr }
    }
    if n.traceStop != nil {
        if terr := n.traceStop(ctx); err == nil { err = terr }
    }
    return err
}

func (n *Node) Close() error { return n.Stop(context.Background()) }

// Build assembles a Node from Config without starting it.
func Build(cfg Config) (*Node, error) {
    if cfg.Logger == nil { cfg.Logger = log.Default() }
    if cfg.Quorum < 1 { cfg.Quorum = 1 }
    if cfg.AdvertiseURL == "" { cfg.AdvertiseURL = cfg.BindAddr }

    signer := identity.NewSigner(cfg.IdentitySeed)

    peers, err := resolvePeers(cfg)
    if err != nil { return nil, err }

    // TLS configs, hot-reload so certs can be rotated by replacing files
    var srvTLS, cliTLS *tls.Config
    if cfg.TLSEnable {
        topts := tlsx.Options{Enable: true, CAFile: cfg.TLSCA, CertFile: cfg.TLSCert, KeyFile: cfg.TLSKey, InsecureSkipVerify: cfg.TLSSkipVerify, ServerName: cfg.TLSServerName}
        if srvTLS, err = topts.ServerHotReload(); err != nil { return nil, err }
        if cliTLS, err = topts.ClientHotReload(); err != nil { return nil, err }
    }

    // RPC surface; the client doubles as the health prober
    var srv transport.RPCServer
    var cli transport.RPCClient
    var prober eHealth.Prober
    switch cfg.RPCProto {
    case "grpc":
        s := cgrpc.NewServer(cfg.BindAddr)
        if srvTLS != nil { s.UseTLS(srvTLS) }
        c := cgrpc.NewClient(3 * time.Second)
        if cliTLS != nil { c.UseTLS(cliTLS) }
        srv, cli, prober = s, c, c
    case "", "http":
        s := httpjson.NewServer(cfg.BindAddr, cfg.Logger)
        if srvTLS != nil { s.UseTLS(srvTLS) }
        c := httpjson.NewClient(3 * time.Second)
        if cliTLS != nil { c.UseTLS(cliTLS) }
        srv, cli, prober = s, c, c
    default:
        return nil, fmt.Errorf("bootstrap: unknown RPC proto %q", cfg.RPCProto)
    }

    node := &Node{}

    em, refresh, err := buildStrategy(cfg, signer.Identity(), peers, prober, node)
    if err != nil { return nil, err }

    var genesis payload.Payload
    if cfg.GenesisData != "" {
        genesis = payload.NewBasic(0, []byte(cfg.GenesisData))
    }

    var traceStop func(context.Context) error
    if cfg.Trace {
        traceStop, err = tracing.Setup(true)
        if err != nil { return nil, err }
    }

    cond, err := conductor.New(context.Background(), conductor.Options{
        Signer:          signer,
        Epochs:          em,
        Quorum:          cfg.Quorum,
        SelfAck:         cfg.SelfAck,
        RefreshInterval: refresh,
        Genesis:         genesis,
        Logger:          cfg.Logger,
        RPCServer:       srv,
        RPCClient:       cli,
        OnEpochChange:   cfg.OnEpochChange,
    })
    if err != nil {
        if traceStop != nil { _ = traceStop(context.Background()) }
        return nil, err
    }
    node.Conductor = cond
    node.traceStop = traceStop
    return node, nil
}

// Run builds and starts the node, returning the instance for lifecycle
// control. The caller is responsible for calling Close() when finished.
func Run(ctx context.Context, cfg Config) (*Node, error) {
    n, err := Build(cfg)
    if err != nil { return nil, err }
    if err := n.Start(ctx); err != nil { return nil, err }
    return n, nil
}

// buildStrategy constructs the epoch manager named by cfg.Strategy and returns
// it with the refresh interval the conductor should drive it at (zero when the
// strategy advances externally).
func buildStrategy(cfg Config, self identity.Identity, peers []peerRef, prober eHealth.Prober, node *Node) (epoch.Manager, time.Duration, error) {
    participants := []identity.Identity{self}
    for _, p := range peers {
        participants = append(participants, p.id)
    }

    switch cfg.Strategy {
    case "", "health":
        interval := cfg.HealthInterval
        if interval <= 0 { interval = time.Second }
        hp := make([]eHealth.Peer, 0, len(peers))
        for _, p := range peers {
            hp = append(hp, eHealth.Peer{URL: p.addr, ID: p.id})
        }
        m := eHealth.New(eHealth.Options{
            Self:         self,
            Peers:        hp,
            Prober:       prober,
            Interval:     interval,
            ProbeTimeout: cfg.ProbeTimeout,
            Logger:       cfg.Logger,
        })
        return m, interval, nil

    case "roundrobin":
        return eRR.New(participants), 0, nil

    case "static":
        leader := self
        if cfg.StaticLeaderSeed != 0 {
            leader = identity.DerivePeer(cfg.StaticLeaderSeed)
        }
        return eStatic.New(1, leader, participants), 0, nil

    case "gossip":
        if cfg.MemBind == "" {
            return nil, 0, fmt.Errorf("bootstrap: gossip strategy requires MemBind")
        }
        mem, err := ml.New(ml.Options{
            NodeID:    self.Short(),
            Bind:      cfg.MemBind,
            Advertise: cfg.MemAdv,
            Logger:    cfg.Logger,
            Meta: map[string]string{
                membership.MetaIdentity: self.String(),
                membership.MetaRPCAddr:  cfg.AdvertiseURL,
            },
        })
        if err != nil { return nil, 0, err }
        m := eGossip.New(eGossip.Options{Self: self, Membership: mem, Known: participants, Logger: cfg.Logger})
        node.mem = mem
        node.memSeeds = dStatic.Parse(cfg.MemSeedsCSV)
        node.gossipRun = m.Run
        return m, 0, nil

    default:
        return nil, 0, fmt.Errorf("bootstrap: unknown strategy %q", cfg.Strategy)
    }
}

// resolvePeers produces the peer set either from explicit "seed@addr" entries
// or from a discovery backend paired with positional identity seeds.
func resolvePeers(cfg Config) ([]peerRef, error) {
    if cfg.PeersCSV != "" {
        entries := dStatic.Parse(cfg.PeersCSV)
        out := make([]peerRef, 0, len(entries))
        for _, e := range entries {
            seedStr, addr, found := strings.Cut(e, "@")
            if !found {
                return nil, fmt.Errorf("bootstrap: peer entry %q: want seed@host:port", e)
            }
            seed, err := strconv.ParseUint(seedStr, 10, 64)
            if err != nil {
                return nil, fmt.Errorf("bootstrap: peer entry %q: bad seed: %w", e, err)
            }
            out = append(out, peerRef{addr: addr, id: identity.DerivePeer(seed)})
        }
        return out, nil
    }

    var disc discovery.Discovery
    switch cfg.DiscoveryKind {
    case "":
        return nil, nil // single-node
    case "dns":
        names := dStatic.Parse(cfg.DNSNamesCSV)
        opts := dDNS.Options{Names: names, Port: cfg.DNSPort}
        if cfg.DiscRefresh > 0 { opts.Refresh = cfg.DiscRefresh }
        disc = dDNS.New(opts)
    case "file":
        opts := dFile.Options{Path: cfg.FilePath, Env: cfg.FileEnv}
        if cfg.DiscRefresh > 0 { opts.Refresh = cfg.DiscRefresh }
        disc = dFile.New(opts)
    default:
        return nil, fmt.Errorf("bootstrap: unknown discovery kind %q", cfg.DiscoveryKind)
    }

    addrs := disc.Peers()
    seeds := dStatic.Parse(cfg.PeerSeedsCSV)
    if len(seeds) != len(addrs) {
        return nil, fmt.Errorf("bootstrap: %d discovered peers but %d identity seeds", len(addrs), len(seeds))
    }
    out := make([]peerRef, 0, len(addrs))
    for i, a := range addrs {
        seed, err := strconv.ParseUint(seeds[i], 10, 64)
        if err != nil {
            return nil, fmt.Errorf("bootstrap: bad peer seed %q: %w", seeds[i], err)
        }
        out = append(out, peerRef{addr: a, id: identity.DerivePeer(seed)})
    }
    return out, nil
}
