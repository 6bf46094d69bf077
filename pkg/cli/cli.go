package cli

import (
    "context"
    "crypto/tls"
    "encoding/json"
    "fmt"
    "log"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/spf13/cobra"

    "github.com/arturolabs/conductor/pkg/bootstrap"
    "github.com/arturolabs/conductor/pkg/identity"
    "github.com/arturolabs/conductor/pkg/payload"
    tlsx "github.com/arturolabs/conductor/pkg/security/tlsconfig"
    "github.com/arturolabs/conductor/pkg/transport"
    cgrpc "github.com/arturolabs/conductor/pkg/transport/grpc"
    "github.com/arturolabs/conductor/pkg/transport/httpjson"
)

// AddAll attaches conductor subcommands to the provided root command.
func AddAll(root *cobra.Command) {
    root.AddCommand(NewRunCmd())
    root.AddCommand(NewStatusCmd())
    root.AddCommand(NewCommitCmd())
    root.AddCommand(NewAckCmd())
    root.AddCommand(NewLatestCmd())
    root.AddCommand(NewPayloadCmd())
}

// NewConductorCommand returns a parent command "conductor" containing the
// node and client subcommands.
func NewConductorCommand() *cobra.Command {
    parent := &cobra.Command{Use: "conductor", Short: "sequencer conductor commands"}
    AddAll(parent)
    return parent
}

// clientFlags are shared by every command that talks to a running node.
type clientFlags struct {
    addr    string
    proto   string
    timeout time.Duration

    tlsEnable     bool
    tlsSkip       bool
    tlsCA         string
    tlsCert       string
    tlsKey        string
    tlsServerName string
}

func (f *clientFlags) register(cmd *cobra.Command) {
    cmd.Flags().StringVar(&f.addr, "addr", "127.0.0.1:18080", "RPC address of a node (host:port)")
    cmd.Flags().StringVar(&f.proto, "proto", "http", "RPC protocol: http|grpc")
    cmd.Flags().DurationVar(&f.timeout, "timeout", 3*time.Second, "request timeout")
    cmd.Flags().BoolVar(&f.tlsEnable, "tls-enable", false, "enable mTLS for the RPC transport")
    cmd.Flags().StringVar(&f.tlsCA, "tls-ca", "", "path to CA cert (PEM)")
    cmd.Flags().StringVar(&f.tlsCert, "tls-cert", "", "path to client certificate (PEM)")
    cmd.Flags().StringVar(&f.tlsKey, "tls-key", "", "path to client private key (PEM)")
    cmd.Flags().BoolVar(&f.tlsSkip, "tls-skip-verify", false, "skip server cert verification (DEV ONLY)")
    cmd.Flags().StringVar(&f.tlsServerName, "tls-server-name", "", "expected server name (for TLS validation)")
}

func (f *clientFlags) client() (transport.RPCClient, error) {
    var cliTLS *tls.Config
    if f.tlsEnable {
        topts := tlsx.Options{Enable: true, CAFile: f.tlsCA, CertFile: f.tlsCert, KeyFile: f.tlsKey, InsecureSkipVerify: f.tlsSkip, ServerName: f.tlsServerName}
        var err error
        cliTLS, err = topts.Client()
        if err != nil { return nil, fmt.Errorf("tls client config: %w", err) }
    }
    switch f.proto {
    case "grpc":
        c := cgrpc.NewClient(f.timeout)
        if cliTLS != nil { c.UseTLS(cliTLS) }
        return c, nil
    default:
        c := httpjson.NewClient(f.timeout)
        if cliTLS != nil { c.UseTLS(cliTLS) }
        return c, nil
    }
}

func (f *clientFlags) ctx() (context.Context, context.CancelFunc) {
    return context.WithTimeout(context.Background(), f.timeout)
}

func printJSON(v any) error { return json.NewEncoder(os.Stdout).Encode(v) }

func printRaw(data []byte) {
    os.Stdout.Write(data)
    if len(data) == 0 || data[len(data)-1] != '\n' { os.Stdout.Write([]byte("\n")) }
}

// NewRunCmd returns the "run" command used to start a conductor node.
func NewRunCmd() *cobra.Command {
    var (
        seed, staticLeaderSeed                            uint64
        bindAddr, advertise, proto, peersCSV, strategy    string
        discoveryKind, dnsNames, filePath, fileEnv, peerSeeds string
        memBind, memAdv, memSeeds, genesisData            string
        dnsPort, quorum                                   int
        discRefresh, healthInterval, probeTimeout         time.Duration
        selfAck, tlsEnable, tlsSkip, traceEnable          bool
        tlsCA, tlsCert, tlsKey, tlsServerName             string
    )
    cmd := &cobra.Command{
        Use:   "run",
        Short: "Run a conductor node",
        RunE: func(cmd *cobra.Command, args []string) error {
            if seed == 0 { return fmt.Errorf("missing --seed") }
            ctx, cancel := signalContext()
            defer cancel()

            cfg := bootstrap.Config{
                IdentitySeed:     seed,
                BindAddr:         bindAddr,
                AdvertiseURL:     advertise,
                RPCProto:         proto,
                PeersCSV:         peersCSV,
                DiscoveryKind:    discoveryKind,
                DNSNamesCSV:      dnsNames,
                DNSPort:          dnsPort,
                DiscRefresh:      discRefresh,
                FilePath:         filePath,
                FileEnv:          fileEnv,
                PeerSeedsCSV:     peerSeeds,
                Strategy:         strategy,
                HealthInterval:   healthInterval,
                ProbeTimeout:     probeTimeout,
                StaticLeaderSeed: staticLeaderSeed,
                MemBind:          memBind,
                MemAdv:           memAdv,
                MemSeedsCSV:      memSeeds,
                Quorum:           quorum,
                SelfAck:          selfAck,
                GenesisData:      genesisData,
                TLSEnable:        tlsEnable,
                TLSCA:            tlsCA,
                TLSCert:          tlsCert,
                TLSKey:           tlsKey,
                TLSServerName:    tlsServerName,
                TLSSkipVerify:    tlsSkip,
                Trace:            traceEnable,
                Logger:           log.Default(),
            }
            n, err := bootstrap.Run(ctx, cfg)
            if err != nil { return err }
            defer n.Close()

            fmt.Printf("conductor running as %s on %s. Press Ctrl+C to exit.\n", n.Identity().Short(), n.Addr())
            <-ctx.Done()
            return nil
        },
    }
    cmd.Flags().Uint64Var(&seed, "seed", 0, "identity seed (required)")
    cmd.Flags().StringVar(&bindAddr, "bind", ":18080", "RPC bind addr (host:port)")
    cmd.Flags().StringVar(&advertise, "advertise", "", "RPC address peers should use (defaults to --bind)")
    cmd.Flags().StringVar(&proto, "proto", "http", "RPC protocol: http|grpc")
    cmd.Flags().StringVar(&peersCSV, "peers", "", "comma-separated peers as seed@host:port")
    cmd.Flags().StringVar(&strategy, "strategy", "health", "leadership strategy: health|roundrobin|static|gossip")
    cmd.Flags().DurationVar(&healthInterval, "health-interval", time.Second, "health polling round interval")
    cmd.Flags().DurationVar(&probeTimeout, "probe-timeout", 0, "per-probe timeout (defaults to half the interval)")
    cmd.Flags().Uint64Var(&staticLeaderSeed, "static-leader", 0, "strategy=static: identity seed of the fixed leader (defaults to self)")
    cmd.Flags().StringVar(&discoveryKind, "discovery", "", "discovery backend when --peers is empty: dns|file")
    cmd.Flags().StringVar(&dnsNames, "dns-names", "", "comma-separated DNS names or SRV records (e.g., _conductor._tcp.example.com)")
    cmd.Flags().IntVar(&dnsPort, "dns-port", 18080, "port used for A/AAAA lookups")
    cmd.Flags().DurationVar(&discRefresh, "disc-refresh", 5*time.Second, "discovery refresh/cache duration")
    cmd.Flags().StringVar(&filePath, "file-path", "", "path or glob to a file with peer addresses (one per line or CSV)")
    cmd.Flags().StringVar(&fileEnv, "file-env", "", "ENV var name containing CSV peer addresses; overrides file when set")
    cmd.Flags().StringVar(&peerSeeds, "peer-seeds", "", "comma-separated identity seeds for discovered peers, in order")
    cmd.Flags().StringVar(&memBind, "mem-bind", "", "strategy=gossip: membership bind addr (host:port)")
    cmd.Flags().StringVar(&memAdv, "mem-adv", "", "strategy=gossip: membership advertise addr (host:port, optional)")
    cmd.Flags().StringVar(&memSeeds, "mem-join", "", "strategy=gossip: comma-separated gossip join addresses")
    cmd.Flags().IntVar(&quorum, "quorum", 1, "distinct acknowledgments required to certify")
    cmd.Flags().BoolVar(&selfAck, "self-ack", false, "count the proposer as the first acknowledgment")
    cmd.Flags().StringVar(&genesisData, "genesis", "", "pre-certify this payload at height 0")
    cmd.Flags().BoolVar(&tlsEnable, "tls-enable", false, "enable mTLS for the RPC transport")
    cmd.Flags().StringVar(&tlsCA, "tls-ca", "", "path to CA cert (PEM)")
    cmd.Flags().StringVar(&tlsCert, "tls-cert", "", "path to node certificate (PEM)")
    cmd.Flags().StringVar(&tlsKey, "tls-key", "", "path to node private key (PEM)")
    cmd.Flags().BoolVar(&tlsSkip, "tls-skip-verify", false, "skip server cert verification (DEV ONLY)")
    cmd.Flags().StringVar(&tlsServerName, "tls-server-name", "", "expected server name (for TLS validation)")
    cmd.Flags().BoolVar(&traceEnable, "trace", false, "enable OpenTelemetry stdout tracing (dev)")
    return cmd
}

// NewStatusCmd returns the "status" command.
func NewStatusCmd() *cobra.Command {
    var f clientFlags
    cmd := &cobra.Command{
        Use:   "status",
        Short: "Fetch node status as JSON",
        RunE: func(cmd *cobra.Command, args []string) error {
            client, err := f.client()
            if err != nil { return err }
            ctx, cancel := f.ctx()
            defer cancel()
            data, err := client.GetStatus(ctx, f.addr)
            if err != nil { return fmt.Errorf("status error: %w", err) }
            printRaw(data)
            return nil
        },
    }
    f.register(cmd)
    return cmd
}

// NewCommitCmd returns the "commit" command: submit a payload to the leader.
func NewCommitCmd() *cobra.Command {
    var (
        f      clientFlags
        height uint64
        data   string
        parent string
    )
    cmd := &cobra.Command{
        Use:   "commit",
        Short: "Submit a payload for sequencing at a height",
        RunE: func(cmd *cobra.Command, args []string) error {
            client, err := f.client()
            if err != nil { return err }

            p := payload.NewBasic(height, []byte(data))
            if parent != "" {
                d, err := payload.ParseDigest(parent)
                if err != nil { return fmt.Errorf("bad --parent: %w", err) }
                p = payload.NewBasicChild(height, []byte(data), d)
            }
            raw, err := p.Encode()
            if err != nil { return err }

            ctx, cancel := f.ctx()
            defer cancel()
            resp, err := client.PostCommit(ctx, f.addr, transport.CommitRequest{Payload: raw})
            if err != nil { return fmt.Errorf("commit error: %w", err) }
            if err := printJSON(resp); err != nil { return err }
            if !resp.Success { return fmt.Errorf("commit rejected: %s", resp.Error) }
            return nil
        },
    }
    f.register(cmd)
    cmd.Flags().Uint64Var(&height, "height", 0, "payload height")
    cmd.Flags().StringVar(&data, "data", "", "opaque payload data")
    cmd.Flags().StringVar(&parent, "parent", "", "hex digest of the parent payload (optional)")
    return cmd
}

// NewAckCmd returns the "ack" command: acknowledge the pending payload.
func NewAckCmd() *cobra.Command {
    var (
        f      clientFlags
        height uint64
        seed   uint64
        idHex  string
    )
    cmd := &cobra.Command{
        Use:   "ack",
        Short: "Acknowledge a pending payload as a validator",
        RunE: func(cmd *cobra.Command, args []string) error {
            if seed == 0 && idHex == "" { return fmt.Errorf("one of --seed or --identity is required") }
            ident := idHex
            if ident == "" {
                ident = identity.DerivePeer(seed).String()
            }
            client, err := f.client()
            if err != nil { return err }

            req := transport.AcknowledgeRequest{Identity: ident}
            if cmd.Flags().Changed("height") {
                req.Height = &height
            }
            ctx, cancel := f.ctx()
            defer cancel()
            resp, err := client.PostAcknowledge(ctx, f.addr, req)
            if err != nil { return fmt.Errorf("ack error: %w", err) }
            return printJSON(resp)
        },
    }
    f.register(cmd)
    cmd.Flags().Uint64Var(&height, "height", 0, "height to acknowledge (omit to target the pending slot)")
    cmd.Flags().Uint64Var(&seed, "seed", 0, "identity seed of the acknowledging validator")
    cmd.Flags().StringVar(&idHex, "identity", "", "hex identity of the acknowledging validator (overrides --seed)")
    return cmd
}

// NewLatestCmd returns the "latest" command.
func NewLatestCmd() *cobra.Command {
    var f clientFlags
    cmd := &cobra.Command{
        Use:   "latest",
        Short: "Fetch the most recently certified payload",
        RunE: func(cmd *cobra.Command, args []string) error {
            client, err := f.client()
            if err != nil { return err }
            ctx, cancel := f.ctx()
            defer cancel()
            data, ok, err := client.GetLatest(ctx, f.addr)
            if err != nil { return fmt.Errorf("latest error: %w", err) }
            if !ok { return fmt.Errorf("no certified payload yet") }
            printRaw(data)
            return nil
        },
    }
    f.register(cmd)
    return cmd
}

// NewPayloadCmd returns the "payload" command: fetch by height.
func NewPayloadCmd() *cobra.Command {
    var (
        f      clientFlags
        height uint64
    )
    cmd := &cobra.Command{
        Use:   "payload",
        Short: "Fetch the certified payload at a height",
        RunE: func(cmd *cobra.Command, args []string) error {
            client, err := f.client()
            if err != nil { return err }
            ctx, cancel := f.ctx()
            defer cancel()
            data, ok, err := client.GetPayload(ctx, f.addr, height)
            if err != nil { return fmt.Errorf("payload error: %w", err) }
            if !ok { return fmt.Errorf("no certified payload at height %d", height) }
            printRaw(data)
            return nil
        },
    }
    f.register(cmd)
    cmd.Flags().Uint64Var(&height, "height", 0, "height to fetch")
    return cmd
}

func signalContext() (context.Context, context.CancelFunc) {
    ctx, cancel := context.WithCancel(context.Background())
    go func() {
        ch := make(chan os.Signal, 1)
        signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
        <-ch
        cancel()
    }()
    return ctx, cancel
}
