package grpc

import (
    "context"
    "crypto/tls"
    "net"
    "time"

    "google.golang.org/grpc"
    "google.golang.org/grpc/credentials"
    "google.golang.org/grpc/health"
    healthpb "google.golang.org/grpc/health/grpc_health_v1"
    "google.golang.org/grpc/keepalive"

    "github.com/arturolabs/conductor/pkg/observability/tracing"
    "github.com/arturolabs/conductor/pkg/transport"
)

// Server implements transport.RPCServer over gRPC using a JSON codec.
type Server struct {
    bind   string
    lis    net.Listener
    srv    *grpc.Server
    tlsCfg *tls.Config
}

func NewServer(bind string) *Server { return &Server{bind: bind} }

// UseTLS enables TLS for the gRPC server using the provided config.
func (s *Server) UseTLS(cfg *tls.Config) *Server { s.tlsCfg = cfg; return s }

// internal request/response types used over gRPC JSON codec
type empty struct{}
type statusBlob struct {
    Data []byte `json:"data"`
}
type payloadReq struct {
    Height uint64 `json:"height"`
}
type payloadBlob struct {
    Data  []byte `json:"data,omitempty"`
    Found bool   `json:"found"`
}

// conductorServer defines the methods we expose.
type conductorServer interface {
    GetHealth(ctx context.Context, in *empty) (*transport.HealthStatus, error)
    GetLeader(ctx context.Context, in *empty) (*transport.LeaderStatus, error)
    Commit(ctx context.Context, in *transport.CommitRequest) (*transport.CommitResponse, error)
    Acknowledge(ctx context.Context, in *transport.AcknowledgeRequest) (*transport.AcknowledgeResponse, error)
    GetLatest(ctx context.Context, in *empty) (*payloadBlob, error)
    GetPayload(ctx context.Context, in *payloadReq) (*payloadBlob, error)
    GetStatus(ctx context.Context, in *empty) (*statusBlob, error)
}

type condImpl struct {
    health   transport.HealthFunc
    leader   transport.LeaderFunc
    commit   transport.CommitFunc
    ack      transport.AcknowledgeFunc
    latest   transport.LatestFunc
    byHeight transport.PayloadFunc
    status   transport.StatusFunc
}

func (m *condImpl) GetHealth(ctx context.Context, _ *empty) (*transport.HealthStatus, error) {
    out, err := m.health(ctx)
    if err != nil { return nil, err }
    return &out, nil
}

func (m *condImpl) GetLeader(ctx context.Context, _ *empty) (*transport.LeaderStatus, error) {
    out, err := m.leader(ctx)
    if err != nil { return nil, err }
    return &out, nil
}

func (m *condImpl) Commit(ctx context.Context, in *transport.CommitRequest) (*transport.CommitResponse, error) {
    if in == nil { in = &transport.CommitRequest{} }
    ctx, end := tracing.StartSpan(ctx, "grpc.commit")
    defer end()
    out, err := m.commit(ctx, *in)
    if err != nil { return &transport.CommitResponse{Success: false, Error: err.Error()}, nil }
    return &out, nil
}

func (m *condImpl) Acknowledge(ctx context.Context, in *transport.AcknowledgeRequest) (*transport.AcknowledgeResponse, error) {
    if in == nil { in = &transport.AcknowledgeRequest{} }
    ctx, end := tracing.StartSpan(ctx, "grpc.acknowledge")
    defer end()
    out, err := m.ack(ctx, *in)
    if err != nil { return &transport.AcknowledgeResponse{Error: err.Error()}, nil }
    return &out, nil
}

func (m *condImpl) GetLatest(ctx context.Context, _ *empty) (*payloadBlob, error) {
    data, ok, err := m.latest(ctx)
    if err != nil { return nil, err }
    return &payloadBlob{Data: data, Found: ok}, nil
}

func (m *condImpl) GetPayload(ctx context.Context, in *payloadReq) (*payloadBlob, error) {
    if in == nil { in = &payloadReq{} }
    data, ok, err := m.byHeight(ctx, in.Height)
    if err != nil { return nil, err }
    return &payloadBlob{Data: data, Found: ok}, nil
}

func (m *condImpl) GetStatus(ctx context.Context, _ *empty) (*statusBlob, error) {
    ctx, end := tracing.StartSpan(ctx, "grpc.status")
    defer end()
    b, err := m.status(ctx)
    if err != nil { return nil, err }
    return &statusBlob{Data: b}, nil
}

// Service descriptor and handlers (hand-written, no codegen required)
var _Conductor_serviceDesc = grpc.ServiceDesc{
    ServiceName: "conductor.v1.Conductor",
    HandlerType: (*conductorServer)(nil),
    Methods: []grpc.MethodDesc{
        { MethodName: "GetHealth", Handler: _Conductor_GetHealth_Handler },
        { MethodName: "GetLeader", Handler: _Conductor_GetLeader_Handler },
        { MethodName: "Commit", Handler: _Conductor_Commit_Handler },
        { MethodName: "Acknowledge", Handler: _Conductor_Acknowledge_Handler },
        { MethodName: "GetLatest", Handler: _Conductor_GetLatest_Handler },
        { MethodName: "GetPayload", Handler: _Conductor_GetPayload_Handler },
        { MethodName: "GetStatus", Handler: _Conductor_GetStatus_Handler },
    },
}

func _Conductor_GetHealth_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
    in := new(empty)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(conductorServer).GetHealth(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/conductor.v1.Conductor/GetHealth"}
    handler := func(ctx context.Context, req interface{}) (interface{}, error) {
        return srv.(conductorServer).GetHealth(ctx, req.(*empty))
    }
    return interceptor(ctx, in, info, handler)
}

func _Conductor_GetLeader_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
    in := new(empty)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(conductorServer).GetLeader(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/conductor.v1.Conductor/GetLeader"}
    handler := func(ctx context.Context, req interface{}) (interface{}, error) {
        return srv.(conductorServer).GetLeader(ctx, req.(*empty))
    }
    return interceptor(ctx, in, info, handler)
}

func _Conductor_Commit_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
    in := new(transport.CommitRequest)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(conductorServer).Commit(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/conductor.v1.Conductor/Commit"}
    handler := func(ctx context.Context, req interface{}) (interface{}, error) {
        return srv.(conductorServer).Commit(ctx, req.(*transport.CommitRequest))
    }
    return interceptor(ctx, in, info, handler)
}

func _Conductor_Acknowledge_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
    in := new(transport.AcknowledgeRequest)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(conductorServer).Acknowledge(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/conductor.v1.Conductor/Acknowledge"}
    handler := func(ctx context.Context, req interface{}) (interface{}, error) {
        return srv.(conductorServer).Acknowledge(ctx, req.(*transport.AcknowledgeRequest))
    }
    return interceptor(ctx, in, info, handler)
}

func _Conductor_GetLatest_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
    in := new(empty)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(conductorServer).GetLatest(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/conductor.v1.Conductor/GetLatest"}
    handler := func(ctx context.Context, req interface{}) (interface{}, error) {
        return srv.(conductorServer).GetLatest(ctx, req.(*empty))
    }
    return interceptor(ctx, in, info, handler)
}

func _Conductor_GetPayload_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
    in := new(payloadReq)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(conductorServer).GetPayload(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/conductor.v1.Conductor/GetPayload"}
    handler := func(ctx context.Context, req interface{}) (interface{}, error) {
        return srv.(conductorServer).GetPayload(ctx, req.(*payloadReq))
    }
    return interceptor(ctx, in, info, handler)
}

func _Conductor_GetStatus_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
    in := new(empty)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(conductorServer).GetStatus(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/conductor.v1.Conductor/GetStatus"}
    handler := func(ctx context.Context, req interface{}) (interface{}, error) {
        return srv.(conductorServer).GetStatus(ctx, req.(*empty))
    }
    return interceptor(ctx, in, info, handler)
}

func (s *Server) Start(ctx context.Context, health_ transport.HealthFunc, leader transport.LeaderFunc, commit transport.CommitFunc, ack transport.AcknowledgeFunc, latest transport.LatestFunc, byHeight transport.PayloadFunc, status transport.StatusFunc) error {
    lis, err := net.Listen("tcp", s.bind)
    if err != nil { return err }
    s.lis = lis
    s.bind = lis.Addr().String()
    // Force JSON codec to avoid requiring protobuf types
    var opts []grpc.ServerOption
    opts = append(opts, grpc.ForceServerCodec(jsonCodec{}))
    opts = append(opts, grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{MinTime: 5 * time.Second, PermitWithoutStream: true}))
    opts = append(opts, grpc.KeepaliveParams(keepalive.ServerParameters{Time: 30 * time.Second, Timeout: 10 * time.Second}))
    if s.tlsCfg != nil { opts = append(opts, grpc.Creds(credentials.NewTLS(s.tlsCfg))) }
    srv := grpc.NewServer(opts...)
    s.srv = srv
    // Standard health service for generic gRPC probes
    healthSrv := health.NewServer()
    healthpb.RegisterHealthServer(srv, healthSrv)
    srv.RegisterService(&_Conductor_serviceDesc, &condImpl{
        health:   health_,
        leader:   leader,
        commit:   commit,
        ack:      ack,
        latest:   latest,
        byHeight: byHeight,
        status:   status,
    })

    go func() {
        <-ctx.Done()
        // Graceful stop with a small timeout fallback
        ch := make(chan struct{})
        go func() { srv.GracefulStop(); close(ch) }()
        select {
        case <-ch:
        case <-time.After(2 * time.Second):
            srv.Stop()
        }
    }()
    go func() { _ = srv.Serve(lis) }()
    return nil
}

func (s *Server) Addr() string { return s.bind }

func (s *Server) Stop(ctx context.Context) error {
    if s.srv == nil { return nil }
    ch := make(chan struct{})
    go func() { s.srv.GracefulStop(); close(ch) }()
    select {
    case <-ch:
    case <-ctx.Done():
        s.srv.Stop()
    }
    s.srv = nil
    if s.lis != nil { _ = s.lis.Close(); s.lis = nil }
    return nil
}

var _ transport.RPCServer = (*Server)(nil)
