package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
)

var (
    once sync.Once

    EpochCurrent = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "conductor",
        Name:      "epoch",
        Help:      "Current epoch as observed by this node",
    })

    IsLeader = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "conductor",
        Name:      "is_leader",
        Help:      "1 if this node is the current sequencer, else 0",
    })

    LeaderChanges = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "conductor",
        Name:      "leader_changes_total",
        Help:      "Total number of observed leader changes",
    })

    HealthyCandidates = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "conductor",
        Name:      "healthy_candidates",
        Help:      "Size of the healthy candidate set in the last polling round (incl. self)",
    })

    ProbeFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "conductor",
        Name:      "probe_failures_total",
        Help:      "Total failed health probes per peer",
    }, []string{"peer"})

    Commits = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "conductor",
        Name:      "commits_total",
        Help:      "Total commit attempts handled by this node",
    }, []string{"result"})

    Acks = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "conductor",
        Name:      "acks_total",
        Help:      "Total acknowledgments recorded by this node",
    })

    Certifications = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "conductor",
        Name:      "certifications_total",
        Help:      "Total payloads certified by this node",
    })

    CertifiedHeight = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "conductor",
        Name:      "certified_height",
        Help:      "Highest certified payload height",
    })

    PendingDiscards = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "conductor",
        Name:      "pending_discards_total",
        Help:      "Total pending commits discarded due to epoch changes",
    })

    GRPCConnDials = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "conductor",
        Subsystem: "grpc_conn",
        Name:      "dials_total",
        Help:      "Total number of new gRPC connections dialed",
    })
    GRPCConnReuse = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "conductor",
        Subsystem: "grpc_conn",
        Name:      "reuse_total",
        Help:      "Total number of gRPC connection reuses from cache",
    })
    GRPCConnEvictions = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "conductor",
        Subsystem: "grpc_conn",
        Name:      "evictions_total",
        Help:      "Total number of cached gRPC connections evicted",
    })
    GRPCConnActive = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "conductor",
        Subsystem: "grpc_conn",
        Name:      "active",
        Help:      "Number of active cached gRPC connections",
    })
)

// Register registers metrics into the default Prometheus registry (idempotent).
func Register() {
    once.Do(func() {
        prometheus.MustRegister(EpochCurrent)
        prometheus.MustRegister(IsLeader)
        prometheus.MustRegister(LeaderChanges)
        prometheus.MustRegister(HealthyCandidates)
        prometheus.MustRegister(ProbeFailures)
        prometheus.MustRegister(Commits)
        prometheus.MustRegister(Acks)
        prometheus.MustRegister(Certifications)
        prometheus.MustRegister(CertifiedHeight)
        prometheus.MustRegister(PendingDiscards)
        prometheus.MustRegister(GRPCConnDials)
        prometheus.MustRegister(GRPCConnReuse)
        prometheus.MustRegister(GRPCConnEvictions)
        prometheus.MustRegister(GRPCConnActive)
    })
}
