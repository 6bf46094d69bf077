package discovery

// Discovery abstracts how the probe targets for leader election are provided.
// Implementations include static lists, files/ENV and DNS.
type Discovery interface {
    // Peers returns the current set of peer addresses (host:port or URLs).
    Peers() []string
}
