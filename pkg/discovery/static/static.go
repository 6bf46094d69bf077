package static

import (
    "strings"

    "github.com/arturolabs/conductor/pkg/discovery"
)

type staticPeers struct {
    peers []string
}

func (s *staticPeers) Peers() []string { return append([]string(nil), s.peers...) }

// New returns a Discovery that always returns the given peer addresses.
func New(peers ...string) discovery.Discovery {
    cleaned := make([]string, 0, len(peers))
    for _, v := range peers {
        v = strings.TrimSpace(v)
        if v != "" {
            cleaned = append(cleaned, v)
        }
    }
    return &staticPeers{peers: cleaned}
}

// Parse converts a comma-separated list into []string peer addresses.
func Parse(csv string) []string {
    if csv == "" {
        return nil
    }
    parts := strings.Split(csv, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts {
        p = strings.TrimSpace(p)
        if p != "" {
            out = append(out, p)
        }
    }
    return out
}
