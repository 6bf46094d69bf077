package httpjson

import (
    "bytes"
    "context"
    "crypto/tls"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "strings"
    "time"

    "github.com/arturolabs/conductor/pkg/transport"
)

// errNotFound marks a 404 so read accessors can report "no payload" instead
// of failing.
var errNotFound = errors.New("httpjson: not found")

// Client is a thin HTTP client for the sequencing API. It supports optional
// TLS configuration and simple retry with backoff for robustness. Health
// probes are deliberately single-shot: a peer that cannot answer within the
// probe timeout is unhealthy for the round, retrying would only blur that.
type Client struct {
    httpc     *http.Client
    transport *http.Transport
    isTLS     bool
}

// NewClient constructs a new Client with the given timeout.
func NewClient(timeout time.Duration) *Client {
    if timeout <= 0 { timeout = 3 * time.Second }
    tr := &http.Transport{}
    return &Client{httpc: &http.Client{Timeout: timeout, Transport: tr}, transport: tr}
}

// UseTLS sets the TLS config for the underlying HTTP client and switches the
// request scheme to https.
func (c *Client) UseTLS(cfg *tls.Config) *Client {
    if c.transport != nil { c.transport.TLSClientConfig = cfg }
    c.isTLS = cfg != nil
    return c
}

// baseURL accepts either a bare host:port (scheme chosen by TLS mode) or a
// full URL as produced by discovery.
func (c *Client) baseURL(addr string) string {
    if strings.Contains(addr, "://") {
        return strings.TrimSuffix(addr, "/")
    }
    scheme := "http"
    if c.isTLS { scheme = "https" }
    return scheme + "://" + addr
}

// doJSON performs one request per attempt with exponential backoff, decoding
// the response body into out when non-nil.
func (c *Client) doJSON(ctx context.Context, method, url string, body []byte, out any) error {
    var lastErr error
    for attempt := 0; attempt < 3; attempt++ {
        var rd io.Reader
        if body != nil { rd = bytes.NewReader(body) }
        req, err := http.NewRequestWithContext(ctx, method, url, rd)
        if err != nil { return err }
        if body != nil { req.Header.Set("Content-Type", "application/json") }
        resp, err := c.httpc.Do(req)
        if err != nil {
            lastErr = err
        } else {
            b, _ := io.ReadAll(resp.Body)
            resp.Body.Close()
            switch {
            case resp.StatusCode == http.StatusNotFound:
                return errNotFound
            case resp.StatusCode == http.StatusBadRequest:
                // rejection carries a decodable body; not retryable
                if out != nil { _ = json.Unmarshal(b, out) }
                return nil
            case resp.StatusCode != http.StatusOK:
                lastErr = fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode, string(b))
            default:
                if out != nil {
                    if err := json.Unmarshal(b, out); err != nil {
                        return fmt.Errorf("httpjson: decode: %w", err)
                    }
                }
                return nil
            }
        }
        select {
        case <-ctx.Done():
            if lastErr == nil { lastErr = ctx.Err() }
            return lastErr
        case <-time.After(time.Duration(100*(1<<attempt)) * time.Millisecond):
        }
    }
    return lastErr
}

// getRaw fetches a raw JSON document, mapping 404 to (nil, false, nil).
func (c *Client) getRaw(ctx context.Context, url string) ([]byte, bool, error) {
    var lastErr error
    for attempt := 0; attempt < 3; attempt++ {
        req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
        if err != nil { return nil, false, err }
        resp, err := c.httpc.Do(req)
        if err != nil {
            lastErr = err
        } else {
            b, _ := io.ReadAll(resp.Body)
            resp.Body.Close()
            switch resp.StatusCode {
            case http.StatusOK:
                return b, true, nil
            case http.StatusNotFound:
                return nil, false, nil
            default:
                lastErr = fmt.Errorf("GET %s: status %d: %s", url, resp.StatusCode, string(b))
            }
        }
        select {
        case <-ctx.Done():
            if lastErr == nil { lastErr = ctx.Err() }
            return nil, false, lastErr
        case <-time.After(time.Duration(100*(1<<attempt)) * time.Millisecond):
        }
    }
    return nil, false, lastErr
}

func (c *Client) GetHealth(ctx context.Context, addr string) (transport.HealthStatus, error) {
    var out transport.HealthStatus
    err := c.doJSON(ctx, http.MethodGet, c.baseURL(addr)+"/health", nil, &out)
    return out, err
}

func (c *Client) GetLeader(ctx context.Context, addr string) (transport.LeaderStatus, error) {
    var out transport.LeaderStatus
    err := c.doJSON(ctx, http.MethodGet, c.baseURL(addr)+"/leader", nil, &out)
    return out, err
}

func (c *Client) PostCommit(ctx context.Context, addr string, req transport.CommitRequest) (transport.CommitResponse, error) {
    var out transport.CommitResponse
    body, err := json.Marshal(req)
    if err != nil { return out, err }
    err = c.doJSON(ctx, http.MethodPost, c.baseURL(addr)+"/commit", body, &out)
    return out, err
}

func (c *Client) PostAcknowledge(ctx context.Context, addr string, req transport.AcknowledgeRequest) (transport.AcknowledgeResponse, error) {
    var out transport.AcknowledgeResponse
    body, err := json.Marshal(req)
    if err != nil { return out, err }
    err = c.doJSON(ctx, http.MethodPost, c.baseURL(addr)+"/acknowledge", body, &out)
    return out, err
}

func (c *Client) GetLatest(ctx context.Context, addr string) ([]byte, bool, error) {
    return c.getRaw(ctx, c.baseURL(addr)+"/latest")
}

func (c *Client) GetPayload(ctx context.Context, addr string, height uint64) ([]byte, bool, error) {
    return c.getRaw(ctx, fmt.Sprintf("%s/payload/%d", c.baseURL(addr), height))
}

func (c *Client) GetStatus(ctx context.Context, addr string) ([]byte, error) {
    data, ok, err := c.getRaw(ctx, c.baseURL(addr)+"/status")
    if err == nil && !ok {
        return nil, errNotFound
    }
    return data, err
}

// ProbeHealth performs a single bounded health probe against a peer URL. Any
// transport error, non-200 status or healthy=false marks the peer unhealthy.
func (c *Client) ProbeHealth(ctx context.Context, url string) (bool, error) {
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL(url)+"/health", nil)
    if err != nil { return false, err }
    resp, err := c.httpc.Do(req)
    if err != nil { return false, err }
    defer resp.Body.Close()
    if resp.StatusCode != http.StatusOK {
        return false, fmt.Errorf("httpjson: probe status %d", resp.StatusCode)
    }
    var hs transport.HealthStatus
    if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
        return false, err
    }
    return hs.Healthy, nil
}

var _ transport.RPCClient = (*Client)(nil)
