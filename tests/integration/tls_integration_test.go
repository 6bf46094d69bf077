//go:build integration

package integration

import (
    "context"
    "crypto/rand"
    "crypto/rsa"
    "crypto/x509"
    "crypto/x509/pkix"
    "encoding/pem"
    "math/big"
    "net"
    "os"
    "path/filepath"
    "testing"
    "time"

    "github.com/arturolabs/conductor/pkg/bootstrap"
    "github.com/arturolabs/conductor/pkg/identity"
    "github.com/arturolabs/conductor/pkg/payload"
    tlsx "github.com/arturolabs/conductor/pkg/security/tlsconfig"
    "github.com/arturolabs/conductor/pkg/transport"
    "github.com/arturolabs/conductor/pkg/transport/httpjson"
)

func TestTLS_TwoNodes_StatusAndCertify(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
    defer cancel()

    dir := t.TempDir()
    caCrt, srvCrt, srvKey, cliCrt, cliKey := mustMakeTestCerts(t, dir)

    const addr1 = "127.0.0.1:19301"
    const addr2 = "127.0.0.1:19302"

    n1, err := bootstrap.Run(ctx, bootstrap.Config{
        IdentitySeed:   1,
        BindAddr:       addr1,
        PeersCSV:       "2@" + addr2,
        Strategy:       "health",
        HealthInterval: 200 * time.Millisecond,
        Quorum:         2,
        TLSEnable:      true, TLSCA: caCrt, TLSCert: srvCrt, TLSKey: srvKey,
    })
    if err != nil { t.Fatalf("n1: %v", err) }
    defer n1.Close()

    n2, err := bootstrap.Run(ctx, bootstrap.Config{
        IdentitySeed:   2,
        BindAddr:       addr2,
        PeersCSV:       "1@" + addr1,
        Strategy:       "health",
        HealthInterval: 200 * time.Millisecond,
        Quorum:         2,
        TLSEnable:      true, TLSCA: caCrt, TLSCert: srvCrt, TLSKey: srvKey,
    })
    if err != nil { t.Fatalf("n2: %v", err) }
    defer n2.Close()

    topts := tlsx.Options{Enable: true, CAFile: caCrt, CertFile: cliCrt, KeyFile: cliKey}
    cliTLS, err := topts.Client()
    if err != nil { t.Fatalf("tls client: %v", err) }
    cli := httpjson.NewClient(2 * time.Second).UseTLS(cliTLS)

    ranked := rankBySeed(1, 2)
    leaderAddr := addr1
    if ranked[0] == 2 { leaderAddr = addr2 }
    wantLeader := identity.DerivePeer(ranked[0]).String()

    waitUntil(t, 15*time.Second, func() error {
        s, err := fetchStatus(ctx, cli, leaderAddr)
        if err != nil { return err }
        if !s.Healthy || s.LeaderID != wantLeader || !s.IsLeader { return errNotYet }
        return nil
    })

    // Commit and certify over the mTLS channel
    ls, err := cli.GetLeader(ctx, leaderAddr)
    if err != nil { t.Fatalf("leader: %v", err) }
    p := payload.NewBasic(ls.NextHeight, []byte("over-tls"))
    raw, _ := p.Encode()
    cr, err := cli.PostCommit(ctx, leaderAddr, transport.CommitRequest{Payload: raw})
    if err != nil || !cr.Success { t.Fatalf("commit: err=%v resp=%+v", err, cr) }
    if _, err := cli.PostAcknowledge(ctx, leaderAddr, transport.AcknowledgeRequest{Identity: identity.DerivePeer(ranked[1]).String()}); err != nil {
        t.Fatalf("ack 1: %v", err)
    }
    ar, err := cli.PostAcknowledge(ctx, leaderAddr, transport.AcknowledgeRequest{Identity: identity.DerivePeer(ranked[0]).String()})
    if err != nil { t.Fatalf("ack 2: %v", err) }
    if !ar.Certified { t.Fatalf("quorum not reached over TLS") }
}

func mustMakeTestCerts(t *testing.T, dir string) (caCrt, srvCrt, srvKey, cliCrt, cliKey string) {
    t.Helper()
    caPriv, _ := rsa.GenerateKey(rand.Reader, 2048)
    caTpl := &x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "conductor-ca"}, NotBefore: time.Now().Add(-time.Hour), NotAfter: time.Now().Add(48 * time.Hour), KeyUsage: x509.KeyUsageCertSign | x509.KeyUsageCRLSign, IsCA: true, BasicConstraintsValid: true}
    caDER, _ := x509.CreateCertificate(rand.Reader, caTpl, caTpl, &caPriv.PublicKey, caPriv)
    caCrt = filepath.Join(dir, "ca.crt")
    writePEM(t, caCrt, "CERTIFICATE", caDER)

    makeLeaf := func(cn, crtName, keyName string, isClient bool) (string, string) {
        priv, _ := rsa.GenerateKey(rand.Reader, 2048)
        tpl := &x509.Certificate{SerialNumber: big.NewInt(time.Now().UnixNano()), Subject: pkix.Name{CommonName: cn}, NotBefore: time.Now().Add(-time.Hour), NotAfter: time.Now().Add(24 * time.Hour), KeyUsage: x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment}
        if isClient {
            tpl.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
        } else {
            // nodes probe each other, so the server cert also allows client auth
            tpl.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth}
        }
        tpl.IPAddresses = []net.IP{net.ParseIP("127.0.0.1")}
        der, _ := x509.CreateCertificate(rand.Reader, tpl, caTpl, &priv.PublicKey, caPriv)
        crtPath := filepath.Join(dir, crtName)
        keyPath := filepath.Join(dir, keyName)
        writePEM(t, crtPath, "CERTIFICATE", der)
        writePEM(t, keyPath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(priv))
        return crtPath, keyPath
    }

    srvCrt, srvKey = makeLeaf("conductor-node", "server.crt", "server.key", false)
    cliCrt, cliKey = makeLeaf("conductor-client", "client.crt", "client.key", true)
    return
}

func writePEM(t *testing.T, path, typ string, der []byte) {
    t.Helper()
    f, err := os.Create(path)
    if err != nil {
        t.Fatalf("create %s: %v", path, err)
    }
    defer f.Close()
    if err := pem.Encode(f, &pem.Block{Type: typ, Bytes: der}); err != nil {
        t.Fatalf("pem encode %s: %v", path, err)
    }
}
