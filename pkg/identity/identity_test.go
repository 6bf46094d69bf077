package identity

import "testing"

func TestNewSignerDeterministic(t *testing.T) {
    a := NewSigner(42)
    b := NewSigner(42)
    if a.Identity() != b.Identity() {
        t.Fatalf("same seed produced different identities: %s vs %s", a.Identity(), b.Identity())
    }
    c := NewSigner(43)
    if a.Identity() == c.Identity() {
        t.Fatalf("distinct seeds produced identical identities")
    }
}

func TestSignVerify(t *testing.T) {
    s := NewSigner(7)
    digest := []byte("0123456789abcdef0123456789abcdef")
    sig := s.Sign(digest)
    if !Verify(s.Identity(), digest, sig) {
        t.Fatalf("signature did not verify")
    }
    if Verify(s.Identity(), []byte("other digest contents............"), sig) {
        t.Fatalf("signature verified against wrong digest")
    }
    if Verify(NewSigner(8).Identity(), digest, sig) {
        t.Fatalf("signature verified against wrong identity")
    }
}

func TestParseRoundTrip(t *testing.T) {
    id := NewSigner(1).Identity()
    got, err := Parse(id.String())
    if err != nil { t.Fatalf("parse: %v", err) }
    if got != id { t.Fatalf("round trip mismatch: %s != %s", got, id) }

    if _, err := Parse("zz"); err == nil {
        t.Fatalf("expected error for invalid hex")
    }
    if _, err := Parse("abcd"); err == nil {
        t.Fatalf("expected error for short input")
    }
}

func TestOrdering(t *testing.T) {
    a := Identity{0x01}
    b := Identity{0x02}
    if !a.Less(b) || b.Less(a) {
        t.Fatalf("byte ordering broken")
    }
    if a.Compare(a) != 0 {
        t.Fatalf("identity not equal to itself")
    }
    var zero Identity
    if !zero.IsZero() || a.IsZero() {
        t.Fatalf("IsZero misreported")
    }
}
