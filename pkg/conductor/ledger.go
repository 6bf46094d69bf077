package conductor

import (
    "encoding/hex"
    "sync"
    "time"

    "github.com/arturolabs/conductor/pkg/identity"
    obsmetrics "github.com/arturolabs/conductor/pkg/observability/metrics"
    "github.com/arturolabs/conductor/pkg/payload"
)

// CertifiedRecord is an immutable entry in the permanent height-indexed store.
type CertifiedRecord struct {
    Height      uint64
    Payload     payload.Payload
    Epoch       uint64
    CertifiedAt time.Time
}

// PendingInfo is a read-only snapshot of the in-flight pending slot. Signature
// is the proposer's signature over the digest (hex), so observers can verify
// the slot was committed by the epoch's leader.
type PendingInfo struct {
    Height    uint64         `json:"height"`
    Digest    string         `json:"digest"`
    Epoch     uint64         `json:"epoch"`
    Acks      int            `json:"acks"`
    CreatedAt time.Time      `json:"created_at"`
    AckedBy   []string       `json:"acked_by,omitempty"`
    Signature string         `json:"signature,omitempty"`
}

// pendingCommit is the single in-flight slot. At most one exists per node; it
// is created by commit and consumed by acknowledgments reaching quorum or by
// an epoch change.
type pendingCommit struct {
    height    uint64
    digest    payload.Digest
    epoch     uint64
    payload   payload.Payload
    signature []byte
    acks      map[identity.Identity]struct{}
    createdAt time.Time
}

// ledger holds the certification state machine: the pending slot plus the
// permanent certified store. Every mutation goes through a single mutex; the
// pending slot and the next-height counter are only ever updated together, so
// two acknowledgments racing past the threshold cannot both certify.
type ledger struct {
    quorum int

    mu        sync.Mutex
    pending   *pendingCommit
    certified map[uint64]CertifiedRecord
    next      uint64
    latest    uint64
    started   bool
}

// newLedger builds an empty ledger. When genesis is non-nil its payload is
// pre-certified at its height and sequencing continues from the next one.
func newLedger(quorum int, genesis payload.Payload) *ledger {
    l := &ledger{quorum: quorum, certified: make(map[uint64]CertifiedRecord)}
    if genesis != nil {
        h := genesis.Height()
        l.certified[h] = CertifiedRecord{Height: h, Payload: genesis, Epoch: 0, CertifiedAt: time.Now()}
        l.latest = h
        l.next = h + 1
        l.started = true
        obsmetrics.CertifiedHeight.Set(float64(h))
    }
    return l
}

// commit installs p into the pending slot under epoch ep. A stale pending
// record from a prior epoch is discarded first. When selfAck is set the
// proposer counts as the first acknowledgment, which with quorum 1 certifies
// immediately; certifiedNow reports that.
func (l *ledger) commit(p payload.Payload, ep uint64, self identity.Identity, selfAck bool, sig []byte) (certifiedNow bool, err error) {
    l.mu.Lock()
    defer l.mu.Unlock()

    h := p.Height()
    if l.started && h != l.next {
        return false, &HeightMismatchError{Expected: l.next, Got: h}
    }
    if parent, ok := p.Parent(); ok && l.started {
        if prev, exists := l.certified[l.latest]; exists && prev.Payload.Digest() != parent {
            return false, ErrParentMismatch
        }
    }
    d := p.Digest()
    if l.pending != nil {
        if l.pending.epoch != ep {
            l.discardLocked()
        } else if l.pending.height == h && l.pending.digest != d {
            return false, ErrPendingConflict
        } else if l.pending.height == h && l.pending.digest == d {
            // same payload re-committed, keep the existing slot and its acks
            return false, nil
        }
    }

    pc := &pendingCommit{
        height:    h,
        digest:    d,
        epoch:     ep,
        payload:   p,
        signature: sig,
        acks:      make(map[identity.Identity]struct{}),
        createdAt: time.Now(),
    }
    if selfAck {
        pc.acks[self] = struct{}{}
    }
    l.pending = pc
    if !l.started {
        // the first committed height fixes the base of the sequence
        l.next = h
        l.started = true
    }
    if len(pc.acks) >= l.quorum {
        l.certifyLocked()
        return true, nil
    }
    return false, nil
}

// acknowledge records from's acknowledgment. implicit targets the pending
// slot's height regardless of the height argument. Late, duplicate and
// epoch-stale acknowledgments are benign no-ops; an acknowledgment for an
// already certified height reports certified=true without touching state.
func (l *ledger) acknowledge(height uint64, implicit bool, from identity.Identity, curEpoch uint64) (certified bool, h uint64, newly bool) {
    l.mu.Lock()
    defer l.mu.Unlock()

    if implicit {
        if l.pending == nil {
            return false, l.latest, false
        }
        height = l.pending.height
    }
    if _, ok := l.certified[height]; ok {
        return true, height, false
    }
    if l.pending == nil || l.pending.height != height {
        return false, height, false
    }
    if l.pending.epoch != curEpoch {
        l.discardLocked()
        return false, height, false
    }
    if _, dup := l.pending.acks[from]; dup {
        return false, height, false
    }
    l.pending.acks[from] = struct{}{}
    obsmetrics.Acks.Inc()
    if len(l.pending.acks) >= l.quorum {
        l.certifyLocked()
        return true, height, true
    }
    return false, height, false
}

// certifyDirect records an externally certified payload, e.g. one learned from
// the leader after local certification elsewhere. Only the next expected
// height is accepted (or any height before the sequence has started); stale
// and out-of-order records are ignored to keep the store contiguous.
func (l *ledger) certifyDirect(p payload.Payload, ep uint64) bool {
    l.mu.Lock()
    defer l.mu.Unlock()

    h := p.Height()
    if l.started && h != l.next {
        return false
    }
    if l.pending != nil && l.pending.height == h {
        l.pending = nil
    }
    if !l.started {
        l.next = h
        l.started = true
    }
    l.certified[h] = CertifiedRecord{Height: h, Payload: p, Epoch: ep, CertifiedAt: time.Now()}
    l.latest = h
    l.next = h + 1
    obsmetrics.Certifications.Inc()
    obsmetrics.CertifiedHeight.Set(float64(h))
    return true
}

// discardStale drops a pending record proposed under an epoch other than ep.
// Returns the discarded snapshot, if any.
func (l *ledger) discardStale(ep uint64) (PendingInfo, bool) {
    l.mu.Lock()
    defer l.mu.Unlock()
    if l.pending == nil || l.pending.epoch == ep {
        return PendingInfo{}, false
    }
    info := l.pendingInfoLocked()
    l.discardLocked()
    return info, true
}

func (l *ledger) discardLocked() {
    l.pending = nil
    obsmetrics.PendingDiscards.Inc()
}

// certifyLocked moves the pending payload into the permanent store and clears
// the slot. Caller holds l.mu and has verified quorum.
func (l *ledger) certifyLocked() {
    pc := l.pending
    l.certified[pc.height] = CertifiedRecord{Height: pc.height, Payload: pc.payload, Epoch: pc.epoch, CertifiedAt: time.Now()}
    l.latest = pc.height
    l.next = pc.height + 1
    l.pending = nil
    obsmetrics.Certifications.Inc()
    obsmetrics.CertifiedHeight.Set(float64(pc.height))
}

func (l *ledger) latestRecord() (CertifiedRecord, bool) {
    l.mu.Lock()
    defer l.mu.Unlock()
    rec, ok := l.certified[l.latest]
    return rec, ok
}

func (l *ledger) byHeight(h uint64) (CertifiedRecord, bool) {
    l.mu.Lock()
    defer l.mu.Unlock()
    rec, ok := l.certified[h]
    return rec, ok
}

func (l *ledger) nextHeight() uint64 {
    l.mu.Lock()
    defer l.mu.Unlock()
    return l.next
}

func (l *ledger) certifiedCount() int {
    l.mu.Lock()
    defer l.mu.Unlock()
    return len(l.certified)
}

func (l *ledger) pendingInfo() (PendingInfo, bool) {
    l.mu.Lock()
    defer l.mu.Unlock()
    if l.pending == nil {
        return PendingInfo{}, false
    }
    return l.pendingInfoLocked(), true
}

func (l *ledger) pendingInfoLocked() PendingInfo {
    pc := l.pending
    info := PendingInfo{
        Height:    pc.height,
        Digest:    pc.digest.String(),
        Epoch:     pc.epoch,
        Acks:      len(pc.acks),
        CreatedAt: pc.createdAt,
        Signature: hex.EncodeToString(pc.signature),
    }
    for id := range pc.acks {
        info.AckedBy = append(info.AckedBy, id.Short())
    }
    return info
}
