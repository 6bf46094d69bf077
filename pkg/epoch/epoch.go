package epoch

import (
    "context"
    "errors"
    "time"

    "github.com/arturolabs/conductor/pkg/identity"
)

var (
    // ErrTransferUnsupported is returned by strategies whose leadership only
    // moves through observation, never administratively.
    ErrTransferUnsupported = errors.New("epoch: transfer not supported")
    // ErrNoSuccessor is returned when a transfer is requested but no other
    // candidate exists.
    ErrNoSuccessor = errors.New("epoch: no successor available")
)

// Manager is the minimal abstraction over an epoch/leadership strategy.
// Exactly one identity is authoritative per epoch; implementations differ only
// in how that identity is chosen (health polling, rotation, static
// assignment, gossip membership).
type Manager interface {
    // CurrentEpoch returns the latest known epoch. Values never decrease
    // between calls on the same manager.
    CurrentEpoch() uint64
    // Leader returns the identity authorized to propose at the given epoch,
    // or false when undetermined (e.g. no healthy candidate observed yet).
    Leader(epoch uint64) (identity.Identity, bool)
    // IsLeader reports whether id is the leader for the current epoch.
    IsLeader(id identity.Identity) bool
    // Refresh re-evaluates leadership and may advance the epoch. It must
    // always return: probe failures degrade the candidate set, they are
    // never surfaced as errors.
    Refresh(ctx context.Context)
}

// Change describes an epoch transition. Consumers compare Leader against
// their own identity to learn whether they gained or lost the role.
type Change struct {
    Epoch  uint64
    Leader identity.Identity
    At     time.Time
}

// Notifier is an optional interface that a Manager may provide to deliver
// epoch transitions via an observable channel. Implementations should buffer
// and drop rather than block their internals on a slow consumer.
type Notifier interface {
    Changes() <-chan Change
}

// CandidateLister is an optional interface exposing the identities currently
// considered for leadership. Used for quorum-achievability validation and
// status reporting.
type CandidateLister interface {
    Candidates() []identity.Identity
}

// Transferer is an optional interface for strategies that support an
// administratively driven epoch advance.
type Transferer interface {
    // TransferLeader hands leadership to the next candidate and returns the
    // resulting change.
    TransferLeader() (Change, error)
}
