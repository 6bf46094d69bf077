package conductor

import (
    "errors"
    "fmt"
)

var (
    // ErrNotLeader rejects a commit from a node that is not the current
    // epoch's sequencer.
    ErrNotLeader = errors.New("conductor: not leader")
    // ErrPendingConflict rejects a commit when a different payload is already
    // pending at the same height in the same epoch.
    ErrPendingConflict = errors.New("conductor: conflicting payload already pending")
    // ErrParentMismatch rejects a commit whose parent digest does not match
    // the most recently certified payload.
    ErrParentMismatch = errors.New("conductor: parent digest does not match latest certified payload")
    // ErrQuorumUnreachable is a configuration error: the acknowledgment
    // threshold exceeds the candidate count and could never be met. Detected
    // at construction, never at runtime.
    ErrQuorumUnreachable = errors.New("conductor: quorum threshold exceeds candidate count")
)

// HeightMismatchError rejects a commit whose height is not the next expected
// one. Callers should re-query /leader and retry with the reported height.
type HeightMismatchError struct {
    Expected uint64
    Got      uint64
}

func (e *HeightMismatchError) Error() string {
    return fmt.Sprintf("conductor: height mismatch: expected %d, got %d", e.Expected, e.Got)
}
