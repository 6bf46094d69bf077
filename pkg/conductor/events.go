package conductor

import (
    "context"
    "sync"
    "time"

    "github.com/arturolabs/conductor/pkg/identity"
)

type EventType string

const (
    EventEpochChanged     EventType = "epoch_changed"
    EventCommitPending    EventType = "commit_pending"
    EventCertified        EventType = "certified"
    EventPendingDiscarded EventType = "pending_discarded"
)

// Event is an application-consumable notification of sequencer state changes.
// Only the fields relevant to an event type are populated.
type Event struct {
    Type   EventType
    At     time.Time
    Epoch  uint64
    Leader *identity.Identity
    Height uint64
    Digest string
}

// Subscribe returns a channel of events. The returned channel is buffered and
// closed automatically when ctx is done. Events may be dropped if the consumer
// is too slow (best-effort delivery) to avoid back-pressuring internals.
func (c *Conductor) Subscribe(ctx context.Context) <-chan Event {
    ch := make(chan Event, 64)
    c.eb.add(ch)
    go func() {
        <-ctx.Done()
        c.eb.remove(ch)
        close(ch)
    }()
    return ch
}

// internal event bus
type eventBus struct {
    mu   sync.Mutex
    subs map[chan Event]struct{}
}

func (e *eventBus) add(ch chan Event) {
    e.mu.Lock()
    if e.subs == nil { e.subs = make(map[chan Event]struct{}) }
    e.subs[ch] = struct{}{}
    e.mu.Unlock()
}

func (e *eventBus) remove(ch chan Event) {
    e.mu.Lock()
    if e.subs != nil { delete(e.subs, ch) }
    e.mu.Unlock()
}

func (e *eventBus) publish(ev Event) {
    e.mu.Lock()
    for ch := range e.subs {
        select {
        case ch <- ev:
        default:
            // drop if receiver is slow
        }
    }
    e.mu.Unlock()
}
