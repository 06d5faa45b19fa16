package socket

import (
	"fmt"
	"time"
)

// OverflowPolicy decides what happens when a bounded queue is full.
type OverflowPolicy int

const (
	// DropOldest evicts the head of the queue to make room.
	DropOldest OverflowPolicy = iota
	// DropNewest discards the message being queued.
	DropNewest
	// Reject refuses the message and makes Send return ErrQueueFull.
	Reject
)

func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "drop-oldest"
	case DropNewest:
		return "drop-newest"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// ParseOverflowPolicy maps the textual form used in configuration.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "drop-oldest", "":
		return DropOldest, nil
	case "drop-newest":
		return DropNewest, nil
	case "reject":
		return Reject, nil
	default:
		return DropOldest, fmt.Errorf("unknown overflow policy %q", s)
	}
}

// OutboundMessage is a send deferred while the client was not connected.
type OutboundMessage struct {
	ID       string
	Event    Event
	Payload  interface{}
	QueuedAt time.Time
}

// outboundQueue is a FIFO of deferred sends. It is not safe for concurrent use;
// the Client guards it with its own mutex.
type outboundQueue struct {
	items    []OutboundMessage
	capacity int
	policy   OverflowPolicy
}

func newOutboundQueue(capacity int, policy OverflowPolicy) *outboundQueue {
	return &outboundQueue{capacity: capacity, policy: policy}
}

// push appends msg. It returns the message that was discarded to honour the
// capacity, if any, and ErrQueueFull when the policy rejects msg.
func (q *outboundQueue) push(msg OutboundMessage) (*OutboundMessage, error) {
	if q.capacity > 0 && len(q.items) >= q.capacity {
		switch q.policy {
		case DropNewest:
			return &msg, nil
		case Reject:
			return nil, ErrQueueFull
		default:
			dropped := q.items[0]
			q.items = q.items[1:]
			q.items = append(q.items, msg)
			return &dropped, nil
		}
	}

	q.items = append(q.items, msg)
	return nil, nil
}

// pushFront puts msgs back at the head, preserving their order.
func (q *outboundQueue) pushFront(msgs []OutboundMessage) {
	if len(msgs) == 0 {
		return
	}
	items := make([]OutboundMessage, 0, len(msgs)+len(q.items))
	items = append(items, msgs...)
	q.items = append(items, q.items...)
}

// drain empties the queue and returns its contents in FIFO order.
func (q *outboundQueue) drain() []OutboundMessage {
	items := q.items
	q.items = nil
	return items
}

func (q *outboundQueue) len() int {
	return len(q.items)
}

func (q *outboundQueue) snapshot() []OutboundMessage {
	out := make([]OutboundMessage, len(q.items))
	copy(out, q.items)
	return out
}
