package ros

import (
	"fmt"

	"github.com/pkg/errors"
)

type Reliability int

const (
	// Reliable delivery applies back-pressure to the connection
	// instead of dropping messages.
	Reliable Reliability = iota
	// BestEffort delivery drops the oldest pending message when the
	// subscriber falls behind.
	BestEffort
)

func (r Reliability) String() string {
	switch r {
	case Reliable:
		return "reliable"
	case BestEffort:
		return "best_effort"
	}
	return fmt.Sprintf("Reliability(%d)", int(r))
}

type History int

const (
	KeepLast History = iota
	KeepAll
)

func (h History) String() string {
	switch h {
	case KeepLast:
		return "keep_last"
	case KeepAll:
		return "keep_all"
	}
	return fmt.Sprintf("History(%d)", int(h))
}

// keepAllDepth bounds KeepAll queues.
const keepAllDepth = 1000

// QoSProfile is the delivery policy attached to a subscription. It is
// applied on the subscriber side only.
type QoSProfile struct {
	Reliability Reliability
	History     History
	Depth       int
}

// DefaultQoS matches the queue behaviour of a plain subscriber.
func DefaultQoS() QoSProfile {
	return QoSProfile{Reliability: Reliable, History: KeepLast, Depth: 10}
}

// SensorDataQoS keeps only the newest unconsumed message and never
// blocks the connection.
func SensorDataQoS() QoSProfile {
	return QoSProfile{Reliability: BestEffort, History: KeepLast, Depth: 1}
}

func (q QoSProfile) Validate() error {
	switch q.Reliability {
	case Reliable, BestEffort:
	default:
		return errors.Errorf("invalid reliability %v", q.Reliability)
	}
	switch q.History {
	case KeepLast:
		if q.Depth < 1 {
			return errors.Errorf("keep_last depth must be positive, got %d", q.Depth)
		}
	case KeepAll:
	default:
		return errors.Errorf("invalid history %v", q.History)
	}
	return nil
}

func (q QoSProfile) capacity() int {
	if q.History == KeepAll {
		return keepAllDepth
	}
	return q.Depth
}

func (q QoSProfile) String() string {
	if q.History == KeepAll {
		return fmt.Sprintf("%s/%s", q.Reliability, q.History)
	}
	return fmt.Sprintf("%s/%s(%d)", q.Reliability, q.History, q.Depth)
}

// deliveryQueue holds messages received by a subscriber until the
// spinning goroutine consumes them. There is a single producer, the
// subscriber goroutine.
type deliveryQueue struct {
	policy Reliability
	items  chan messageEvent
}

func newDeliveryQueue(qos QoSProfile) *deliveryQueue {
	return &deliveryQueue{
		policy: qos.Reliability,
		items:  make(chan messageEvent, qos.capacity()),
	}
}

// push enqueues m. A best-effort queue evicts its oldest item when full
// and reports it as dropped. A reliable queue blocks until there is room
// or quit is closed.
func (q *deliveryQueue) push(m messageEvent, quit <-chan struct{}) (dropped bool) {
	if q.policy == BestEffort {
		for {
			select {
			case q.items <- m:
				return dropped
			default:
			}
			select {
			case <-q.items:
				dropped = true
			default:
			}
		}
	}
	select {
	case q.items <- m:
	case <-quit:
		dropped = true
	}
	return dropped
}

// pop returns the oldest pending item without blocking.
func (q *deliveryQueue) pop() (messageEvent, bool) {
	select {
	case m := <-q.items:
		return m, true
	default:
		return messageEvent{}, false
	}
}

func (q *deliveryQueue) len() int {
	return len(q.items)
}
