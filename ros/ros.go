package ros

import (
	"context"
	"time"

	modular "github.com/edwinhayes/logrus-modular"
)

type Node interface {
	NewPublisher(topic string, msgType MessageType) (Publisher, error)
	// Create a publisher which gives you callbacks when subscribers
	// connect and disconnect.  The callbacks are called in their own
	// goroutines, so they don't need to return immediately to let the
	// connection proceed.
	NewPublisherWithCallbacks(topic string,
		msgType MessageType,
		connectCallback, disconnectCallback func(SingleSubscriberPublisher)) (Publisher, error)
	// callback should be a function which takes 0, 1, or 2 arguments.
	// If it takes 0 arguments, it will simply be called without the
	// message.  1-argument functions are the normal case, and the
	// argument should be of the generated message type (or Message).
	// If the function takes 2 arguments, the second argument should be
	// of type MessageEvent.
	NewSubscriber(topic string, msgType MessageType, callback interface{}) (Subscriber, error)
	// NewSubscriberWithQoS is NewSubscriber with an explicit delivery
	// policy for the subscriber's pending queue.
	NewSubscriberWithQoS(topic string, msgType MessageType, qos QoSProfile, callback interface{}) (Subscriber, error)
	RemovePublisher(topic string)
	RemoveSubscriber(topic string)

	OK() bool
	SpinOnce()
	Spin()
	// SpinContext runs subscriber callbacks on the calling goroutine
	// until ctx is done or the node shuts down.
	SpinContext(ctx context.Context) error
	Shutdown()

	GetParam(name string) (interface{}, error)
	SetParam(name string, value interface{}) error
	HasParam(name string) (bool, error)
	SearchParam(name string) (string, error)
	DeleteParam(name string) error

	Name() string
	Logger() modular.Logger

	NonRosArgs() []string
}

func NewNode(name string, args []string, opts ...NodeOption) (Node, error) {
	return newDefaultNode(name, args, opts...)
}

type Publisher interface {
	Publish(msg Message) error
	GetNumSubscribers() int
	Shutdown()
}

// A publisher which only sends to one specific subscriber.  This is
// sent as an argument to the connect and disconnect callback
// functions passed to Node.NewPublisherWithCallbacks().
type SingleSubscriberPublisher interface {
	Publish(msg Message) error
	GetSubscriberName() string
	GetTopic() string
}

type Subscriber interface {
	GetTopic() string
	GetNumPublishers() int
	// Dropped counts messages evicted by a best-effort queue.
	Dropped() uint64
	Shutdown()
}

// Optional second argument to a Subscriber callback.
type MessageEvent struct {
	PublisherName    string
	ReceiptTime      time.Time
	ConnectionHeader map[string]string
}
