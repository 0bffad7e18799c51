// Package observer subscribes to a topic and lets a caller block until
// the first message on it has been delivered.
package observer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	modular "github.com/edwinhayes/logrus-modular"
	"github.com/edwinhayes/rcprobe/internal/latch"
	"github.com/edwinhayes/rcprobe/msgs/ardupilot_msgs"
	"github.com/edwinhayes/rcprobe/ros"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// DefaultTopic is the RC telemetry topic published by the autopilot.
const DefaultTopic = "ap/rc"

// topicParam is the private parameter that overrides the topic.
const topicParam = "~topic"

var (
	ErrEmptyTopic = errors.New("observer: topic must not be empty")
	ErrStarted    = errors.New("observer: already started")
)

// Transport is the part of a ros.Node an Observer needs.
type Transport interface {
	NewSubscriberWithQoS(topic string, msgType ros.MessageType, qos ros.QoSProfile, callback interface{}) (ros.Subscriber, error)
	SpinContext(ctx context.Context) error
}

// ParamSource looks up node parameters.
type ParamSource interface {
	HasParam(key string) (bool, error)
	GetParam(key string) (interface{}, error)
}

// Recorder receives delivery statistics.
type Recorder interface {
	MessageReceived(topic string)
	FirstMessage(topic string, latency time.Duration)
}

type Option func(*Observer)

// WithMessageType subscribes with msgType instead of ardupilot_msgs/Rc.
func WithMessageType(msgType ros.MessageType) Option {
	return func(o *Observer) { o.msgType = msgType }
}

func WithLogger(log modular.Logger) Option {
	return func(o *Observer) { o.log = log }
}

func WithRecorder(r Recorder) Option {
	return func(o *Observer) { o.recorder = r }
}

// Observer fires a one-shot latch on the first message delivered on its
// topic. Later messages are counted but do not change the outcome.
type Observer struct {
	transport Transport
	msgType   ros.MessageType
	recorder  Recorder
	log       modular.Logger
	latch     *latch.Latch
	received  uint64

	mu        sync.Mutex
	topic     string
	sub       ros.Subscriber
	cancel    context.CancelFunc
	group     *errgroup.Group
	started   bool
	closed    bool
	startedAt time.Time
	firstAt   time.Time
}

// New returns an observer for DefaultTopic. It does not subscribe until
// Start.
func New(transport Transport, opts ...Option) *Observer {
	o := &Observer{
		transport: transport,
		msgType:   ardupilot_msgs.MsgRc,
		topic:     DefaultTopic,
		latch:     latch.New(),
		log:       ros.Submodule(ros.RootLogger(nil), "observer"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Configure sets the topic to subscribe to.
func (o *Observer) Configure(topic string) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return ErrStarted
	}
	o.topic = topic
	return nil
}

// ConfigureFromParams applies the ~topic parameter when it is set to a
// non-empty string.
func (o *Observer) ConfigureFromParams(p ParamSource) error {
	ok, err := p.HasParam(topicParam)
	if err != nil {
		return errors.Wrapf(err, "look up %s", topicParam)
	}
	if !ok {
		return nil
	}
	v, err := p.GetParam(topicParam)
	if err != nil {
		return errors.Wrapf(err, "read %s", topicParam)
	}
	topic, _ := v.(string)
	if topic == "" {
		o.log.Warnf("Ignoring %s=%v", topicParam, v)
		return nil
	}
	return o.Configure(topic)
}

// Start subscribes with sensor data QoS and spins the transport on a
// single background goroutine until Close.
func (o *Observer) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return ErrStarted
	}

	sub, err := o.transport.NewSubscriberWithQoS(o.topic, o.msgType, ros.SensorDataQoS(), o.OnMessage)
	if err != nil {
		return errors.Wrapf(err, "subscribe to %s", o.topic)
	}
	o.sub = sub
	o.started = true
	o.startedAt = time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	o.cancel = cancel
	o.group = group
	group.Go(func() error {
		err := o.transport.SpinContext(ctx)
		if err != nil && errors.Cause(err) != context.Canceled {
			return errors.Wrap(err, "spin")
		}
		return nil
	})
	o.log.WithField("topic", o.topic).Infof("Listening with %s", ros.SensorDataQoS())
	return nil
}

// OnMessage records a delivery. Only the first call fires the latch.
func (o *Observer) OnMessage(msg ros.Message) {
	atomic.AddUint64(&o.received, 1)

	o.mu.Lock()
	first := o.firstAt.IsZero()
	if first {
		o.firstAt = time.Now()
	}
	topic := o.topic
	var latency time.Duration
	if !o.startedAt.IsZero() {
		latency = o.firstAt.Sub(o.startedAt)
	}
	o.mu.Unlock()

	if o.recorder != nil {
		o.recorder.MessageReceived(topic)
	}
	if !first {
		return
	}
	if o.latch.Fire() {
		o.log.WithField("topic", topic).Infof("First message after %s", latency)
		if o.recorder != nil {
			o.recorder.FirstMessage(topic, latency)
		}
	}
}

// WaitForFirstMessage blocks until a message has been delivered or
// timeout elapses. It reports whether a message arrived.
func (o *Observer) WaitForFirstMessage(timeout time.Duration) bool {
	return o.latch.Wait(timeout)
}

// Done is closed when the first message has been delivered.
func (o *Observer) Done() <-chan struct{} {
	return o.latch.Done()
}

// Close stops the listener goroutine and releases the subscription. It
// may be called more than once.
func (o *Observer) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.started = true
	cancel, group, sub := o.cancel, o.group, o.sub
	o.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	err := group.Wait()
	sub.Shutdown()
	return err
}

func (o *Observer) Topic() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.topic
}

// Received counts every delivery, including the first.
func (o *Observer) Received() uint64 {
	return atomic.LoadUint64(&o.received)
}

// FirstMessageAt is the zero time until a message has been delivered.
func (o *Observer) FirstMessageAt() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.firstAt
}
