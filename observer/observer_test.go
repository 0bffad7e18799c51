package observer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/edwinhayes/rcprobe/msgs/ardupilot_msgs"
	"github.com/edwinhayes/rcprobe/ros"
	"github.com/matryer/is"
)

type fakeSubscriber struct {
	topic    string
	shutdown chan struct{}
	once     sync.Once
}

func (s *fakeSubscriber) GetTopic() string      { return s.topic }
func (s *fakeSubscriber) GetNumPublishers() int { return 0 }
func (s *fakeSubscriber) Dropped() uint64       { return 0 }
func (s *fakeSubscriber) Shutdown()             { s.once.Do(func() { close(s.shutdown) }) }

// fakeTransport routes published messages to subscribers of the same
// topic from the spinning goroutine, like a node does.
type fakeTransport struct {
	mu        sync.Mutex
	callbacks map[string][]func(ros.Message)
	subs      []*fakeSubscriber
	qos       []ros.QoSProfile
	jobs      chan func()
	subErr    error
	spinning  chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		callbacks: make(map[string][]func(ros.Message)),
		jobs:      make(chan func(), 100),
		spinning:  make(chan struct{}, 10),
	}
}

func (f *fakeTransport) NewSubscriberWithQoS(topic string, msgType ros.MessageType, qos ros.QoSProfile, callback interface{}) (ros.Subscriber, error) {
	if f.subErr != nil {
		return nil, f.subErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks[topic] = append(f.callbacks[topic], callback.(func(ros.Message)))
	f.qos = append(f.qos, qos)
	sub := &fakeSubscriber{topic: topic, shutdown: make(chan struct{})}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeTransport) SpinContext(ctx context.Context) error {
	f.spinning <- struct{}{}
	for {
		select {
		case job := <-f.jobs:
			job()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *fakeTransport) publish(topic string) {
	f.mu.Lock()
	callbacks := f.callbacks[topic]
	f.mu.Unlock()
	f.jobs <- func() {
		for _, cb := range callbacks {
			cb(new(ardupilot_msgs.Rc))
		}
	}
}

type countingRecorder struct {
	mu       sync.Mutex
	received int
	first    int
}

func (r *countingRecorder) MessageReceived(string) {
	r.mu.Lock()
	r.received++
	r.mu.Unlock()
}

func (r *countingRecorder) FirstMessage(string, time.Duration) {
	r.mu.Lock()
	r.first++
	r.mu.Unlock()
}

func startObserver(t *testing.T, transport *fakeTransport, opts ...Option) *Observer {
	t.Helper()
	o := New(transport, opts...)
	if err := o.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { o.Close() })
	return o
}

func TestDeliveriesFireOnce(t *testing.T) {
	is := is.New(t)
	transport := newFakeTransport()
	recorder := &countingRecorder{}
	o := startObserver(t, transport, WithRecorder(recorder))

	for i := 0; i < 3; i++ {
		transport.publish(DefaultTopic)
	}
	start := time.Now()
	is.True(o.WaitForFirstMessage(10 * time.Second))
	is.True(time.Since(start) < 5*time.Second) // returned on delivery, not at the timeout

	// Later waits return immediately and keep the outcome.
	is.True(o.WaitForFirstMessage(time.Millisecond))
	is.True(!o.FirstMessageAt().IsZero())

	deadline := time.Now().Add(5 * time.Second)
	for o.Received() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	is.Equal(o.Received(), uint64(3))
	recorder.mu.Lock()
	is.Equal(recorder.first, 1)
	is.Equal(recorder.received, 3)
	recorder.mu.Unlock()
}

func TestTimeoutWithoutDelivery(t *testing.T) {
	is := is.New(t)
	o := startObserver(t, newFakeTransport())

	timeout := 200 * time.Millisecond
	start := time.Now()
	is.True(!o.WaitForFirstMessage(timeout))
	is.True(time.Since(start) >= timeout) // never gives up early
	is.Equal(o.Received(), uint64(0))
	is.True(o.FirstMessageAt().IsZero())
}

func TestDuplicateDeliveriesDoNotBlock(t *testing.T) {
	is := is.New(t)
	o := New(newFakeTransport())
	for i := 0; i < 100; i++ {
		o.OnMessage(new(ardupilot_msgs.Rc))
	}
	first := o.FirstMessageAt()
	o.OnMessage(new(ardupilot_msgs.Rc))
	is.Equal(o.FirstMessageAt(), first)
	is.True(o.WaitForFirstMessage(0))
	is.True(o.WaitForFirstMessage(time.Second))
	is.Equal(o.Received(), uint64(101))
}

func TestTopicsAreIsolated(t *testing.T) {
	is := is.New(t)
	transport := newFakeTransport()
	rc := startObserver(t, transport)
	other := New(transport)
	is.NoErr(other.Configure("ap/battery"))
	is.NoErr(other.Start())
	defer other.Close()

	transport.publish("ap/battery")
	is.True(other.WaitForFirstMessage(5 * time.Second))
	is.True(!rc.WaitForFirstMessage(100 * time.Millisecond))
}

func TestStartUsesSensorDataQoS(t *testing.T) {
	is := is.New(t)
	transport := newFakeTransport()
	o := startObserver(t, transport)

	is.Equal(len(transport.qos), 1)
	is.Equal(transport.qos[0], ros.SensorDataQoS())
	is.Equal(transport.subs[0].topic, DefaultTopic)
	is.Equal(o.Start(), ErrStarted) // second Start is rejected
	is.Equal(len(transport.qos), 1)
	is.Equal(o.Configure("x"), ErrStarted)
}

func TestConfigure(t *testing.T) {
	is := is.New(t)
	o := New(newFakeTransport())
	is.Equal(o.Topic(), DefaultTopic)
	is.Equal(o.Configure(""), ErrEmptyTopic)
	is.Equal(o.Topic(), DefaultTopic)
	is.NoErr(o.Configure("custom/rc"))
	is.Equal(o.Topic(), "custom/rc")
}

type mapParams map[string]interface{}

func (m mapParams) HasParam(key string) (bool, error) {
	_, ok := m[key]
	return ok, nil
}

func (m mapParams) GetParam(key string) (interface{}, error) {
	return m[key], nil
}

func TestConfigureFromParams(t *testing.T) {
	is := is.New(t)
	tests := []struct {
		params mapParams
		want   string
	}{
		{mapParams{}, DefaultTopic},
		{mapParams{"~topic": "sitl/rc"}, "sitl/rc"},
		{mapParams{"~topic": ""}, DefaultTopic},
		{mapParams{"~topic": int32(3)}, DefaultTopic},
	}
	for _, tt := range tests {
		o := New(newFakeTransport())
		is.NoErr(o.ConfigureFromParams(tt.params))
		is.Equal(o.Topic(), tt.want)
	}
}

func TestStartSubscribeError(t *testing.T) {
	is := is.New(t)
	transport := newFakeTransport()
	transport.subErr = errors.New("master unreachable")
	o := New(transport)
	err := o.Start()
	is.True(err != nil)
	is.NoErr(o.Close())
}

func TestCloseReleasesListener(t *testing.T) {
	is := is.New(t)
	transport := newFakeTransport()
	o := New(transport)
	is.NoErr(o.Start())
	<-transport.spinning

	is.NoErr(o.Close())
	select {
	case <-transport.subs[0].shutdown:
	default:
		t.Fatal("subscription not shut down")
	}
	is.NoErr(o.Close()) // idempotent
	is.Equal(o.Start(), ErrStarted)
}
