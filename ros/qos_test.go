package ros

import (
	"testing"
	"time"
)

func eventWith(b byte) messageEvent {
	return messageEvent{bytes: []byte{b}}
}

func TestQoSValidate(t *testing.T) {
	tests := []struct {
		qos   QoSProfile
		valid bool
	}{
		{DefaultQoS(), true},
		{SensorDataQoS(), true},
		{QoSProfile{Reliability: Reliable, History: KeepAll}, true},
		{QoSProfile{Reliability: BestEffort, History: KeepLast, Depth: 0}, false},
		{QoSProfile{Reliability: Reliability(7), History: KeepLast, Depth: 1}, false},
		{QoSProfile{Reliability: Reliable, History: History(9), Depth: 1}, false},
	}
	for _, tt := range tests {
		if err := tt.qos.Validate(); (err == nil) != tt.valid {
			t.Errorf("%s: valid=%v, err=%v", tt.qos, tt.valid, err)
		}
	}
}

func TestSensorDataQoS(t *testing.T) {
	q := SensorDataQoS()
	if q.Reliability != BestEffort || q.History != KeepLast || q.Depth != 1 {
		t.Errorf("unexpected profile %s", q)
	}
	if q.String() != "best_effort/keep_last(1)" {
		t.Error(q.String())
	}
}

func TestBestEffortQueueKeepsNewest(t *testing.T) {
	q := newDeliveryQueue(SensorDataQoS())
	quit := make(chan struct{})
	dropped := 0
	for i := byte(1); i <= 3; i++ {
		if q.push(eventWith(i), quit) {
			dropped++
		}
	}
	if dropped != 2 {
		t.Errorf("expected 2 drops, got %d", dropped)
	}
	if q.len() != 1 {
		t.Fatalf("expected 1 pending, got %d", q.len())
	}
	m, ok := q.pop()
	if !ok || m.bytes[0] != 3 {
		t.Errorf("expected newest item 3, got %v", m.bytes)
	}
	if _, ok := q.pop(); ok {
		t.Error("queue should be empty")
	}
}

func TestReliableQueueBlocks(t *testing.T) {
	q := newDeliveryQueue(QoSProfile{Reliability: Reliable, History: KeepLast, Depth: 1})
	quit := make(chan struct{})
	if q.push(eventWith(1), quit) {
		t.Fatal("first push dropped")
	}

	pushed := make(chan bool)
	go func() { pushed <- q.push(eventWith(2), quit) }()

	select {
	case <-pushed:
		t.Fatal("push into a full reliable queue did not block")
	case <-time.After(50 * time.Millisecond):
	}

	if m, _ := q.pop(); m.bytes[0] != 1 {
		t.Errorf("expected 1, got %v", m.bytes)
	}
	if dropped := <-pushed; dropped {
		t.Error("blocked push reported a drop")
	}
	if m, _ := q.pop(); m.bytes[0] != 2 {
		t.Errorf("expected 2, got %v", m.bytes)
	}

	q.push(eventWith(3), quit)
	go func() { pushed <- q.push(eventWith(4), quit) }()
	close(quit)
	if dropped := <-pushed; !dropped {
		t.Error("push abandoned by quit should report a drop")
	}
}

func TestKeepAllCapacity(t *testing.T) {
	q := QoSProfile{Reliability: Reliable, History: KeepAll}
	if q.capacity() != keepAllDepth {
		t.Error(q.capacity())
	}
}
