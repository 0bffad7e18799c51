package rosmaster

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/edwinhayes/rcprobe/xmlrpc"
	"github.com/matryer/is"
)

type fakeSlave struct {
	updates chan []interface{}
}

func newFakeSlave(t *testing.T) (*httptest.Server, *fakeSlave) {
	s := &fakeSlave{updates: make(chan []interface{}, 10)}
	handler := xmlrpc.NewHandler(map[string]xmlrpc.Method{
		"publisherUpdate": func(callerID, topic string, publishers []interface{}) (interface{}, error) {
			s.updates <- publishers
			return result(statusSuccess, "", 0), nil
		},
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, s
}

func startMaster(t *testing.T) (*Master, string) {
	m := New()
	uri, err := m.Start("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(m.Shutdown)
	return m, uri
}

func call(t *testing.T, uri, method string, args ...interface{}) []interface{} {
	t.Helper()
	res, err := xmlrpc.Call(uri, method, args...)
	if err != nil {
		t.Fatalf("%s: %v", method, err)
	}
	return res.([]interface{})
}

func TestRegistrationAndPublisherUpdate(t *testing.T) {
	is := is.New(t)
	_, uri := startMaster(t)
	slave, fake := newFakeSlave(t)

	res := call(t, uri, "registerSubscriber", "/listener", "/ap/rc", "ardupilot_msgs/Rc", slave.URL)
	is.Equal(res[0], int32(1))
	is.Equal(len(res[2].([]interface{})), 0) // no publishers yet

	res = call(t, uri, "registerPublisher", "/talker", "/ap/rc", "ardupilot_msgs/Rc", "http://talker:1234/")
	is.Equal(res[0], int32(1))
	is.Equal(res[2], []interface{}{slave.URL})

	select {
	case pubs := <-fake.updates:
		is.Equal(pubs, []interface{}{"http://talker:1234/"})
	case <-time.After(5 * time.Second):
		t.Fatal("publisherUpdate not delivered")
	}

	res = call(t, uri, "getPublishedTopics", "/listener", "")
	is.Equal(res[2], []interface{}{[]interface{}{"/ap/rc", "ardupilot_msgs/Rc"}})

	res = call(t, uri, "lookupNode", "/listener", "/talker")
	is.Equal(res[2], "http://talker:1234/")

	res = call(t, uri, "unregisterPublisher", "/talker", "/ap/rc", "http://talker:1234/")
	is.Equal(res[2], int32(1))

	select {
	case pubs := <-fake.updates:
		is.Equal(len(pubs), 0)
	case <-time.After(5 * time.Second):
		t.Fatal("publisherUpdate after unregister not delivered")
	}

	res = call(t, uri, "getSystemState", "/listener")
	state := res[2].([]interface{})
	is.Equal(len(state[0].([]interface{})), 0) // publishers
	is.Equal(state[1], []interface{}{[]interface{}{"/ap/rc", []interface{}{"/listener"}}})
}

func TestParamAPI(t *testing.T) {
	is := is.New(t)
	_, uri := startMaster(t)

	call(t, uri, "setParam", "/rc_listener", "~topic", "ap/rc")
	res := call(t, uri, "getParam", "/rc_listener", "~topic")
	is.Equal(res[2], "ap/rc")

	res = call(t, uri, "hasParam", "/other", "/rc_listener/topic")
	is.Equal(res[2], true)

	res = call(t, uri, "searchParam", "/rc_listener/sub", "rc_listener")
	is.Equal(res[0], int32(1))
	is.Equal(res[2], "/rc_listener")

	res = call(t, uri, "getParamNames", "/x")
	is.Equal(res[2], []interface{}{"/rc_listener/topic"})

	res = call(t, uri, "deleteParam", "/rc_listener", "~topic")
	is.Equal(res[0], int32(1))
	res = call(t, uri, "getParam", "/rc_listener", "~topic")
	is.Equal(res[0], int32(-1))
}
