// Package rosmaster is a minimal in-process ROS master. It tracks topic
// registrations, pushes publisherUpdate notifications to subscribers
// and serves the parameter server API.
package rosmaster

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	modular "github.com/edwinhayes/logrus-modular"
	"github.com/edwinhayes/rcprobe/xmlrpc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	statusError   int32 = -1
	statusFailure int32 = 0
	statusSuccess int32 = 1
)

// updateTimeout bounds a single publisherUpdate call to a subscriber.
const updateTimeout = 5 * time.Second

type Option func(*Master)

func WithLogger(log modular.Logger) Option {
	return func(m *Master) { m.log = log }
}

// Master is safe for concurrent use once started.
type Master struct {
	mu          sync.Mutex
	publishers  map[string]map[string]string // topic -> callerID -> API URI
	subscribers map[string]map[string]string
	topicTypes  map[string]string
	nodes       map[string]string
	params      *paramStore

	updates  chan publisherUpdate
	done     chan struct{}
	dispatch sync.WaitGroup

	listener net.Listener
	server   *http.Server
	uri      string
	log      modular.Logger
	stopOnce sync.Once
}

type publisherUpdate struct {
	topic       string
	subscribers []string
	publishers  []string
}

// xmlrpcLogger returns the xmlrpc child of log's module.
func xmlrpcLogger(log modular.Logger) modular.Logger {
	parent := log.GetModuleLogger()
	return parent.GetOrCreateChild("xmlrpc", parent.GetLevel())
}

func New(opts ...Option) *Master {
	m := &Master{
		publishers:  make(map[string]map[string]string),
		subscribers: make(map[string]map[string]string),
		topicTypes:  make(map[string]string),
		nodes:       make(map[string]string),
		params:      newParamStore(),
		updates:     make(chan publisherUpdate, 64),
		done:        make(chan struct{}),
		log:         modular.NewRootLogger(logrus.New()).GetOrCreateChild("rosmaster", logrus.InfoLevel),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start listens on addr (host:port, port may be 0) and returns the
// master URI.
func (m *Master) Start(addr string) (string, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", errors.Wrapf(err, "listen on %s", addr)
	}
	m.listener = listener
	m.uri = fmt.Sprintf("http://%s/", listener.Addr().String())

	handler := xmlrpc.NewHandler(m.methods()).WithLogger(xmlrpcLogger(m.log))
	m.server = &http.Server{Handler: handler}
	go func() {
		if err := m.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			m.log.Error("Serve: ", err)
		}
	}()

	m.dispatch.Add(1)
	go m.dispatchUpdates()
	m.log.Infof("Master listening on %s", m.uri)
	return m.uri, nil
}

func (m *Master) URI() string {
	return m.uri
}

// Shutdown stops serving and abandons undelivered publisher updates.
func (m *Master) Shutdown() {
	m.stopOnce.Do(func() {
		close(m.done)
		if m.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.server.Shutdown(ctx); err != nil {
				m.log.Warn("Shutdown: ", err)
			}
		}
		m.dispatch.Wait()
	})
}

func (m *Master) methods() map[string]xmlrpc.Method {
	return map[string]xmlrpc.Method{
		"registerPublisher": func(callerID, topic, topicType, callerAPI string) (interface{}, error) {
			return m.registerPublisher(callerID, topic, topicType, callerAPI), nil
		},
		"unregisterPublisher": func(callerID, topic, callerAPI string) (interface{}, error) {
			return m.unregisterPublisher(callerID, topic, callerAPI), nil
		},
		"registerSubscriber": func(callerID, topic, topicType, callerAPI string) (interface{}, error) {
			return m.registerSubscriber(callerID, topic, topicType, callerAPI), nil
		},
		"unregisterSubscriber": func(callerID, topic, callerAPI string) (interface{}, error) {
			return m.unregisterSubscriber(callerID, topic, callerAPI), nil
		},
		"lookupNode": func(callerID, nodeName string) (interface{}, error) {
			return m.lookupNode(callerID, nodeName), nil
		},
		"getPublishedTopics": func(callerID, subgraph string) (interface{}, error) {
			return m.getPublishedTopics(callerID, subgraph), nil
		},
		"getTopicTypes": func(callerID string) (interface{}, error) {
			return m.getTopicTypes(callerID), nil
		},
		"getSystemState": func(callerID string) (interface{}, error) {
			return m.getSystemState(callerID), nil
		},
		"getUri": func(callerID string) (interface{}, error) {
			return result(statusSuccess, "", m.uri), nil
		},
		"getPid": func(callerID string) (interface{}, error) {
			return result(statusSuccess, "", os.Getpid()), nil
		},
		"getParam": func(callerID, key string) (interface{}, error) {
			return m.getParam(callerID, key), nil
		},
		"setParam": func(callerID, key string, value interface{}) (interface{}, error) {
			return m.setParam(callerID, key, value), nil
		},
		"hasParam": func(callerID, key string) (interface{}, error) {
			return m.hasParam(callerID, key), nil
		},
		"deleteParam": func(callerID, key string) (interface{}, error) {
			return m.deleteParam(callerID, key), nil
		},
		"searchParam": func(callerID, key string) (interface{}, error) {
			return m.searchParam(callerID, key), nil
		},
		"getParamNames": func(callerID string) (interface{}, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			return result(statusSuccess, "", m.params.names()), nil
		},
	}
}

func result(code int32, message string, value interface{}) interface{} {
	return []interface{}{code, message, value}
}

func register(table map[string]map[string]string, topic, callerID, callerAPI string) {
	entries, ok := table[topic]
	if !ok {
		entries = make(map[string]string)
		table[topic] = entries
	}
	entries[callerID] = callerAPI
}

func unregister(table map[string]map[string]string, topic, callerID, callerAPI string) int {
	entries := table[topic]
	if api, ok := entries[callerID]; !ok || api != callerAPI {
		return 0
	}
	delete(entries, callerID)
	if len(entries) == 0 {
		delete(table, topic)
	}
	return 1
}

func apis(entries map[string]string) []string {
	list := make([]string, 0, len(entries))
	for _, api := range entries {
		list = append(list, api)
	}
	sort.Strings(list)
	return list
}

func callers(entries map[string]string) []string {
	list := make([]string, 0, len(entries))
	for caller := range entries {
		list = append(list, caller)
	}
	sort.Strings(list)
	return list
}

func (m *Master) registerPublisher(callerID, topic, topicType, callerAPI string) interface{} {
	topic = resolveKey(callerID, topic)
	m.mu.Lock()
	register(m.publishers, topic, callerID, callerAPI)
	m.nodes[callerID] = callerAPI
	if _, ok := m.topicTypes[topic]; !ok || topicType != "*" {
		m.topicTypes[topic] = topicType
	}
	subs := apis(m.subscribers[topic])
	m.queueUpdateLocked(topic)
	m.mu.Unlock()
	m.log.WithField("topic", topic).Debugf("Registered publisher %s", callerID)
	return result(statusSuccess, "Registered ["+callerID+"] as publisher of ["+topic+"]", subs)
}

func (m *Master) unregisterPublisher(callerID, topic, callerAPI string) interface{} {
	topic = resolveKey(callerID, topic)
	m.mu.Lock()
	n := unregister(m.publishers, topic, callerID, callerAPI)
	if n > 0 {
		m.queueUpdateLocked(topic)
	}
	m.mu.Unlock()
	return result(statusSuccess, fmt.Sprintf("Unregistered %d publisher(s)", n), n)
}

func (m *Master) registerSubscriber(callerID, topic, topicType, callerAPI string) interface{} {
	topic = resolveKey(callerID, topic)
	m.mu.Lock()
	register(m.subscribers, topic, callerID, callerAPI)
	m.nodes[callerID] = callerAPI
	if _, ok := m.topicTypes[topic]; !ok && topicType != "*" {
		m.topicTypes[topic] = topicType
	}
	pubs := apis(m.publishers[topic])
	m.mu.Unlock()
	m.log.WithField("topic", topic).Debugf("Registered subscriber %s", callerID)
	return result(statusSuccess, "Subscribed to ["+topic+"]", pubs)
}

func (m *Master) unregisterSubscriber(callerID, topic, callerAPI string) interface{} {
	topic = resolveKey(callerID, topic)
	m.mu.Lock()
	n := unregister(m.subscribers, topic, callerID, callerAPI)
	m.mu.Unlock()
	return result(statusSuccess, fmt.Sprintf("Unregistered %d subscriber(s)", n), n)
}

func (m *Master) lookupNode(callerID, nodeName string) interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if api, ok := m.nodes[resolveKey(callerID, nodeName)]; ok {
		return result(statusSuccess, "node api", api)
	}
	return result(statusError, "unknown node ["+nodeName+"]", "")
}

func (m *Master) getPublishedTopics(callerID, subgraph string) interface{} {
	prefix := ""
	if subgraph != "" {
		prefix = subtreePrefix(resolveKey(callerID, subgraph))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	topics := []interface{}{}
	for _, topic := range sortedKeys(m.publishers) {
		if len(topic) < len(prefix) || topic[:len(prefix)] != prefix {
			continue
		}
		topics = append(topics, []interface{}{topic, m.topicTypes[topic]})
	}
	return result(statusSuccess, "current topics", topics)
}

func (m *Master) getTopicTypes(callerID string) interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := []interface{}{}
	for _, topic := range sortedKeys(m.topicTypes) {
		types = append(types, []interface{}{topic, m.topicTypes[topic]})
	}
	return result(statusSuccess, "current system topic types", types)
}

func (m *Master) getSystemState(callerID string) interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := func(table map[string]map[string]string) []interface{} {
		list := []interface{}{}
		for _, topic := range sortedKeys(table) {
			list = append(list, []interface{}{topic, callers(table[topic])})
		}
		return list
	}
	return result(statusSuccess, "current system state",
		[]interface{}{state(m.publishers), state(m.subscribers), []interface{}{}})
}

func sortedKeys[V any](table map[string]V) []string {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Master) getParam(callerID, key string) interface{} {
	key = resolveKey(callerID, key)
	m.mu.Lock()
	defer m.mu.Unlock()
	v, err := m.params.get(key)
	if err != nil {
		return result(statusError, err.Error(), 0)
	}
	return result(statusSuccess, "Parameter ["+key+"]", v)
}

func (m *Master) setParam(callerID, key string, value interface{}) interface{} {
	key = resolveKey(callerID, key)
	m.mu.Lock()
	m.params.set(key, value)
	m.mu.Unlock()
	m.log.Debugf("Set parameter %s", key)
	return result(statusSuccess, "parameter "+key+" set", 0)
}

func (m *Master) hasParam(callerID, key string) interface{} {
	key = resolveKey(callerID, key)
	m.mu.Lock()
	defer m.mu.Unlock()
	return result(statusSuccess, key, m.params.has(key))
}

func (m *Master) deleteParam(callerID, key string) interface{} {
	key = resolveKey(callerID, key)
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.params.delete(key) {
		return result(statusError, "parameter ["+key+"] is not set", 0)
	}
	return result(statusSuccess, "parameter "+key+" deleted", 0)
}

func (m *Master) searchParam(callerID, key string) interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	found, ok := m.params.search(callerID, key)
	if !ok {
		return result(statusError, "search for ["+key+"] failed", "")
	}
	return result(statusSuccess, "Found ["+found+"]", found)
}

// queueUpdateLocked snapshots the publisher set of topic for delivery
// to its subscribers. m.mu must be held.
func (m *Master) queueUpdateLocked(topic string) {
	update := publisherUpdate{
		topic:       topic,
		subscribers: apis(m.subscribers[topic]),
		publishers:  apis(m.publishers[topic]),
	}
	if len(update.subscribers) == 0 {
		return
	}
	select {
	case m.updates <- update:
	case <-m.done:
	default:
		// The dispatcher is far behind. Deliver out of band so the
		// XML-RPC handler never blocks on it.
		go func() {
			select {
			case m.updates <- update:
			case <-m.done:
			}
		}()
	}
}

// dispatchUpdates delivers publisher updates in order. The subscribers
// of one update are notified concurrently.
func (m *Master) dispatchUpdates() {
	defer m.dispatch.Done()
	for {
		select {
		case <-m.done:
			return
		case update := <-m.updates:
			m.deliver(update)
		}
	}
}

func (m *Master) deliver(update publisherUpdate) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-m.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	publishers := make([]interface{}, len(update.publishers))
	for i, p := range update.publishers {
		publishers[i] = p
	}
	log := m.log.WithField("topic", update.topic)
	var g errgroup.Group
	for _, sub := range update.subscribers {
		sub := sub
		g.Go(func() error {
			callCtx, callCancel := context.WithTimeout(ctx, updateTimeout)
			defer callCancel()
			if _, err := xmlrpc.CallContext(callCtx, sub, "publisherUpdate", "/master", update.topic, publishers); err != nil {
				return errors.Wrapf(err, "publisherUpdate to %s", sub)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Warn(err)
	}
}
