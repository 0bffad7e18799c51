package ros

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"time"

	modular "github.com/edwinhayes/logrus-modular"
	"github.com/edwinhayes/rcprobe/xmlrpc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// NodeOption customizes a node created by NewNode.
type NodeOption func(*nodeOptions)

type nodeOptions struct {
	logger        *logrus.Logger
	masterURI     string
	handleSignals bool
}

// WithLogger makes the node log through logger instead of the default
// logger.
func WithLogger(logger *logrus.Logger) NodeOption {
	return func(o *nodeOptions) { o.logger = logger }
}

// WithMasterURI overrides ROS_MASTER_URI. The __master special argument
// still takes precedence.
func WithMasterURI(uri string) NodeOption {
	return func(o *nodeOptions) { o.masterURI = uri }
}

// WithoutSignalHandler keeps the node from reacting to SIGINT. Use it
// when the embedding program owns signal handling.
func WithoutSignalHandler() NodeOption {
	return func(o *nodeOptions) { o.handleSignals = false }
}

// *defaultNode implements Node interface
type defaultNode struct {
	name           string
	namespace      string
	qualifiedName  string
	masterURI      string
	xmlrpcURI      string
	xmlrpcListener net.Listener
	xmlrpcHandler  *xmlrpc.Handler
	subscribers    map[string]*defaultSubscriber
	subMutex       sync.Mutex
	publishers     sync.Map
	jobChan        chan func()
	interruptChan  chan os.Signal
	log            modular.Logger
	ok             bool
	okMutex        sync.RWMutex
	done           chan struct{}
	stopOnce       sync.Once
	shutdownOnce   sync.Once
	waitGroup      sync.WaitGroup
	env            Environment
	hostname       string
	listenIP       string
	nameResolver   *NameResolver
	nonRosArgs     []string
}

func newDefaultNode(name string, args []string, opts ...NodeOption) (*defaultNode, error) {
	options := nodeOptions{handleSignals: true}
	for _, opt := range opts {
		opt(&options)
	}

	node := new(defaultNode)

	namespace, nodeName, err := qualifyNodeName(name)
	if err != nil {
		return nil, err
	}

	remapping, params, specials, rest := processArguments(args)

	node.env, err = loadEnvironment()
	if err != nil {
		return nil, err
	}

	node.name = nodeName
	if value, ok := specials["__name"]; ok {
		node.name = value
	}

	node.namespace = namespace
	if ns := node.env.Namespace; len(ns) > 0 {
		node.namespace = ns
	}
	if value, ok := specials["__ns"]; ok {
		node.namespace = value
	}
	node.namespace = canonicalizeName(node.namespace + Sep)
	if node.namespace != GlobalNS {
		node.namespace += Sep
	}
	if !isValidNamespace(node.namespace) {
		return nil, errors.Errorf("invalid namespace %q", node.namespace)
	}
	if value, ok := specials["__log"]; ok {
		node.env.LogDir = value
	}

	var onlyLocalhost bool
	node.hostname, onlyLocalhost = determineHost()
	if value, ok := specials["__hostname"]; ok {
		node.hostname = value
		onlyLocalhost = (value == "localhost")
	} else if value, ok := specials["__ip"]; ok {
		node.hostname = value
		onlyLocalhost = isLoopbackHost(value)
	}
	if onlyLocalhost {
		node.listenIP = "127.0.0.1"
	} else {
		node.listenIP = "0.0.0.0"
	}

	node.masterURI = node.env.MasterURI
	if options.masterURI != "" {
		node.masterURI = options.masterURI
	}
	if value, ok := specials["__master"]; ok {
		node.masterURI = value
	}

	node.nameResolver = newNameResolver(node.namespace, node.name, remapping)
	node.nonRosArgs = rest

	node.qualifiedName = node.namespace + node.name
	node.subscribers = make(map[string]*defaultSubscriber)
	node.jobChan = make(chan func(), 100)
	node.done = make(chan struct{})
	node.ok = true

	log := Submodule(RootLogger(options.logger), "ros").WithField("node", node.qualifiedName)
	node.log = log

	if options.handleSignals {
		node.interruptChan = make(chan os.Signal, 1)
		signal.Notify(node.interruptChan, os.Interrupt)
		go func() {
			select {
			case <-node.interruptChan:
				log.Info("Interrupted")
				node.stop()
			case <-node.done:
			}
		}()
	}

	log.Debugf("Master URI = %s", node.masterURI)

	// Set parameters set by arguments
	for k, v := range params {
		key := node.nameResolver.resolve(PrivateNS + k)
		if _, err := callRosAPI(node.masterURI, "setParam", node.qualifiedName, key, parseParamValue(v)); err != nil {
			node.stop()
			return nil, errors.Wrapf(err, "set param %s", key)
		}
	}

	listener, err := listenRandomPort(node.listenIP, 10)
	if err != nil {
		node.stop()
		return nil, err
	}
	_, port, err := net.SplitHostPort(listener.Addr().String())
	if err != nil {
		listener.Close()
		node.stop()
		return nil, err
	}
	node.xmlrpcURI = fmt.Sprintf("http://%s/", net.JoinHostPort(node.hostname, port))
	log.Debugf("listen on http://%s", listener.Addr().String())
	node.xmlrpcListener = listener
	m := map[string]xmlrpc.Method{
		"getBusStats":      func(callerID string) (interface{}, error) { return node.getBusStats(callerID) },
		"getBusInfo":       func(callerID string) (interface{}, error) { return node.getBusInfo(callerID) },
		"getMasterUri":     func(callerID string) (interface{}, error) { return node.getMasterURI(callerID) },
		"shutdown":         func(callerID string, msg string) (interface{}, error) { return node.shutdown(callerID, msg) },
		"getPid":           func(callerID string) (interface{}, error) { return node.getPid(callerID) },
		"getSubscriptions": func(callerID string) (interface{}, error) { return node.getSubscriptions(callerID) },
		"getPublications":  func(callerID string) (interface{}, error) { return node.getPublications(callerID) },
		"paramUpdate": func(callerID string, key string, value interface{}) (interface{}, error) {
			return node.paramUpdate(callerID, key, value)
		},
		"publisherUpdate": func(callerID string, topic string, publishers []interface{}) (interface{}, error) {
			return node.publisherUpdate(callerID, topic, publishers)
		},
		"requestTopic": func(callerID string, topic string, protocols []interface{}) (interface{}, error) {
			return node.requestTopic(callerID, topic, protocols)
		},
	}
	node.xmlrpcHandler = xmlrpc.NewHandler(m).WithLogger(Submodule(log, "xmlrpc").WithField("node", node.qualifiedName))
	go func() {
		_ = http.Serve(node.xmlrpcListener, node.xmlrpcHandler)
	}()
	log.Debugf("Started %s", node.qualifiedName)
	return node, nil
}

func (node *defaultNode) OK() bool {
	node.okMutex.RLock()
	defer node.okMutex.RUnlock()
	return node.ok
}

// stop marks the node as no longer OK and releases spinners.
func (node *defaultNode) stop() {
	node.stopOnce.Do(func() {
		node.okMutex.Lock()
		node.ok = false
		node.okMutex.Unlock()
		close(node.done)
		if node.interruptChan != nil {
			signal.Stop(node.interruptChan)
		}
	})
}

func (node *defaultNode) Name() string {
	return node.qualifiedName
}

func (node *defaultNode) getBusStats(callerID string) (interface{}, error) {
	return buildRosAPIResult(APIStatusError, "Not implemented", 0), nil
}

func (node *defaultNode) getBusInfo(callerID string) (interface{}, error) {
	return buildRosAPIResult(APIStatusError, "Not implemented", 0), nil
}

func (node *defaultNode) getMasterURI(callerID string) (interface{}, error) {
	return buildRosAPIResult(APIStatusSuccess, "Success", node.masterURI), nil
}

func (node *defaultNode) shutdown(callerID string, msg string) (interface{}, error) {
	node.log.Infof("Shutdown requested by %s: %s", callerID, msg)
	node.stop()
	return buildRosAPIResult(APIStatusSuccess, "Success", 0), nil
}

func (node *defaultNode) getPid(callerID string) (interface{}, error) {
	return buildRosAPIResult(APIStatusSuccess, "Success", os.Getpid()), nil
}

func (node *defaultNode) getSubscriptions(callerID string) (interface{}, error) {
	result := []interface{}{}
	node.subMutex.Lock()
	for t, s := range node.subscribers {
		result = append(result, []interface{}{t, s.msgType.Name()})
	}
	node.subMutex.Unlock()
	return buildRosAPIResult(APIStatusSuccess, "Success", result), nil
}

func (node *defaultNode) getPublications(callerID string) (interface{}, error) {
	result := []interface{}{}
	node.publishers.Range(func(t interface{}, p interface{}) bool {
		result = append(result, []interface{}{t.(string), p.(*defaultPublisher).msgType.Name()})
		return true
	})
	return buildRosAPIResult(APIStatusSuccess, "Success", result), nil
}

func (node *defaultNode) paramUpdate(callerID string, key string, value interface{}) (interface{}, error) {
	return buildRosAPIResult(APIStatusError, "Not implemented", 0), nil
}

func (node *defaultNode) publisherUpdate(callerID string, topic string, publishers []interface{}) (interface{}, error) {
	node.log.Debugf("Slave API publisherUpdate(%s, %s) called.", callerID, topic)
	node.subMutex.Lock()
	sub, ok := node.subscribers[topic]
	node.subMutex.Unlock()
	if !ok {
		node.log.Debug("publisherUpdate() called without subscribing topic.")
		return buildRosAPIResult(APIStatusFailure, "No such topic", 0), nil
	}
	pubURIs, err := stringList(publishers)
	if err != nil {
		return buildRosAPIResult(APIStatusError, err.Error(), 0), nil
	}
	sub.updatePublishers(pubURIs)
	return buildRosAPIResult(APIStatusSuccess, "Success", 0), nil
}

func (node *defaultNode) requestTopic(callerID string, topic string, protocols []interface{}) (interface{}, error) {
	node.log.Debugf("Slave API requestTopic(%s, %s, ...) called.", callerID, topic)
	pub, ok := node.publishers.Load(topic)
	if !ok {
		node.log.Debug("requestTopic() called with not publishing topic.")
		return buildRosAPIResult(APIStatusFailure, "No such topic", nil), nil
	}
	for _, v := range protocols {
		protocolParams, ok := v.([]interface{})
		if !ok || len(protocolParams) == 0 {
			continue
		}
		if name, _ := protocolParams[0].(string); name != "TCPROS" {
			continue
		}
		host, portStr, err := pub.(*defaultPublisher).hostAndPort()
		if err != nil {
			return nil, err
		}
		port, err := strconv.ParseInt(portStr, 10, 32)
		if err != nil {
			return nil, err
		}
		return buildRosAPIResult(APIStatusSuccess, "Success", []interface{}{"TCPROS", host, int32(port)}), nil
	}
	return buildRosAPIResult(APIStatusFailure, "No supported protocol", []interface{}{}), nil
}

func (node *defaultNode) NewPublisher(topic string, msgType MessageType) (Publisher, error) {
	return node.NewPublisherWithCallbacks(topic, msgType, nil, nil)
}

func (node *defaultNode) NewPublisherWithCallbacks(topic string, msgType MessageType, connectCallback, disconnectCallback func(SingleSubscriberPublisher)) (Publisher, error) {
	if !node.OK() {
		return nil, errors.New("node is shut down")
	}
	if !isValidName(topic) {
		return nil, errors.Errorf("invalid topic name %q", topic)
	}
	name := node.nameResolver.remap(topic)
	if pub, ok := node.publishers.Load(name); ok {
		return pub.(*defaultPublisher), nil
	}

	pub, err := newDefaultPublisher(node, name, msgType, connectCallback, disconnectCallback)
	if err != nil {
		return nil, err
	}
	if _, err := callRosAPI(node.masterURI, "registerPublisher",
		node.qualifiedName,
		name, msgType.Name(),
		node.xmlrpcURI); err != nil {
		pub.listener.Close()
		return nil, errors.Wrapf(err, "register publisher for %s", name)
	}
	node.publishers.Store(name, pub)
	node.waitGroup.Add(1)
	go pub.start(&node.waitGroup)
	return pub, nil
}

func (node *defaultNode) RemovePublisher(topic string) {
	name := node.nameResolver.remap(topic)
	if pub, ok := node.publishers.Load(name); ok {
		pub.(*defaultPublisher).Shutdown()
		node.publishers.Delete(name)
	}
}

// RemoveSubscriber shuts down and deletes an existing topic subscriber.
func (node *defaultNode) RemoveSubscriber(topic string) {
	name := node.nameResolver.remap(topic)
	node.subMutex.Lock()
	sub, ok := node.subscribers[name]
	delete(node.subscribers, name)
	node.subMutex.Unlock()
	if ok {
		sub.Shutdown()
	}
}

func (node *defaultNode) NewSubscriber(topic string, msgType MessageType, callback interface{}) (Subscriber, error) {
	return node.NewSubscriberWithQoS(topic, msgType, DefaultQoS(), callback)
}

func (node *defaultNode) NewSubscriberWithQoS(topic string, msgType MessageType, qos QoSProfile, callback interface{}) (Subscriber, error) {
	if !node.OK() {
		return nil, errors.New("node is shut down")
	}
	if !isValidName(topic) {
		return nil, errors.Errorf("invalid topic name %q", topic)
	}
	if err := qos.Validate(); err != nil {
		return nil, err
	}
	if err := checkCallback(callback, msgType); err != nil {
		return nil, err
	}
	name := node.nameResolver.remap(topic)

	node.subMutex.Lock()
	defer node.subMutex.Unlock()
	if sub, ok := node.subscribers[name]; ok && !sub.isShutdown() {
		sub.addCallback(callback)
		return sub, nil
	}

	node.log.Debug("Call Master API registerSubscriber")
	result, err := callRosAPI(node.masterURI, "registerSubscriber",
		node.qualifiedName,
		name,
		msgType.Name(),
		node.xmlrpcURI)
	if err != nil {
		return nil, errors.Wrapf(err, "register subscriber for %s", name)
	}
	publishers, err := stringList(result)
	if err != nil {
		return nil, errors.Wrap(err, "registerSubscriber result")
	}
	node.log.Debugf("Publisher URI list: %v", publishers)

	sub := newDefaultSubscriber(name, msgType, qos, callback)
	node.subscribers[name] = sub

	node.log.Debugf("Start subscriber goroutine for topic '%s' with %s", sub.topic, qos)
	node.waitGroup.Add(1)
	go sub.start(&node.waitGroup, node.qualifiedName, node.xmlrpcURI, node.masterURI, node.jobChan, node.log)
	sub.updatePublishers(publishers)
	return sub, nil
}

func (node *defaultNode) SpinOnce() {
	timer := time.NewTimer(10 * time.Millisecond)
	defer timer.Stop()
	select {
	case job := <-node.jobChan:
		job()
	case <-timer.C:
	}
}

func (node *defaultNode) Spin() {
	_ = node.SpinContext(context.Background())
}

func (node *defaultNode) SpinContext(ctx context.Context) error {
	for node.OK() {
		select {
		case job := <-node.jobChan:
			job()
		case <-ctx.Done():
			return ctx.Err()
		case <-node.done:
			return nil
		}
	}
	return nil
}

func (node *defaultNode) Shutdown() {
	node.shutdownOnce.Do(node.shutdownNow)
}

func (node *defaultNode) shutdownNow() {
	log := node.log
	log.Debug("Shutting node down")
	node.stop()

	log.Debug("Shutdown subscribers")
	node.subMutex.Lock()
	subscribers := node.subscribers
	node.subscribers = make(map[string]*defaultSubscriber)
	node.subMutex.Unlock()
	for _, s := range subscribers {
		s.Shutdown()
	}

	log.Debug("Shutdown publishers")
	node.publishers.Range(func(key interface{}, value interface{}) bool {
		value.(*defaultPublisher).Shutdown()
		node.publishers.Delete(key)
		return true
	})

	log.Debug("Wait all goroutines")
	node.waitGroup.Wait()
	log.Debug("Close XMLRPC listener")
	node.xmlrpcListener.Close()
	node.xmlrpcHandler.WaitForShutdown()
	log.Debug("Shutting node down completed")
}

func (node *defaultNode) GetParam(key string) (interface{}, error) {
	name := node.nameResolver.remap(key)
	return callRosAPI(node.masterURI, "getParam", node.qualifiedName, name)
}

func (node *defaultNode) SetParam(key string, value interface{}) error {
	name := node.nameResolver.remap(key)
	_, err := callRosAPI(node.masterURI, "setParam", node.qualifiedName, name, value)
	return err
}

func (node *defaultNode) HasParam(key string) (bool, error) {
	name := node.nameResolver.remap(key)
	result, err := callRosAPI(node.masterURI, "hasParam", node.qualifiedName, name)
	if err != nil {
		return false, err
	}
	hasParam, ok := result.(bool)
	if !ok {
		return false, errors.Errorf("hasParam returned %T", result)
	}
	return hasParam, nil
}

func (node *defaultNode) SearchParam(key string) (string, error) {
	result, err := callRosAPI(node.masterURI, "searchParam", node.qualifiedName, key)
	if err != nil {
		return "", err
	}
	foundKey, ok := result.(string)
	if !ok {
		return "", errors.Errorf("searchParam returned %T", result)
	}
	return foundKey, nil
}

func (node *defaultNode) DeleteParam(key string) error {
	name := node.nameResolver.remap(key)
	_, err := callRosAPI(node.masterURI, "deleteParam", node.qualifiedName, name)
	return err
}

func (node *defaultNode) Logger() modular.Logger {
	return node.log
}

func (node *defaultNode) NonRosArgs() []string {
	return node.nonRosArgs
}
