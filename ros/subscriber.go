package ros

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	modular "github.com/edwinhayes/logrus-modular"
	"github.com/pkg/errors"
)

// maxMessageSize bounds the length prefix accepted from a publisher.
const maxMessageSize = 1 << 28

type messageEvent struct {
	bytes []byte
	event MessageEvent
}

var messageEventType = reflect.TypeOf(MessageEvent{})

// checkCallback verifies that callback can be invoked with messages of
// msgType.
func checkCallback(callback interface{}, msgType MessageType) error {
	if callback == nil {
		return errors.New("callback is nil")
	}
	ft := reflect.TypeOf(callback)
	if ft.Kind() != reflect.Func {
		return errors.Errorf("callback must be a function, got %s", ft)
	}
	if ft.IsVariadic() || ft.NumIn() > 2 {
		return errors.Errorf("callback takes at most 2 arguments, got %s", ft)
	}
	if ft.NumIn() >= 1 {
		msgT := reflect.TypeOf(msgType.NewMessage())
		if !msgT.AssignableTo(ft.In(0)) {
			return errors.Errorf("callback argument %s does not accept %s", ft.In(0), msgT)
		}
	}
	if ft.NumIn() == 2 && !messageEventType.AssignableTo(ft.In(1)) {
		return errors.Errorf("callback second argument must be MessageEvent, got %s", ft.In(1))
	}
	return nil
}

// The subscription object runs in own goroutine (start). pubList and
// connections are only touched from there.
type defaultSubscriber struct {
	topic            string
	msgType          MessageType
	qos              QoSProfile
	pubList          []string
	pubListChan      chan []string
	msgChan          chan messageEvent
	queue            *deliveryQueue
	callbacks        []interface{}
	callbackMutex    sync.Mutex
	shutdownChan     chan struct{}
	shutdownOnce     sync.Once
	connections      map[string]chan struct{}
	disconnectedChan chan string
	connGroup        sync.WaitGroup
	numPublishers    int32
	dropped          uint64
	scheduled        int32
}

func newDefaultSubscriber(topic string, msgType MessageType, qos QoSProfile, callback interface{}) *defaultSubscriber {
	sub := new(defaultSubscriber)
	sub.topic = topic
	sub.msgType = msgType
	sub.qos = qos
	sub.msgChan = make(chan messageEvent)
	sub.queue = newDeliveryQueue(qos)
	sub.pubListChan = make(chan []string, 10)
	sub.shutdownChan = make(chan struct{})
	sub.disconnectedChan = make(chan string, 10)
	sub.connections = make(map[string]chan struct{})
	sub.callbacks = []interface{}{callback}
	return sub
}

func (sub *defaultSubscriber) start(wg *sync.WaitGroup, nodeID string, nodeAPIURI string, masterURI string, jobChan chan func(), logger modular.Logger) {
	logger = logger.WithField("topic", sub.topic)
	logger.Debug("Subscriber goroutine started")
	defer func() {
		logger.Debug("Subscriber goroutine exit")
		wg.Done()
	}()
	for {
		select {
		case list := <-sub.pubListChan:
			deadPubs := setDifference(sub.pubList, list)
			newPubs := setDifference(list, sub.pubList)
			sub.pubList = list
			atomic.StoreInt32(&sub.numPublishers, int32(len(list)))

			for _, pub := range deadPubs {
				if quitChan, ok := sub.connections[pub]; ok {
					close(quitChan)
					delete(sub.connections, pub)
				}
			}
			for _, pub := range newPubs {
				uri, err := requestTCPROS(pub, nodeID, sub.topic)
				if err != nil {
					logger.Warnf("requestTopic to %s: %v", pub, err)
					continue
				}
				quitChan := make(chan struct{})
				sub.connections[pub] = quitChan
				sub.connGroup.Add(1)
				go func(pub string) {
					defer sub.connGroup.Done()
					sub.readPublisher(logger, pub, uri, nodeID, quitChan)
				}(pub)
			}
		case m := <-sub.msgChan:
			if sub.queue.push(m, sub.shutdownChan) {
				n := atomic.AddUint64(&sub.dropped, 1)
				logger.Debugf("Dropped pending message (%d total)", n)
			}
			sub.schedule(jobChan, logger)
		case pubURI := <-sub.disconnectedChan:
			logger.Debug("Connection disconnected to ", pubURI)
			if quitChan, ok := sub.connections[pubURI]; ok {
				close(quitChan)
				delete(sub.connections, pubURI)
			}
			// Forget the publisher so a later publisherUpdate reconnects.
			sub.pubList = setDifference(sub.pubList, []string{pubURI})
			atomic.StoreInt32(&sub.numPublishers, int32(len(sub.pubList)))
		case <-sub.shutdownChan:
			for pub, quitChan := range sub.connections {
				close(quitChan)
				delete(sub.connections, pub)
			}
			sub.connGroup.Wait()
			if _, err := callRosAPI(masterURI, "unregisterSubscriber", nodeID, sub.topic, nodeAPIURI); err != nil {
				logger.Warn("unregisterSubscriber: ", err)
			}
			return
		}
	}
}

// schedule enqueues a drain job unless one is already pending.
func (sub *defaultSubscriber) schedule(jobChan chan func(), logger modular.Logger) {
	if !atomic.CompareAndSwapInt32(&sub.scheduled, 0, 1) {
		return
	}
	job := func() { sub.drain(logger) }
	select {
	case jobChan <- job:
	case <-sub.shutdownChan:
	}
}

// drain runs on the spinning goroutine and hands every pending message
// to the callbacks.
func (sub *defaultSubscriber) drain(logger modular.Logger) {
	atomic.StoreInt32(&sub.scheduled, 0)
	sub.callbackMutex.Lock()
	callbacks := make([]interface{}, len(sub.callbacks))
	copy(callbacks, sub.callbacks)
	sub.callbackMutex.Unlock()

	for {
		if sub.isShutdown() {
			return
		}
		msgEvent, ok := sub.queue.pop()
		if !ok {
			return
		}
		m := sub.msgType.NewMessage()
		if err := m.Deserialize(bytes.NewReader(msgEvent.bytes)); err != nil {
			logger.Error("Failed to deserialize message: ", err)
		}
		args := []reflect.Value{reflect.ValueOf(m), reflect.ValueOf(msgEvent.event)}
		for _, callback := range callbacks {
			fun := reflect.ValueOf(callback)
			fun.Call(args[0:fun.Type().NumIn()])
		}
	}
}

func (sub *defaultSubscriber) updatePublishers(list []string) {
	select {
	case sub.pubListChan <- list:
	case <-sub.shutdownChan:
	}
}

func (sub *defaultSubscriber) addCallback(callback interface{}) {
	sub.callbackMutex.Lock()
	sub.callbacks = append(sub.callbacks, callback)
	sub.callbackMutex.Unlock()
}

// requestTCPROS negotiates a TCPROS endpoint with a publisher's slave API.
func requestTCPROS(pubURI string, nodeID string, topic string) (string, error) {
	protocols := []interface{}{[]interface{}{"TCPROS"}}
	result, err := callRosAPI(pubURI, "requestTopic", nodeID, topic, protocols)
	if err != nil {
		return "", err
	}
	protocolParams, ok := result.([]interface{})
	if !ok || len(protocolParams) < 3 {
		return "", errors.Errorf("unexpected protocol parameters %v", result)
	}
	if name, _ := protocolParams[0].(string); name != "TCPROS" {
		return "", errors.Errorf("unsupported protocol %v", protocolParams[0])
	}
	addr, ok := protocolParams[1].(string)
	if !ok {
		return "", errors.Errorf("unexpected address %v", protocolParams[1])
	}
	port, ok := protocolParams[2].(int32)
	if !ok {
		return "", errors.Errorf("unexpected port %v", protocolParams[2])
	}
	return net.JoinHostPort(addr, fmt.Sprint(port)), nil
}

// readPublisher streams messages from one publisher until quitChan is
// closed or the connection fails.
func (sub *defaultSubscriber) readPublisher(logger modular.Logger, pubURI string, addr string, nodeID string, quitChan chan struct{}) {
	logger = logger.WithField("publisher", pubURI)
	disconnected := func() {
		select {
		case sub.disconnectedChan <- pubURI:
		case <-quitChan:
		}
	}

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		logger.Warn("Failed to connect: ", err)
		disconnected()
		return
	}
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-quitChan:
		case <-finished:
		}
		conn.Close()
	}()

	md5sum := sub.msgType.MD5Sum()
	msgType := sub.msgType.Name()
	headers := []header{
		{"topic", sub.topic},
		{"md5sum", md5sum},
		{"type", msgType},
		{"callerid", nodeID},
	}
	if err := writeConnectionHeader(headers, conn); err != nil {
		logger.Warn("Failed to write connection header: ", err)
		disconnected()
		return
	}

	resHeaders, err := readConnectionHeader(conn)
	if err != nil {
		logger.Warn("Failed to read response header: ", err)
		disconnected()
		return
	}
	resHeaderMap := headerMap(resHeaders)
	if errMsg, ok := resHeaderMap["error"]; ok {
		logger.Error("Publisher refused connection: ", errMsg)
		disconnected()
		return
	}
	if md5sum != "*" && (resHeaderMap["type"] != msgType || resHeaderMap["md5sum"] != md5sum) {
		logger.Errorf("Incompatible message type: %s/%s, want %s/%s",
			resHeaderMap["type"], resHeaderMap["md5sum"], msgType, md5sum)
		disconnected()
		return
	}
	logger.Debug("Start receiving messages")
	event := MessageEvent{
		PublisherName:    resHeaderMap["callerid"],
		ConnectionHeader: resHeaderMap,
	}

	for {
		var msgSize uint32
		if err := binary.Read(conn, binary.LittleEndian, &msgSize); err != nil {
			sub.readFailed(logger, err, quitChan, disconnected)
			return
		}
		if msgSize > maxMessageSize {
			logger.Errorf("Message of %d bytes exceeds limit", msgSize)
			disconnected()
			return
		}
		buffer := make([]byte, int(msgSize))
		if _, err := io.ReadFull(conn, buffer); err != nil {
			sub.readFailed(logger, err, quitChan, disconnected)
			return
		}
		event.ReceiptTime = time.Now()
		select {
		case sub.msgChan <- messageEvent{bytes: buffer, event: event}:
		case <-quitChan:
			return
		}
	}
}

func (sub *defaultSubscriber) readFailed(logger modular.Logger, err error, quitChan chan struct{}, disconnected func()) {
	select {
	case <-quitChan:
		return
	default:
	}
	if err == io.EOF {
		logger.Debug("Publisher closed connection")
	} else {
		logger.Warn("Failed to read message: ", err)
	}
	disconnected()
}

func (sub *defaultSubscriber) isShutdown() bool {
	select {
	case <-sub.shutdownChan:
		return true
	default:
		return false
	}
}

func (sub *defaultSubscriber) Shutdown() {
	sub.shutdownOnce.Do(func() { close(sub.shutdownChan) })
}

func (sub *defaultSubscriber) GetTopic() string {
	return sub.topic
}

func (sub *defaultSubscriber) GetNumPublishers() int {
	return int(atomic.LoadInt32(&sub.numPublishers))
}

func (sub *defaultSubscriber) Dropped() uint64 {
	return atomic.LoadUint64(&sub.dropped)
}
