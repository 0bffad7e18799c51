package ros

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	modular "github.com/edwinhayes/logrus-modular"
	"github.com/pkg/errors"
)

// sessionQueueSize is the number of outgoing messages buffered per
// subscriber before the oldest is discarded.
const sessionQueueSize = 100

var errPublisherShutdown = errors.New("publisher is shut down")

type remoteSubscriberSessionError struct {
	session *remoteSubscriberSession
	err     error
}

func (e *remoteSubscriberSessionError) Error() string {
	return fmt.Sprintf("remoteSubscriberSession %s error: %v", e.session.conn.RemoteAddr(), e.err)
}

type defaultPublisher struct {
	node               *defaultNode
	topic              string
	msgType            MessageType
	msgChan            chan []byte
	shutdownChan       chan struct{}
	shutdownOnce       sync.Once
	sessions           map[*remoteSubscriberSession]struct{}
	sessionChan        chan *remoteSubscriberSession
	sessionErrorChan   chan error
	listenerErrorChan  chan error
	listener           net.Listener
	sessionGroup       sync.WaitGroup
	numSubscribers     int32
	connectCallback    func(SingleSubscriberPublisher)
	disconnectCallback func(SingleSubscriberPublisher)
	log                modular.Logger
}

func newDefaultPublisher(node *defaultNode,
	topic string, msgType MessageType,
	connectCallback, disconnectCallback func(SingleSubscriberPublisher)) (*defaultPublisher, error) {
	pub := new(defaultPublisher)
	pub.node = node
	pub.topic = topic
	pub.msgType = msgType
	pub.shutdownChan = make(chan struct{})
	pub.msgChan = make(chan []byte, 10)
	pub.listenerErrorChan = make(chan error, 1)
	pub.sessionChan = make(chan *remoteSubscriberSession, 10)
	pub.sessionErrorChan = make(chan error, 10)
	pub.sessions = make(map[*remoteSubscriberSession]struct{})
	pub.connectCallback = connectCallback
	pub.disconnectCallback = disconnectCallback
	pub.log = node.log.WithField("topic", topic)
	listener, err := listenRandomPort(node.listenIP, 10)
	if err != nil {
		return nil, errors.Wrapf(err, "listen for %s subscribers", topic)
	}
	pub.listener = listener
	return pub, nil
}

func (pub *defaultPublisher) start(wg *sync.WaitGroup) {
	logger := pub.log
	logger.Debug("Publisher goroutine started")
	defer func() {
		logger.Debug("Publisher goroutine exit")
		wg.Done()
	}()

	go pub.listenRemoteSubscriber()

	for {
		select {
		case msg := <-pub.msgChan:
			for session := range pub.sessions {
				enqueueDropOldest(session.msgChan, msg)
			}
		case err := <-pub.listenerErrorChan:
			logger.Warnf("Listener closed unexpectedly: %s", err)
			pub.Shutdown()
		case s := <-pub.sessionChan:
			pub.sessions[s] = struct{}{}
			pub.sessionGroup.Add(1)
			go s.start(&pub.sessionGroup)
		case err := <-pub.sessionErrorChan:
			logger.Debug(err)
			if sessionError, ok := err.(*remoteSubscriberSessionError); ok {
				delete(pub.sessions, sessionError.session)
			}
		case <-pub.shutdownChan:
			pub.listener.Close()
			if _, err := callRosAPI(pub.node.masterURI, "unregisterPublisher", pub.node.qualifiedName, pub.topic, pub.node.xmlrpcURI); err != nil {
				logger.Warn("unregisterPublisher: ", err)
			}
			for session := range pub.sessions {
				close(session.quitChan)
				delete(pub.sessions, session)
			}
			pub.sessionGroup.Wait()
			return
		}
	}
}

func (pub *defaultPublisher) listenRemoteSubscriber() {
	logger := pub.log
	logger.Debugf("Listening on %s", pub.listener.Addr().String())
	for {
		conn, err := pub.listener.Accept()
		if err != nil {
			select {
			case <-pub.shutdownChan:
			default:
				pub.listenerErrorChan <- err
			}
			return
		}
		logger.Debugf("Connected %s", conn.RemoteAddr().String())
		select {
		case pub.sessionChan <- newRemoteSubscriberSession(pub, conn):
		case <-pub.shutdownChan:
			conn.Close()
			return
		}
	}
}

func serializeMessage(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := msg.Serialize(&buf); err != nil {
		return nil, errors.Wrap(err, "serialize message")
	}
	return buf.Bytes(), nil
}

func (pub *defaultPublisher) Publish(msg Message) error {
	data, err := serializeMessage(msg)
	if err != nil {
		return err
	}
	select {
	case pub.msgChan <- data:
		return nil
	case <-pub.shutdownChan:
		return errPublisherShutdown
	}
}

func (pub *defaultPublisher) GetNumSubscribers() int {
	return int(atomic.LoadInt32(&pub.numSubscribers))
}

func (pub *defaultPublisher) Shutdown() {
	pub.shutdownOnce.Do(func() { close(pub.shutdownChan) })
}

func (pub *defaultPublisher) hostAndPort() (string, string, error) {
	_, port, err := net.SplitHostPort(pub.listener.Addr().String())
	if err != nil {
		return "", "", err
	}
	return pub.node.hostname, port, nil
}

// enqueueDropOldest never blocks. When ch is full its oldest element is
// discarded.
func enqueueDropOldest(ch chan []byte, msg []byte) {
	for {
		select {
		case ch <- msg:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

type remoteSubscriberSession struct {
	pub       *defaultPublisher
	conn      net.Conn
	quitChan  chan struct{}
	msgChan   chan []byte
	errorChan chan error
	log       modular.Logger
}

func newRemoteSubscriberSession(pub *defaultPublisher, conn net.Conn) *remoteSubscriberSession {
	return &remoteSubscriberSession{
		pub:       pub,
		conn:      conn,
		quitChan:  make(chan struct{}),
		msgChan:   make(chan []byte, sessionQueueSize),
		errorChan: pub.sessionErrorChan,
		log:       pub.log.WithField("remote", conn.RemoteAddr().String()),
	}
}

type singleSubPub struct {
	subName string
	topic   string
	msgChan chan []byte
}

func (ssp *singleSubPub) Publish(msg Message) error {
	data, err := serializeMessage(msg)
	if err != nil {
		return err
	}
	enqueueDropOldest(ssp.msgChan, data)
	return nil
}

func (ssp *singleSubPub) GetSubscriberName() string {
	return ssp.subName
}

func (ssp *singleSubPub) GetTopic() string {
	return ssp.topic
}

func (session *remoteSubscriberSession) start(wg *sync.WaitGroup) {
	defer wg.Done()
	logger := session.log

	finished := make(chan struct{})
	go func() {
		select {
		case <-session.quitChan:
		case <-finished:
		}
		session.conn.Close()
	}()

	err := session.serve()
	close(finished)
	if err == nil {
		err = errors.New("normal exit")
	}
	select {
	case session.errorChan <- &remoteSubscriberSessionError{session, err}:
	case <-session.quitChan:
	}
	logger.Debug("Session closed: ", err)
}

func (session *remoteSubscriberSession) serve() error {
	logger := session.log
	pub := session.pub
	typeName := pub.msgType.Name()
	md5sum := pub.msgType.MD5Sum()

	// 1. Read connection header
	headers, err := readConnectionHeader(session.conn)
	if err != nil {
		return errors.Wrap(err, "read connection header")
	}
	reqHeaders := headerMap(headers)

	if reqHeaders["type"] != typeName && reqHeaders["type"] != "*" {
		err := errors.Errorf("incompatible message type for topic %s: %s vs %s", pub.topic, typeName, reqHeaders["type"])
		_ = writeConnectionHeader([]header{{"error", err.Error()}}, session.conn)
		return err
	}
	if reqHeaders["md5sum"] != md5sum && reqHeaders["md5sum"] != "*" {
		err := errors.Errorf("incompatible message md5 for topic %s: %s vs %s", pub.topic, md5sum, reqHeaders["md5sum"])
		_ = writeConnectionHeader([]header{{"error", err.Error()}}, session.conn)
		return err
	}

	// 2. Return response header
	resHeaders := []header{
		{"message_definition", pub.msgType.Text()},
		{"callerid", pub.node.qualifiedName},
		{"latching", "0"},
		{"md5sum", md5sum},
		{"topic", pub.topic},
		{"type", typeName},
	}
	if err := writeConnectionHeader(resHeaders, session.conn); err != nil {
		return errors.Wrap(err, "write response header")
	}

	ssp := &singleSubPub{
		subName: reqHeaders["callerid"],
		topic:   pub.topic,
		msgChan: session.msgChan,
	}
	atomic.AddInt32(&pub.numSubscribers, 1)
	defer atomic.AddInt32(&pub.numSubscribers, -1)
	if pub.connectCallback != nil {
		go pub.connectCallback(ssp)
	}
	if pub.disconnectCallback != nil {
		defer pub.disconnectCallback(ssp)
	}
	logger.Debugf("Subscriber %s connected", ssp.subName)

	// 3. Start sending messages
	var frame bytes.Buffer
	for {
		select {
		case <-session.quitChan:
			return nil
		case msg := <-session.msgChan:
			frame.Reset()
			_ = binary.Write(&frame, binary.LittleEndian, uint32(len(msg)))
			frame.Write(msg)
			if _, err := session.conn.Write(frame.Bytes()); err != nil {
				return errors.Wrap(err, "write message")
			}
		}
	}
}
