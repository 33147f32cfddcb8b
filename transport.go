package wrpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zhiqiangxu/util"
	"go.uber.org/zap"
)

// ErrTransportClosed is returned by a Transport after Close.
var ErrTransportClosed = errors.New("wrpc: transport closed")

// Control is a lifecycle signal delivered in order with inbound messages.
type Control uint32

const (
	ControlOpen Control = iota + 1
	ControlClosed
	// ControlReceiverShutdown is reserved: it stops the client's receiver loop.
	ControlReceiverShutdown
)

func (c Control) String() string {
	switch c {
	case ControlOpen:
		return "open"
	case ControlClosed:
		return "closed"
	case ControlReceiverShutdown:
		return "receiver shutdown"
	}
	return fmt.Sprintf("control(%d)", uint32(c))
}

// EventKind tags an inbound Event.
type EventKind uint8

const (
	EventBinary EventKind = iota
	EventText
	EventControl
)

// Event is one item of a transport's inbound queue.
type Event struct {
	Kind    EventKind
	Data    []byte
	Text    string
	Control Control
}

// Transport is the duplex message transport a Client runs on.
type Transport interface {
	// Connect starts connecting. With block it returns once connected.
	Connect(ctx context.Context, block bool) error
	// Send writes one binary message.
	Send(payload []byte) error
	// Events is the inbound queue; it is closed after Close.
	Events() <-chan Event
	IsOpen() bool
	// InjectControl queues a control event behind pending inbound events.
	InjectControl(c Control) error
	Close() error
}

// MessageKind distinguishes binary and text messages of a MessageConn.
type MessageKind uint8

const (
	MessageBinary MessageKind = iota
	MessageText
)

// MessageConn is a connected, message oriented duplex stream.
// ReadMessage is called from one goroutine; WriteMessage may be called concurrently.
type MessageConn interface {
	ReadMessage() (MessageKind, []byte, error)
	WriteMessage(kind MessageKind, payload []byte) error
	Close() error
	RemoteAddr() net.Addr
}

// Dialer opens a MessageConn.
type Dialer func(ctx context.Context) (MessageConn, error)

// TransportConfig tunes DialTransport and the connections it dials.
type TransportConfig struct {
	EventBuffer       int           `toml:"eventBuffer"`
	WriteTimeout      time.Duration `toml:"writeTimeout"`
	ReadLimit         int64         `toml:"readLimit"`
	ReconnectMaxDelay time.Duration `toml:"reconnectMaxDelay"`
	NoReconnect       bool          `toml:"noReconnect"`
}

const (
	defaultEventBuffer       = 256
	defaultReconnectMaxDelay = time.Second
	defaultReadLimit         = 64 << 20
)

func (c *TransportConfig) init() {
	if c.EventBuffer <= 0 {
		c.EventBuffer = defaultEventBuffer
	}
	if c.ReconnectMaxDelay <= 0 {
		c.ReconnectMaxDelay = defaultReconnectMaxDelay
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = defaultReadLimit
	}
}

// DialTransport is a reconnecting Transport over any Dialer.
// It emits ControlOpen after every successful dial and ControlClosed when
// the connection is lost.
type DialTransport struct {
	dial   Dialer
	config TransportConfig
	events chan Event

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	mu      sync.Mutex
	conn    MessageConn
	running bool
	opened  chan struct{}

	open atomic.Bool

	closeMu sync.RWMutex
	closed  bool
}

// NewDialTransport returns a transport that connects through dial.
func NewDialTransport(dial Dialer, config TransportConfig) *DialTransport {
	config.init()
	ctx, cancelFunc := context.WithCancel(context.Background())
	return &DialTransport{
		dial:       dial,
		config:     config,
		events:     make(chan Event, config.EventBuffer),
		ctx:        ctx,
		cancelFunc: cancelFunc,
		opened:     make(chan struct{}),
	}
}

func (t *DialTransport) Connect(ctx context.Context, block bool) (err error) {
	if t.ctx.Err() != nil {
		return ErrTransportClosed
	}

	t.mu.Lock()
	if t.running {
		opened := t.opened
		t.mu.Unlock()
		if !block {
			return
		}
		select {
		case <-opened:
		case <-ctx.Done():
			err = ctx.Err()
		case <-t.ctx.Done():
			err = ErrTransportClosed
		}
		return
	}

	var conn MessageConn
	if block {
		conn, err = t.dial(ctx)
		if err != nil {
			t.mu.Unlock()
			return fmt.Errorf("wrpc: dial: %w", err)
		}
	}
	t.running = true
	t.mu.Unlock()

	util.GoFunc(&t.wg, func() {
		t.session(conn)
	})
	return
}

// session owns the connection for the transport's lifetime, redialing with
// a capped exponential delay.
func (t *DialTransport) session(conn MessageConn) {
	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
	}()

	var tempDelay time.Duration
	for {
		if conn == nil {
			var err error
			conn, err = t.dial(t.ctx)
			if err != nil {
				if t.ctx.Err() != nil {
					return
				}
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := t.config.ReconnectMaxDelay; tempDelay > max {
					tempDelay = max
				}
				l.Warn("wrpc: dial", zap.Duration("retrying in", tempDelay), zap.Error(err))
				if !t.sleep(tempDelay) {
					return
				}
				continue
			}
		}
		tempDelay = 0

		t.mu.Lock()
		t.conn = conn
		t.open.Store(true)
		close(t.opened)
		t.mu.Unlock()
		t.emit(Event{Kind: EventControl, Control: ControlOpen})

		err := t.readLoop(conn)

		t.mu.Lock()
		t.conn = nil
		t.open.Store(false)
		t.opened = make(chan struct{})
		t.mu.Unlock()
		conn.Close()
		conn = nil
		t.emit(Event{Kind: EventControl, Control: ControlClosed})

		if t.ctx.Err() != nil {
			return
		}
		l.Info("wrpc: connection lost", zap.Error(err))
		if t.config.NoReconnect {
			return
		}
	}
}

func (t *DialTransport) readLoop(conn MessageConn) error {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		switch kind {
		case MessageBinary:
			t.emit(Event{Kind: EventBinary, Data: data})
		case MessageText:
			t.emit(Event{Kind: EventText, Text: string(data)})
		}
	}
}

func (t *DialTransport) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-t.ctx.Done():
		return false
	}
}

func (t *DialTransport) emit(ev Event) {
	select {
	case t.events <- ev:
	case <-t.ctx.Done():
	}
}

func (t *DialTransport) Send(payload []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.WriteMessage(MessageBinary, payload)
}

func (t *DialTransport) Events() <-chan Event { return t.events }

func (t *DialTransport) IsOpen() bool { return t.open.Load() }

func (t *DialTransport) InjectControl(c Control) error {
	t.closeMu.RLock()
	defer t.closeMu.RUnlock()
	if t.closed {
		return ErrTransportClosed
	}
	select {
	case t.events <- Event{Kind: EventControl, Control: c}:
		return nil
	case <-t.ctx.Done():
		return ErrTransportClosed
	}
}

// Close drops the connection, stops redialing and closes Events.
// A Client on this transport should be shut down first.
func (t *DialTransport) Close() error {
	t.closeMu.RLock()
	closed := t.closed
	t.closeMu.RUnlock()
	if closed {
		return ErrTransportClosed
	}

	t.cancelFunc()
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	var err error
	if conn != nil {
		err = conn.Close()
	}
	t.wg.Wait()

	t.closeMu.Lock()
	if !t.closed {
		t.closed = true
		close(t.events)
	}
	t.closeMu.Unlock()
	return err
}
