package wrpc

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// memTransport is a Transport whose peer is the test itself.
type memTransport struct {
	events chan Event
	sent   chan []byte
	open   atomic.Bool

	mu        sync.Mutex
	injectErr error
	sendErr   error
	sendDelay time.Duration
	closeOnce sync.Once
}

func newMemTransport() *memTransport {
	return &memTransport{
		events: make(chan Event, 1024),
		sent:   make(chan []byte, 1024),
	}
}

func (t *memTransport) Connect(ctx context.Context, block bool) error {
	t.open.Store(true)
	t.events <- Event{Kind: EventControl, Control: ControlOpen}
	return nil
}

func (t *memTransport) Send(payload []byte) error {
	t.mu.Lock()
	err, delay := t.sendErr, t.sendDelay
	t.mu.Unlock()
	time.Sleep(delay)
	if err != nil {
		return err
	}
	t.sent <- append([]byte(nil), payload...)
	return nil
}

func (t *memTransport) Events() <-chan Event { return t.events }

func (t *memTransport) IsOpen() bool { return t.open.Load() }

func (t *memTransport) InjectControl(c Control) error {
	t.mu.Lock()
	err := t.injectErr
	t.mu.Unlock()
	if err != nil {
		return err
	}
	t.events <- Event{Kind: EventControl, Control: c}
	return nil
}

func (t *memTransport) Close() error {
	t.closeOnce.Do(func() { close(t.events) })
	return nil
}

func (t *memTransport) setInjectErr(err error) {
	t.mu.Lock()
	t.injectErr = err
	t.mu.Unlock()
}

func (t *memTransport) setSendErr(err error) {
	t.mu.Lock()
	t.sendErr = err
	t.mu.Unlock()
}

// setSlowSendErr makes Send block for delay before failing with err.
func (t *memTransport) setSlowSendErr(delay time.Duration, err error) {
	t.mu.Lock()
	t.sendErr, t.sendDelay = err, delay
	t.mu.Unlock()
}

// respond delivers a response frame as if the server had sent it.
func (t *memTransport) respond(id uint64, status Status, payload []byte) {
	t.events <- Event{Kind: EventBinary, Data: ResponseFrame{ID: id, Status: status, Payload: payload}.Encode()}
}

// nextRequest waits for the client to send a request.
func (t *memTransport) nextRequest(tb testing.TB) RequestFrame {
	tb.Helper()
	select {
	case raw := <-t.sent:
		req, err := DecodeRequest(raw)
		if err != nil {
			tb.Fatalf("DecodeRequest: %v", err)
		}
		return req
	case <-time.After(5 * time.Second):
		tb.Fatalf("no request sent")
	}
	return RequestFrame{}
}

// echo answers every request with its own payload until stop is closed.
func (t *memTransport) echo(stop <-chan struct{}) {
	for {
		select {
		case raw := <-t.sent:
			req, err := DecodeRequest(raw)
			if err != nil {
				continue
			}
			t.respond(req.ID, StatusSuccess, req.Payload)
		case <-stop:
			return
		}
	}
}

func newConnectedClient(tb testing.TB, config ClientConfig) (*Client, *memTransport) {
	tb.Helper()
	mt := newMemTransport()
	c := NewClient(mt, config)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx, true); err != nil {
		tb.Fatalf("Connect: %v", err)
	}
	tb.Cleanup(func() {
		mt.setInjectErr(nil)
		if err := c.Shutdown(); err != nil {
			tb.Errorf("Shutdown: %v", err)
		}
	})
	return c, mt
}

// syncReceiver waits until the receiver has processed everything queued before it.
func syncReceiver(tb testing.TB, c *Client, mt *memTransport, observer <-chan Control) {
	tb.Helper()
	const marker Control = 0xbeef
	if err := mt.InjectControl(marker); err != nil {
		tb.Fatalf("InjectControl: %v", err)
	}
	for {
		select {
		case ctl := <-observer:
			if ctl == marker {
				return
			}
		case <-time.After(5 * time.Second):
			tb.Fatalf("receiver did not reach marker")
		}
	}
}

func waitFor(tb testing.TB, what string, cond func() bool) {
	tb.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			tb.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }

// memConn is a MessageConn fed by a channel.
type memConn struct {
	in        chan []byte
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	writeErr  error
}

func newMemConn() *memConn {
	return &memConn{
		in:     make(chan []byte, 64),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *memConn) ReadMessage() (MessageKind, []byte, error) {
	select {
	case m, ok := <-c.in:
		if !ok {
			return 0, nil, io.EOF
		}
		return MessageBinary, m, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *memConn) WriteMessage(kind MessageKind, payload []byte) error {
	if c.writeErr != nil {
		return c.writeErr
	}
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	c.out <- append([]byte(nil), payload...)
	return nil
}

func (c *memConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *memConn) RemoteAddr() net.Addr { return memAddr("mem") }

var errTest = errors.New("test failure")
