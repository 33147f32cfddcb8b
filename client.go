package wrpc

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zhiqiangxu/util"
	"go.uber.org/zap"
)

// ClientConfig tunes a Client. Zero values take the defaults.
type ClientConfig struct {
	// SweepInterval is how often pending requests are checked for timeout.
	SweepInterval time.Duration `toml:"sweepInterval"`
	// Timeout is the age after which a pending request fails with ErrTimeout.
	Timeout time.Duration `toml:"timeout"`
	// Codecs selects the codec per op for Call; nil means NewCodecRegistry().
	Codecs *CodecRegistry `toml:"-"`
}

const (
	DefaultSweepInterval = 5 * time.Second
	DefaultTimeout       = 60 * time.Second
)

// Client correlates requests sent over a Transport with their responses.
//
// A pending request resolves exactly once, through its response or through
// the timeout sweeper. Losing the connection does not fail pending requests;
// they wait for the sweeper.
type Client struct {
	ridGen  uint64
	t       Transport
	codecs  *CodecRegistry
	pending *pendingTable

	timeout       atomic.Int64
	sweepInterval atomic.Int64

	stateMu sync.Mutex
	isOpen  atomic.Bool
	opened  chan struct{}

	startOnce       sync.Once
	shutdownMu      sync.Mutex
	wg              sync.WaitGroup
	receiverRunning atomic.Bool
	receiverDone    *trigger
	sweeperRunning  atomic.Bool
	sweeperShutdown reqRespTrigger

	observerMu sync.Mutex
	observer   chan Control
}

// NewClient returns a client on t. Background tasks start with Start or Connect.
func NewClient(t Transport, config ClientConfig) *Client {
	if config.Codecs == nil {
		config.Codecs = NewCodecRegistry()
	}
	c := &Client{
		t:               t,
		codecs:          config.Codecs,
		pending:         newPendingTable(),
		ridGen:          rand.Uint64(),
		opened:          make(chan struct{}),
		receiverDone:    newTrigger(),
		sweeperShutdown: newReqRespTrigger(),
	}
	c.SetTimeout(config.Timeout)
	c.SetSweepInterval(config.SweepInterval)
	return c
}

// Codecs returns the registry Call uses.
func (c *Client) Codecs() *CodecRegistry { return c.codecs }

// SetTimeout changes the timeout threshold; the next sweep uses it.
// d <= 0 restores DefaultTimeout.
func (c *Client) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultTimeout
	}
	c.timeout.Store(int64(d))
}

// SetSweepInterval changes the sweep period from the next tick on.
// d <= 0 restores DefaultSweepInterval.
func (c *Client) SetSweepInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultSweepInterval
	}
	c.sweepInterval.Store(int64(d))
}

// Pending returns the number of in-flight requests.
func (c *Client) Pending() int { return c.pending.len() }

// IsOpen reports the connection state last announced by the transport.
func (c *Client) IsOpen() bool { return c.isOpen.Load() }

// Start spawns the receiver loop and the timeout sweeper. It has no effect
// after the first call or after Shutdown.
func (c *Client) Start() {
	c.startOnce.Do(func() {
		c.sweeperRunning.Store(true)
		c.receiverRunning.Store(true)
		util.GoFunc(&c.wg, c.sweep)
		util.GoFunc(&c.wg, c.receive)
	})
}

// Connect starts the client and its transport. With block it returns once
// the receiver has seen the connection open.
func (c *Client) Connect(ctx context.Context, block bool) (err error) {
	c.Start()
	if err = c.t.Connect(ctx, block); err != nil {
		return
	}
	if !block {
		return
	}

	c.stateMu.Lock()
	opened := c.opened
	c.stateMu.Unlock()

	select {
	case <-opened:
	case <-ctx.Done():
		err = ctx.Err()
	case <-c.receiverDone.done():
		err = ErrNotConnected
	}
	return
}

func (c *Client) setOpen(open bool) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	was := c.isOpen.Swap(open)
	switch {
	case open && !was:
		close(c.opened)
	case !open && was:
		c.opened = make(chan struct{})
	}
}

// Observe registers a channel receiving every control event except the
// shutdown sentinel. Events that do not fit in buffer are dropped. A later
// call replaces the previous observer.
func (c *Client) Observe(buffer int) <-chan Control {
	ch := make(chan Control, buffer)
	c.observerMu.Lock()
	c.observer = ch
	c.observerMu.Unlock()
	return ch
}

func (c *Client) forward(ctl Control) {
	c.observerMu.Lock()
	ch := c.observer
	c.observerMu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- ctl:
	default:
		l.Debug("wrpc: control observer full, dropped", zap.Stringer("ctl", ctl))
	}
}

func (c *Client) nextRequestID() uint64 {
	return atomic.AddUint64(&c.ridGen, 1)
}

// DispatchWithCallback sends a request and returns once it is written.
// cb is invoked later, exactly once, with the response or an error. If the
// send itself fails the error is returned and cb is not invoked.
func (c *Client) DispatchWithCallback(op Op, payload []byte, cb Callback) error {
	if !c.isOpen.Load() {
		return ErrNotConnected
	}

	now := time.Now()
	id := c.nextRequestID()
	for {
		err := c.pending.insert(id, now, cb)
		if err == nil {
			break
		}
		if err != errIDInUse {
			return err
		}
		l.Warn("wrpc: request id collision", zap.Uint64("requestID", id))
		id = c.nextRequestID()
	}

	err := c.t.Send(RequestFrame{ID: id, Op: op, Payload: payload}.Encode())
	if err != nil {
		// the sweeper may have resolved the row while Send blocked
		if _, ok := c.pending.remove(id); !ok {
			l.Debug("wrpc: send failed after request resolved", zap.Uint64("requestID", id), zap.Error(err))
			return nil
		}
		return fmt.Errorf("wrpc: send: %w", err)
	}
	return nil
}

type dispatchResult struct {
	payload []byte
	err     error
}

// DispatchAwait sends a request and waits for its response, a server error
// or the timeout.
func (c *Client) DispatchAwait(op Op, payload []byte) ([]byte, error) {
	done := make(chan dispatchResult, 1)
	err := c.DispatchWithCallback(op, payload, func(payload []byte, err error) {
		done <- dispatchResult{payload: payload, err: err}
	})
	if err != nil {
		return nil, err
	}
	r := <-done
	return r.payload, r.err
}

// Call encodes req with the codec registered for op, dispatches it and
// decodes the response payload into Resp.
func Call[Req, Resp any](c *Client, op Op, req Req) (resp Resp, err error) {
	codec, ok := c.codecs.Lookup(op)
	if !ok {
		err = &SerializeError{Op: op, Err: errors.New("no codec registered")}
		return
	}
	data, err := codec.Marshal(req)
	if err != nil {
		err = &SerializeError{Op: op, Err: err}
		return
	}

	payload, err := c.DispatchAwait(op, data)
	if err != nil {
		return
	}

	if err = codec.Unmarshal(payload, &resp); err != nil {
		err = &DeserializeError{Op: op, Err: err}
	}
	return
}

// CallWithCallback is the callback form of Call. Decode failures reach cb as
// *DeserializeError.
func CallWithCallback[Req, Resp any](c *Client, op Op, req Req, cb func(Resp, error)) error {
	codec, ok := c.codecs.Lookup(op)
	if !ok {
		return &SerializeError{Op: op, Err: errors.New("no codec registered")}
	}
	data, err := codec.Marshal(req)
	if err != nil {
		return &SerializeError{Op: op, Err: err}
	}

	return c.DispatchWithCallback(op, data, func(payload []byte, err error) {
		var resp Resp
		if err == nil {
			if uerr := codec.Unmarshal(payload, &resp); uerr != nil {
				err = &DeserializeError{Op: op, Err: uerr}
			}
		}
		cb(resp, err)
	})
}

func (c *Client) onIncomingFrame(raw []byte) {
	frame, err := DecodeResponse(raw)
	if err != nil {
		l.Error("wrpc: failed to decode response", zap.Int("#bytes", len(raw)), zap.Error(err))
		return
	}

	cb, ok := c.pending.remove(frame.ID)
	if !ok {
		l.Debug("wrpc: dropped response",
			zap.Uint64("requestID", frame.ID),
			zap.Uint32("status", uint32(frame.Status)),
			zap.Int("#payload", len(frame.Payload)))
		return
	}

	switch frame.Status {
	case StatusSuccess:
		cb(frame.Payload, nil)
	case StatusError:
		re := new(ResponseError)
		if err := re.UnmarshalBinary(frame.Payload); err != nil {
			l.Debug("wrpc: undecodable response error", zap.Uint64("requestID", frame.ID), zap.Error(err))
			cb(nil, ErrResponseDecode)
			return
		}
		cb(nil, re)
	default:
		cb(nil, &StatusCodeError{Code: frame.Status})
	}
}
