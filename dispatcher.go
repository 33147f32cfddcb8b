package wrpc

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/zhiqiangxu/util"
	"go.uber.org/zap"
)

// Dispatcher serves requests arriving on a connection with a Handler.
type Dispatcher struct {
	h      Handler
	config ServerConfig
}

// NewDispatcher returns a dispatcher for h.
func NewDispatcher(h Handler, config ServerConfig) *Dispatcher {
	return &Dispatcher{h: h, config: config}
}

// ServeConn reads requests from conn until it fails or ctx is done, serving
// each on its own goroutine. It waits for those goroutines before returning
// the read error. conn is not closed.
func (d *Dispatcher) ServeConn(ctx context.Context, conn MessageConn) (err error) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		var (
			kind MessageKind
			raw  []byte
		)
		kind, raw, err = conn.ReadMessage()
		if err != nil {
			return
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if kind != MessageBinary {
			l.Debug("wrpc: ignored text message", zap.Stringer("remote", conn.RemoteAddr()))
			continue
		}
		util.GoFunc(&wg, func() {
			d.handleMessage(ctx, conn, raw)
		})
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, conn MessageConn, raw []byte) {
	req, err := DecodeRequest(raw)
	if err != nil {
		l.Error("wrpc: malformed request",
			zap.Stringer("remote", conn.RemoteAddr()),
			zap.Int("#bytes", len(raw)),
			zap.Error(err))
		// the id is still recoverable, so the caller need not wait for its timeout
		if len(raw) >= 8 {
			d.respondError(conn, binary.LittleEndian.Uint64(raw), &ResponseError{Kind: RespErrMalformed})
		}
		return
	}

	payload, err := d.h.ServeWRPC(ctx, req.Op, req.Payload)
	if errors.Is(err, ErrUnknownOp) {
		l.Error("wrpc: invalid request op",
			zap.Uint32("op", uint32(req.Op)),
			zap.Uint64("requestID", req.ID),
			zap.Stringer("remote", conn.RemoteAddr()))
		if d.config.RejectUnknownOps {
			d.respondError(conn, req.ID, &ResponseError{Kind: RespErrUnknownOp})
		}
		return
	}
	if err != nil {
		d.respondError(conn, req.ID, toResponseError(err))
		return
	}

	d.write(conn, ResponseFrame{ID: req.ID, Status: StatusSuccess, Payload: payload})
}

func (d *Dispatcher) respondError(conn MessageConn, id uint64, re *ResponseError) {
	data, err := re.MarshalBinary()
	if err != nil {
		l.Error("wrpc: response error serialize", zap.Uint64("requestID", id), zap.Error(err))
		return
	}
	d.write(conn, ResponseFrame{ID: id, Status: StatusError, Payload: data})
}

// write does not retry; failures are only logged.
func (d *Dispatcher) write(conn MessageConn, frame ResponseFrame) {
	if err := conn.WriteMessage(MessageBinary, frame.Encode()); err != nil {
		l.Debug("wrpc: sink error",
			zap.Uint64("requestID", frame.ID),
			zap.Stringer("remote", conn.RemoteAddr()),
			zap.Error(err))
	}
}
