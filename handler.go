package wrpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownOp is returned by ServeMux for an op without a handler.
var ErrUnknownOp = errors.New("wrpc: unknown op")

// A Handler serves one request. A returned *ResponseError is sent to the
// client as is; any other error is sent as RespErrText.
type Handler interface {
	ServeWRPC(ctx context.Context, op Op, payload []byte) ([]byte, error)
}

type HandlerFunc func(ctx context.Context, op Op, payload []byte) ([]byte, error)

func (f HandlerFunc) ServeWRPC(ctx context.Context, op Op, payload []byte) ([]byte, error) {
	return f(ctx, op, payload)
}

// ServeMux is wrpc request multiplexer.
type ServeMux struct {
	mu sync.RWMutex
	m  map[Op]Handler
}

func NewServeMux() *ServeMux { return &ServeMux{} }

func (mux *ServeMux) HandleFunc(op Op, handler func(ctx context.Context, op Op, payload []byte) ([]byte, error)) {
	mux.Handle(op, HandlerFunc(handler))
}

func (mux *ServeMux) Handle(op Op, handler Handler) {
	if handler == nil {
		panic("wrpc: nil handler")
	}

	mux.mu.Lock()
	defer mux.mu.Unlock()

	if mux.m == nil {
		mux.m = make(map[Op]Handler)
	}
	if _, exist := mux.m[op]; exist {
		panic(fmt.Sprintf("wrpc: multiple registrations for op %d", uint32(op)))
	}

	mux.m[op] = handler
}

func (mux *ServeMux) ServeWRPC(ctx context.Context, op Op, payload []byte) ([]byte, error) {
	mux.mu.RLock()
	h, ok := mux.m[op]
	mux.mu.RUnlock()

	if !ok {
		return nil, ErrUnknownOp
	}
	return h.ServeWRPC(ctx, op, payload)
}

// TypedHandler adapts f to a Handler that decodes the request and encodes
// the response with codec.
func TypedHandler[Req, Resp any](codec Codec, f func(ctx context.Context, req Req) (Resp, error)) HandlerFunc {
	return func(ctx context.Context, op Op, payload []byte) ([]byte, error) {
		var req Req
		if err := codec.Unmarshal(payload, &req); err != nil {
			return nil, &ResponseError{Kind: RespErrReqDeserialize}
		}
		resp, err := f(ctx, req)
		if err != nil {
			return nil, err
		}
		data, err := codec.Marshal(resp)
		if err != nil {
			return nil, &ResponseError{Kind: RespErrRespSerialize}
		}
		return data, nil
	}
}

// BorshHandler serves borsh encoded requests. Requests on any op other
// than OpBorsh fail with RespErrNonBorshRequest.
func BorshHandler[Req, Resp any](f func(ctx context.Context, req Req) (Resp, error)) HandlerFunc {
	h := TypedHandler(BorshCodec{}, f)
	return func(ctx context.Context, op Op, payload []byte) ([]byte, error) {
		if op != OpBorsh {
			return nil, &ResponseError{Kind: RespErrNonBorshRequest}
		}
		return h(ctx, op, payload)
	}
}

// JSONHandler serves JSON encoded requests. Requests on any op other than
// OpSerde fail with RespErrNonSerdeRequest.
func JSONHandler[Req, Resp any](f func(ctx context.Context, req Req) (Resp, error)) HandlerFunc {
	h := TypedHandler(JSONCodec{}, f)
	return func(ctx context.Context, op Op, payload []byte) ([]byte, error) {
		if op != OpSerde {
			return nil, &ResponseError{Kind: RespErrNonSerdeRequest}
		}
		return h(ctx, op, payload)
	}
}
