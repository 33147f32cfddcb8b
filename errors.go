package wrpc

import (
	"errors"
	"fmt"

	"github.com/near/borsh-go"
)

var (
	// ErrNotConnected is returned by dispatch while the transport is not open.
	ErrNotConnected = errors.New("wrpc: not connected")
	// ErrTimeout resolves a call that saw no response within the timeout threshold.
	ErrTimeout = errors.New("wrpc: request timeout")
	// ErrReceiverCtl means the shutdown sentinel could not be injected.
	ErrReceiverCtl = errors.New("wrpc: receiver ctl failure")
	// ErrFrameTooSmall is returned when a frame is shorter than HeaderSize.
	ErrFrameTooSmall = errors.New("wrpc: frame smaller than header")
	// ErrResponseDecode means an error response carried an undecodable ResponseError.
	ErrResponseDecode = errors.New("wrpc: error deserializing response data")
	// ErrChannelClosed resolves calls still pending when the client shuts down.
	ErrChannelClosed = errors.New("wrpc: completion channel closed")
	// ErrSerialize is matched by every *SerializeError.
	ErrSerialize = errors.New("wrpc: serialize failure")
	// ErrDeserialize is matched by every *DeserializeError.
	ErrDeserialize = errors.New("wrpc: deserialize failure")
)

// StatusCodeError carries a status code the client does not know.
type StatusCodeError struct {
	Code Status
}

func (e *StatusCodeError) Error() string {
	return fmt.Sprintf("wrpc: status code %d", uint32(e.Code))
}

// SerializeError wraps a codec failure on the request side.
type SerializeError struct {
	Op  Op
	Err error
}

func (e *SerializeError) Error() string {
	return fmt.Sprintf("wrpc: %s serialize: %v", e.Op, e.Err)
}

func (e *SerializeError) Unwrap() error { return e.Err }

func (e *SerializeError) Is(target error) bool { return target == ErrSerialize }

// DeserializeError wraps a codec failure on the response side.
type DeserializeError struct {
	Op  Op
	Err error
}

func (e *DeserializeError) Error() string {
	return fmt.Sprintf("wrpc: %s deserialize: %v", e.Op, e.Err)
}

func (e *DeserializeError) Unwrap() error { return e.Err }

func (e *DeserializeError) Is(target error) bool { return target == ErrDeserialize }

// ResponseErrorKind enumerates server declared failures.
// The numeric values are the wire variant indexes and must not be reordered.
type ResponseErrorKind uint8

const (
	RespErrNoData ResponseErrorKind = iota
	RespErrNonBorshRequest
	RespErrNonSerdeRequest
	RespErrReqDeserialize
	RespErrRespSerialize
	RespErrData
	RespErrText
	RespErrUnknownOp
	RespErrMalformed
)

var responseErrorKindNames = [...]string{
	RespErrNoData:          "no data",
	RespErrNonBorshRequest: "non borsh request",
	RespErrNonSerdeRequest: "non serde request",
	RespErrReqDeserialize:  "request deserialize",
	RespErrRespSerialize:   "response serialize",
	RespErrData:            "data",
	RespErrText:            "text",
	RespErrUnknownOp:       "unknown op",
	RespErrMalformed:       "malformed request",
}

func (k ResponseErrorKind) String() string {
	if int(k) < len(responseErrorKindNames) {
		return responseErrorKindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ResponseError is the structured error a handler returns; it travels in
// the payload of a StatusError response.
type ResponseError struct {
	Kind ResponseErrorKind
	Data []byte // RespErrData only
	Text string // RespErrText only
}

// NewTextError returns a RespErrText error.
func NewTextError(format string, args ...any) *ResponseError {
	return &ResponseError{Kind: RespErrText, Text: fmt.Sprintf(format, args...)}
}

func (e *ResponseError) Error() string {
	switch e.Kind {
	case RespErrText:
		return "wrpc: response error: " + e.Text
	case RespErrData:
		return fmt.Sprintf("wrpc: response error: data(%d bytes)", len(e.Data))
	}
	return "wrpc: response error: " + e.Kind.String()
}

// Is reports whether target is a ResponseError of the same kind.
func (e *ResponseError) Is(target error) bool {
	t, ok := target.(*ResponseError)
	return ok && t.Kind == e.Kind
}

type wireBytes struct{ V []byte }

type wireText struct{ V string }

type wireUnit struct{}

// responseErrorWire is the borsh enum layout: one variant byte, then the variant body.
type responseErrorWire struct {
	Enum            borsh.Enum `borsh_enum:"true"`
	NoData          wireUnit
	NonBorshRequest wireUnit
	NonSerdeRequest wireUnit
	ReqDeserialize  wireUnit
	RespSerialize   wireUnit
	Data            wireBytes
	Text            wireText
	UnknownOp       wireUnit
	Malformed       wireUnit
}

// MarshalBinary encodes e as a borsh enum. borsh-go writes pointers as
// Option, so the wire struct goes by value.
func (e *ResponseError) MarshalBinary() ([]byte, error) {
	if int(e.Kind) >= len(responseErrorKindNames) {
		return nil, fmt.Errorf("wrpc: invalid response error kind %d", uint8(e.Kind))
	}
	w := responseErrorWire{Enum: borsh.Enum(e.Kind)}
	switch e.Kind {
	case RespErrData:
		w.Data.V = e.Data
	case RespErrText:
		w.Text.V = e.Text
	}
	return borshSerialize(w)
}

// UnmarshalBinary decodes a borsh enum produced by MarshalBinary.
func (e *ResponseError) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("wrpc: empty response error")
	}
	if int(data[0]) >= len(responseErrorKindNames) {
		return fmt.Errorf("wrpc: invalid response error kind %d", data[0])
	}
	var w responseErrorWire
	if err := borshDeserialize(&w, data); err != nil {
		return err
	}
	*e = ResponseError{Kind: ResponseErrorKind(w.Enum)}
	switch e.Kind {
	case RespErrData:
		e.Data = w.Data.V
	case RespErrText:
		e.Text = w.Text.V
	}
	return nil
}

// toResponseError maps any handler error onto the wire error.
func toResponseError(err error) *ResponseError {
	var re *ResponseError
	if errors.As(err, &re) {
		return re
	}
	return &ResponseError{Kind: RespErrText, Text: err.Error()}
}
