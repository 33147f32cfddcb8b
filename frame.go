package wrpc

import "encoding/binary"

// HeaderSize is the size of both request and response headers:
// id (8 bytes) followed by op or status (4 bytes), little endian, no padding.
const HeaderSize = 12

// Status of a response frame.
type Status uint32

const (
	StatusSuccess Status = 0
	StatusError   Status = 1
)

// RequestFrame is what a client sends.
type RequestFrame struct {
	ID      uint64
	Op      Op
	Payload []byte
}

// ResponseFrame is what a server answers with.
type ResponseFrame struct {
	ID      uint64
	Status  Status
	Payload []byte
}

func putHeader(buf []byte, id uint64, v uint32) {
	binary.LittleEndian.PutUint64(buf, id)
	binary.LittleEndian.PutUint32(buf[8:], v)
}

func parseHeader(buf []byte) (id uint64, v uint32, payload []byte, err error) {
	if len(buf) < HeaderSize {
		err = ErrFrameTooSmall
		return
	}
	id = binary.LittleEndian.Uint64(buf)
	v = binary.LittleEndian.Uint32(buf[8:])
	payload = buf[HeaderSize:]
	return
}

// Encode returns header followed by payload.
func (f RequestFrame) Encode() []byte {
	buf := make([]byte, HeaderSize+len(f.Payload))
	putHeader(buf, f.ID, uint32(f.Op))
	copy(buf[HeaderSize:], f.Payload)
	return buf
}

// Encode returns header followed by payload.
func (f ResponseFrame) Encode() []byte {
	buf := make([]byte, HeaderSize+len(f.Payload))
	putHeader(buf, f.ID, uint32(f.Status))
	copy(buf[HeaderSize:], f.Payload)
	return buf
}

// DecodeRequest splits buf into header fields and payload.
// The returned payload aliases buf.
func DecodeRequest(buf []byte) (f RequestFrame, err error) {
	id, op, payload, err := parseHeader(buf)
	if err != nil {
		return
	}
	f = RequestFrame{ID: id, Op: Op(op), Payload: payload}
	return
}

// DecodeResponse splits buf into header fields and payload.
// The returned payload aliases buf.
func DecodeResponse(buf []byte) (f ResponseFrame, err error) {
	id, status, payload, err := parseHeader(buf)
	if err != nil {
		return
	}
	f = ResponseFrame{ID: id, Status: Status(status), Payload: payload}
	return
}
