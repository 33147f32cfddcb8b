package wrpc

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

const streamPrefixSize = 4

// streamConn frames messages on a byte stream with a 4 byte little endian length prefix.
type streamConn struct {
	rw        net.Conn
	readLimit int64
	wto       time.Duration
	wmu       sync.Mutex
	header    [streamPrefixSize]byte
}

func newStreamConn(rw net.Conn, readLimit int64, wto time.Duration) *streamConn {
	return &streamConn{rw: rw, readLimit: readLimit, wto: wto}
}

func (c *streamConn) ReadMessage() (MessageKind, []byte, error) {
	if _, err := io.ReadFull(c.rw, c.header[:]); err != nil {
		return 0, nil, err
	}
	length := binary.LittleEndian.Uint32(c.header[:])
	if c.readLimit > 0 && int64(length) > c.readLimit {
		return 0, nil, fmt.Errorf("wrpc: message of %d bytes exceeds read limit %d", length, c.readLimit)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(c.rw, payload); err != nil {
		return 0, nil, err
	}
	return MessageBinary, payload, nil
}

// WriteMessage writes prefix and payload as one unit; text is sent as bytes.
func (c *streamConn) WriteMessage(_ MessageKind, payload []byte) (err error) {
	var header [streamPrefixSize]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))
	buffs := net.Buffers{header[:], payload}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.wto > 0 {
		if err = c.rw.SetWriteDeadline(time.Now().Add(c.wto)); err != nil {
			return
		}
	}
	_, err = buffs.WriteTo(c.rw)
	return
}

func (c *streamConn) Close() error { return c.rw.Close() }

func (c *streamConn) RemoteAddr() net.Addr { return c.rw.RemoteAddr() }

// NewStreamTransport returns a reconnecting transport over a "tcp" or "unix" socket.
func NewStreamTransport(network, address string, config TransportConfig) *DialTransport {
	config.init()
	var d net.Dialer
	return NewDialTransport(func(ctx context.Context) (MessageConn, error) {
		rw, err := d.DialContext(ctx, network, address)
		if err != nil {
			return nil, err
		}
		return newStreamConn(rw, config.ReadLimit, config.WriteTimeout), nil
	}, config)
}
