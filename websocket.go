package wrpc

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type wsConn struct {
	conn *websocket.Conn
	wto  time.Duration
	wmu  sync.Mutex
}

func newWSConn(conn *websocket.Conn, readLimit int64, wto time.Duration) *wsConn {
	if readLimit > 0 {
		conn.SetReadLimit(readLimit)
	}
	return &wsConn{conn: conn, wto: wto}
}

func (c *wsConn) ReadMessage() (MessageKind, []byte, error) {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return 0, nil, err
		}
		switch mt {
		case websocket.BinaryMessage:
			return MessageBinary, data, nil
		case websocket.TextMessage:
			return MessageText, data, nil
		}
	}
}

func (c *wsConn) WriteMessage(kind MessageKind, payload []byte) error {
	mt := websocket.BinaryMessage
	if kind == MessageText {
		mt = websocket.TextMessage
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.wto > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.wto)); err != nil {
			return err
		}
	}
	return c.conn.WriteMessage(mt, payload)
}

func (c *wsConn) Close() error { return c.conn.Close() }

func (c *wsConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// NewWebSocketTransport returns a reconnecting transport for a ws:// or wss:// url.
func NewWebSocketTransport(url string, config TransportConfig) *DialTransport {
	config.init()
	dialer := *websocket.DefaultDialer
	return NewDialTransport(func(ctx context.Context) (MessageConn, error) {
		conn, _, err := dialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		return newWSConn(conn, config.ReadLimit, config.WriteTimeout), nil
	}, config)
}

// ServeHTTP upgrades the request to a websocket and serves it until the peer goes away.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Warn("wrpc: websocket upgrade", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	s.serveConn(newWSConn(conn, s.config.ReadLimit, s.config.WriteTimeout))
}
