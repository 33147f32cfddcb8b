package wrpc

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zhiqiangxu/util"
	"go.uber.org/zap"
)

// ServerConfig tunes a Server and its dispatchers.
type ServerConfig struct {
	// RejectUnknownOps answers requests for unregistered ops with a
	// RespErrUnknownOp error instead of dropping them.
	RejectUnknownOps bool          `toml:"rejectUnknownOps"`
	WriteTimeout     time.Duration `toml:"writeTimeout"`
	ReadLimit        int64         `toml:"readLimit"`
	// CheckOrigin is passed to the websocket upgrader; nil accepts any origin.
	CheckOrigin func(r *http.Request) bool `toml:"-"`
}

// Server accepts connections from stream listeners and websocket upgrades
// and serves their requests with one Handler.
type Server struct {
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	d          *Dispatcher
	config     ServerConfig
	upgrader   websocket.Upgrader

	mu    sync.Mutex
	lns   []net.Listener
	conns map[MessageConn]struct{}
	done  bool
}

func NewServer(h Handler, config ServerConfig) *Server {
	if config.ReadLimit <= 0 {
		config.ReadLimit = defaultReadLimit
	}
	checkOrigin := config.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	ctx, cancelFunc := context.WithCancel(context.Background())
	return &Server{
		ctx:        ctx,
		cancelFunc: cancelFunc,
		d:          NewDispatcher(h, config),
		config:     config,
		upgrader:   websocket.Upgrader{CheckOrigin: checkOrigin},
		conns:      make(map[MessageConn]struct{}),
	}
}

// ListenAndServe serves length prefixed messages on a "tcp" or "unix" address.
func (s *Server) ListenAndServe(network, address string) (ln net.Listener, err error) {
	ln, err = net.Listen(network, address)
	if err != nil {
		return
	}
	s.Serve(ln)
	return
}

// Serve accepts connections on ln in the background until Shutdown.
func (s *Server) Serve(ln net.Listener) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		ln.Close()
		return
	}
	s.lns = append(s.lns, ln)
	s.mu.Unlock()

	util.GoFunc(&s.wg, func() {
		var tempDelay time.Duration // how long to sleep on accept failure
		for {
			rw, err := ln.Accept()
			if err == nil {
				tempDelay = 0

				util.GoFunc(&s.wg, func() {
					s.serveConn(newStreamConn(rw, s.config.ReadLimit, s.config.WriteTimeout))
				})
				continue
			}

			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}

			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if max := 1 * time.Second; tempDelay > max {
				tempDelay = max
			}
			l.Error("wrpc: Accept", zap.Duration("retrying in", tempDelay), zap.Error(err))
			time.Sleep(tempDelay)
		}
	})
}

func (s *Server) serveConn(conn MessageConn) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	err := s.d.ServeConn(s.ctx, conn)
	l.Debug("wrpc: connection done", zap.Stringer("remote", conn.RemoteAddr()), zap.Error(err))

	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

// Shutdown closes listeners and connections and waits for in-flight handlers.
func (s *Server) Shutdown() (err error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	lns := s.lns
	conns := make([]MessageConn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	s.cancelFunc()
	for _, ln := range lns {
		if cerr := ln.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	for _, conn := range conns {
		conn.Close()
	}

	s.wg.Wait()
	return
}

func (s *Server) GetCtx() context.Context {
	return s.ctx
}
