// Command wrpcd serves echo handlers for every built in op.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/near/borsh-go"
	"github.com/zhiqiangxu/wrpc"
	"go.uber.org/zap"
)

// Message is echoed back by the borsh handler, variant for variant.
type Message struct {
	Enum   borsh.Enum `borsh_enum:"true"`
	First  struct{ V uint32 }
	Second struct{ V uint64 }
	Third  struct{ V string }
}

type Echo struct{}

func (Echo) Say(ctx context.Context, s string) (string, error) { return s, nil }

func main() {
	path := flag.String("config", "wrpcd.toml", "config file")
	flag.Parse()

	cfg, err := wrpc.LoadConfig(*path)
	if err != nil {
		panic(err)
	}
	logger, err := cfg.Log.Logger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	wrpc.SetLogger(logger)

	mux := wrpc.NewServeMux()
	mux.HandleFunc(wrpc.OpRaw, func(ctx context.Context, op wrpc.Op, payload []byte) ([]byte, error) {
		return payload, nil
	})
	mux.Handle(wrpc.OpBorsh, wrpc.BorshHandler(func(ctx context.Context, m Message) (Message, error) {
		return m, nil
	}))
	mux.Handle(wrpc.OpSerde, wrpc.JSONHandler(func(ctx context.Context, v map[string]any) (map[string]any, error) {
		return v, nil
	}))
	if err := mux.RegisterName("echo", Echo{}); err != nil {
		panic(err)
	}

	s := wrpc.NewServer(mux, cfg.Server)

	if cfg.Listen.Stream != "" {
		ln, err := s.ListenAndServe(cfg.Listen.Network, cfg.Listen.Stream)
		if err != nil {
			logger.Fatal("listen", zap.String("address", cfg.Listen.Stream), zap.Error(err))
		}
		logger.Info("serving stream", zap.Stringer("address", ln.Addr()))
	}

	var hs *http.Server
	if cfg.Listen.WebSocket != "" {
		hmux := http.NewServeMux()
		hmux.Handle(cfg.Listen.WebSocketPath, s)
		hs = &http.Server{Addr: cfg.Listen.WebSocket, Handler: hmux}
		go func() {
			if err := hs.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal("websocket listen", zap.String("address", hs.Addr), zap.Error(err))
			}
		}()
		logger.Info("serving websocket", zap.String("address", cfg.Listen.WebSocket))
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	if hs != nil {
		hs.Close()
	}
	if err := s.Shutdown(); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}
