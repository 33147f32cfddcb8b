package wrpc

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func nextEvent(t *testing.T, tr Transport) Event {
	t.Helper()
	select {
	case ev, ok := <-tr.Events():
		if !ok {
			t.Fatal("events closed")
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no event")
	}
	return Event{}
}

func expectControl(t *testing.T, tr Transport, want Control) {
	t.Helper()
	if ev := nextEvent(t, tr); ev.Kind != EventControl || ev.Control != want {
		t.Fatalf("got %+v, want control %v", ev, want)
	}
}

func TestDialTransportReconnects(t *testing.T) {
	conns := make(chan *memConn, 4)
	var dials int32
	tr := NewDialTransport(func(ctx context.Context) (MessageConn, error) {
		if atomic.AddInt32(&dials, 1) == 2 {
			return nil, errTest
		}
		c := newMemConn()
		conns <- c
		return c, nil
	}, TransportConfig{ReconnectMaxDelay: 10 * time.Millisecond})

	if err := tr.Connect(context.Background(), true); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	expectControl(t, tr, ControlOpen)
	if !tr.IsOpen() {
		t.Fatal("IsOpen = false after ControlOpen")
	}

	first := <-conns
	first.in <- []byte("a")
	if ev := nextEvent(t, tr); ev.Kind != EventBinary || string(ev.Data) != "a" {
		t.Fatalf("got %+v, want binary a", ev)
	}
	if err := tr.Send([]byte("b")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := <-first.out; string(got) != "b" {
		t.Fatalf("peer got %q, want b", got)
	}

	first.Close()
	expectControl(t, tr, ControlClosed)
	expectControl(t, tr, ControlOpen)
	if n := atomic.LoadInt32(&dials); n != 3 {
		t.Fatalf("dialed %d times, want 3", n)
	}
	<-conns

	if err := tr.InjectControl(ControlReceiverShutdown); err != nil {
		t.Fatalf("InjectControl: %v", err)
	}
	expectControl(t, tr, ControlReceiverShutdown)

	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for range tr.Events() {
	}
	if err := tr.InjectControl(ControlOpen); !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("InjectControl after Close = %v", err)
	}
	if err := tr.Connect(context.Background(), false); !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("Connect after Close = %v", err)
	}
}

func TestDialTransportBlockingDialError(t *testing.T) {
	tr := NewDialTransport(func(ctx context.Context) (MessageConn, error) {
		return nil, errTest
	}, TransportConfig{})
	defer tr.Close()

	if err := tr.Connect(context.Background(), true); !errors.Is(err, errTest) {
		t.Fatalf("Connect = %v, want errTest", err)
	}
	if tr.IsOpen() {
		t.Fatal("IsOpen after failed dial")
	}
	if err := tr.Send([]byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Send = %v, want ErrNotConnected", err)
	}
}

func TestDialTransportNoReconnect(t *testing.T) {
	conn := newMemConn()
	tr := NewDialTransport(func(ctx context.Context) (MessageConn, error) {
		return conn, nil
	}, TransportConfig{NoReconnect: true})
	defer tr.Close()

	if err := tr.Connect(context.Background(), false); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	expectControl(t, tr, ControlOpen)
	conn.Close()
	expectControl(t, tr, ControlClosed)

	select {
	case ev := <-tr.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
