package server

import (
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/srx-go/rpki-validator/internal/clientid"
	"github.com/srx-go/rpki-validator/internal/clientmap"
	"github.com/srx-go/rpki-validator/internal/cmdqueue"
	"github.com/srx-go/rpki-validator/internal/wire"
)

func newTestListener(t *testing.T) (*Listener, *cmdqueue.Queue, *clientmap.Map) {
	t.Helper()
	queue := cmdqueue.New()
	clients := clientmap.New()
	l := NewListener(queue, clients, zap.NewNop())
	return l, queue, clients
}

func popWithTimeout(t *testing.T, q *cmdqueue.Queue) cmdqueue.Item {
	t.Helper()
	done := make(chan cmdqueue.Item, 1)
	go func() {
		item, ok := q.Pop()
		if ok {
			done <- item
		}
	}()
	select {
	case item := <-done:
		return item
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for queued item")
		return cmdqueue.Item{}
	}
}

func TestHandleConnFramesOneMessagePerHeader(t *testing.T) {
	l, queue, _ := newTestListener(t)
	client, server := net.Pipe()
	defer client.Close()

	go l.handleConn(server)

	frame := wire.EncodeHello(wire.Hello{Version: 3, ProxyID: 0xAA})
	go client.Write(frame)

	item := popWithTimeout(t, queue)
	if item.Kind != cmdqueue.ProxyMessage {
		t.Fatalf("Kind = %v, want ProxyMessage", item.Kind)
	}
	if len(item.Payload) != len(frame) {
		t.Fatalf("payload length = %d, want %d", len(item.Payload), len(frame))
	}
	if item.Client != clientid.None {
		t.Fatalf("Client = %v, want clientid.None (socket layer does not resolve it)", item.Client)
	}
}

func TestHandleConnFramesBackToBackMessages(t *testing.T) {
	l, queue, _ := newTestListener(t)
	client, server := net.Pipe()
	defer client.Close()

	go l.handleConn(server)

	first := wire.EncodeHello(wire.Hello{Version: 3, ProxyID: 1})
	second := wire.EncodeHello(wire.Hello{Version: 3, ProxyID: 2})
	go client.Write(append(append([]byte{}, first...), second...))

	item1 := popWithTimeout(t, queue)
	item2 := popWithTimeout(t, queue)
	if len(item1.Payload) != len(first) || len(item2.Payload) != len(second) {
		t.Fatalf("expected two separately framed messages, got lengths %d and %d", len(item1.Payload), len(item2.Payload))
	}
}

func TestOnDisconnectMarksActiveClientCrashed(t *testing.T) {
	l, _, clients := newTestListener(t)
	client, server := net.Pipe()
	defer client.Close()

	id, _ := clients.CreateClientID()
	clients.AddMapping(0xBEEF, id, server)

	l.onDisconnect(server, zap.NewNop())

	if clients.Socket(id) != nil {
		t.Fatal("expected client to be deactivated after disconnect")
	}
}

func TestOnDisconnectUnknownConnIsNoop(t *testing.T) {
	l, _, _ := newTestListener(t)
	_, server := net.Pipe()
	defer server.Close()

	l.onDisconnect(server, zap.NewNop())
}
