package cmdqueue

import (
	"testing"
	"time"
)

func TestFIFOOrder(t *testing.T) {
	q := New()
	q.Push(Item{Kind: ProxyMessage, Payload: []byte{1}})
	q.Push(Item{Kind: ProxyMessage, Payload: []byte{2}})
	q.Push(Item{Kind: ProxyMessage, Payload: []byte{3}})

	for _, want := range []byte{1, 2, 3} {
		item, ok := q.Pop()
		if !ok {
			t.Fatal("Pop reported queue closed unexpectedly")
		}
		if item.Payload[0] != want {
			t.Fatalf("Pop = %v, want %v", item.Payload[0], want)
		}
	}
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := New()
	done := make(chan Item, 1)
	go func() {
		item, _ := q.Pop()
		done <- item
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("Pop returned before any Push")
	default:
	}

	q.Push(Item{Kind: ProxyMessage, Payload: []byte{9}})

	select {
	case item := <-done:
		if item.Payload[0] != 9 {
			t.Fatalf("got %v, want 9", item.Payload[0])
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after Push")
	}
}

func TestCloseWakesBlockedPop(t *testing.T) {
	q := New()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("Pop reported an item after Close with an empty queue")
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not wake blocked Pop")
	}
}

func TestShutdownIsOrdinaryItem(t *testing.T) {
	q := New()
	q.Push(Item{Kind: ProxyMessage})
	q.Push(Item{Kind: Shutdown})

	item, ok := q.Pop()
	if !ok || item.Kind != ProxyMessage {
		t.Fatalf("first Pop = %+v, %v", item, ok)
	}
	item, ok = q.Pop()
	if !ok || item.Kind != Shutdown {
		t.Fatalf("second Pop = %+v, %v", item, ok)
	}
}
