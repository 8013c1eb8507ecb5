package sse

import (
	"bytes"
	"io"
	"testing"

	"github.com/charmbracelet/log"
)

func newTestHub() *Hub {
	return NewHub(log.New(io.Discard))
}

// drain reads every payload currently buffered on the subscription.
func drain(sub *Subscription) [][]byte {
	var out [][]byte
	for {
		select {
		case p, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, p)
		default:
			return out
		}
	}
}

func TestSubscribe_ConnectedEventFirst(t *testing.T) {
	hub := newTestHub()
	sub := hub.Subscribe()

	got := drain(sub)
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	if !bytes.Equal(got[0], connectedEvent) {
		t.Errorf("first event = %s, want connected ack", got[0])
	}
}

func TestSubscribe_ReceivesCachedSnapshot(t *testing.T) {
	hub := newTestHub()
	hub.Publish([]byte(`{"n":1}`))

	sub := hub.Subscribe()
	got := drain(sub)
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if !bytes.Equal(got[1], []byte(`{"n":1}`)) {
		t.Errorf("cached snapshot = %s", got[1])
	}
}

func TestPublish_DeliversToAllSubscribers(t *testing.T) {
	hub := newTestHub()
	a := hub.Subscribe()
	b := hub.Subscribe()
	drain(a)
	drain(b)

	payload := []byte(`{"n":2}`)
	hub.Publish(payload)

	for name, sub := range map[string]*Subscription{"a": a, "b": b} {
		got := drain(sub)
		if len(got) != 1 || !bytes.Equal(got[0], payload) {
			t.Errorf("subscriber %s got %v", name, got)
		}
	}
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	hub := newTestHub()
	sub := hub.Subscribe()

	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub) // must not panic on double close
	hub.Unsubscribe(nil)

	if _, ok := <-sub.Events(); ok {
		// connected event may still be buffered; drain to closure
		for range sub.Events() {
		}
	}

	hub.Publish([]byte(`{"n":3}`))
	if _, ok := <-sub.Events(); ok {
		t.Error("unsubscribed channel received a payload")
	}
}

func TestPublish_DropsSlowSubscriber(t *testing.T) {
	hub := newTestHub()
	slow := hub.Subscribe()
	fast := hub.Subscribe()
	drain(fast)

	// Fill the slow subscriber's buffer without reading.
	for i := 0; i <= subscriberBuffer; i++ {
		hub.Publish([]byte(`{"n":4}`))
	}

	// The fast subscriber is unaffected.
	if got := drain(fast); len(got) == 0 {
		t.Error("fast subscriber received nothing")
	}

	// The slow subscriber's channel ends up closed.
	closed := false
	for {
		if _, ok := <-slow.Events(); !ok {
			closed = true
			break
		}
	}
	if !closed {
		t.Error("slow subscriber was not dropped")
	}
}

func TestShutdown_FlushesFinalMessage(t *testing.T) {
	hub := newTestHub()
	sub := hub.Subscribe()
	drain(sub)

	hub.Shutdown()

	var got [][]byte
	for p := range sub.Events() {
		got = append(got, p)
	}
	if len(got) != 1 || !bytes.Equal(got[0], shutdownEvent) {
		t.Errorf("final events = %v, want shutdown message", got)
	}

	// Subsequent operations are no-ops.
	hub.Publish([]byte(`{"n":5}`))
	late := hub.Subscribe()
	if _, ok := <-late.Events(); ok {
		t.Error("subscription after shutdown should be closed immediately")
	}
}
