package eventbus

import (
	"errors"
	"testing"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	b := New(nil)
	var a, c int
	b.On(func(e Event) error { a++; return nil })
	b.On(func(e Event) error { c++; return nil })

	b.Publish(Event{Kind: KindLoopStarted})

	if a != 1 || c != 1 {
		t.Fatalf("expected both subscribers invoked once, got a=%d c=%d", a, c)
	}
}

func TestBusStampsTimestampWhenUnset(t *testing.T) {
	b := New(nil)
	var got Event
	b.On(func(e Event) error { got = e; return nil })

	b.Publish(Event{Kind: KindTaskStarted})

	if got.Timestamp == "" {
		t.Fatal("expected timestamp to be stamped")
	}
}

func TestBusRecoversPanickingSubscriber(t *testing.T) {
	b := New(nil)
	var ranAfter bool
	b.On(func(e Event) error { panic("boom") })
	b.On(func(e Event) error { ranAfter = true; return nil })

	b.Publish(Event{Kind: KindTaskFailed})

	if !ranAfter {
		t.Fatal("expected later subscriber to still run despite an earlier panic")
	}
}

func TestBusLogsErroringSubscriberWithoutStoppingDelivery(t *testing.T) {
	b := New(nil)
	var ranAfter bool
	b.On(func(e Event) error { return errors.New("failed") })
	b.On(func(e Event) error { ranAfter = true; return nil })

	b.Publish(Event{Kind: KindLoopFailed})

	if !ranAfter {
		t.Fatal("expected later subscriber to still run despite an earlier error")
	}
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	b := New(nil)
	var hits int
	unsubscribe := b.On(func(e Event) error { hits++; return nil })

	b.Publish(Event{Kind: KindLoopStarted})
	unsubscribe()
	b.Publish(Event{Kind: KindLoopStarted})

	if hits != 1 {
		t.Fatalf("expected exactly one delivery before unsubscribe, got %d", hits)
	}
}
