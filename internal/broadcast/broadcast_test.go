package broadcast

import (
	"testing"
	"time"

	"gorow/internal/stroke"
)

func TestPublishDelivers(t *testing.T) {
	b := New()
	first := b.Subscribe()
	second := b.Subscribe()
	if first.ID == second.ID {
		t.Fatal("subscriptions share an id")
	}

	b.Publish(stroke.Point{Power: 120})
	for _, sub := range []*Subscription{first, second} {
		select {
		case p := <-sub.C:
			if p.Power != 120 {
				t.Fatalf("got %+v", p)
			}
		case <-time.After(time.Second):
			t.Fatal("point not delivered")
		}
	}
}

func TestSlowSubscriberDropped(t *testing.T) {
	b := New()
	slow := b.Subscribe()
	fast := b.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i <= QueueSize; i++ {
			b.Publish(stroke.Point{Power: i})
			<-fast.C
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher blocked")
	}

	if b.Count() != 1 {
		t.Fatalf("%d subscribers left", b.Count())
	}
	n := 0
	for range slow.C {
		n++
	}
	if n != QueueSize {
		t.Fatalf("slow subscriber got %d points", n)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	if b.Count() != 0 {
		t.Fatal("subscriber not removed")
	}
	if _, ok := <-sub.C; ok {
		t.Fatal("channel not closed")
	}
	b.Publish(stroke.Point{})
}

func TestClose(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	b.Close()
	if _, ok := <-sub.C; ok || b.Count() != 0 {
		t.Fatal("subscribers left after close")
	}
}
