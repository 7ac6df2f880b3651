package events

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

func TestMemoryBrokerPublishSubscribe(t *testing.T) {
	b := NewMemoryBroker()
	ch := b.Subscribe(TopicSolves)
	other := b.Subscribe("elsewhere")

	evt := New(SolveStarted, map[string]any{"x": 1})
	b.Publish(TopicSolves, evt)

	select {
	case got := <-ch:
		if got.Type != evt.Type || got.ID != evt.ID {
			t.Fatalf("got %+v, want %+v", got, evt)
		}
		if got.Data["x"].(int) != 1 {
			t.Fatalf("bad payload: %+v", got.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
	select {
	case got := <-other:
		t.Fatalf("event leaked to another topic: %+v", got)
	default:
	}

	b.Unsubscribe(TopicSolves, ch)
	b.Unsubscribe(TopicSolves, ch) // second call is a no-op
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	b.Publish(TopicSolves, evt)
}

func TestMemoryBrokerDropsForSlowSubscriber(t *testing.T) {
	b := NewMemoryBroker()
	ch := b.Subscribe(TopicSolves)
	for i := 0; i < 20; i++ {
		b.Publish(TopicSolves, New(SolveCompleted, nil))
	}
	if len(ch) != cap(ch) {
		t.Fatalf("buffer holds %d of %d", len(ch), cap(ch))
	}
}

func TestRedisBrokerRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	b := NewRedisBroker(rdb, nil)
	ch := b.Subscribe(TopicSolves)
	evt := New(SolveFailed, map[string]any{"error": "boom"})
	b.Publish(TopicSolves, evt)

	select {
	case got := <-ch:
		if got.ID != evt.ID || got.Type != SolveFailed || got.Data["error"] != "boom" {
			t.Fatalf("got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for redis event")
	}

	b.Unsubscribe(TopicSolves, ch)
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("unexpected event after unsubscribe")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}
}
