package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type fakePubSub struct {
	mu        sync.Mutex
	published [][]byte
	sent      chan struct{}
}

func (f *fakePubSub) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	f.published = append(f.published, message.([]byte))
	f.mu.Unlock()
	f.sent <- struct{}{}
	return redis.NewIntCmd(ctx)
}

func (f *fakePubSub) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return nil
}

func TestHubNotifyPublishesEvent(t *testing.T) {
	ps := &fakePubSub{sent: make(chan struct{}, 1)}
	hub := NewHub(ps, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	hub.Notify(7, EventConversationCreated, map[string]uint{"id": 3})

	select {
	case <-ps.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("event never published")
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	var ev Event
	if err := json.Unmarshal(ps.published[0], &ev); err != nil {
		t.Fatal(err)
	}
	if ev.UserID != 7 || ev.Kind != EventConversationCreated || string(ev.Payload) != `{"id":3}` {
		t.Errorf("event = %+v", ev)
	}
}

func TestHubFansOutOnlyToOwner(t *testing.T) {
	hub := NewHub(&fakePubSub{sent: make(chan struct{}, 1)}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	owner := &Client{Hub: hub, Send: make(chan []byte, 1), UserID: 1}
	other := &Client{Hub: hub, Send: make(chan []byte, 1), UserID: 2}
	hub.Register <- owner
	hub.Register <- other

	hub.broadcast <- Event{UserID: 1, Kind: EventMessageCreated, Payload: json.RawMessage(`{}`)}

	select {
	case data := <-owner.Send:
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil || ev.Kind != EventMessageCreated {
			t.Errorf("owner got %s, %v", data, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("owner never received the event")
	}

	// Round-trip through Run so the broadcast above is fully handled.
	hub.Unregister <- other
	if _, ok := <-other.Send; ok {
		t.Error("other user must not receive the event")
	}
}

func TestHubNotifyDropsWhenQueueFull(t *testing.T) {
	hub := NewHub(&fakePubSub{sent: make(chan struct{}, 1)}, zap.NewNop())
	for i := 0; i < cap(hub.publish)+10; i++ {
		hub.Notify(1, EventMessageCreated, i)
	}
	if len(hub.publish) != cap(hub.publish) {
		t.Errorf("queued = %d, want %d", len(hub.publish), cap(hub.publish))
	}
}

func TestHubHandoffsReturnAfterStop(t *testing.T) {
	hub := NewHub(&fakePubSub{sent: make(chan struct{}, 1)}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	live := &Client{Hub: hub, Send: make(chan []byte, 1), UserID: 1}
	if !hub.register(live) {
		t.Fatal("register on a running hub should succeed")
	}
	cancel()
	<-stopped

	returned := make(chan bool, 1)
	go func() {
		hub.unregister(live)
		returned <- hub.register(&Client{Hub: hub, Send: make(chan []byte, 1), UserID: 2})
	}()
	select {
	case ok := <-returned:
		if ok {
			t.Error("register after stop should report false")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handoff blocked after the hub stopped")
	}

	if _, ok := <-live.Send; ok {
		t.Error("stopping the hub should close client channels")
	}
}
