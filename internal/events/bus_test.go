package events

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("conversation.", 10)
	defer unsub()

	b.Publish(Event{Kind: ConversationRedirect, Payload: Redirect{ConversationID: 9}})

	select {
	case evt := <-ch:
		r, ok := evt.Payload.(Redirect)
		if evt.Kind != ConversationRedirect || !ok || r.ConversationID != 9 {
			t.Errorf("got %+v", evt)
		}
		if evt.Timestamp.IsZero() {
			t.Error("Timestamp must be filled in")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestToastHelpersShareNamespace(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("toast.", 10)
	defer unsub()

	b.Error("Error", "boom")
	b.Info("Saved", "done")
	b.Publish(Event{Kind: SessionLogout})

	first, second := <-ch, <-ch
	if first.Kind != ToastError || second.Kind != ToastInfo {
		t.Errorf("kinds = %s, %s", first.Kind, second.Kind)
	}
	if toast := first.Payload.(Toast); toast.Message != "boom" {
		t.Errorf("toast = %+v", toast)
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("session.", 10)
	unsub()

	b.Publish(Event{Kind: SessionLogout})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("toast.", 1)
	defer unsub()

	b.Error("", "one")
	b.Error("", "two")

	if evt := <-ch; evt.Payload.(Toast).Message != "one" {
		t.Errorf("got %+v, want the first toast", evt)
	}
}
