package chat

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestReconcilerFailsStalledTurns(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	notes := &recordingNotifier{}

	conv, err := svc.CreateConversation(ctx, 4, "")
	if err != nil {
		t.Fatal(err)
	}
	stalled := &Message{ConversationID: conv.ID, Sender: SenderUser, Content: "lost", Status: StatusPending}
	done := &Message{ConversationID: conv.ID, Sender: SenderUser, Content: "fine", Status: StatusComplete}
	for _, m := range []*Message{stalled, done} {
		if err := svc.repo.CreateMessage(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	rec := NewReconciler(svc.repo, notes, zap.NewNop(), time.Minute, 5*time.Minute)

	// Nothing is old enough yet.
	if n, err := rec.Sweep(ctx); err != nil || n != 0 {
		t.Fatalf("early Sweep() = %d, %v; want 0", n, err)
	}

	rec.now = func() time.Time { return time.Now().Add(time.Hour) }
	n, err := rec.Sweep(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Sweep() = %d, %v; want 1", n, err)
	}

	msgs, _ := svc.repo.ListMessages(ctx, conv.ID)
	if msgs[0].Status != StatusFailed || msgs[1].Status != StatusComplete {
		t.Errorf("statuses = %q, %q; want failed, complete", msgs[0].Status, msgs[1].Status)
	}
	if len(notes.events) != 1 || notes.events[0].kind != EventTurnStalled || notes.events[0].userID != 4 {
		t.Errorf("events = %+v, want one turn.stalled for user 4", notes.events)
	}

	// Already failed turns are left alone.
	if n, _ := rec.Sweep(ctx); n != 0 {
		t.Errorf("second Sweep() = %d, want 0", n)
	}
}

func TestReconcilerStartStop(t *testing.T) {
	svc, _, _ := newTestService(t)
	rec := NewReconciler(svc.repo, nil, zap.NewNop(), 10*time.Millisecond, time.Minute)
	rec.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	rec.Stop()
}
