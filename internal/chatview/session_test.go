package chatview

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"go-gemini-chat/internal/apiclient"
	"go-gemini-chat/internal/cache"
	"go-gemini-chat/internal/events"

	"go.uber.org/zap"
)

// fakeAPI is an in-memory server. Cursors are the decimal id of the oldest
// message on the previous page.
type fakeAPI struct {
	mu       sync.Mutex
	messages map[uint][]apiclient.Message
	nextConv uint
	nextMsg  uint
	base     time.Time

	sendErr  error
	fetchErr error
	gate     chan struct{}
	fetches  int

	// pageGate holds Messages until closed; pageStarted fires on entry.
	pageGate    chan struct{}
	pageStarted chan struct{}

	convs     []apiclient.Conversation
	listErr   error
	deleted   []uint
	cleared   bool
	loggedOut bool
	logoutErr error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		messages: map[uint][]apiclient.Message{},
		nextConv: 100,
		base:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeAPI) seed(convID uint, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.nextMsg++
		sender := "USER"
		if i%2 == 1 {
			sender = "AI"
		}
		f.messages[convID] = append(f.messages[convID], apiclient.Message{
			ID: f.nextMsg, ConversationID: convID, Sender: sender,
			Content:   fmt.Sprintf("m%d", f.nextMsg),
			Status:    "complete",
			CreatedAt: f.base.Add(time.Duration(f.nextMsg) * time.Second),
		})
	}
}

func (f *fakeAPI) Messages(_ context.Context, convID uint, cursor string, limit int) (*apiclient.Page, error) {
	if f.pageGate != nil {
		f.pageStarted <- struct{}{}
		<-f.pageGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	all := f.messages[convID]
	end := len(all)
	if cursor != "" {
		before, _ := strconv.Atoi(cursor)
		end = 0
		for end < len(all) && all[end].ID < uint(before) {
			end++
		}
	}
	start := max(end-limit, 0)
	page := &apiclient.Page{Messages: append([]apiclient.Message(nil), all[start:end]...)}
	if start > 0 {
		next := strconv.Itoa(int(all[start].ID))
		page.NextCursor = &next
	}
	return page, nil
}

func (f *fakeAPI) SendMessage(_ context.Context, convID uint, content, clientID string) (*apiclient.Turn, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	created := false
	if convID == 0 {
		f.nextConv++
		convID = f.nextConv
		created = true
	}
	if f.sendErr != nil {
		var apiErr *apiclient.Error
		if errors.As(f.sendErr, &apiErr) && created {
			apiErr.ConversationID = convID
		}
		return nil, f.sendErr
	}

	f.nextMsg++
	user := apiclient.Message{ID: f.nextMsg, ConversationID: convID, Sender: "USER", Content: content, ClientID: clientID,
		Status: "complete", CreatedAt: f.base.Add(time.Hour + time.Duration(f.nextMsg)*time.Second)}
	f.nextMsg++
	ai := apiclient.Message{ID: f.nextMsg, ConversationID: convID, Sender: "AI", Content: "reply to " + content,
		ReplyToID: user.ID, Status: "complete", CreatedAt: user.CreatedAt.Add(time.Second)}
	f.messages[convID] = append(f.messages[convID], user, ai)
	return &apiclient.Turn{ConversationID: convID, UserMessage: &user, AIMessage: &ai, Created: created}, nil
}

func (f *fakeAPI) ListConversations(context.Context) ([]apiclient.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.convs, f.listErr
}

func (f *fakeAPI) RenameConversation(_ context.Context, id uint, title string) (*apiclient.Conversation, error) {
	return &apiclient.Conversation{ID: id, Title: title, UpdatedAt: f.base.Add(24 * time.Hour)}, nil
}

func (f *fakeAPI) DeleteConversation(_ context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeAPI) DeleteAllConversations(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = true
	return int64(len(f.convs)), nil
}

func (f *fakeAPI) Logout(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedOut = true
	return f.logoutErr
}

func testStore(t *testing.T) *cache.Store {
	t.Helper()
	s, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func expectEvent(t *testing.T, ch <-chan events.Event, kind string) events.Event {
	t.Helper()
	select {
	case evt := <-ch:
		if evt.Kind != kind {
			t.Fatalf("event kind = %s, want %s", evt.Kind, kind)
		}
		return evt
	case <-time.After(time.Second):
		t.Fatalf("no %s event", kind)
	}
	return events.Event{}
}

func TestOpenRendersCacheThenServerTruth(t *testing.T) {
	api := newFakeAPI()
	api.seed(7, 20)
	store := testStore(t)
	store.SaveMessages(7, []cache.Message{{ID: 999, Sender: "user", Text: "stale local", Timestamp: time.Unix(0, 0)}})

	s := NewSession(api, store, events.New(), zap.NewNop(), 7, 15)
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	got := s.Messages()
	if len(got) != 15 || got[0].Text != "m6" || got[14].Text != "m20" {
		t.Fatalf("view = %+v, want server page m6..m20", got)
	}
	if !s.HasMore() {
		t.Error("HasMore() = false, want true")
	}
	if cached := store.CachedMessages(7); len(cached) != 16 {
		t.Errorf("cache holds %d messages, want 15 fetched plus the local one", len(cached))
	}
}

func TestOpenFailureKeepsCachedView(t *testing.T) {
	api := newFakeAPI()
	api.fetchErr = errors.New("network down")
	store := testStore(t)
	store.SaveMessages(7, []cache.Message{{ID: 1, Sender: "USER", Text: "cached", Timestamp: time.Unix(10, 0)}})
	bus := events.New()
	toasts, unsub := bus.Subscribe("toast.", 4)
	defer unsub()

	s := NewSession(api, store, bus, zap.NewNop(), 7, 15)
	if err := s.Open(context.Background()); err == nil {
		t.Fatal("Open() error = nil, want failure")
	}
	if got := s.Messages(); len(got) != 1 || got[0].Text != "cached" {
		t.Errorf("view = %+v, want the cached message", got)
	}
	expectEvent(t, toasts, events.ToastError)
}

func TestFirstSendCreatesConversation(t *testing.T) {
	api := newFakeAPI()
	store := testStore(t)
	bus := events.New()
	nav, unsub := bus.Subscribe("conversation.", 4)
	defer unsub()

	s := NewSession(api, store, bus, zap.NewNop(), 0, 15)
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Send(context.Background(), "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("blank Send() error = %v, want ErrEmptyMessage", err)
	}

	turn, err := s.Send(context.Background(), " hello ")
	if err != nil {
		t.Fatal(err)
	}
	id := s.ConversationID()
	if id == 0 || id != turn.ConversationID {
		t.Fatalf("ConversationID() = %d, want %d", id, turn.ConversationID)
	}

	evt := expectEvent(t, nav, events.ConversationRedirect)
	if evt.Payload.(events.Redirect).ConversationID != id {
		t.Errorf("redirect payload = %+v", evt.Payload)
	}

	got := s.Messages()
	if len(got) != 2 {
		t.Fatalf("view = %+v, want exactly the user/ai pair", got)
	}
	if got[0].Sender != cache.SenderUser || got[0].Text != "hello" || got[0].Status != "" || got[0].ID == 0 {
		t.Errorf("user entry = %+v, want the reconciled server message", got[0])
	}
	if got[1].Sender != cache.SenderAI {
		t.Errorf("ai entry = %+v", got[1])
	}

	if cached := store.CachedMessages(id); len(cached) != 2 {
		t.Errorf("cache = %+v, want the pair", cached)
	}
	if convs := store.CachedConversations(); len(convs) != 1 || convs[0].ID != id {
		t.Errorf("drawer cache = %+v", convs)
	}

	// A fresh screen on the new id shows exactly the pair.
	reopened := NewSession(api, store, bus, zap.NewNop(), id, 15)
	if err := reopened.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(reopened.Messages()) != 2 || reopened.HasMore() {
		t.Errorf("reopened view = %+v", reopened.Messages())
	}
}

func TestSendUpstreamFailureMarksMessageFailed(t *testing.T) {
	api := newFakeAPI()
	api.sendErr = &apiclient.Error{Status: 502, Message: "assistant unavailable"}
	store := testStore(t)
	bus := events.New()
	toasts, unsub := bus.Subscribe("toast.", 4)
	defer unsub()

	s := NewSession(api, store, bus, zap.NewNop(), 0, 15)
	if _, err := s.Send(context.Background(), "hi"); !apiclient.IsUpstream(err) {
		t.Fatalf("Send() error = %v, want upstream", err)
	}

	got := s.Messages()
	if len(got) != 1 || got[0].Status != StatusFailed || got[0].Text != "hi" {
		t.Errorf("view = %+v, want one failed optimistic message", got)
	}
	if s.ConversationID() == 0 {
		t.Error("the conversation created before the failure must be adopted")
	}
	evt := expectEvent(t, toasts, events.ToastError)
	if toast := evt.Payload.(events.Toast); toast.Message == "" {
		t.Errorf("toast = %+v", toast)
	}
	if s.IsSending() {
		t.Error("IsSending() stuck after failure")
	}
}

func TestSecondSendWhileInFlightIsRejected(t *testing.T) {
	api := newFakeAPI()
	api.gate = make(chan struct{})
	s := NewSession(api, testStore(t), events.New(), zap.NewNop(), 0, 15)

	done := make(chan error, 1)
	go func() {
		_, err := s.Send(context.Background(), "first")
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for !s.IsSending() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if _, err := s.Send(context.Background(), "second"); !errors.Is(err, ErrSendInFlight) {
		t.Errorf("concurrent Send() error = %v, want ErrSendInFlight", err)
	}

	close(api.gate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if got := s.Messages(); len(got) != 2 {
		t.Errorf("view = %+v, want only the first turn", got)
	}
}

func TestSendDuringOpenIsRejectedUntilLoaded(t *testing.T) {
	api := newFakeAPI()
	api.seed(7, 4)
	api.pageGate = make(chan struct{})
	api.pageStarted = make(chan struct{}, 1)
	s := NewSession(api, testStore(t), events.New(), zap.NewNop(), 7, 15)

	opened := make(chan error, 1)
	go func() { opened <- s.Open(context.Background()) }()
	<-api.pageStarted

	if _, err := s.Send(context.Background(), "too early"); !errors.Is(err, ErrLoading) {
		t.Errorf("Send() during Open error = %v, want ErrLoading", err)
	}
	if err := s.FetchMore(context.Background()); err != nil {
		t.Errorf("FetchMore() during Open error = %v", err)
	}

	close(api.pageGate)
	if err := <-opened; err != nil {
		t.Fatal(err)
	}

	api.pageGate = nil
	if _, err := s.Send(context.Background(), "now"); err != nil {
		t.Fatalf("Send() after Open error = %v", err)
	}
	got := s.Messages()
	if len(got) != 6 || got[0].Text != "m1" || got[4].Text != "now" || got[5].Text != "reply to now" {
		t.Errorf("view = %+v, want seeded history then the new turn", got)
	}
}

func TestScrollBackPaginatesWholeHistory(t *testing.T) {
	api := newFakeAPI()
	api.seed(3, 30)
	store := testStore(t)
	s := NewSession(api, store, events.New(), zap.NewNop(), 3, 15)
	ctx := context.Background()

	if err := s.Open(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.OnScroll(ctx, 400); err != nil || api.fetches != 1 {
		t.Fatalf("scroll far from top fetched (%d fetches, err %v)", api.fetches, err)
	}
	if err := s.OnScroll(ctx, 10); err != nil {
		t.Fatal(err)
	}
	if s.HasMore() {
		t.Error("HasMore() = true after the last page")
	}
	if err := s.FetchMore(ctx); err != nil || api.fetches != 2 {
		t.Errorf("FetchMore past the end issued a request (%d fetches)", api.fetches)
	}

	got := s.Messages()
	if len(got) != 30 {
		t.Fatalf("view = %d messages, want 30", len(got))
	}
	for i, m := range got {
		if want := fmt.Sprintf("m%d", i+1); m.Text != want {
			t.Fatalf("view[%d] = %s, want %s", i, m.Text, want)
		}
	}
	if cached := store.CachedMessages(3); len(cached) != 30 {
		t.Errorf("cache = %d messages, want 30", len(cached))
	}
}

func TestFetchMoreWithoutConversationIsNoop(t *testing.T) {
	api := newFakeAPI()
	s := NewSession(api, testStore(t), events.New(), zap.NewNop(), 0, 15)
	if err := s.FetchMore(context.Background()); err != nil || api.fetches != 0 {
		t.Errorf("FetchMore() = %v after %d fetches", err, api.fetches)
	}
}
