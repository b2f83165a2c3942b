package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go-gemini-chat/internal/apiclient"
	"go-gemini-chat/internal/logging"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type stats struct {
	mu        sync.Mutex
	latencies []time.Duration
	sent      atomic.Int64
	failed    atomic.Int64
	events    atomic.Int64
	pages     atomic.Int64
}

func (s *stats) record(d time.Duration) {
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.mu.Unlock()
}

func (s *stats) percentile(p float64) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.latencies) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), s.latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[int(float64(len(sorted)-1)*p)]
}

func main() {
	base := flag.String("base", "http://localhost:8080", "server base URL")
	users := flag.Int("users", 50, "concurrent users")
	messages := flag.Int("messages", 10, "messages per user")
	pageSize := flag.Int("page", 15, "history page size")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	logger := logging.NewConsole(*verbose).Named("loadtest")
	defer func() { _ = logger.Sync() }()

	logger.Warn("starting load test", zap.Int("users", *users), zap.Int("messages", *messages))
	start := time.Now()
	st := &stats{}

	var wg sync.WaitGroup
	for i := 0; i < *users; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := runUser(context.Background(), *base, n, *messages, *pageSize, st, logger); err != nil {
				logger.Error("user failed", zap.Int("user", n), zap.Error(err))
			}
		}(i)
	}
	wg.Wait()

	logger.Warn("load test complete",
		zap.Duration("took", time.Since(start)),
		zap.Int64("sent", st.sent.Load()),
		zap.Int64("failed", st.failed.Load()),
		zap.Int64("live_events", st.events.Load()),
		zap.Int64("history_pages", st.pages.Load()),
		zap.Duration("p50", st.percentile(0.50)),
		zap.Duration("p95", st.percentile(0.95)),
	)
}

// runUser signs up, listens for live events, sends a conversation's worth of
// messages and then pages back through the history.
func runUser(ctx context.Context, base string, n, messages, pageSize int, st *stats, logger *zap.Logger) error {
	api := apiclient.New(base, &http.Client{Timeout: 2 * time.Minute})

	email := fmt.Sprintf("load-%d-%s@example.com", n, uuid.NewString()[:8])
	if _, err := api.SignUp(ctx, email, "password123", fmt.Sprintf("load %d", n)); err != nil {
		return fmt.Errorf("signup: %w", err)
	}
	if _, err := api.Login(ctx, email, "password123"); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	stop, err := listen(base, api.Token(), st, logger)
	if err != nil {
		logger.Warn("websocket unavailable", zap.Int("user", n), zap.Error(err))
	} else {
		defer stop()
	}

	var conversationID uint
	for i := 0; i < messages; i++ {
		t0 := time.Now()
		turn, err := api.SendMessage(ctx, conversationID, fmt.Sprintf("load test message %d from user %d", i, n), uuid.NewString())
		if err != nil {
			st.failed.Add(1)
			if apiErr, ok := apiclient.AsError(err); ok && apiErr.ConversationID != 0 {
				conversationID = apiErr.ConversationID
			}
			logger.Debug("send failed", zap.Int("user", n), zap.Error(err))
			continue
		}
		st.record(time.Since(t0))
		st.sent.Add(1)
		conversationID = turn.ConversationID
	}
	if conversationID == 0 {
		return nil
	}

	cursor := ""
	for {
		page, err := api.Messages(ctx, conversationID, cursor, pageSize)
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		st.pages.Add(1)
		if page.NextCursor == nil {
			return nil
		}
		cursor = *page.NextCursor
	}
}

// listen counts live events until the returned func is called.
func listen(base, token string, st *stats, logger *zap.Logger) (func(), error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			st.events.Add(1)
		}
	}()

	return func() {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
		<-done
		logger.Debug("websocket closed")
	}, nil
}
