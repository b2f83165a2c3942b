package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventChannel is the Redis channel every server instance shares.
const EventChannel = "chat-events"

// Event is one live notification for a single user.
type Event struct {
	UserID  uint            `json:"userId"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

// PubSub is the slice of *redis.Client the hub needs.
type PubSub interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Event  // From Redis -> Clients
	Register   chan *Client // New connection
	Unregister chan *Client // Connection gone
	publish    chan Event  // Service -> Redis
	redis      PubSub
	logger     *zap.Logger
	done       chan struct{} // closed when Run returns
}

func NewHub(redisClient PubSub, logger *zap.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan Event),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		publish:    make(chan Event, 256),
		redis:      redisClient,
		logger:     logger.Named("hub"),
		done:       make(chan struct{}),
	}
}

// register hands c to Run. It reports false once the hub has stopped.
func (h *Hub) register(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// Notify queues an event for Redis. It never blocks a request; when the
// queue is full the event is dropped and logged.
func (h *Hub) Notify(userID uint, kind string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("encode event", zap.String("kind", kind), zap.Error(err))
		return
	}
	ev := Event{UserID: userID, Kind: kind, Payload: raw, At: time.Now().UTC()}
	select {
	case h.publish <- ev:
	default:
		h.logger.Warn("event queue full, dropping", zap.String("kind", kind), zap.Uint("user_id", userID))
	}
}

// Run owns the client map until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			return

		case client := <-h.Register:
			h.clients[client] = true

		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}

		case ev := <-h.publish:
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("encode event", zap.Error(err))
				continue
			}
			pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := h.redis.Publish(pctx, EventChannel, data).Err(); err != nil {
				h.logger.Warn("publish event", zap.String("kind", ev.Kind), zap.Error(err))
			}
			cancel()

		case ev := <-h.broadcast:
			h.fanOut(ev)
		}
	}
}

func (h *Hub) fanOut(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("encode event", zap.Error(err))
		return
	}
	for client := range h.clients {
		if client.UserID != ev.UserID {
			continue
		}
		select {
		case client.Send <- data:
		default:
			close(client.Send)
			delete(h.clients, client)
		}
	}
}

// SubscribeToRedis forwards events published by any instance to Run.
func (h *Hub) SubscribeToRedis(ctx context.Context) {
	pubsub := h.redis.Subscribe(ctx, EventChannel)
	defer pubsub.Close()
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				h.logger.Warn("bad event on channel", zap.Error(err))
				continue
			}
			select {
			case h.broadcast <- ev:
			case <-ctx.Done():
				return
			case <-h.done:
				return
			}
		}
	}
}
