package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// EventCommentsChanged tells every view of a webinar to reload its chat snapshot.
const EventCommentsChanged = "comments_changed"

// AudienceChangeHandler is called when audience count changes for a webinar.
type AudienceChangeHandler func(webinarID uuid.UUID, count int)

// RedisPublisher publishes webinar events for other instances.
type RedisPublisher interface {
	PublishWebinarEvent(ctx context.Context, webinarID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to webinar channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeWebinar(ctx context.Context, webinarID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub tracks connected viewers and the change listeners of their views, per
// webinar. Change notifications travel through Redis so views on every
// instance reload after a write.
type Hub struct {
	clients   map[uuid.UUID]map[string]*Client
	listeners map[uuid.UUID]map[uint64]func()
	subs      map[uuid.UUID]func() // cancel Redis subscription per webinar
	nextID    uint64
	mu        sync.RWMutex

	logger     *zap.Logger
	redis      RedisPublisher
	redisSub   RedisSubscriber
	onAudience AudienceChangeHandler
}

// NewHub creates a hub. With nil Redis bridges notifications stay local.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:   make(map[uuid.UUID]map[string]*Client),
		listeners: make(map[uuid.UUID]map[uint64]func()),
		subs:      make(map[uuid.UUID]func()),
		logger:    logger,
		redis:     redisPub,
		redisSub:  redisSub,
	}
}

// SetAudienceChangeHandler sets the callback for audience count changes.
func (h *Hub) SetAudienceChangeHandler(fn AudienceChangeHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onAudience = fn
}

// Subscribe registers notify for webinarID's change notifications. The first
// listener of a webinar opens its Redis subscription, the last one closes it.
func (h *Hub) Subscribe(webinarID uuid.UUID, notify func()) (cancel func()) {
	h.mu.Lock()
	if h.listeners[webinarID] == nil {
		h.listeners[webinarID] = make(map[uint64]func())
		if h.redisSub != nil {
			stop, err := h.redisSub.SubscribeWebinar(context.Background(), webinarID, func(event string, _ []byte) {
				if event == EventCommentsChanged {
					h.notifyLocal(webinarID)
				}
			})
			if err != nil {
				h.logger.Warn("redis subscribe failed, notifications stay local", zap.String("webinar_id", webinarID.String()), zap.Error(err))
			} else {
				h.subs[webinarID] = stop
			}
		}
	}
	h.nextID++
	id := h.nextID
	h.listeners[webinarID][id] = notify
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.unsubscribe(webinarID, id) })
	}
}

func (h *Hub) unsubscribe(webinarID uuid.UUID, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.listeners[webinarID]
	if !ok {
		return
	}
	delete(m, id)
	if len(m) > 0 {
		return
	}
	delete(h.listeners, webinarID)
	if stop, ok := h.subs[webinarID]; ok {
		stop()
		delete(h.subs, webinarID)
	}
}

// PublishCommentsChanged announces a chat write. With Redis the subscriber
// callback notifies local views too, so nothing is delivered twice.
func (h *Hub) PublishCommentsChanged(webinarID uuid.UUID) {
	if h.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), eventTTL)
		defer cancel()
		err := h.redis.PublishWebinarEvent(ctx, webinarID, EventCommentsChanged, []byte("{}"))
		if err == nil && h.subscribed(webinarID) {
			return
		}
		if err != nil {
			h.logger.Warn("publish comments_changed failed", zap.String("webinar_id", webinarID.String()), zap.Error(err))
		}
	}
	h.notifyLocal(webinarID)
}

// subscribed reports whether this instance receives webinarID's Redis events.
func (h *Hub) subscribed(webinarID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.subs[webinarID]
	return ok
}

func (h *Hub) notifyLocal(webinarID uuid.UUID) {
	h.mu.RLock()
	fns := make([]func(), 0, len(h.listeners[webinarID]))
	for _, fn := range h.listeners[webinarID] {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

// Register adds a connected viewer to its webinar's audience.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.clients[c.WebinarID] == nil {
		h.clients[c.WebinarID] = make(map[string]*Client)
	}
	h.clients[c.WebinarID][c.ID] = c
	count := len(h.clients[c.WebinarID])
	onAudience := h.onAudience
	h.mu.Unlock()
	if onAudience != nil {
		onAudience(c.WebinarID, count)
	}
	h.logger.Debug("viewer joined webinar", zap.String("client_id", c.ID), zap.String("webinar_id", c.WebinarID.String()))
}

// Unregister removes a viewer from its webinar's audience.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	var count int
	if m, ok := h.clients[c.WebinarID]; ok {
		delete(m, c.ID)
		count = len(m)
		if count == 0 {
			delete(h.clients, c.WebinarID)
		}
	}
	onAudience := h.onAudience
	h.mu.Unlock()
	if onAudience != nil {
		onAudience(c.WebinarID, count)
	}
	h.logger.Debug("viewer left webinar", zap.String("client_id", c.ID), zap.String("webinar_id", c.WebinarID.String()))
}

// AudienceCount returns the number of connected viewers of a webinar.
func (h *Hub) AudienceCount(webinarID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[webinarID])
}
