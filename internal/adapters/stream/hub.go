// Package stream fans committed price updates out to websocket subscribers.
//
// Delivery is latest-only per subscriber: each connection owns a one-slot
// mailbox, and a publish replaces any undelivered update. A slow reader can
// miss intermediate prices but always converges on the current one, and
// publishing never blocks the tick engine.
package stream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/quotewire/pulse/internal/domain/model"
	"github.com/quotewire/pulse/pkg/logger"
	"github.com/quotewire/pulse/pkg/metrics"
)

// Default hub configuration constants.
const (
	defaultWriteTimeout   = 5 * time.Second
	defaultMaxSubscribers = 10000
)

// subscriber is one websocket connection's delivery state.
type subscriber struct {
	mailbox chan model.PriceUpdate // capacity 1, latest-only
}

// Hub tracks subscribers and broadcasts price updates.
type Hub struct {
	mu             sync.RWMutex
	subscribers    map[*subscriber]struct{}
	writeTimeout   time.Duration
	maxSubscribers int
	logger         logger.Logger
}

// NewHub creates a hub with configuration options.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subscribers:    make(map[*subscriber]struct{}),
		writeTimeout:   defaultWriteTimeout,
		maxSubscribers: defaultMaxSubscribers,
		logger:         logger.Get().Named("stream"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SubscriberCount returns the number of connected clients.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Publish delivers an update to every subscriber, coalescing per subscriber:
// an undelivered older update is dropped in favor of this one. Never blocks.
func (h *Hub) Publish(update model.PriceUpdate) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers {
		for {
			select {
			case sub.mailbox <- update:
				// Delivered into the slot.
			default:
				// Slot occupied by a stale update; drain and retry.
				select {
				case <-sub.mailbox:
					metrics.RecordUpdateCoalesced()
					continue
				default:
					// Reader grabbed it between our two selects; retry the send.
					continue
				}
			}
			break
		}
	}
	metrics.RecordPriceUpdatePublished()
}

func (h *Hub) add(sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.subscribers) >= h.maxSubscribers {
		return false
	}
	h.subscribers[sub] = struct{}{}
	metrics.UpdateSubscriberCount(len(h.subscribers))
	return true
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, sub)
	metrics.UpdateSubscriberCount(len(h.subscribers))
}

// ServeHTTP upgrades the request to a websocket and streams price updates
// until the client disconnects or the server shuts down.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // same-origin policy handled upstream
	})
	if err != nil {
		h.logger.Warn(r.Context(), "websocket accept failed", logger.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	sub := &subscriber{mailbox: make(chan model.PriceUpdate, 1)}
	if !h.add(sub) {
		conn.Close(websocket.StatusTryAgainLater, "subscriber limit reached")
		return
	}
	defer h.remove(sub)

	// We never expect client frames; CloseRead surfaces disconnects.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case update := <-sub.mailbox:
			writeCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			err := wsjson.Write(writeCtx, conn, update)
			cancel()
			if err != nil {
				h.logger.Debug(ctx, "dropping slow or dead subscriber", logger.Error(err))
				return
			}
		}
	}
}

// Option applies a configuration option to the Hub.
type Option func(*Hub)

// WithWriteTimeout bounds each frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// WithMaxSubscribers caps concurrent connections.
func WithMaxSubscribers(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.maxSubscribers = n
		}
	}
}

// WithLogger sets a custom logger for the hub.
func WithLogger(log logger.Logger) Option {
	return func(h *Hub) {
		if log != nil {
			h.logger = log
		}
	}
}
