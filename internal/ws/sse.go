package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/postline/postline-backend/internal/store"
)

// SSEHandler streams per-project change events over server-sent events for
// clients that cannot hold a websocket. Events come from the cache pubsub,
// so they arrive regardless of which instance performed the refresh.
type SSEHandler struct {
	cache          *store.Cache
	allowedOrigins []string
	logger         *zap.SugaredLogger
}

func NewSSEHandler(cache *store.Cache, allowedOrigins []string, logger *zap.SugaredLogger) *SSEHandler {
	return &SSEHandler{
		cache:          cache,
		allowedOrigins: allowedOrigins,
		logger:         logger,
	}
}

func (h *SSEHandler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	origin := r.Header.Get("Origin")
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			break
		}
	}
	w.Header().Set("Access-Control-Allow-Headers", "Cache-Control")

	projects := h.parseProjects(r)
	if len(projects) == 0 {
		http.Error(w, "projects query parameter required", http.StatusBadRequest)
		return
	}

	h.logger.Debugw("SSE connection established", "projects", projects)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	channels := make([]string, 0, len(projects))
	for _, id := range projects {
		channels = append(channels, store.EventChannel(id))
	}

	pubsub := h.cache.Subscribe(ctx, channels...)
	if pubsub != nil {
		defer pubsub.Close()
		h.streamRedis(ctx, w, pubsub)
		return
	}

	if h.cache.IsInMemoryMode() {
		sub := h.cache.SubscribeInMemory(ctx, channels...)
		if sub != nil {
			defer sub.Close()
			h.logger.Debugw("Using in-memory PubSub for SSE", "channels", channels)
			h.streamInMemory(ctx, w, sub)
			return
		}
	}

	h.logger.Warnw("No PubSub available; SSE updates disabled for this connection")
	h.sendEvent(w, "connected", "none", nil)
}

func (h *SSEHandler) parseProjects(r *http.Request) []string {
	param := r.URL.Query().Get("projects")
	if param == "" {
		return nil
	}
	var ids []string
	for _, id := range strings.Split(param, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func (h *SSEHandler) sendEvent(w http.ResponseWriter, eventType, id string, data interface{}) {
	if data != nil {
		dataBytes, err := json.Marshal(data)
		if err != nil {
			h.logger.Errorw("Failed to marshal SSE data", "error", err)
			return
		}
		fmt.Fprintf(w, "event: %s\n", eventType)
		fmt.Fprintf(w, "id: %s\n", id)
		fmt.Fprintf(w, "data: %s\n\n", dataBytes)
	} else {
		fmt.Fprintf(w, "event: %s\n", eventType)
		fmt.Fprintf(w, "id: %s\n", id)
		fmt.Fprintf(w, "data: {}\n\n")
	}

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (h *SSEHandler) streamRedis(ctx context.Context, w http.ResponseWriter, pubsub *redis.PubSub) {
	h.sendEvent(w, "connected", "redis", nil)

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debugw("SSE client disconnected")
			return

		case <-heartbeat.C:
			h.sendEvent(w, "heartbeat", "ping", map[string]interface{}{
				"timestamp": time.Now().Unix(),
			})

		case msg := <-ch:
			if msg == nil {
				continue
			}
			h.forward(w, msg.Channel, msg.Payload)
		}
	}
}

func (h *SSEHandler) streamInMemory(ctx context.Context, w http.ResponseWriter, sub *store.Subscription) {
	h.sendEvent(w, "connected", "in-memory", nil)

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debugw("SSE client disconnected")
			return

		case <-heartbeat.C:
			h.sendEvent(w, "heartbeat", "ping", map[string]interface{}{
				"timestamp": time.Now().Unix(),
			})

		case msg := <-ch:
			if msg == nil {
				continue
			}
			h.forward(w, msg.Channel, msg.Payload)
		}
	}
}

func (h *SSEHandler) forward(w http.ResponseWriter, channel, payload string) {
	var data interface{}
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		h.logger.Warnw("Failed to parse message payload", "error", err)
		return
	}
	h.sendEvent(w, "project_update", channel, data)
}
