package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	gorillaWS "github.com/gorilla/websocket"

	"github.com/AlibekovAA/session-guard/internal/common/constants"
	"github.com/AlibekovAA/session-guard/internal/common/logger"
	"github.com/AlibekovAA/session-guard/internal/observability/metrics"
)

type subscriber struct {
	conn *gorillaWS.Conn
	send chan []byte
}

// StreamHub is a Sink that pushes every event to connected websocket
// subscribers. A subscriber that cannot keep up misses events rather than
// slowing the hub down.
type StreamHub struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	upgrader    gorillaWS.Upgrader
	log         *logger.Logger
}

func NewStreamHub(log *logger.Logger) *StreamHub {
	return &StreamHub{
		subscribers: make(map[*subscriber]struct{}),
		upgrader: gorillaWS.Upgrader{
			ReadBufferSize:  constants.AuditStreamReadBufferSize,
			WriteBufferSize: constants.AuditStreamWriteBufferSize,
			// Access is gated by the internal key, not by origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

func (h *StreamHub) Emit(_ context.Context, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers {
		select {
		case sub.send <- data:
		default:
		}
	}
}

func (h *StreamHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithFields(r.Context(), logger.Fields{
			"action": "audit_stream_upgrade_failed",
		}).Warnf("audit stream upgrade failed: %v", err)
		return
	}

	sub := &subscriber{
		conn: conn,
		send: make(chan []byte, constants.AuditStreamSendBufSize),
	}
	h.register(sub)

	go h.writePump(sub)
	go h.readPump(sub)
}

func (h *StreamHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close disconnects every subscriber.
func (h *StreamHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		delete(h.subscribers, sub)
		close(sub.send)
	}
	metrics.AuditStreamSubscribers.Set(0)
}

func (h *StreamHub) register(sub *subscriber) {
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	n := len(h.subscribers)
	h.mu.Unlock()
	metrics.AuditStreamSubscribers.Set(float64(n))
}

func (h *StreamHub) unregister(sub *subscriber) {
	h.mu.Lock()
	if _, ok := h.subscribers[sub]; ok {
		delete(h.subscribers, sub)
		close(sub.send)
	}
	n := len(h.subscribers)
	h.mu.Unlock()
	metrics.AuditStreamSubscribers.Set(float64(n))
}

// readPump only services control frames; subscribers never send data.
func (h *StreamHub) readPump(sub *subscriber) {
	defer func() {
		h.unregister(sub)
		sub.conn.Close()
	}()

	sub.conn.SetReadLimit(512)
	_ = sub.conn.SetReadDeadline(time.Now().Add(constants.AuditStreamPongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(constants.AuditStreamPongWait))
	})

	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			if gorillaWS.IsUnexpectedCloseError(err, gorillaWS.CloseGoingAway, gorillaWS.CloseAbnormalClosure) {
				h.log.Warnf("audit stream read error: %v", err)
			}
			return
		}
	}
}

func (h *StreamHub) writePump(sub *subscriber) {
	ticker := time.NewTicker(constants.AuditStreamPingPeriod)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()

	for {
		select {
		case message, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(constants.AuditStreamWriteWait))
			if !ok {
				_ = sub.conn.WriteMessage(gorillaWS.CloseMessage, []byte{})
				return
			}
			if err := sub.conn.WriteMessage(gorillaWS.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(constants.AuditStreamWriteWait))
			if err := sub.conn.WriteMessage(gorillaWS.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
