package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agenttool/agenttool/internal/common/logger"
	"github.com/agenttool/agenttool/internal/events"
	"github.com/agenttool/agenttool/internal/events/bus"
)

const (
	writeWait      = 10 * time.Second
	streamBuffer   = 64
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamHandler relays domain events to WebSocket clients.
type StreamHandler struct {
	bus    bus.EventBus
	logger *logger.Logger
}

// NewStreamHandler creates a new event stream handler
func NewStreamHandler(eventBus bus.EventBus, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		bus:    eventBus,
		logger: log.WithFields(zap.String("component", "event_stream")),
	}
}

// StreamEvents upgrades the connection and forwards every domain event
// until the client disconnects
// GET /api/v1/events
func (h *StreamHandler) StreamEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer conn.Close()

	// Events are buffered so a slow client drops events instead of
	// blocking the bus dispatch goroutine.
	eventCh := make(chan *bus.Event, streamBuffer)
	sub, err := h.bus.Subscribe(events.SubjectAll, func(ctx context.Context, event *bus.Event) error {
		select {
		case eventCh <- event:
		default:
			h.logger.Warn("dropping event for slow client", zap.String("event_type", event.Type))
		}
		return nil
	})
	if err != nil {
		h.logger.Error("failed to subscribe to event stream", zap.Error(err))
		return
	}
	defer func() { _ = sub.Unsubscribe() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(maxMessageSize)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event := <-eventCh:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
