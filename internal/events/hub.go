package events

import (
	"context"
	"errors"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type Logger interface {
	Printf(format string, args ...any)
}

type HubOptions struct {
	// OriginPatterns are passed to the websocket handshake. Empty means
	// same-origin only.
	OriginPatterns []string
	WriteTimeout   time.Duration
	Buffer         int
	Logger         Logger
}

// Hub streams bus events to websocket clients as JSON messages.
type Hub struct {
	bus          *Bus
	origins      []string
	writeTimeout time.Duration
	buffer       int
	logger       Logger
}

func NewHub(bus *Bus, opts HubOptions) *Hub {
	timeout := opts.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Hub{
		bus:          bus,
		origins:      opts.OriginPatterns,
		writeTimeout: timeout,
		buffer:       opts.Buffer,
		logger:       opts.Logger,
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logf("websocket accept failed: %v", err)
		return
	}
	defer conn.CloseNow()

	events, cancel := h.bus.Subscribe(h.buffer)
	defer cancel()

	// Clients only listen; CloseRead handles their close frames.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "event stream closed")
				return
			}
			if err := h.write(ctx, conn, ev); err != nil {
				if !errors.Is(err, context.Canceled) {
					h.logf("websocket write failed: %v", err)
				}
				return
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}

func (h *Hub) logf(format string, args ...any) {
	if h.logger == nil {
		return
	}
	h.logger.Printf(format, args...)
}
