package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/compumacy/visolearn-local/internal/session"
)

// StatusHandler pushes connection-state transitions (connected, degraded,
// fallback) to the UI over a WebSocket, so the degraded-mode indicator
// updates without polling.
type StatusHandler struct {
	svc *session.Service

	mu    sync.Mutex
	conns map[chan session.Status]struct{}
}

// NewStatusHandler creates a StatusHandler subscribed to service status
// transitions.
func NewStatusHandler(svc *session.Service) *StatusHandler {
	h := &StatusHandler{
		svc:   svc,
		conns: make(map[chan session.Status]struct{}),
	}
	svc.Subscribe(h.broadcast)
	return h
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept status WebSocket", "error", err)
		return
	}

	// Send the current state immediately so a freshly opened UI is not
	// stuck waiting for the next transition.
	if err := writeStatus(r.Context(), ws, h.svc.Status()); err != nil {
		_ = ws.Close(websocket.StatusInternalError, "initial status write failed")
		return
	}

	ch := make(chan session.Status, 8)
	h.mu.Lock()
	h.conns[ch] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, ch)
		h.mu.Unlock()
		_ = ws.Close(websocket.StatusNormalClosure, "session ended")
	}()

	// The stream is write-only; reading just detects the peer going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.Read(r.Context()); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case st := <-ch:
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			err := writeStatus(ctx, ws, st)
			cancel()
			if err != nil {
				slog.Debug("status WebSocket write failed, dropping connection", "error", err)
				return
			}
		}
	}
}

// broadcast hands the transition to every connection's writer goroutine and
// returns without blocking: a stalled peer must never delay the request that
// triggered the transition. When a peer's queue is full the oldest entry is
// replaced, keeping the most recent state.
func (h *StatusHandler) broadcast(st session.Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.conns {
		select {
		case ch <- st:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
}

func writeStatus(ctx context.Context, c *websocket.Conn, st session.Status) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return c.Write(ctx, websocket.MessageText, payload)
}
