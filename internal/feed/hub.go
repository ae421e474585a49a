// Package feed pushes every new worklist to connected WebSocket clients.
package feed

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matthewbaird/followup/internal/types"
)

const writeTimeout = 5 * time.Second

// Snapshotter returns the latest worklist, if any.
type Snapshotter interface {
	Latest(ctx context.Context) (types.Worklist, bool, error)
}

type subscriber struct {
	id      string
	updates chan types.Worklist
}

// Hub tracks connected clients. Slow clients only ever see the newest
// worklist; intermediate ones are dropped.
type Hub struct {
	mu       sync.Mutex
	subs     map[string]*subscriber
	snapshot Snapshotter
	logger   *zap.Logger
}

// NewHub creates a Hub. snapshot may be nil.
func NewHub(snapshot Snapshotter, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:     make(map[string]*subscriber),
		snapshot: snapshot,
		logger:   logger.Named("feed"),
	}
}

// Broadcast implements scheduler.Broadcaster.
func (h *Hub) Broadcast(wl types.Worklist) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		select {
		case <-s.updates:
		default:
		}
		s.updates <- wl
	}
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) add() *subscriber {
	s := &subscriber{id: uuid.New().String(), updates: make(chan types.Worklist, 1)}
	h.mu.Lock()
	h.subs[s.id] = s
	h.mu.Unlock()
	return s
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// ServeHTTP upgrades to WebSocket and streams worklists until the client
// goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	sub := h.add()
	defer h.remove(sub.id)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.send(ctx, conn, ServerMessage{Type: "session", Data: SessionData{SessionID: sub.id}})
	h.sendSnapshot(ctx, conn, "")

	go h.readLoop(ctx, cancel, conn)

	for {
		select {
		case wl := <-sub.updates:
			if err := h.send(ctx, conn, ServerMessage{Type: "worklist", Data: wl}); err != nil {
				return
			}
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	defer cancel()
	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				h.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case "ping":
			h.send(ctx, conn, ServerMessage{Type: "pong", RequestID: msg.ID})
		case "snapshot":
			h.sendSnapshot(ctx, conn, msg.ID)
		default:
			h.send(ctx, conn, ServerMessage{
				Type:      "error",
				RequestID: msg.ID,
				Data:      ErrorData{Code: "unknown_type", Message: fmt.Sprintf("unknown message type: %s", msg.Type)},
			})
		}
	}
}

func (h *Hub) sendSnapshot(ctx context.Context, conn *websocket.Conn, requestID string) {
	if h.snapshot == nil {
		return
	}
	wl, ok, err := h.snapshot.Latest(ctx)
	if err != nil {
		h.logger.Warn("loading worklist snapshot failed", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	h.send(ctx, conn, ServerMessage{Type: "worklist", RequestID: requestID, Data: wl})
}

func (h *Hub) send(ctx context.Context, conn *websocket.Conn, msg ServerMessage) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		h.logger.Debug("websocket write failed", zap.Error(err))
		return err
	}
	return nil
}
