package feed

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matthewbaird/followup/internal/types"
)

type staticSnapshot struct{ wl *types.Worklist }

func (s staticSnapshot) Latest(context.Context) (types.Worklist, bool, error) {
	if s.wl == nil {
		return types.Worklist{}, false, nil
	}
	return *s.wl, true, nil
}

type received struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

func dial(t *testing.T, h *Hub) (*websocket.Conn, context.Context) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn, ctx
}

func read(t *testing.T, ctx context.Context, conn *websocket.Conn) received {
	t.Helper()
	var msg received
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	return msg
}

func TestHub_SessionThenSnapshot(t *testing.T) {
	h := NewHub(staticSnapshot{wl: &types.Worklist{OverdueCount: 4}}, zap.NewNop())
	conn, ctx := dial(t, h)

	msg := read(t, ctx, conn)
	assert.Equal(t, "session", msg.Type)
	var sess SessionData
	require.NoError(t, json.Unmarshal(msg.Data, &sess))
	assert.NotEmpty(t, sess.SessionID)

	msg = read(t, ctx, conn)
	assert.Equal(t, "worklist", msg.Type)
	var wl types.Worklist
	require.NoError(t, json.Unmarshal(msg.Data, &wl))
	assert.Equal(t, 4, wl.OverdueCount)
}

func TestHub_Broadcast(t *testing.T) {
	h := NewHub(nil, zap.NewNop())
	conn, ctx := dial(t, h)

	assert.Equal(t, "session", read(t, ctx, conn).Type)
	require.Eventually(t, func() bool { return h.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	h.Broadcast(types.Worklist{UpcomingCount: 7})

	msg := read(t, ctx, conn)
	assert.Equal(t, "worklist", msg.Type)
	var wl types.Worklist
	require.NoError(t, json.Unmarshal(msg.Data, &wl))
	assert.Equal(t, 7, wl.UpcomingCount)
}

func TestHub_PingAndUnknown(t *testing.T) {
	h := NewHub(nil, zap.NewNop())
	conn, ctx := dial(t, h)
	assert.Equal(t, "session", read(t, ctx, conn).Type)

	require.NoError(t, wsjson.Write(ctx, conn, ClientMessage{Type: "ping", ID: "p1"}))
	msg := read(t, ctx, conn)
	assert.Equal(t, "pong", msg.Type)
	assert.Equal(t, "p1", msg.RequestID)

	require.NoError(t, wsjson.Write(ctx, conn, ClientMessage{Type: "bogus", ID: "b1"}))
	msg = read(t, ctx, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "b1", msg.RequestID)
}

func TestHub_RemovesClosedClients(t *testing.T) {
	h := NewHub(nil, zap.NewNop())
	conn, ctx := dial(t, h)
	assert.Equal(t, "session", read(t, ctx, conn).Type)
	require.Eventually(t, func() bool { return h.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return h.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastKeepsNewest(t *testing.T) {
	h := NewHub(nil, zap.NewNop())
	s := h.add()
	h.Broadcast(types.Worklist{OverdueCount: 1})
	h.Broadcast(types.Worklist{OverdueCount: 2})
	got := <-s.updates
	assert.Equal(t, 2, got.OverdueCount)
}
