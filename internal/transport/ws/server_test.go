package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cwrk-planet/watchparty/internal/auth"
	"github.com/cwrk-planet/watchparty/internal/memstore"
	"github.com/cwrk-planet/watchparty/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inbound struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

func newTestServer(t *testing.T, max int) (*httptest.Server, string) {
	t.Helper()
	hub := NewHub()
	reg := service.NewRegistry(memstore.NewRooms(), memstore.NewParticipants(), memstore.NewVideos(true), nil, hub,
		service.Options{PersistTimeout: time.Second})
	room, err := reg.CreateRoom(context.Background(), "v1", "host", max)
	require.NoError(t, err)

	srv := NewServer(hub, auth.TrustResolver{}, reg,
		service.NewMemberService(reg),
		service.NewPlaybackService(reg),
		service.NewChatService(reg, memstore.NewChat()),
		Options{PingInterval: time.Second, SendQueue: 16},
	)
	r := chi.NewRouter()
	r.Get("/ws/rooms/{code}", srv.HandleWS)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts, room.Code
}

func dial(ts *httptest.Server, code, user string) (*websocket.Conn, *http.Response, error) {
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/rooms/" + code + "?access_token=tok&user_id=" + user
	return websocket.DefaultDialer.Dial(u, nil)
}

func connect(t *testing.T, ts *httptest.Server, code, user string) *websocket.Conn {
	t.Helper()
	c, _, err := dial(ts, code, user)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	waitFor(t, c, service.EventSync)
	return c
}

func waitFor(t *testing.T, c *websocket.Conn, typ string) inbound {
	t.Helper()
	for {
		_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
		var m inbound
		require.NoError(t, c.ReadJSON(&m), "waiting for %s", typ)
		if m.Type == typ {
			return m
		}
	}
}

func send(t *testing.T, c *websocket.Conn, typ string, payload map[string]any) {
	t.Helper()
	require.NoError(t, c.WriteJSON(map[string]any{"type": typ, "payload": payload}))
}

func expectClosed(t *testing.T, c *websocket.Conn) {
	t.Helper()
	for {
		_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
		if _, _, err := c.ReadMessage(); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected err: %v", err)
			return
		}
	}
}

func TestHandleWS_Rejections(t *testing.T) {
	ts, code := newTestServer(t, 4)

	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/rooms/" + code
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = dial(ts, "FFFFFFFF", "guest")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleWS_PlaybackFlow(t *testing.T) {
	ts, code := newTestServer(t, 4)
	host := connect(t, ts, strings.ToLower(code), "host")
	guest := connect(t, ts, code, "guest")

	joined := waitFor(t, host, service.EventUserJoined)
	assert.Equal(t, "guest", joined.Payload["identity"])
	list := waitFor(t, host, service.EventParticipantList)
	assert.Len(t, list.Payload["participants"], 2)

	// заявленная identity игнорируется
	send(t, host, TypePlay, map[string]any{"roomCode": code, "t": 5.0, "identity": "someone-else"})
	play := waitFor(t, guest, service.EventPlay)
	assert.Equal(t, 5.0, play.Payload["t"])
	assert.Equal(t, "host", play.Payload["identity"])

	send(t, guest, TypeSeek, map[string]any{"t": 1.0})
	waitFor(t, guest, service.EventHostOnly)
	e := waitFor(t, guest, service.EventError)
	assert.Equal(t, "host_only", e.Payload["code"])

	send(t, guest, TypeRequestSync, map[string]any{"roomCode": code})
	st := waitFor(t, guest, service.EventSync)
	assert.Equal(t, true, st.Payload["isPlaying"])
	assert.GreaterOrEqual(t, st.Payload["t"].(float64), 5.0)

	send(t, guest, TypeRequestSync, map[string]any{"roomCode": "OTHER123"})
	e = waitFor(t, guest, service.EventError)
	assert.Equal(t, CodeRoomMismatch, e.Payload["code"])

	send(t, guest, "dance", nil)
	e = waitFor(t, guest, service.EventError)
	assert.Equal(t, CodeUnknownEvent, e.Payload["code"])

	send(t, guest, TypeChat, map[string]any{"text": "hi all"})
	msg := waitFor(t, host, service.EventChatMessage)
	assert.Equal(t, "hi all", msg.Payload["text"])
	waitFor(t, guest, service.EventChatAck)
}

func TestHandleWS_DisconnectBroadcastsLeave(t *testing.T) {
	ts, code := newTestServer(t, 4)
	host := connect(t, ts, code, "host")
	guest := connect(t, ts, code, "guest")
	waitFor(t, host, service.EventUserJoined)

	require.NoError(t, guest.Close())

	left := waitFor(t, host, service.EventUserLeft)
	assert.Equal(t, "guest", left.Payload["identity"])
}

func TestHandleWS_Kick(t *testing.T) {
	ts, code := newTestServer(t, 4)
	host := connect(t, ts, code, "host")
	guest := connect(t, ts, code, "guest")
	waitFor(t, host, service.EventUserJoined)

	send(t, guest, TypeKick, map[string]any{"targetIdentity": "host"})
	e := waitFor(t, guest, service.EventError)
	assert.Equal(t, "forbidden", e.Payload["code"])

	send(t, host, TypeKick, map[string]any{"targetIdentity": "guest"})
	waitFor(t, guest, service.EventKicked)
	expectClosed(t, guest)

	left := waitFor(t, host, service.EventUserLeft)
	assert.Equal(t, "guest", left.Payload["identity"])
}

func TestHandleWS_RoomFull(t *testing.T) {
	ts, code := newTestServer(t, 2)
	connect(t, ts, code, "host")
	connect(t, ts, code, "guest")

	third, _, err := dial(ts, code, "third")
	require.NoError(t, err)
	defer third.Close()

	e := waitFor(t, third, service.EventError)
	assert.Equal(t, "room_full", e.Payload["code"])
	expectClosed(t, third)
}

func TestHandleWS_EndRoom(t *testing.T) {
	ts, code := newTestServer(t, 4)
	host := connect(t, ts, code, "host")
	guest := connect(t, ts, code, "guest")

	send(t, guest, TypeEndRoom, nil)
	e := waitFor(t, guest, service.EventError)
	assert.Equal(t, "forbidden", e.Payload["code"])

	send(t, host, TypeEndRoom, nil)
	waitFor(t, guest, service.EventEnded)
	expectClosed(t, guest)
	waitFor(t, host, service.EventEnded)
	expectClosed(t, host)

	_, resp, err := dial(ts, code, "late")
	require.Error(t, err)
	assert.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestHandleWS_SilentClientDroppedByPingTimeout(t *testing.T) {
	ts, code := newTestServer(t, 4)
	host := connect(t, ts, code, "host")
	// после sync гость больше не читает и потому не отвечает на ping
	connect(t, ts, code, "guest")

	start := time.Now()
	for {
		_ = host.SetReadDeadline(time.Now().Add(6 * time.Second))
		var m inbound
		require.NoError(t, host.ReadJSON(&m), "host must see the guest leave")
		if m.Type == service.EventUserLeft {
			assert.Equal(t, "guest", m.Payload["identity"])
			break
		}
	}
	// read deadline = 2 × PingInterval
	assert.GreaterOrEqual(t, time.Since(start), 1500*time.Millisecond)

	list := waitFor(t, host, service.EventParticipantList)
	assert.Len(t, list.Payload["participants"], 1)
}
