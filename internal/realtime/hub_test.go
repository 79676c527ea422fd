package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"careerhub/internal/model"
)

type fakeController struct {
	hub   *Hub
	mu    sync.Mutex
	read  []uuid.UUID
	count int64
}

func (f *fakeController) MarkRead(_ context.Context, userID, id uuid.UUID) (int64, error) {
	f.mu.Lock()
	f.read = append(f.read, id)
	f.count--
	count := f.count
	f.mu.Unlock()
	f.hub.PushUnreadCount(userID, count)
	return count, nil
}

func (f *fakeController) MarkAllRead(_ context.Context, userID uuid.UUID) (int64, error) {
	f.mu.Lock()
	f.count = 0
	f.mu.Unlock()
	f.hub.PushUnreadCount(userID, 0)
	return 0, nil
}

func newServer(t *testing.T, hub *Hub, userID uuid.UUID) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(r.Context(), conn, userID, 2)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func waitConnections(t *testing.T, hub *Hub, userID uuid.UUID, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Connections(userID) == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_FansOutToEveryConnection(t *testing.T) {
	hub := NewHub(zap.NewNop())
	user := uuid.New()
	srv := newServer(t, hub, user)

	a, b := dial(t, srv), dial(t, srv)
	waitConnections(t, hub, user, 2)
	for _, conn := range []*websocket.Conn{a, b} {
		msg := readJSON(t, conn)
		assert.Equal(t, TypeUnreadCount, msg["type"])
		assert.EqualValues(t, 2, msg["count"])
	}

	n := &model.Notification{ID: uuid.New(), UserID: user, Type: "payment.released", Title: "Payment released"}
	hub.PushNotification(user, n)
	hub.PushUnreadCount(user, 3)

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readJSON(t, conn)
		assert.Equal(t, TypeNotification, msg["type"])
		body, ok := msg["notification"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, n.ID.String(), body["id"])

		msg = readJSON(t, conn)
		assert.Equal(t, TypeUnreadCount, msg["type"])
		assert.EqualValues(t, 3, msg["count"])
	}

	hub.PushUnreadCount(uuid.New(), 9)
	require.NoError(t, a.Close())
	waitConnections(t, hub, user, 1)
}

func TestHub_ControlMessages(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ctrl := &fakeController{hub: hub, count: 2}
	hub.SetController(ctrl)
	user := uuid.New()
	srv := newServer(t, hub, user)

	a, b := dial(t, srv), dial(t, srv)
	waitConnections(t, hub, user, 2)
	readJSON(t, a)
	readJSON(t, b)

	id := uuid.New()
	require.NoError(t, a.WriteJSON(ControlMessage{Type: ControlMarkRead, NotificationID: id.String()}))
	for _, conn := range []*websocket.Conn{a, b} {
		msg := readJSON(t, conn)
		assert.Equal(t, TypeUnreadCount, msg["type"])
		assert.EqualValues(t, 1, msg["count"])
	}

	require.NoError(t, b.WriteJSON(ControlMessage{Type: ControlMarkAllRead}))
	for _, conn := range []*websocket.Conn{a, b} {
		msg := readJSON(t, conn)
		assert.EqualValues(t, 0, msg["count"])
	}

	require.NoError(t, a.WriteJSON(ControlMessage{Type: ControlMarkRead, NotificationID: "nope"}))
	msg := readJSON(t, a)
	assert.Equal(t, TypeError, msg["type"])

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	assert.Equal(t, []uuid.UUID{id}, ctrl.read)
}

func TestClient_EnqueueAfterCloseIsDropped(t *testing.T) {
	c := &client{send: make(chan []byte, 1)}
	assert.True(t, c.enqueue([]byte("a")))
	assert.False(t, c.enqueue([]byte("b")), "buffer full")

	c.close()
	c.close()
	assert.True(t, c.enqueue([]byte("c")))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.enqueue([]byte("d"))
		}()
	}
	wg.Wait()

	data, ok := <-c.send
	assert.True(t, ok)
	assert.Equal(t, "a", string(data))
	_, ok = <-c.send
	assert.False(t, ok)
}

func TestHub_SendRacingUnregister(t *testing.T) {
	h := NewHub(zap.NewNop())
	userID := uuid.New()
	c := &client{hub: h, userID: userID, send: make(chan []byte, sendBuffer)}
	h.register(c)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			h.PushUnreadCount(userID, int64(i))
		}
	}()
	go func() {
		defer wg.Done()
		h.unregister(c)
	}()
	wg.Wait()
	assert.Equal(t, 0, h.Connections(userID))
}
