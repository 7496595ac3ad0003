package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalgo.org/realmgate/internal/metrics"
)

func newTestHub(t *testing.T) (*Hub, string) {
	t.Helper()

	hub := NewHub(zerolog.Nop(), metrics.NewRegistry(), 16)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	upgrader := NewUpgrader([]string{"http://localhost:3001"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Accept(conn)
	}))
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) (*websocket.Conn, string) {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	var env Envelope
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&env))
	require.Equal(t, EventConnect, env.Event)

	var data struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.ID)
	return conn, data.ID
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	return frame
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	hub, url := newTestHub(t)

	a, idA := dial(t, url)
	b, idB := dial(t, url)
	assert.NotEqual(t, idA, idB)
	assert.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	msg := []byte(`{"event":"message","data":{"text":"hello",  "n":1}}`)
	require.NoError(t, a.WriteMessage(websocket.TextMessage, msg))

	assert.Equal(t, msg, readFrame(t, b))
	assert.Equal(t, msg, readFrame(t, a), "sender receives its own message")
}

func TestOtherEventsAreIgnored(t *testing.T) {
	_, url := newTestHub(t)

	a, _ := dial(t, url)
	b, _ := dial(t, url)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"event":"typing","data":{}}`)))
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	msg := []byte(`{"event":"message","data":"second"}`)
	require.NoError(t, a.WriteMessage(websocket.TextMessage, msg))

	assert.Equal(t, msg, readFrame(t, b))
}

func TestDisconnectRemovesClient(t *testing.T) {
	hub, url := newTestHub(t)

	a, _ := dial(t, url)
	b, _ := dial(t, url)
	assert.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	require.NoError(t, b.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	msg := []byte(`{"event":"message","data":"still here"}`)
	require.NoError(t, a.WriteMessage(websocket.TextMessage, msg))
	assert.Equal(t, msg, readFrame(t, a))
}

func TestShutdownClosesClients(t *testing.T) {
	hub := NewHub(zerolog.Nop(), metrics.NewRegistry(), 4)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	upgrader := NewUpgrader(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Accept(conn)
	}))
	defer srv.Close()

	conn, _ := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	cancel()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
	assert.Equal(t, 0, hub.ClientCount())

	// broadcasting after shutdown does not block
	hub.Broadcast([]byte(`{"event":"message"}`))
}

func TestSlowClientIsDropped(t *testing.T) {
	reg := metrics.NewRegistry()
	hub := NewHub(zerolog.Nop(), reg, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	serverConns := make(chan *websocket.Conn, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := NewUpgrader(nil).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConns <- conn
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	// the slow client's pumps are not running, so its queue fills with the connect frame
	slowPeer, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer slowPeer.Close()
	slow := &Client{id: "client:slow", hub: hub, conn: <-serverConns, send: make(chan []byte, 1)}
	hub.register <- slow

	healthy, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer healthy.Close()
	hub.Accept(<-serverConns)
	var env Envelope
	require.NoError(t, healthy.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, healthy.ReadJSON(&env))
	require.Equal(t, EventConnect, env.Event)
	assert.Equal(t, 2, hub.ClientCount())

	for i := 0; i < 3; i++ {
		msg := []byte(`{"event":"message","data":` + string(rune('0'+i)) + `}`)
		hub.Broadcast(msg)
		assert.Equal(t, msg, readFrame(t, healthy))
	}

	assert.Equal(t, 1, hub.ClientCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.ChatDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.ChatClients))

	go slow.writePump()
	frame := readFrame(t, slowPeer)
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, EventConnect, env.Event)

	require.NoError(t, slowPeer.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = slowPeer.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestOriginCheck(t *testing.T) {
	_, url := newTestHub(t)

	tests := []struct {
		name   string
		origin string
		ok     bool
	}{
		{"allowed origin", "http://localhost:3001", true},
		{"no origin", "", true},
		{"foreign origin", "http://evil.test", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(url, header)
			if tt.ok {
				require.NoError(t, err)
				_ = conn.Close()
				return
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}
