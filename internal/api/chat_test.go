package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalgo.org/realmgate/internal/chat"
	"evalgo.org/realmgate/internal/metrics"
)

func TestChatServer(t *testing.T) {
	reg := metrics.NewRegistry()
	hub := chat.NewHub(testLogger(), reg, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	s := NewChatServer(testConfig(), hub, testLogger(), reg)
	srv := httptest.NewServer(s)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket"
	header := http.Header{"Origin": []string{"http://localhost:3001"}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	var env chat.Envelope
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, chat.EventConnect, env.Event)

	msg := []byte(`{"event":"message","data":{"text":"hi"}}`)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, msg))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, msg, frame)

	rec := get(t, s, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"connected_clients":1`)

	_, resp, err = websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"http://evil.test"}})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
