package apigateway

import (
	"net/http"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gateway "github.com/legalqa/gateway"
)

func dialWS(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocket_AnswersEachQuestion(t *testing.T) {
	env := newTestEnv(t, answerWith("ws: "), nil)
	conn := dialWS(t, env)

	for _, q := range []string{"პირველი კითხვა", "second question"} {
		require.NoError(t, conn.WriteJSON(gateway.ChatRequest{Question: q}))

		var frame Frame
		require.NoError(t, conn.ReadJSON(&frame))
		assert.Equal(t, FrameAnswer, frame.Type)
		require.NotNil(t, frame.Answer)
		assert.Equal(t, "ws: "+q, *frame.Answer)
	}
	assert.Equal(t, int32(2), env.askCalls.Load())
}

func TestWebSocket_ErrorsKeepConnectionOpen(t *testing.T) {
	env := newTestEnv(t, answerWith(""), nil)
	conn := dialWS(t, env)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	var frame Frame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, FrameError, frame.Type)
	assert.Equal(t, gateway.KindInvalidInput, frame.Error)
	assert.Equal(t, http.StatusBadRequest, frame.Status)

	require.NoError(t, conn.WriteJSON(gateway.ChatRequest{Question: "  "}))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, gateway.KindInvalidInput, frame.Error)

	require.NoError(t, conn.WriteJSON(gateway.ChatRequest{Question: "ok"}))
	frame = Frame{}
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, FrameAnswer, frame.Type)
	assert.Equal(t, int32(1), env.askCalls.Load())
}

func TestWebSocket_UpstreamFailure(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "index not built"}`))
	}, nil)
	conn := dialWS(t, env)

	require.NoError(t, conn.WriteJSON(gateway.ChatRequest{Question: "q"}))
	var frame Frame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, FrameError, frame.Type)
	assert.Equal(t, gateway.KindUpstreamError, frame.Error)
	assert.Contains(t, frame.Detail, "index not built")
}

func TestWebSocket_FramesShareRateLimit(t *testing.T) {
	// 握手占一次额度，第一帧占一次
	limiter := &allowN{n: 2}
	env := newTestEnv(t, answerWith("ws: "), nil, WithLimiter(limiter))
	conn := dialWS(t, env)

	require.NoError(t, conn.WriteJSON(gateway.ChatRequest{Question: "first"}))
	var frame Frame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, FrameAnswer, frame.Type)

	for i := 0; i < 3; i++ {
		require.NoError(t, conn.WriteJSON(gateway.ChatRequest{Question: "again"}))
		frame = Frame{}
		require.NoError(t, conn.ReadJSON(&frame))
		assert.Equal(t, FrameError, frame.Type)
		assert.Equal(t, gateway.KindRateLimited, frame.Error)
		assert.Equal(t, http.StatusTooManyRequests, frame.Status)
	}

	assert.Equal(t, int32(1), env.askCalls.Load())
	assert.Equal(t, int32(5), limiter.calls.Load())
}
