package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/chat"
	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/embedder/mock"
	"github.com/becomeliminal/nim-memory/memory/index/flat"
	"github.com/becomeliminal/nim-memory/memory/kv/inmem"
	"github.com/becomeliminal/nim-memory/memory/summarizer"
	"github.com/becomeliminal/nim-memory/observability"
)

// echoBackend answers every context with a fixed reply.
type echoBackend struct {
	err error
}

func (echoBackend) Name() string { return "ollama" }

func (b echoBackend) Complete(_ context.Context, _ string, c core.Context) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	return "echo: " + c[len(c)-1].Content, nil
}

func newTestServer(t *testing.T, backend chat.Backend) (*httptest.Server, *memory.Manager, *observability.Metrics) {
	t.Helper()
	index, err := flat.New(16, "")
	require.NoError(t, err)
	recency := memory.NewRecencyStore(inmem.New(), summarizer.New(), 5)
	manager := memory.NewManager(recency, index, mock.New(16), nil)
	engine := chat.NewEngine(manager, chat.NewRouter(chat.WithOllama(backend)), nil)

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetricsWith(reg, "test")
	srv := New(manager, engine, metrics, WithMetricsHandler(observability.HandlerFor(reg)))

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, manager, metrics
}

func postChat(t *testing.T, url string, req ChatRequest) (*http.Response, map[string]any) {
	t.Helper()
	body, _ := json.Marshal(req)
	res, err := http.Post(url+"/v1/chat", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer res.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return res, out
}

func TestChatFlow(t *testing.T) {
	ts, _, _ := newTestServer(t, echoBackend{})

	res, out := postChat(t, ts.URL, ChatRequest{Message: "What's the weather in NYC?"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	id, _ := out["conversation_id"].(string)
	require.NotEmpty(t, id, "a new conversation id is assigned")
	assert.Equal(t, "echo: What's the weather in NYC?", out["reply"])

	res, out = postChat(t, ts.URL, ChatRequest{ConversationID: id, Model: "mistral", Message: "tomorrow?"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, id, out["conversation_id"])

	listRes, err := http.Get(ts.URL + "/v1/conversations")
	require.NoError(t, err)
	defer listRes.Body.Close()
	var list struct {
		Conversations []string `json:"conversations"`
	}
	require.NoError(t, json.NewDecoder(listRes.Body).Decode(&list))
	assert.Equal(t, []string{id}, list.Conversations)

	recapRes, err := http.Get(ts.URL + "/v1/conversations/" + id + "/recap")
	require.NoError(t, err)
	defer recapRes.Body.Close()
	var recap struct {
		Memories []string `json:"memories"`
	}
	require.NoError(t, json.NewDecoder(recapRes.Body).Decode(&recap))
	require.Len(t, recap.Memories, 2)
	assert.True(t, strings.HasPrefix(recap.Memories[0], "User: "))

	vecRes, err := http.Get(ts.URL + "/v1/vectors")
	require.NoError(t, err)
	defer vecRes.Body.Close()
	var vectors struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(vecRes.Body).Decode(&vectors))
	assert.Equal(t, 4, vectors.Count)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/conversations/"+id, nil)
	delRes, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	delRes.Body.Close()
	assert.Equal(t, http.StatusOK, delRes.StatusCode)

	listRes2, err := http.Get(ts.URL + "/v1/conversations")
	require.NoError(t, err)
	defer listRes2.Body.Close()
	list.Conversations = nil
	require.NoError(t, json.NewDecoder(listRes2.Body).Decode(&list))
	assert.Empty(t, list.Conversations)
}

func TestChatErrors(t *testing.T) {
	tests := []struct {
		name    string
		backend chat.Backend
		req     ChatRequest
		status  int
		code    string
	}{
		{name: "empty message", backend: echoBackend{}, req: ChatRequest{Message: "  "}, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "unsupported model", backend: echoBackend{}, req: ChatRequest{Model: "llama3", Message: "hi"}, status: http.StatusBadRequest, code: "unsupported_model"},
		{name: "backend failure", backend: echoBackend{err: errors.New("boom")}, req: ChatRequest{Message: "hi"}, status: http.StatusBadGateway, code: "backend_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _, _ := newTestServer(t, tt.backend)
			res, out := postChat(t, ts.URL, tt.req)
			assert.Equal(t, tt.status, res.StatusCode)
			assert.Equal(t, tt.code, out["code"])
		})
	}
}

func TestChatInvalidJSON(t *testing.T) {
	ts, _, _ := newTestServer(t, echoBackend{})
	res, err := http.Post(ts.URL+"/v1/chat", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestWebSocketChat(t *testing.T) {
	ts, _, metrics := newTestServer(t, echoBackend{})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(ChatRequest{ConversationID: "ws-1", Message: "hello"}))
	var resp ChatResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, ChatResponse{ConversationID: "ws-1", Reply: "echo: hello"}, resp)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	var errResp errorResponse
	require.NoError(t, conn.ReadJSON(&errResp))
	assert.Equal(t, "invalid_request", errResp.Code)

	conn.Close()
	assert.Eventually(t, func() bool {
		return testCounter(metrics, "outbound") == 2
	}, testWait, testTick)
	assert.Equal(t, float64(2), testCounter(metrics, "inbound"))
}

func TestHealthAndMetrics(t *testing.T) {
	ts, _, _ := newTestServer(t, echoBackend{})

	res, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	_, _ = postChat(t, ts.URL, ChatRequest{Message: "hi"})
	res, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}
