package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gosolana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/becomeliminal/dlmm-scout/core"
	"github.com/becomeliminal/dlmm-scout/engine"
	"github.com/becomeliminal/dlmm-scout/guardrails"
	"github.com/becomeliminal/dlmm-scout/observability"
	"github.com/becomeliminal/dlmm-scout/pools"
	"github.com/becomeliminal/dlmm-scout/solana"
)

type fakeCompleter struct {
	fragments []string
	err       error

	mu       sync.Mutex
	messages []core.Message
}

func (f *fakeCompleter) StreamText(ctx context.Context, system string, messages []core.Message, onText func(string) error) error {
	f.mu.Lock()
	f.messages = messages
	f.mu.Unlock()
	for _, fr := range f.fragments {
		if err := onText(fr); err != nil {
			return err
		}
	}
	return f.err
}

func (f *fakeCompleter) lastMessages() []core.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages
}

type mapFetcher map[string][]core.Pool

func (m mapFetcher) Fetch(ctx context.Context, term string) (*core.PoolGroupResponse, error) {
	pairs := m[term]
	return &core.PoolGroupResponse{Groups: []core.PoolGroup{{Name: term, Pairs: pairs}}, Total: len(pairs)}, nil
}

type fakeBalances struct {
	lamports uint64
	err      error
}

func (f fakeBalances) GetBalance(ctx context.Context, account gosolana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &rpc.GetBalanceResult{Value: f.lamports}, nil
}

func intPtr(n int) *int { return &n }

type harness struct {
	completer *fakeCompleter
	fetcher   mapFetcher
	balances  fakeBalances
	limit     int
	dev       bool
	noKey     bool
}

func (h harness) build(t *testing.T) *Server {
	t.Helper()
	log := zaptest.NewLogger(t)

	if h.limit == 0 {
		h.limit = 100
	}
	limiter, err := guardrails.NewLimiter(h.limit, time.Minute)
	require.NoError(t, err)
	t.Cleanup(limiter.Close)

	var completer engine.Completer
	if !h.noKey {
		if h.completer == nil {
			h.completer = &fakeCompleter{}
		}
		completer = h.completer
	}

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	srv, err := New(Config{
		Relay:          engine.NewRelay(completer, engine.WithLogger(log)),
		Limiter:        limiter,
		Searcher:       pools.NewSearcher(h.fetcher, pools.DefaultSearchConfig(), pools.WithLogger(log)),
		Balances:       solana.NewBalanceService(h.balances, log),
		Metrics:        metrics,
		Logger:         log,
		AllowedOrigins: []string{"http://localhost:3000"},
		Development:    h.dev,
	})
	require.NoError(t, err)
	return srv
}

func serve(srv *Server, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, r)
	return rec
}

func chatRequest(body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.RemoteAddr = "198.51.100.10:4000"
	return r
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

const helloBody = `{"messages":[{"role":"user","content":"hello"}]}`

func TestChatProbe(t *testing.T) {
	rec := serve(harness{}.build(t), httptest.NewRequest(http.MethodGet, "/api/chat", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"API route is working"}`, rec.Body.String())
}

func TestChat_StreamsPlainText(t *testing.T) {
	completer := &fakeCompleter{fragments: []string{"Hello", ", ", "world"}}
	rec := serve(harness{completer: completer}.build(t), chatRequest(helloBody))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Hello, world", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestChat_EmptyStreamStillSucceeds(t *testing.T) {
	rec := serve(harness{}.build(t), chatRequest(helloBody))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Body.String())
}

func TestChat_PoolOnlyRequest(t *testing.T) {
	completer := &fakeCompleter{fragments: []string{"ok"}}
	rec := serve(harness{completer: completer}.build(t),
		chatRequest(`{"messages":[],"poolData":{"name":"wBTC-SOL","binStep":50},"portfolioStyle":"conservative"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	messages := completer.lastMessages()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0].Content, `"binStep": 50`)
}

func TestChat_ValidationError(t *testing.T) {
	rec := serve(harness{}.build(t), chatRequest(`{"messages":[]}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "messages", body.Field)
	assert.Equal(t, "Validation error", body.Error)
}

func TestChat_ScriptInjectionRejected(t *testing.T) {
	rec := serve(harness{}.build(t), chatRequest(`{"messages":[{"role":"user","content":"<script>alert(1)</script>"}]}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "messages[0].content", decodeError(t, rec).Field)
}

func TestChat_RateLimited(t *testing.T) {
	srv := harness{limit: 2}.build(t)

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, serve(srv, chatRequest(helloBody)).Code)
	}

	rec := serve(srv, chatRequest(helloBody))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	body := decodeError(t, rec)
	assert.Equal(t, "Too many requests", body.Error)
	assert.Contains(t, body.Message, "60 seconds")

	other := chatRequest(helloBody)
	other.Header.Set("X-Forwarded-For", "203.0.113.99")
	assert.Equal(t, http.StatusOK, serve(srv, other).Code)
}

func TestChat_BodyTooLarge(t *testing.T) {
	big := bytes.Repeat([]byte("a"), 1<<20+1)
	r := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(big))

	rec := serve(harness{}.build(t), r)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "Payload too large", decodeError(t, rec).Error)
}

func TestChat_MissingAPIKey(t *testing.T) {
	rec := serve(harness{noKey: true}.build(t), chatRequest(helloBody))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "An unexpected error occurred", body.Message)
	assert.NotContains(t, rec.Body.String(), "ANTHROPIC")
}

func TestChat_DevelopmentShowsDetail(t *testing.T) {
	rec := serve(harness{noKey: true, dev: true}.build(t), chatRequest(helloBody))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeError(t, rec).Message, "ANTHROPIC_API_KEY")
}

func TestChat_UpstreamFailureBeforeStreaming(t *testing.T) {
	completer := &fakeCompleter{err: &core.GatewayError{Op: "anthropic stream", StatusCode: 529}}
	rec := serve(harness{completer: completer}.build(t), chatRequest(helloBody))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "An unexpected error occurred", decodeError(t, rec).Message)
}

func TestChat_UpstreamFailureMidStreamBreaksResponse(t *testing.T) {
	completer := &fakeCompleter{
		fragments: []string{"partial "},
		err:       &core.GatewayError{Op: "anthropic stream", Err: errors.New("overloaded")},
	}
	ts := httptest.NewServer(harness{completer: completer}.build(t).Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Post(ts.URL+"/api/chat", "application/json", strings.NewReader(helloBody))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	assert.Error(t, err)
	assert.Equal(t, "partial ", string(body))
}

func TestCORS(t *testing.T) {
	srv := harness{}.build(t)

	preflight := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	preflight.Header.Set("Origin", "http://localhost:3000")
	rec := serve(srv, preflight)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")

	foreign := httptest.NewRequest(http.MethodGet, "/health", nil)
	foreign.Header.Set("Origin", "https://evil.example")
	rec = serve(srv, foreign)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDIsReused(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("X-Request-ID", "6f1c1f0e-3d5b-4d44-9a55-0d5f6f2b8c11")
	rec := serve(harness{}.build(t), r)
	assert.Equal(t, "6f1c1f0e-3d5b-4d44-9a55-0d5f6f2b8c11", rec.Header().Get("X-Request-ID"))

	r = httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("X-Request-ID", "not a uuid")
	rec = serve(harness{}.build(t), r)
	assert.NotEqual(t, "not a uuid", rec.Header().Get("X-Request-ID"))
}

func TestHealthAndMetrics(t *testing.T) {
	srv := harness{completer: &fakeCompleter{fragments: []string{"x"}}}.build(t)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	serve(srv, chatRequest(helloBody))
	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `dlmm_scout_chat_requests_total{outcome="ok"} 1`)
}

func btcPool(name, address string, step int, liquidity string, apy float64) core.Pool {
	return core.Pool{
		Name:      name,
		Address:   address,
		Liquidity: liquidity,
		APY:       core.FlexFloat(apy),
		Fees24h:   10,
		BinStep:   intPtr(step),
	}
}

func TestBestPool(t *testing.T) {
	fetcher := mapFetcher{
		"wbtc-sol": {
			btcPool("wbtc-sol", "w50", 50, "100000", 0.05),
			btcPool("wbtc-sol", "w5", 5, "50000", 0.08),
		},
	}
	srv := harness{fetcher: fetcher}.build(t)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/pools/best?style=conservative&amount=3650", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body bestPoolResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "found", body.Status)
	assert.Equal(t, 2, body.Candidates)
	require.NotNil(t, body.Pool)
	assert.Equal(t, "w50", body.Pool.Address)
	assert.Equal(t, 50, body.Pool.BinStep)
	assert.Equal(t, "0.50", body.Pool.EstimatedDailyEarnings)
	assert.Equal(t, "conservative", body.Pool.RiskLevel)

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/api/pools/best?style=conservative&exclude=w50", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "w5", body.Pool.Address)
	assert.Equal(t, "1000.00", body.Pool.InvestmentAmount)
}

func TestBestPool_NoPools(t *testing.T) {
	rec := serve(harness{fetcher: mapFetcher{}}.build(t), httptest.NewRequest(http.MethodGet, "/api/pools/best?token=zbtc", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"status": "no_pools",
		"pool": null,
		"candidates": 0,
		"message": "No zBTC-SOL pools found right now. Try another token or check back later."
	}`, rec.Body.String())
}

func TestBestPool_InvalidQuery(t *testing.T) {
	srv := harness{fetcher: mapFetcher{}}.build(t)
	tests := map[string]string{
		"/api/pools/best?style=yolo":  "style",
		"/api/pools/best?token=eth":   "token",
		"/api/pools/best?amount=-5":   "amount",
		"/api/pools/best?amount=lots": "amount",
	}
	for target, field := range tests {
		rec := serve(srv, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Equal(t, field, decodeError(t, rec).Field, target)
	}
}

func TestBalance(t *testing.T) {
	const addr = "So11111111111111111111111111111111111111112"

	rec := serve(harness{balances: fakeBalances{lamports: 2_250_000_000}}.build(t),
		httptest.NewRequest(http.MethodGet, "/api/balance/"+addr, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"address":"`+addr+`","lamports":2250000000,"sol":"2.25"}`, rec.Body.String())

	rec = serve(harness{}.build(t), httptest.NewRequest(http.MethodGet, "/api/balance/nope", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "address", decodeError(t, rec).Field)

	rec = serve(harness{balances: fakeBalances{err: errors.New("rpc down")}}.build(t),
		httptest.NewRequest(http.MethodGet, "/api/balance/"+addr, nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "rpc down")
}

func dialWS(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrames(t *testing.T, conn *websocket.Conn) []Frame {
	t.Helper()
	var frames []Frame
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var f Frame
		require.NoError(t, conn.ReadJSON(&f))
		frames = append(frames, f)
		if f.Type != FrameChunk {
			return frames
		}
	}
}

func TestWebSocket_StreamsChunks(t *testing.T) {
	conn := dialWS(t, harness{completer: &fakeCompleter{fragments: []string{"Hi", " there"}}}.build(t))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(helloBody)))
	assert.Equal(t, []Frame{
		{Type: FrameChunk, Content: "Hi"},
		{Type: FrameChunk, Content: " there"},
		{Type: FrameDone},
	}, readFrames(t, conn))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"messages":[]}`)))
	assert.Equal(t, []Frame{{Type: FrameError, Error: "at least one message is required", Field: "messages"}}, readFrames(t, conn))
}

func TestWebSocket_RateLimited(t *testing.T) {
	conn := dialWS(t, harness{limit: 1}.build(t))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(helloBody)))
	assert.Equal(t, []Frame{{Type: FrameDone}}, readFrames(t, conn))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(helloBody)))
	frames := readFrames(t, conn)
	require.Len(t, frames, 1)
	assert.Equal(t, FrameError, frames[0].Type)
	assert.Equal(t, 60, frames[0].RetryAfter)
}

func TestWebSocket_RejectsForeignOrigin(t *testing.T) {
	ts := httptest.NewServer(harness{}.build(t).Handler())
	t.Cleanup(ts.Close)

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
