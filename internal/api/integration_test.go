package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/chatrelay/internal/backend"
	"github.com/mattjoyce/chatrelay/internal/callback"
	"github.com/mattjoyce/chatrelay/internal/dedup"
	"github.com/mattjoyce/chatrelay/internal/message"
	"github.com/mattjoyce/chatrelay/internal/relay"
	"github.com/mattjoyce/chatrelay/internal/webhook"
	"github.com/mattjoyce/chatrelay/internal/whatsapp"
)

const (
	testAppSecret     = "app-secret"
	testCallbackToken = "callback-token"
	testUserAgent     = "facebookexternalua"
)

type recorder struct {
	mu       sync.Mutex
	requests []map[string]any
}

func (r *recorder) handler(status int, reply string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(req.Body).Decode(&body)
		r.mu.Lock()
		r.requests = append(r.requests, body)
		r.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}
}

func (r *recorder) snapshot() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string]any(nil), r.requests...)
}

func (r *recorder) texts() []string {
	var out []string
	for _, req := range r.snapshot() {
		if req["type"] != "text" {
			continue
		}
		text, _ := req["text"].(map[string]any)
		body, _ := text["body"].(string)
		out = append(out, body)
	}
	return out
}

type gateway struct {
	url    string
	runner *relay.Runner
	engine *recorder
	graph  *recorder
}

func startGateway(t *testing.T) *gateway {
	t.Helper()

	engine := &recorder{}
	engineSrv := httptest.NewServer(engine.handler(http.StatusAccepted, `{"message_id":"eng-1","queue_position":0}`))
	t.Cleanup(engineSrv.Close)

	graph := &recorder{}
	graphSrv := httptest.NewServer(graph.handler(http.StatusOK, `{"messages":[{"id":"wamid.out"}]}`))
	t.Cleanup(graphSrv.Close)

	wa := whatsapp.New(whatsapp.Config{
		GraphBaseURL:  graphSrv.URL,
		PhoneNumberID: "100200",
		AccessToken:   "graph-token",
	}, nil, nil)
	engineClient := backend.New(backend.Config{
		BaseURL: engineSrv.URL,
		APIKey:  "engine-key",
		OrgID:   "org-1",
		Retry:   backend.DefaultRetryPolicy(),
	}, nil)

	runner := relay.NewRunner(5*time.Second, nil)
	processor := relay.NewProcessor(relay.Config{
		ClientID:    "whatsapp",
		OrgID:       "org-1",
		CallbackURL: "https://relay.example.com" + callback.CompletionPath,
		Policy:      message.Policy{Cutoff: time.Hour, Audio: message.AudioNotify},
	}, engineClient, wa, nil)

	wh := webhook.New(webhook.Config{
		Paths:       webhook.DefaultPaths,
		VerifyToken: "verify-me",
		AppSecret:   testAppSecret,
		UserAgent:   testUserAgent,
		MaxBodySize: webhook.DefaultMaxBodySize,
	}, relay.New(processor, runner), nil)

	cb := callback.New(callback.Config{Token: testCallbackToken, ChunkSize: 20}, dedup.NewMemoryStore(), wa, nil)

	srv := httptest.NewServer(New(Config{ServiceName: "chatrelay"}, nil, wh, cb).Handler())
	t.Cleanup(srv.Close)

	return &gateway{url: srv.URL, runner: runner, engine: engine, graph: graph}
}

func postWebhook(t *testing.T, url string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/meta-whatsapp", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", testUserAgent)
	req.Header.Set(webhook.HeaderSignature256, webhook.Sign256(body, testAppSecret))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func postCallback(t *testing.T, url, body string) map[string]any {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+callback.CompletionPath, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testCallbackToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestEndToEndMessageRoundTrip(t *testing.T) {
	gw := startGateway(t)

	payload := fmt.Sprintf(`{"object":"whatsapp_business_account","entry":[{"id":"biz","changes":[{"field":"messages","value":{"messaging_product":"whatsapp","contacts":[{"wa_id":"15551234567","profile":{"name":"Ann"}}],"messages":[{"from":"15551234567","id":"wamid.in","timestamp":"%d","type":"text","text":{"body":"What is the weather?"}}]}}]}]}`,
		time.Now().Unix())

	resp := postWebhook(t, gw.url, []byte(payload))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "OK", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, gw.runner.Wait(ctx))

	dispatched := gw.engine.snapshot()
	require.Len(t, dispatched, 1)
	assert.Equal(t, "15551234567", dispatched[0]["user_id"])
	assert.Equal(t, "What is the weather?", dispatched[0]["message"])
	assert.Equal(t, "text", dispatched[0]["message_type"])
	assert.Equal(t, "https://relay.example.com/completion-callback", dispatched[0]["callback_url"])

	graphCalls := gw.graph.snapshot()
	require.Len(t, graphCalls, 1)
	assert.Equal(t, "read", graphCalls[0]["status"])
	assert.Equal(t, "wamid.in", graphCalls[0]["message_id"])

	completion := `{"message_id":"eng-1","user_id":"15551234567","status":"completed","responses":["Sunny today. Warm tomorrow."]}`
	first := postCallback(t, gw.url, completion)
	assert.Equal(t, "OK", first["status"])
	assert.Nil(t, first["duplicate"])

	second := postCallback(t, gw.url, completion)
	assert.Equal(t, true, second["duplicate"])

	assert.Equal(t, []string{"Sunny today.", "Warm tomorrow."}, gw.graph.texts())
}

func TestEndToEndRejectsUnsignedWebhook(t *testing.T) {
	gw := startGateway(t)

	resp, err := http.Post(gw.url+"/webhook", "application/json", bytes.NewBufferString(`{"object":"x"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	require.NoError(t, gw.runner.Wait(context.Background()))
	assert.Empty(t, gw.engine.snapshot())
}

func TestEndToEndSubscriptionVerification(t *testing.T) {
	gw := startGateway(t)

	resp, err := http.Get(gw.url + "/meta-whatsapp?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=1158201444")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1158201444", string(body))
}
