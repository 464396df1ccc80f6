package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/fiscal-extractor/internal/auth"
	"github.com/joseph-ayodele/fiscal-extractor/internal/common"
	"github.com/joseph-ayodele/fiscal-extractor/internal/llm"
)

func newTestClient(url string) *Client {
	return NewClient(Config{BaseURL: url, Model: "test-model"}, auth.StaticKey("sk-test"), nil)
}

func TestGenerate_SendsJSONModeRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body["model"])
		assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])
		assert.Len(t, body["messages"], 3)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":" {\"total\": 116} "},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	out, err := newTestClient(srv.URL).Generate(context.Background(), llm.BuildRequest("TOTAL 116.00", 0))
	require.NoError(t, err)
	assert.Equal(t, `{"total": 116}`, out)
}

func TestGenerate_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		kind      common.ErrorKind
		transient bool
	}{
		{"quota", http.StatusTooManyRequests, `{"error":"rate"}`, common.KindAIQuotaExceeded, false},
		{"server error", http.StatusBadGateway, `oops`, "", true},
		{"bad request", http.StatusBadRequest, `{"error":"bad"}`, common.KindAIUnavailable, false},
		{"no choices", http.StatusOK, `{"choices":[]}`, common.KindAIInvalidResponse, false},
		{"truncated", http.StatusOK, `{"choices":[{"message":{"content":"{"},"finish_reason":"length"}]}`, common.KindAIInvalidResponse, false},
		{"not json", http.StatusOK, `<html>`, common.KindAIInvalidResponse, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).Generate(context.Background(), llm.BuildRequest("x", 0))
			require.Error(t, err)
			assert.Equal(t, tt.kind, common.KindOf(err))
			assert.Equal(t, tt.transient, common.IsTransient(err))
		})
	}
}

func TestMapper_RetriesTransientThenParses(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"rfc_emisor\":\"AAA010101AAA\",\"total\":116}"}}]}`))
	}))
	defer srv.Close()

	m := llm.NewMapper(newTestClient(srv.URL), nil)
	fields, err := m.Map(context.Background(), "ticket")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "116", fields.Total.Decimal.String())
}
