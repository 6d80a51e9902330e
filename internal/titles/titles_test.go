package titles

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/priceguess-ingest/internal/config"
)

func TestNew_NoKeyIsNoop(t *testing.T) {
	r := New(config.TitlesConfig{}, nil)

	assert.IsType(t, Noop{}, r)
	assert.Equal(t, "Long Title", r.Rewrite(context.Background(), "Long Title"))
}

func TestOpenAI_Rewrite(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  \"Logitech M185 Wireless Mouse, Grey\"  "}}]}`))
	}))
	defer server.Close()

	r := NewOpenAI(config.TitlesConfig{APIKey: "secret", BaseURL: server.URL + "/", Model: "gpt-test"}, server.Client(), nil)

	out := r.Rewrite(context.Background(), "Logitech M185 Wireless Mouse, 2.4GHz with USB Mini Receiver, 12-Month Battery Life, Grey")

	assert.Equal(t, "Logitech M185 Wireless Mouse, Grey", out)
	assert.Equal(t, "gpt-test", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[1].Content, "Logitech M185")
	assert.Equal(t, 100, got.MaxTokens)
}

func TestOpenAI_FallsBackToOriginal(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"choices":[]}`))
			},
		},
		{
			name: "empty content",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"   "}}]}`))
			},
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			r := NewOpenAI(config.TitlesConfig{APIKey: "k", BaseURL: server.URL}, server.Client(), nil)
			assert.Equal(t, "Original", r.Rewrite(context.Background(), "Original"))
		})
	}
}

func TestOpenAI_UnreachableEndpoint(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	r := NewOpenAI(config.TitlesConfig{APIKey: "k", BaseURL: server.URL}, nil, nil)
	assert.Equal(t, "Original", r.Rewrite(context.Background(), "Original"))
}
