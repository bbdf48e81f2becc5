package anthropic

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vertigo15/docengine/internal/capabilities"
)

const minimalMessageResponse = `{
	"id": "msg_1",
	"type": "message",
	"role": "assistant",
	"model": "claude-3-7-sonnet-20250219",
	"content": [{"type": "text", "text": "hello"}],
	"stop_reason": "end_turn",
	"stop_sequence": null,
	"usage": {"input_tokens": 1, "output_tokens": 1}
}`

func TestComplete_ReturnsConcatenatedText(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(minimalMessageResponse))
	}))
	t.Cleanup(srv.Close)

	c := New("test-key", srv.URL, "", srv.Client())
	out, err := c.Complete(context.Background(), capabilities.ChatRequest{System: "be terse", User: "hi", MaxTokens: 128})
	require.NoError(t, err)
	require.Equal(t, "hello", out)
	require.Equal(t, "/v1/messages", gotPath)
}

func TestComplete_DefaultModel_WhenEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(minimalMessageResponse))
	}))
	t.Cleanup(srv.Close)

	c := New("k", srv.URL, "", srv.Client())
	require.NotEmpty(t, c.model)
}

func TestComplete_ServerError_Propagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := New("k", srv.URL, "m", srv.Client())
	_, err := c.Complete(context.Background(), capabilities.ChatRequest{User: "hi"})
	require.Error(t, err)
}
