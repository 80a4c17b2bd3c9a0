package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/carbuddy/internal/retry"
)

func messageResponse(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":    "msg_test123",
		"type":  "message",
		"role":  "assistant",
		"model": "claude-3-5-haiku-latest",
		"content": []map[string]interface{}{
			{"type": "text", "text": text},
		},
		"stop_reason": "end_turn",
		"usage":       map[string]interface{}{"input_tokens": 12, "output_tokens": 5},
	})
}

var fastPolicy = retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond}

func TestNewAnthropicCompleter_MissingKey(t *testing.T) {
	_, err := NewAnthropicCompleter("", "claude-3-5-haiku-latest")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestAnthropicCompleter_Complete(t *testing.T) {
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		messageResponse(w, `{"message_to_user":"hi"}`)
	}))
	defer server.Close()

	c, err := NewAnthropicCompleter("test-key", "claude-3-5-haiku-latest", option.WithBaseURL(server.URL))
	require.NoError(t, err)

	text, err := c.WithPolicy(fastPolicy).Complete(context.Background(), "system prompt", "user prompt", 0.3)
	require.NoError(t, err)
	assert.Equal(t, `{"message_to_user":"hi"}`, text)
	assert.Equal(t, "claude-3-5-haiku-latest", body["model"])
	assert.Equal(t, 0.3, body["temperature"])
}

func TestAnthropicCompleter_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`))
			return
		}
		messageResponse(w, "ok")
	}))
	defer server.Close()

	c, err := NewAnthropicCompleter("test-key", "claude-3-5-haiku-latest", option.WithBaseURL(server.URL))
	require.NoError(t, err)

	text, err := c.WithPolicy(fastPolicy).Complete(context.Background(), "s", "p", 0.7)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestAnthropicCompleter_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer server.Close()

	c, err := NewAnthropicCompleter("test-key", "claude-3-5-haiku-latest", option.WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = c.WithPolicy(fastPolicy).Complete(context.Background(), "s", "p", 0.7)
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestAnthropicCompleter_CompleteImage(t *testing.T) {
	var body struct {
		Messages []struct {
			Content []struct {
				Type   string `json:"type"`
				Text   string `json:"text"`
				Source struct {
					Type      string `json:"type"`
					MediaType string `json:"media_type"`
					Data      string `json:"data"`
				} `json:"source"`
			} `json:"content"`
		} `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		messageResponse(w, `{"analysis":"fine"}`)
	}))
	defer server.Close()

	c, err := NewAnthropicCompleter("test-key", "claude-3-5-haiku-latest", option.WithBaseURL(server.URL))
	require.NoError(t, err)

	text, err := c.WithPolicy(fastPolicy).CompleteImage(context.Background(), "system", "look at this", []byte("img"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, `{"analysis":"fine"}`, text)

	require.Len(t, body.Messages, 1)
	content := body.Messages[0].Content
	require.Len(t, content, 2)
	assert.Equal(t, "image", content[0].Type)
	assert.Equal(t, "base64", content[0].Source.Type)
	assert.Equal(t, "image/png", content[0].Source.MediaType)
	assert.Equal(t, "aW1n", content[0].Source.Data)
	assert.Equal(t, "text", content[1].Type)
	assert.Equal(t, "look at this", content[1].Text)
}
