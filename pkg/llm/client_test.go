package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-chat-go/internal/config"
)

func TestStreamChatMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\" world\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient(config.LLMConfig{APIKey: "test-key", BaseURL: server.URL, Model: "test-model"})

	var buf bytes.Buffer
	err := client.StreamChatMessages(context.Background(), []Message{
		{Role: "system", Content: "you are helpful"},
		{Role: "user", Content: "hi"},
	}, nil, &buf)

	require.NoError(t, err)
	assert.Equal(t, "Hello world", buf.String())
}

func TestStreamChatMessages_GenerationParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.Temperature)
		assert.Equal(t, 0.7, *req.Temperature)
		require.NotNil(t, req.MaxTokens)
		assert.Equal(t, 256, *req.MaxTokens)

		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient(config.LLMConfig{BaseURL: server.URL})

	temp := 0.7
	maxTokens := 256
	var buf bytes.Buffer
	err := client.StreamChatMessages(context.Background(), []Message{{Role: "user", Content: "hi"}},
		&GenerationParams{Temperature: &temp, MaxTokens: &maxTokens}, &buf)

	require.NoError(t, err)
}

func TestStreamChatMessages_Non200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(config.LLMConfig{BaseURL: server.URL})

	var buf bytes.Buffer
	err := client.StreamChatMessages(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil, &buf)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-200")
}

func TestStreamChatMessages_SkipsMalformedChunks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: not-json\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient(config.LLMConfig{BaseURL: server.URL})

	var buf bytes.Buffer
	err := client.StreamChatMessages(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil, &buf)

	require.NoError(t, err)
	assert.Equal(t, "ok", buf.String())
}
