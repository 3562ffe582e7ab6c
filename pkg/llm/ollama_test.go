package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOllamaProviderStream(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "" {
			t.Errorf("ollama must not receive credentials, got %q", auth)
		}
		var req openAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != defaultOllamaModel {
			t.Errorf("expected hosted model id to map to %q, got %q", defaultOllamaModel, req.Model)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"hola\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[],\"usage\":{\"prompt_tokens\":12,\"completion_tokens\":3}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	provider := NewOllamaProvider(Config{
		APIURL: server.URL + "/v1",
		Model:  "claude-sonnet-4-5",
		APIKey: "sk-ant-secret",
	})

	stream, err := provider.Complete(context.Background(), []Message{
		{Role: "user", Content: "hola"},
	}, nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	defer stream.Close()

	var content strings.Builder
	var usage *Usage
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		content.WriteString(chunk.Content)
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
	}
	if content.String() != "hola" {
		t.Fatalf("unexpected content %q", content.String())
	}
	if usage == nil || usage.InputTokens != 12 || usage.OutputTokens != 3 {
		t.Fatalf("unexpected usage %+v", usage)
	}
}

func TestOllamaProviderDropsToolsForFinalAnswer(t *testing.T) {
	t.Parallel()

	toolCounts := make(chan int, 2)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		toolCounts <- len(req.Tools)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	provider := NewOllamaProvider(Config{APIURL: server.URL + "/v1", Model: "qwen2.5"})
	tools := []Tool{{Name: "query_database", Parameters: map[string]interface{}{"type": "object"}}}
	messages := []Message{{Role: "user", Content: "ventas"}}

	for _, ctx := range []context.Context{context.Background(), WithoutToolUse(context.Background())} {
		stream, err := provider.Complete(ctx, messages, tools)
		if err != nil {
			t.Fatalf("complete: %v", err)
		}
		for {
			if _, err := stream.Recv(); err != nil {
				break
			}
		}
		_ = stream.Close()
	}

	if first, second := <-toolCounts, <-toolCounts; first != 1 || second != 0 {
		t.Fatalf("expected tools declared then dropped, got %d then %d", first, second)
	}
}
