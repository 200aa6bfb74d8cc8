package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/loquilabs/loqui/core/llms"
)

func ndjsonServer(t *testing.T, lines []string, captured *requestBody) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if captured != nil {
			if err := json.NewDecoder(r.Body).Decode(captured); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, line := range lines {
			w.Write([]byte(line + "\n"))
		}
	}))
}

func TestStreamYieldsContentChunks(t *testing.T) {
	var captured requestBody
	server := ndjsonServer(t, []string{
		`{"message":{"role":"assistant","content":"Hel"},"done":false}`,
		`{"message":{"role":"assistant","content":"lo."},"done":false}`,
		`{"message":{"role":"assistant","content":""},"done":true,"done_reason":"stop"}`,
	}, &captured)
	defer server.Close()

	client := NewClient(server.URL, WithModel("llama3.2"))
	prompt := "hi"
	stream := client.PromptWithStream(context.Background(), &prompt,
		llms.WithInstructions("Keep it short."))

	var content strings.Builder
	var finish *string
	for chunk, err := range stream.Chunks(context.Background()) {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		if contentChunk, ok := chunk.(llms.StreamContentChunk); ok {
			content.WriteString(contentChunk.Content())
		}
		if reason := chunk.FinishReason(); reason != nil {
			finish = reason
		}
	}

	if content.String() != "Hello." {
		t.Fatalf("streamed %q, want %q", content.String(), "Hello.")
	}
	if finish == nil || *finish != "stop" {
		t.Fatalf("finish reason = %v, want stop", finish)
	}

	if captured.Model != "llama3.2" || !captured.Stream {
		t.Fatalf("request = %+v, want streaming llama3.2", captured)
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != messageRoleSystem ||
		captured.Messages[1].Content != "hi" {
		t.Fatalf("request messages = %+v", captured.Messages)
	}
}

func TestStreamYieldsToolCalls(t *testing.T) {
	server := ndjsonServer(t, []string{
		`{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"get_ip_address","arguments":{}}}]},"done":false}`,
		`{"message":{"role":"assistant","content":""},"done":true,"done_reason":"tool_calls"}`,
	}, nil)
	defer server.Close()

	client := NewClient(server.URL, WithModel("llama3.2"))
	stream := client.PromptWithStream(context.Background(), nil)

	var toolCalls []llms.ToolCall
	for chunk, err := range stream.Chunks(context.Background()) {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		if toolChunk, ok := chunk.(llms.StreamToolCallChunk); ok {
			toolCalls = append(toolCalls, toolChunk.ToolCall())
		}
	}

	if len(toolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(toolCalls))
	}
	if toolCalls[0].Name != "get_ip_address" || toolCalls[0].ID == "" {
		t.Fatalf("tool call = %+v", toolCalls[0])
	}
}

func TestStreamSurfacesModelErrors(t *testing.T) {
	server := ndjsonServer(t, []string{
		`{"error":"model not found"}`,
	}, nil)
	defer server.Close()

	client := NewClient(server.URL)
	stream := client.PromptWithStream(context.Background(), nil)

	var streamErr error
	for _, err := range stream.Chunks(context.Background()) {
		if err != nil {
			streamErr = err
		}
	}
	if streamErr == nil || !strings.Contains(streamErr.Error(), "model not found") {
		t.Fatalf("stream error = %v, want the model error", streamErr)
	}
}
