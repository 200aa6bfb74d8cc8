package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/loquilabs/loqui/core/llms"
)

// PromptWithStream prepares a streaming chat request. Nothing is sent until
// the returned stream's Chunks iterator is consumed.
func (c *Client) PromptWithStream(
	_ context.Context,
	prompt *string,
	opts ...llms.PromptOption,
) llms.Stream {
	options := llms.ApplyPromptOptions(opts...)

	messages := toMessages(options.Instructions, options.History)
	if prompt != nil {
		messages = append(messages, message{
			Role:    messageRoleUser,
			Content: *prompt,
		})
	}

	var tools []tool
	if options.Tools != nil {
		copier.Copy(&tools, options.Tools)
	}

	model := options.Params.Model
	if model == "" {
		model = c.model
	}

	return &Stream{
		client:   c,
		model:    model,
		params:   options.Params,
		tools:    tools,
		messages: messages,
	}
}

type Stream struct {
	client *Client

	model    string
	params   llms.GenerationParams
	tools    []tool
	messages []message
}

func (s *Stream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	requestToFirstTokenTime := time.Time{}
	setRequestToFirstTokenTime := func(span trace.Span) {
		if requestToFirstTokenTime.IsZero() {
			return
		}
		span.SetAttributes(attribute.Float64("response.request_to_first_token_time", time.Since(requestToFirstTokenTime).Seconds()))
		span.AddEvent("received first chunk")
		requestToFirstTokenTime = time.Time{}
	}

	return func(yield func(llms.StreamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", s.model))
		var toolNames []string
		for _, tool := range s.tools {
			toolNames = append(toolNames, tool.Function.Name)
		}
		span.SetAttributes(attribute.StringSlice("request.available_tools", toolNames))

		reqBody := requestBody{
			Model:    s.model,
			Messages: s.messages,
			Stream:   true,
			Tools:    s.tools,
			Options:  toModelOptions(s.params),
		}

		requestBodyBytes, err := json.Marshal(reqBody)
		if err != nil {
			err = fmt.Errorf("error marshalling JSON: %w", err)
			span.RecordError(err)
			yield(nil, err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, "POST", s.client.baseURL+"/api/chat", bytes.NewBuffer(requestBodyBytes))
		if err != nil {
			err = fmt.Errorf("error creating HTTP request: %w", err)
			span.RecordError(err)
			yield(nil, err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		span.SetAttributes(attribute.String("request.url", req.URL.String()))
		requestToFirstTokenTime = time.Now()
		span.AddEvent("request started")
		resp, err := s.client.httpClient.Do(req)
		if err != nil {
			err = fmt.Errorf("error sending request: %w", err)
			span.RecordError(err)
			yield(nil, err)
			return
		}
		defer resp.Body.Close()

		span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
		if resp.StatusCode != http.StatusOK {
			if errorBody, err := io.ReadAll(resp.Body); err != nil {
				err = fmt.Errorf("error reading error body: %w", err)
				span.RecordError(err)
			} else {
				span.SetAttributes(attribute.String("response.error", string(errorBody)))
			}

			err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
			span.RecordError(err)
			yield(nil, err)
			return
		}

		collectedToolCalls := []llms.ToolCall{}
		defer func() {
			toolNames := []string{}
			for _, toolCall := range collectedToolCalls {
				toolNames = append(toolNames, toolCall.Name)
			}
			span.SetAttributes(attribute.StringSlice("response.tool_calls", toolNames))
		}()
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Bytes()
			setRequestToFirstTokenTime(span)

			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}

			var responseBody streamingResponseBody
			if err := json.Unmarshal(line, &responseBody); err != nil {
				err = fmt.Errorf("error unmarshalling JSON: %w", err)
				span.RecordError(err)
				if !yield(nil, err) {
					return
				}
				continue
			}

			if responseBody.Error != "" {
				err := fmt.Errorf("model error: %s", responseBody.Error)
				span.RecordError(err)
				yield(nil, err)
				return
			}

			var finishReason *string
			if responseBody.Done {
				reason := responseBody.DoneReason
				if reason == "" {
					reason = "stop"
				}
				finishReason = &reason
			}

			for _, tCall := range responseBody.Message.ToolCalls {
				toolCall := llms.ToolCall{
					ID:        uuid.NewString(),
					Name:      tCall.Function.Name,
					Arguments: string(tCall.Function.Arguments),
				}
				collectedToolCalls = append(collectedToolCalls, toolCall)
				if !yield(StreamToolCallChunk{
					finishReason: finishReason,
					toolCall:     toolCall,
				}, nil) {
					return
				}
			}

			if responseBody.Message.Content != "" || responseBody.Done {
				if !yield(StreamContentChunk{
					finishReason: finishReason,
					content:      responseBody.Message.Content,
				}, nil) {
					return
				}
			}

			if responseBody.Done {
				span.SetAttributes(attribute.Int("usage.input", responseBody.PromptEvalCount))
				span.SetAttributes(attribute.Int("usage.output", responseBody.EvalCount))
				span.SetAttributes(attribute.Float64("usage.total_time", time.Duration(responseBody.TotalDuration).Seconds()))
				break
			}
		}

		if err := scanner.Err(); err != nil {
			yield(nil, fmt.Errorf("error reading streamed response: %w", err))
			return
		}
	}
}

type requestBody struct {
	Model    string          `json:"model"`
	Messages []message       `json:"messages"`
	Stream   bool            `json:"stream"`
	Tools    []tool          `json:"tools,omitempty"`
	Format   json.RawMessage `json:"format,omitempty"`
	Options  *modelOptions   `json:"options,omitempty"`
}

type modelOptions struct {
	NumCtx        int     `json:"num_ctx,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`
	Temperature   float64 `json:"temperature,omitempty"`
}

func toModelOptions(params llms.GenerationParams) *modelOptions {
	if params.ContextLength == 0 && params.RepeatPenalty == 0 && params.Temperature == 0 {
		return nil
	}
	return &modelOptions{
		NumCtx:        params.ContextLength,
		RepeatPenalty: params.RepeatPenalty,
		Temperature:   params.Temperature,
	}
}

type streamingResponseBody struct {
	Model   string `json:"model"`
	Message struct {
		Role      string         `json:"role"`
		Content   string         `json:"content"`
		ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason,omitempty"`
	Error           string `json:"error,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
	TotalDuration   int64  `json:"total_duration,omitempty"`
}

type StreamContentChunk struct {
	finishReason *string
	content      string
}

func (s StreamContentChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamContentChunk) Content() string {
	return s.content
}

type StreamToolCallChunk struct {
	finishReason *string
	toolCall     llms.ToolCall
}

func (s StreamToolCallChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamToolCallChunk) ToolCall() llms.ToolCall {
	return s.toolCall
}
