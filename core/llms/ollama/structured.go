package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/invopop/jsonschema"
	"go.opentelemetry.io/otel/attribute"

	"github.com/loquilabs/loqui/core/llms"
)

// PromptJSONSchema issues a non-streaming request whose output is
// constrained to the JSON schema reflected from T, and decodes the result.
func PromptJSONSchema[T any](
	ctx context.Context,
	client *Client,
	prompt string,
	opts ...llms.PromptOption,
) (*T, error) {
	ctx, span := tracer.Start(ctx, "prompt llm structured")
	defer span.End()

	options := llms.ApplyPromptOptions(opts...)

	messages := toMessages(options.Instructions, options.History)
	messages = append(messages, message{
		Role:    messageRoleUser,
		Content: prompt,
	})

	reflector := jsonschema.Reflector{DoNotReference: true}
	var output T
	schema := reflector.Reflect(&output)
	schema.Version = ""
	schemaBytes, err := schema.MarshalJSON()
	if err != nil {
		err = fmt.Errorf("error marshalling schema: %w", err)
		span.RecordError(err)
		return nil, err
	}

	model := options.Params.Model
	if model == "" {
		model = client.model
	}
	span.SetAttributes(attribute.String("request.model", model))
	span.SetAttributes(attribute.String("request.schema", string(schemaBytes)))

	reqBody := requestBody{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Format:   json.RawMessage(schemaBytes),
		Options:  toModelOptions(options.Params),
	}

	requestBodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		err = fmt.Errorf("error marshalling JSON: %w", err)
		span.RecordError(err)
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", client.baseURL+"/api/chat", bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	span.SetAttributes(attribute.String("request.url", req.URL.String()))
	resp, err := client.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		return nil, err
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
		return nil, err
	}

	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("error reading response body: %w", err)
		span.RecordError(err)
		return nil, err
	}
	var responseBody streamingResponseBody
	if err := json.Unmarshal(respBodyBytes, &responseBody); err != nil {
		err = fmt.Errorf("error unmarshalling response body: %w", err)
		span.RecordError(err)
		return nil, err
	}
	if responseBody.Error != "" {
		err := fmt.Errorf("model error: %s", responseBody.Error)
		span.RecordError(err)
		return nil, err
	}

	content := responseBody.Message.Content
	split := strings.Split(content, "```")
	if len(split) > 1 {
		content = split[1]
	}
	if err := json.Unmarshal([]byte(content), &output); err != nil {
		err = fmt.Errorf("error unmarshalling response: %w", err)
		span.RecordError(err)
		return nil, err
	}

	return &output, nil
}
