package ollama

import (
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/loquilabs/loqui/core/llms"
)

type message struct {
	Role      messageRole    `json:"role"`
	Content   string         `json:"content"`
	ToolName  string         `json:"tool_name,omitempty"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
}

type messageRole string

const (
	messageRoleSystem    messageRole = "system"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
	messageRoleTool      messageRole = "tool"
)

type wireToolCall struct {
	Function wireToolCallFunction `json:"function"`
}

type wireToolCallFunction struct {
	Name string `json:"name"`
	// Arguments arrive as a JSON object, not a string.
	Arguments json.RawMessage `json:"arguments"`
}

type tool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

func toMessages(instructions string, history []llms.Message) []message {
	messages := []message{}
	if instructions != "" {
		messages = append(messages, message{
			Role:    messageRoleSystem,
			Content: instructions,
		})
	}
	for _, msg := range history {
		wireMsg := message{
			Role:    messageRole(msg.Role),
			Content: msg.Content,
		}
		for _, tCall := range msg.ToolCalls {
			wireMsg.ToolCalls = append(wireMsg.ToolCalls, wireToolCall{
				Function: wireToolCallFunction{
					Name:      tCall.Name,
					Arguments: json.RawMessage(tCall.Arguments),
				},
			})
		}
		if msg.Role == llms.RoleTool {
			wireMsg.ToolName = msg.ToolName
		}
		messages = append(messages, wireMsg)
	}
	return messages
}
