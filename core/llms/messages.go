package llms

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single entry in a conversation history. Time and Model are
// metadata carried for persistence and are not sent to providers.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCalls holds the calls an assistant message requested, if any.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID links a tool message back to the call it answers, and
	// ToolName names the tool that produced it.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`

	Time  time.Time `json:"time,omitzero"`
	Model string    `json:"model,omitempty"`
}

// ToolCall is a request by the model to invoke a named tool with JSON
// encoded arguments.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// GenerationParams tune a single generation request. Zero values mean
// "use the provider's default".
type GenerationParams struct {
	Model         string  `json:"model,omitempty"`
	Temperature   float64 `json:"temperature,omitempty"`
	ContextLength int     `json:"context_length,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`
}
