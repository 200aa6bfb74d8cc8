package llms

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Tool describes a function the model may call during generation. The wire
// layout mirrors the common provider format so adapters can copy it
// directly.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`

	// Execute runs the tool with the model's JSON encoded arguments and
	// returns the result to feed back into the conversation.
	Execute func(arguments string) (string, error) `json:"-"`
}

type ToolFunction struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

// NewTool builds a Tool whose parameter schema is reflected from T and
// whose execute callback receives the decoded arguments.
func NewTool[T any](name string, description string, execute func(parameters T) (string, error)) Tool {
	reflector := jsonschema.Reflector{DoNotReference: true}
	var zero T
	schema := reflector.Reflect(zero)
	schema.Version = ""

	return Tool{
		Type: "function",
		Function: ToolFunction{
			Name:        name,
			Description: description,
			Parameters:  schema,
		},
		Execute: func(arguments string) (string, error) {
			var parameters T
			if arguments != "" {
				if err := json.Unmarshal([]byte(arguments), &parameters); err != nil {
					return "", fmt.Errorf("failed to decode arguments for tool %q: %w", name, err)
				}
			}
			return execute(parameters)
		},
	}
}
