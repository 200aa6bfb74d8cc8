package server

import (
	"context"
	"fmt"

	"github.com/loquilabs/loqui/core/llms"
	"github.com/loquilabs/loqui/core/llms/ollama"
)

const validatorInstructions = `You observe the transcript of a user who is speaking near a voice assistant. Decide whether the latest utterance is addressed to the assistant, as opposed to background speech, a remark to another person, or noise. Consider the conversation so far when the utterance is ambiguous.`

type addressedVerdict struct {
	Addressed bool `json:"addressed" jsonschema:"title=Addressed,description=Whether the utterance is addressed to the assistant"`
}

// addressedValidator classifies spoken prompts with a structured LLM call.
// The verdict schema constrains the model to a bare yes/no decision.
func addressedValidator(client *ollama.Client) func(ctx context.Context, prompt string, history []llms.Message) (bool, error) {
	return func(ctx context.Context, prompt string, history []llms.Message) (bool, error) {
		ctx, span := tracer.Start(ctx, "validate prompt")
		defer span.End()

		verdict, err := ollama.PromptJSONSchema[addressedVerdict](ctx, client,
			fmt.Sprintf("The utterance is: %s", prompt),
			llms.WithInstructions(validatorInstructions),
			llms.WithHistory(history),
			llms.WithParams(llms.GenerationParams{Temperature: 0}),
		)
		if err != nil {
			span.RecordError(err)
			return false, fmt.Errorf("failed to classify utterance: %w", err)
		}
		return verdict.Addressed, nil
	}
}
