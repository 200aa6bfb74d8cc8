package llms

// PromptOptions collect everything beyond the prompt itself that shapes a
// generation request.
type PromptOptions struct {
	Instructions string
	History      []Message
	Tools        []Tool
	Params       GenerationParams
}

type PromptOption func(*PromptOptions)

// ApplyPromptOptions folds opts into a PromptOptions, for providers.
func ApplyPromptOptions(opts ...PromptOption) PromptOptions {
	options := PromptOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// WithInstructions sets the system prompt for the request.
func WithInstructions(instructions string) PromptOption {
	return func(o *PromptOptions) { o.Instructions = instructions }
}

// WithHistory provides the prior conversation turns, oldest first.
func WithHistory(history []Message) PromptOption {
	return func(o *PromptOptions) { o.History = history }
}

// WithTools makes the given tools available to the model.
func WithTools(tools ...Tool) PromptOption {
	return func(o *PromptOptions) { o.Tools = append(o.Tools, tools...) }
}

// WithParams overrides the provider's default generation parameters.
func WithParams(params GenerationParams) PromptOption {
	return func(o *PromptOptions) { o.Params = params }
}
