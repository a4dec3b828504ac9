package provider

// Role identifies who wrote a prompt message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a prompt.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Prompt builds the two-turn prompt used for one-shot tasks such as
// conversation summaries: fixed instructions, then the input.
func Prompt(instructions, input string) []Message {
	return []Message{
		{Role: RoleSystem, Content: instructions},
		{Role: RoleUser, Content: input},
	}
}

// CompletionRequest is the input to Provider.Complete. A zero MaxTokens
// leaves the limit to the provider's configuration.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

// FinishReason describes why the model stopped generating.
type FinishReason string

const (
	FinishStop     FinishReason = "stop"
	FinishLength   FinishReason = "length"
	FinishFiltered FinishReason = "filtered"
)

// CompletionResponse is the output of Provider.Complete.
type CompletionResponse struct {
	Content      string       `json:"content"`
	FinishReason FinishReason `json:"finish_reason"`
	Usage        TokenUsage   `json:"usage"`
}

// Truncated reports whether the model ran into its token limit.
func (r CompletionResponse) Truncated() bool {
	return r.FinishReason == FinishLength
}

// TokenUsage counts the tokens a completion consumed.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
