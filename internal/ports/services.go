package ports

import "context"

// LLMMessage represents a message in the LLM conversation context
type LLMMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMRequest is a single non-streaming chat completion request.
type LLMRequest struct {
	Messages    []LLMMessage `json:"messages"`
	Temperature float64      `json:"temperature"`
	// MaxTokens of zero uses the service default.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// LLMResponse represents a response from the LLM
type LLMResponse struct {
	Content          string `json:"content"`
	FinishReason     string `json:"finish_reason,omitempty"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
}

// LLMService is the generative text capability. Calls are fallible and may
// fail transiently; callers own the retry policy.
type LLMService interface {
	Chat(ctx context.Context, req LLMRequest) (*LLMResponse, error)
}

// SystemMessage and UserMessage build the two message roles the engine uses.
func SystemMessage(content string) LLMMessage {
	return LLMMessage{Role: "system", Content: content}
}

func UserMessage(content string) LLMMessage {
	return LLMMessage{Role: "user", Content: content}
}
