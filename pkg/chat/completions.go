package chat

// Turn is one entry of the history sent to the completion endpoint.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsRequest struct {
	Model       string  `json:"model"`
	Messages    []Turn  `json:"messages"`
	Stream      bool    `json:"stream"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// streamChunk is the payload of one `data:` line of a streamed response.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}
