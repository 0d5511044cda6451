package llm

// Provider presets for common OpenAI-compatible endpoints.

// NewOpenAI creates a client for the OpenAI API.
func NewOpenAI(apiKey string, opts ...Option) *Client {
	base := []Option{WithAPIKey(apiKey)}
	return New("openai", append(base, opts...)...)
}

// NewDeepSeek creates a client for the DeepSeek API.
func NewDeepSeek(apiKey string, opts ...Option) *Client {
	base := []Option{
		WithAPIKey(apiKey),
		WithBaseURL("https://api.deepseek.com/v1"),
		WithChatModel("deepseek-chat"),
	}
	return New("deepseek", append(base, opts...)...)
}

// NewQwen creates a client for Alibaba's DashScope OpenAI-compatible API.
func NewQwen(apiKey string, opts ...Option) *Client {
	base := []Option{
		WithAPIKey(apiKey),
		WithBaseURL("https://dashscope.aliyuncs.com/compatible-mode/v1"),
		WithChatModel("qwen-plus"),
		WithEmbeddingModel("text-embedding-v3"),
	}
	return New("qwen", append(base, opts...)...)
}
