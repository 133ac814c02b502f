package providers

import "github.com/forgehq/sidecar/internal/llm"

// New builds the llm.Client for the given provider. baseURL overrides the
// provider's default host; pass "" to use it.
func New(provider llm.Provider, apiKey string, baseURL string) llm.Client {
	if provider == llm.ProviderAnthropic {
		return NewAnthropicClient(apiKey, baseURL)
	}
	return NewOpenAICompatClient(provider, apiKey, baseURL)
}
