package providers

import (
	"net/http"
	"os"
	"strings"

	"github.com/c360studio/bookwright/llm"
)

const defaultOpenAIBase = "https://api.openai.com/v1"

// OpenAIProvider speaks the OpenAI chat-completions API, either against
// api.openai.com or an OpenRouter-style gateway. The wire format is shared
// with OllamaProvider; only the default base URL and the auth headers
// differ.
type OpenAIProvider struct {
	OllamaProvider
}

func init() {
	llm.RegisterProvider(&OpenAIProvider{})
}

func (o *OpenAIProvider) Name() string {
	return "openai"
}

// BuildURL appends the chat-completions path unless the configured base
// already carries it.
func (o *OpenAIProvider) BuildURL(baseURL string) string {
	if baseURL == "" {
		baseURL = defaultOpenAIBase
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}
	return baseURL + "/chat/completions"
}

// SetHeaders adds bearer auth and, when routing through OpenRouter, the
// attribution headers it uses for rankings.
func (o *OpenAIProvider) SetHeaders(req *http.Request) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	if siteURL := os.Getenv("OPENROUTER_SITE_URL"); siteURL != "" {
		req.Header.Set("HTTP-Referer", siteURL)
	}
	if siteName := os.Getenv("OPENROUTER_SITE_NAME"); siteName != "" {
		req.Header.Set("X-Title", siteName)
	}
}
