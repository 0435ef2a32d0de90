package transcriber

import (
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

const (
	ProviderOpenAI = "openai"
	ProviderHTTP   = "http"

	DefaultBaseURL = "https://api.openai.com/v1"
)

type Options struct {
	Provider      string
	APIKey        string
	BaseURL       string
	Model         string
	TextQuery     string
	LanguageQuery string
	HTTPClient    *http.Client
}

// New builds the Transcriber once at startup, it is immutable and safe for concurrent use afterwards.
func New(opts Options) (Transcriber, error) {
	if opts.APIKey == "" {
		return nil, errors.New("API key cannot be empty")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	switch opts.Provider {
	case ProviderOpenAI, "":
		client := NewOpenAIClient(opts.APIKey, baseURL, opts.HTTPClient)
		return NewOpenAIWhisper(client, opts.Model), nil
	case ProviderHTTP:
		return NewHTTPMultipart(HTTPConfig{
			Endpoint:       baseURL + "/audio/transcriptions",
			APIKey:         opts.APIKey,
			Model:          opts.Model,
			ResponseFormat: "verbose_json",
			TextQuery:      opts.TextQuery,
			LanguageQuery:  opts.LanguageQuery,
			Client:         opts.HTTPClient,
		})
	default:
		return nil, errors.Errorf("unknown provider %q", opts.Provider)
	}
}
