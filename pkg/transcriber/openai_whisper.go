package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/petrzlen/whisper-relay/pkg/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

const DefaultModel = openai.Whisper1

type openAIWhisper struct {
	client *openai.Client
	model  string
}

// NewOpenAIWhisper wraps an already configured go-openai client. Use NewOpenAIClient to build one with the response guard.
func NewOpenAIWhisper(client *openai.Client, model string) Transcriber {
	if model == "" {
		model = DefaultModel
	}
	return &openAIWhisper{
		client: client,
		model:  model,
	}
}

// NewOpenAIClient builds the go-openai client used by the relay.
// baseURL may point to any OpenAI compatible server, httpClient defaults to one without a global timeout (the caller's ctx bounds each call).
func NewOpenAIClient(apiKey string, baseURL string, httpClient *http.Client) *openai.Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	config.HTTPClient = &responseGuard{doer: httpClient}
	return openai.NewClientWithConfig(config)
}

func (o *openAIWhisper) Transcribe(ctx context.Context, audio *models.UploadedAudio) (*models.TranscriptionResult, error) {
	logger := zerolog.Ctx(ctx)
	startTime := time.Now()

	input, err := audio.Open()
	if err != nil {
		return nil, models.NewError(models.KindInternal, "cannot open staged audio", err)
	}
	defer func() { dbg(input.Close()) }()

	// NOTE: go-openai copies the reader into its multipart buffer once, the file itself is never slurped by us.
	req := openai.AudioRequest{
		Model:    o.model,
		Reader:   input,
		FilePath: audio.UploadName(),
		Format:   openai.AudioResponseFormatVerboseJSON,
	}

	logger.Debug().Str("model", req.Model).Str("file_path", req.FilePath).Int64("size", audio.Size).Msg("create transcription request")
	resp, err := o.client.CreateTranscription(ctx, req)
	if err != nil {
		classified := classify(ctx, err, models.KindUpstreamMalformedResponse)
		logger.Debug().Err(err).Dur("time_elapsed", time.Since(startTime)).Str("kind", classified.Kind.String()).Msg("transcription request failed")
		return nil, classified
	}

	result := &models.TranscriptionResult{
		Text:     resp.Text,
		Language: resp.Language,
		Duration: time.Duration(resp.Duration * float64(time.Second)),
	}
	logger.Debug().Str("transcription", result.Text).Str("language", result.Language).Dur("time_elapsed", time.Since(startTime)).Msg("received transcription")
	return result, nil
}

// responseGuard sits between go-openai and the http.Client. go-openai decodes a 2xx body into a struct,
// so a body without "text" would silently become an empty transcript. We reject that here instead.
type responseGuard struct {
	doer openai.HTTPDoer
}

// errMissingText is matched by tests, the classified error wraps it.
var errMissingText = errors.New("provider response has no text field")

func (g *responseGuard) Do(req *http.Request) (*http.Response, error) {
	resp, err := g.doer.Do(req)
	if err != nil || resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return resp, err
	}

	body, err := io.ReadAll(resp.Body)
	dbg(resp.Body.Close())
	if err != nil {
		return nil, errors.Wrap(err, "cannot read transcription response")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, models.NewError(models.KindUpstreamMalformedResponse, "transcription response is not a JSON object", err)
	}
	raw, ok := fields["text"]
	var text string
	if !ok || json.Unmarshal(raw, &text) != nil || string(raw) == "null" {
		return nil, models.NewError(models.KindUpstreamMalformedResponse, truncate(string(body)), errMissingText)
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}
