package transcriber

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/itchyny/gojq"
	"github.com/petrzlen/whisper-relay/pkg/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	DefaultTextQuery     = ".text"
	DefaultLanguageQuery = ".language"

	// maxResponseBytes bounds how much of a provider answer we read, transcripts are text.
	maxResponseBytes = 8 << 20
)

type HTTPConfig struct {
	// Endpoint is the full transcription URL, e.g. https://api.openai.com/v1/audio/transcriptions
	Endpoint string
	APIKey   string
	Model    string
	// ResponseFormat is sent as response_format when set.
	ResponseFormat string
	// TextQuery and LanguageQuery are jq expressions evaluated on the JSON response.
	TextQuery     string
	LanguageQuery string
	Client        *http.Client
}

// httpMultipart talks to any provider speaking the OpenAI style multipart contract.
// Unlike the SDK it streams the staged file straight into the request body.
type httpMultipart struct {
	config        HTTPConfig
	textQuery     *gojq.Code
	languageQuery *gojq.Code
}

func NewHTTPMultipart(config HTTPConfig) (Transcriber, error) {
	if config.Endpoint == "" {
		return nil, errors.New("endpoint cannot be empty")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.TextQuery == "" {
		config.TextQuery = DefaultTextQuery
	}
	if config.LanguageQuery == "" {
		config.LanguageQuery = DefaultLanguageQuery
	}
	if config.Client == nil {
		config.Client = &http.Client{}
	}

	textQuery, err := compileQuery(config.TextQuery)
	if err != nil {
		return nil, errors.Wrap(err, "invalid text query")
	}
	languageQuery, err := compileQuery(config.LanguageQuery)
	if err != nil {
		return nil, errors.Wrap(err, "invalid language query")
	}
	return &httpMultipart{
		config:        config,
		textQuery:     textQuery,
		languageQuery: languageQuery,
	}, nil
}

func compileQuery(query string) (*gojq.Code, error) {
	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, err
	}
	return gojq.Compile(parsed)
}

func (h *httpMultipart) Transcribe(ctx context.Context, audio *models.UploadedAudio) (*models.TranscriptionResult, error) {
	logger := zerolog.Ctx(ctx)
	startTime := time.Now()

	input, err := audio.Open()
	if err != nil {
		return nil, models.NewError(models.KindInternal, "cannot open staged audio", err)
	}
	defer func() { dbg(input.Close()) }()

	bodyReader, bodyWriter := io.Pipe()
	form := multipart.NewWriter(bodyWriter)
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		bodyWriter.CloseWithError(h.writeForm(form, audio.UploadName(), input))
	}()
	// The transport closes the body on every path, that unblocks the writer. We still wait so input is not closed under it.
	defer func() {
		dbg(bodyReader.Close())
		<-writeDone
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.config.Endpoint, bodyReader)
	if err != nil {
		return nil, models.NewError(models.KindInternal, "cannot build transcription request", err)
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())
	httpReq.Header.Set("Accept", "application/json")
	if h.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.config.APIKey)
	}

	logger.Debug().Str("endpoint", h.config.Endpoint).Str("model", h.config.Model).Str("file_path", audio.UploadName()).Int64("size", audio.Size).Msg("create transcription request")
	resp, err := h.config.Client.Do(httpReq)
	if err != nil {
		return nil, classify(ctx, err, models.KindUpstreamUnreachable)
	}
	defer func() { dbg(resp.Body.Close()) }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classify(ctx, errors.Wrap(err, "cannot read transcription response"), models.KindUpstreamUnreachable)
	}
	logger.Debug().Dur("request_time", time.Since(startTime)).Int("status_code", resp.StatusCode).Msg("request done")

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &models.TranscriptionError{
			Kind:       models.KindUpstreamError,
			StatusCode: resp.StatusCode,
			Message:    truncate(string(respBody)),
		}
	}

	result, err := h.parse(respBody)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("transcription", result.Text).Str("language", result.Language).Dur("time_elapsed", time.Since(startTime)).Msg("received transcription")
	return result, nil
}

func (h *httpMultipart) writeForm(form *multipart.Writer, uploadName string, input io.Reader) error {
	if err := form.WriteField("model", h.config.Model); err != nil {
		return errors.Wrap(err, "cannot write model field")
	}
	if h.config.ResponseFormat != "" {
		if err := form.WriteField("response_format", h.config.ResponseFormat); err != nil {
			return errors.Wrap(err, "cannot write response_format field")
		}
	}
	filePart, err := form.CreateFormFile("file", uploadName)
	if err != nil {
		return errors.Wrap(err, "cannot create file form field")
	}
	if _, err := io.Copy(filePart, input); err != nil {
		return errors.Wrap(err, "cannot stream audio data")
	}
	return errors.Wrap(form.Close(), "cannot close multipart writer")
}

func (h *httpMultipart) parse(body []byte) (*models.TranscriptionResult, error) {
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, models.NewError(models.KindUpstreamMalformedResponse, "transcription response is not JSON", err)
	}

	text, found, err := runStringQuery(h.textQuery, decoded)
	if err != nil || !found {
		return nil, models.NewError(models.KindUpstreamMalformedResponse, truncate(string(body)), orMissing(err, h.config.TextQuery))
	}

	// Language is optional, whatever the query makes of it.
	language, _, err := runStringQuery(h.languageQuery, decoded)
	if err != nil {
		dbg(err)
		language = ""
	}

	result := &models.TranscriptionResult{
		Text:     text,
		Language: language,
	}
	if obj, ok := decoded.(map[string]any); ok {
		if seconds, ok := obj["duration"].(float64); ok {
			result.Duration = time.Duration(seconds * float64(time.Second))
		}
	}
	return result, nil
}

// runStringQuery returns the first value the query yields. found is false for no output or null.
func runStringQuery(code *gojq.Code, input any) (value string, found bool, err error) {
	iter := code.Run(input)
	v, ok := iter.Next()
	if !ok || v == nil {
		return "", false, nil
	}
	if queryErr, isErr := v.(error); isErr {
		return "", false, queryErr
	}
	s, isString := v.(string)
	if !isString {
		return "", false, errors.Errorf("query yielded %T, want string", v)
	}
	return s, true, nil
}

func orMissing(err error, query string) error {
	if err != nil {
		return err
	}
	return errors.Wrapf(errMissingText, "query %s yielded nothing", query)
}
