package networking

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/petrzlen/whisper-relay/pkg/models"
	"github.com/petrzlen/whisper-relay/pkg/relay"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	errNoAudioUploaded    = "No audio file uploaded"
	errSpeechToTextFailed = "Speech to text failed"
	errAudioTooLarge      = "Audio file too large"
	errMultipleFiles      = "Only one audio file can be uploaded"
	errMalformedUpload    = "Malformed upload"
	errUnsupportedAudio   = "Unsupported audio format"
	errInvalidJSON        = "Invalid JSON body"
	errBodyTooLarge       = "Request body too large"

	// maxEchoBodyBytes matches the default limit of a typical JSON body parser.
	maxEchoBodyBytes = 100 * 1024
	// isoMillis matches JavaScript's Date.toISOString, browser clients parse it directly.
	isoMillis = "2006-01-02T15:04:05.000Z"
)

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type echoResponse struct {
	Received json.RawMessage `json:"received"`
	Time     string          `json:"time"`
}

type transcriptionResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type handlers struct {
	relay *relay.Relay
	now   func() time.Time
}

func (h *handlers) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok", Message: "STT backend is running"})
}

func (h *handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, err := io.WriteString(w, "OK")
	dbg(err)
}

// handleEcho sends the JSON body back with a timestamp. Bodies which are not declared as JSON echo as {}.
func (h *handlers) handleEcho(w http.ResponseWriter, r *http.Request) {
	received := json.RawMessage(`{}`)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEchoBodyBytes))
		if err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				writeError(w, http.StatusRequestEntityTooLarge, errBodyTooLarge)
				return
			}
			writeError(w, http.StatusBadRequest, errInvalidJSON)
			return
		}
		body = bytes.TrimSpace(body)
		if len(body) > 0 {
			if !json.Valid(body) {
				writeError(w, http.StatusBadRequest, errInvalidJSON)
				return
			}
			received = body
		}
	}

	writeJSON(w, http.StatusOK, echoResponse{
		Received: received,
		Time:     h.now().UTC().Format(isoMillis),
	})
}

func (h *handlers) handleSTT(w http.ResponseWriter, r *http.Request) {
	logger := loggerFrom(r)

	result, err := h.relay.Transcribe(r.Context(), w, r)
	if err != nil {
		status, message := errorToResponse(err)
		level := zerolog.ErrorLevel
		if models.KindOf(err).IsClientFault() {
			level = zerolog.InfoLevel
		}
		event := logger.WithLevel(level)
		var te *models.TranscriptionError
		if errors.As(err, &te) {
			event = event.Str("kind", te.Kind.String()).Int("provider_status", te.StatusCode)
		}
		event.Err(err).Int("status_code", status).Msg("speech to text failed")
		writeError(w, status, message)
		return
	}

	writeJSON(w, http.StatusOK, transcriptionResponse{
		Text:     result.Text,
		Language: result.Language,
	})
}

// errorToResponse collapses the taxonomy into what callers see. Everything upstream or internal is one opaque 500.
func errorToResponse(err error) (int, string) {
	switch models.KindOf(err) {
	case models.KindNoFileProvided:
		return http.StatusBadRequest, errNoAudioUploaded
	case models.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge, errAudioTooLarge
	case models.KindMultipleFiles:
		return http.StatusBadRequest, errMultipleFiles
	case models.KindMalformedUpload:
		return http.StatusBadRequest, errMalformedUpload
	case models.KindUnsupportedMedia:
		return http.StatusBadRequest, errUnsupportedAudio
	default:
		return http.StatusInternalServerError, errSpeechToTextFailed
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	errLog(json.NewEncoder(w).Encode(v), "cannot encode JSON response")
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
