package relay

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/petrzlen/whisper-relay/internal/metrics"
	"github.com/petrzlen/whisper-relay/pkg/models"
	"github.com/petrzlen/whisper-relay/pkg/transcriber"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds the outbound provider call.
const DefaultTimeout = 120 * time.Second

// Receiver is what the relay needs from the upload side, *upload.Receiver in production.
type Receiver interface {
	Receive(w http.ResponseWriter, r *http.Request) (*models.UploadedAudio, error)
}

// Relay owns the whole per-request flow: receive, forward, release.
type Relay struct {
	receiver    Receiver
	transcriber transcriber.Transcriber
	metrics     *metrics.Metrics
	timeout     time.Duration
}

func New(receiver Receiver, t transcriber.Transcriber, m *metrics.Metrics, timeout time.Duration) *Relay {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Relay{
		receiver:    receiver,
		transcriber: t,
		metrics:     m,
		timeout:     timeout,
	}
}

// Transcribe handles one upload end to end. Whatever happens after the upload was staged,
// including a panic in the transcriber, the transient file is released exactly once before this returns.
// ctx should be the inbound request context so a disconnecting client aborts the provider call.
func (rl *Relay) Transcribe(ctx context.Context, w http.ResponseWriter, r *http.Request) (result *models.TranscriptionResult, err error) {
	logger := zerolog.Ctx(ctx)

	audio, err := rl.receiver.Receive(w, r)
	if err != nil {
		rl.metrics.RecordFailure(models.KindOf(err).String())
		return nil, err
	}
	rl.metrics.StagedFiles.Inc()
	rl.metrics.RecordUpload(audio.Size, audio.Duration.Seconds())

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Str("panic", fmt.Sprint(rec)).Bytes("stack", debug.Stack()).Msg("transcriber panicked")
			result = nil
			err = models.NewError(models.KindInternal, fmt.Sprintf("transcriber panicked: %v", rec), nil)
		}
		if releaseErr := audio.Release(); releaseErr != nil {
			logger.Error().Err(releaseErr).Str("path", audio.Path()).Msg("cannot release staged audio")
		}
		rl.metrics.StagedFiles.Dec()
		if err != nil {
			rl.metrics.RecordFailure(models.KindOf(err).String())
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, rl.timeout)
	defer cancel()

	startTime := time.Now()
	result, err = rl.transcriber.Transcribe(callCtx, audio)
	rl.metrics.RecordTranscription(time.Since(startTime).Seconds())

	audio.Trace.ProcessedAt = time.Now()
	audio.Trace.Processor = "relay.transcribe"
	audio.Trace.Log()
	return result, err
}
