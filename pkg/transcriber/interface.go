package transcriber

import (
	"context"

	"github.com/petrzlen/whisper-relay/pkg/models"
)

// Transcriber forwards one staged upload to a speech-to-text provider, exactly one attempt, no retries.
// Errors are always *models.TranscriptionError. The deadline comes from ctx.
type Transcriber interface {
	Transcribe(ctx context.Context, audio *models.UploadedAudio) (*models.TranscriptionResult, error)
}
