package transcriber

import (
	"context"
	"net"

	"github.com/petrzlen/whisper-relay/pkg/models"
	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

// maxDiagnosticBytes caps how much of a provider error body we keep around for logs.
const maxDiagnosticBytes = 2048

// classify maps whatever came back from the outbound call onto the error taxonomy.
// ctx is checked first: once the deadline passed, every follow-up error (read, decode, ...) is a timeout.
func classify(ctx context.Context, err error, fallback models.ErrorKind) *models.TranscriptionError {
	var classified *models.TranscriptionError
	if errors.As(err, &classified) {
		return classified
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return models.NewError(models.KindUpstreamTimeout, "provider did not answer in time", err)
	case errors.Is(ctx.Err(), context.Canceled), errors.Is(err, context.Canceled):
		return models.NewError(models.KindCanceled, "request canceled before the provider answered", err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &models.TranscriptionError{
			Kind:       models.KindUpstreamError,
			StatusCode: apiErr.HTTPStatusCode,
			Message:    truncate(apiErr.Message),
			Err:        err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &models.TranscriptionError{
			Kind:       models.KindUpstreamError,
			StatusCode: reqErr.HTTPStatusCode,
			Message:    truncate(reqErr.Error()),
			Err:        err,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return models.NewError(models.KindUpstreamTimeout, "provider connection timed out", err)
		}
		return models.NewError(models.KindUpstreamUnreachable, "cannot reach provider", err)
	}

	return models.NewError(fallback, "", err)
}

func truncate(s string) string {
	if len(s) <= maxDiagnosticBytes {
		return s
	}
	return s[:maxDiagnosticBytes] + "..."
}
