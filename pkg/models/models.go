package models

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

type Trace struct {
	CreatedAt time.Time
	Creator   string

	ReceivedAt time.Time

	ProcessedAt time.Time
	Processor   string
}

func (t Trace) Log() {
	log.Trace().Time("created_at", t.CreatedAt).Str("creator", t.Creator).Time("processed_at", t.ProcessedAt).Str("processor", t.Processor).Dur("dur_to_process", t.ProcessedAt.Sub(t.CreatedAt)).Msgf("tracing")
}

func NewTrace(creator string) Trace {
	return Trace{
		CreatedAt: time.Now(),
		Creator:   creator,
	}
}

// ErrReleased is returned by Open once the transient file was removed.
var ErrReleased = errors.New("uploaded audio already released")

// UploadedAudio is one received file, staged on a transient file for the lifetime of a single request.
// Whoever receives it owns it and MUST call Release exactly once it is done (extra calls are no-ops).
type UploadedAudio struct {
	// Filename is what the client claimed, advisory only.
	Filename string
	// ContentType is what the client declared on the multipart part.
	ContentType string
	// DetectedType is the sniffed MIME type of the staged bytes.
	DetectedType string
	// Extension is what we tell the provider the file is, without the dot. Whisper decides the codec by it.
	Extension string
	Size      int64
	// Duration is zero when the container could not be probed.
	Duration time.Duration
	Trace    Trace

	fs   afero.Fs
	path string

	once       sync.Once
	released   atomic.Bool
	releaseErr error
}

func NewUploadedAudio(fs afero.Fs, path string) *UploadedAudio {
	return &UploadedAudio{
		fs:    fs,
		path:  path,
		Trace: NewTrace("upload.receiver"),
	}
}

func (a *UploadedAudio) Path() string {
	return a.path
}

// Open returns a fresh reader over the staged bytes, the caller closes it.
func (a *UploadedAudio) Open() (afero.File, error) {
	if a.released.Load() {
		return nil, ErrReleased
	}
	f, err := a.fs.Open(a.path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open staged audio %s", a.path)
	}
	return f, nil
}

// UploadName is the filename sent upstream, e.g. "audio.wav".
func (a *UploadedAudio) UploadName() string {
	ext := a.Extension
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("audio.%s", ext)
}

// Release removes the transient file. Safe to call from several exit paths, only the first one does the work.
func (a *UploadedAudio) Release() error {
	a.once.Do(func() {
		a.released.Store(true)
		err := a.fs.Remove(a.path)
		if err != nil && !os.IsNotExist(err) {
			a.releaseErr = errors.Wrapf(err, "cannot remove staged audio %s", a.path)
		}
	})
	return a.releaseErr
}

func (a *UploadedAudio) Released() bool {
	return a.released.Load()
}

// TranscriptionResult is what the provider made of the audio.
type TranscriptionResult struct {
	Text     string
	Language string
	// Duration as reported by the provider, zero when it did not say.
	Duration time.Duration
}
