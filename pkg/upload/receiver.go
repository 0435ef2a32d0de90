package upload

import (
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/petrzlen/whisper-relay/pkg/audio_utils"
	"github.com/petrzlen/whisper-relay/pkg/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

const (
	// DefaultMaxBytes is the largest audio file we accept, 10 MiB.
	DefaultMaxBytes int64 = 10 << 20
	// FileField is the multipart field the audio has to come in.
	FileField = "file"

	// multipartAllowance covers boundaries, part headers and small extra fields on top of the file itself.
	multipartAllowance int64 = 1 << 20
	stagedFilePrefix         = "upload-"
)

type Config struct {
	// Dir is where staged files live, relative to the Fs root.
	Dir      string
	MaxBytes int64
	// RequireAudio rejects uploads which do not sniff as audio. Off by default, the provider decides.
	RequireAudio bool
}

// Receiver turns a multipart request into an UploadedAudio staged on fs.
type Receiver struct {
	fs     afero.Fs
	config Config
}

func NewReceiver(fs afero.Fs, config Config) (*Receiver, error) {
	if config.MaxBytes <= 0 {
		config.MaxBytes = DefaultMaxBytes
	}
	if config.Dir == "" {
		config.Dir = "uploads"
	}
	if err := fs.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "cannot create upload dir %s", config.Dir)
	}
	return &Receiver{fs: fs, config: config}, nil
}

func (rc *Receiver) Dir() string {
	return rc.config.Dir
}

// Receive reads the request body and stages the single "file" part.
// On error nothing is left behind on the filesystem. On success the caller owns the returned audio and must Release it.
func (rc *Receiver) Receive(w http.ResponseWriter, r *http.Request) (*models.UploadedAudio, error) {
	logger := zerolog.Ctx(r.Context())
	bodyLimit := rc.config.MaxBytes + multipartAllowance
	if r.ContentLength > bodyLimit {
		return nil, models.NewError(models.KindPayloadTooLarge, "declared content length over the limit", nil)
	}
	if r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	}

	multipartReader, err := r.MultipartReader()
	if err != nil {
		// Same as a form without the file: nothing was uploaded.
		return nil, models.NewError(models.KindNoFileProvided, "request is not multipart/form-data", err)
	}

	var audio *models.UploadedAudio
	discard := func() {
		if audio != nil {
			errLog(audio.Release(), "release partially received audio")
		}
	}

	for {
		part, err := multipartReader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			discard()
			return nil, classifyBodyError(err, "cannot read multipart part")
		}

		if part.FormName() != FileField || part.FileName() == "" {
			// Plain form fields are ignored, but their bytes still count against the body limit.
			_, err := io.Copy(io.Discard, part)
			part.Close()
			if err != nil {
				discard()
				return nil, classifyBodyError(err, "cannot skip form field")
			}
			continue
		}

		if audio != nil {
			part.Close()
			discard()
			return nil, models.NewError(models.KindMultipleFiles, "more than one file part", nil)
		}
		audio, err = rc.stage(part)
		part.Close()
		if err != nil {
			return nil, err
		}
		logger.Debug().Str("filename", audio.Filename).Int64("size", audio.Size).Str("path", audio.Path()).Msg("audio staged")
	}

	if audio == nil {
		return nil, models.NewError(models.KindNoFileProvided, "no file part in form", nil)
	}

	if err := rc.inspect(audio, logger); err != nil {
		discard()
		return nil, err
	}
	return audio, nil
}

// stage copies the part into a fresh temp file, removing it again if anything goes wrong.
func (rc *Receiver) stage(part *multipart.Part) (audio *models.UploadedAudio, err error) {
	f, err := afero.TempFile(rc.fs, rc.config.Dir, stagedFilePrefix+"*")
	if err != nil {
		return nil, models.NewError(models.KindInternal, "cannot create staging file", err)
	}
	path := f.Name()
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = models.NewError(models.KindInternal, "cannot close staging file", closeErr)
		}
		if err != nil {
			dbg(rc.fs.Remove(path))
		}
	}()

	written, err := io.Copy(f, io.LimitReader(part, rc.config.MaxBytes+1))
	if err != nil {
		return nil, classifyBodyError(err, "cannot write staging file")
	}
	if written > rc.config.MaxBytes {
		return nil, models.NewError(models.KindPayloadTooLarge, "file over the limit", nil)
	}

	audio = models.NewUploadedAudio(rc.fs, path)
	audio.Size = written
	audio.Filename = part.FileName()
	audio.ContentType = part.Header.Get("Content-Type")
	audio.Trace.ReceivedAt = audio.Trace.CreatedAt
	return audio, nil
}

// inspect sniffs the staged bytes to pick the provider extension and probes the duration.
// Only strict mode can turn this into an error, probing problems are just logged.
func (rc *Receiver) inspect(audio *models.UploadedAudio, logger *zerolog.Logger) error {
	f, err := audio.Open()
	if err != nil {
		return models.NewError(models.KindInternal, "cannot reopen staged audio", err)
	}
	defer func() { dbg(f.Close()) }()

	sniffed, err := audio_utils.Sniff(f)
	if err != nil {
		logger.Debug().Err(err).Msg("content sniffing failed")
	}
	audio.DetectedType = sniffed.MIME
	audio.Extension = sniffed.Extension
	if audio.Extension == "" {
		audio.Extension = audio_utils.ExtensionFromFilename(audio.Filename)
	}

	if rc.config.RequireAudio && !sniffed.IsAudio {
		return models.NewError(models.KindUnsupportedMedia, "upload does not look like audio: "+sniffed.MIME, nil)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		logger.Debug().Err(err).Msg("cannot rewind staged audio for probing")
		return nil
	}
	duration, err := audio_utils.Duration(f, audio.Extension)
	if err != nil {
		logger.Debug().Err(err).Str("extension", audio.Extension).Msg("cannot probe audio duration")
	}
	audio.Duration = duration

	logger.Info().
		Str("detected_type", audio.DetectedType).
		Str("declared_type", audio.ContentType).
		Str("extension", audio.Extension).
		Int64("size", audio.Size).
		Dur("audio_duration", audio.Duration).
		Msg("audio received")
	return nil
}

// Purge removes staged files a previous process left behind (e.g. after a crash). Returns how many it removed.
func (rc *Receiver) Purge() (removed int, err error) {
	entries, err := afero.ReadDir(rc.fs, rc.config.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrapf(err, "cannot list upload dir %s", rc.config.Dir)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), stagedFilePrefix) {
			continue
		}
		if removeErr := rc.fs.Remove(filepath.Join(rc.config.Dir, entry.Name())); removeErr != nil && !os.IsNotExist(removeErr) {
			err = errors.Wrapf(removeErr, "cannot remove stale upload %s", entry.Name())
			continue
		}
		removed++
	}
	return removed, err
}

func classifyBodyError(err error, what string) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return models.NewError(models.KindPayloadTooLarge, "request body over the limit", err)
	}
	return models.NewError(models.KindMalformedUpload, what, err)
}
